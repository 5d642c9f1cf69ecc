package blog

import (
	"regexp"
	"strings"
	"time"

	"blogapi/internal/storage"
)

// DecoratedPost is a PostRecord with presentation fields layered on top.
// The outer date_time shadows the record's raw unix value in JSON output.
type DecoratedPost struct {
	storage.PostRecord
	DateTime  string `json:"date_time"`
	TitleSlug string `json:"title_slug"`
}

// RecordReader is the read side of the record store.
type RecordReader interface {
	ReadAll() ([]storage.PostRecord, error)
}

// Query is the read-only view over the record store. It shares the store
// with the ingestion path but never writes.
type Query struct {
	records RecordReader
}

func NewQuery(records RecordReader) *Query {
	return &Query{records: records}
}

// ListPosts returns every record decorated with an RFC 3339 render of its
// publish time and a URL-safe slug of its title.
func (q *Query) ListPosts() ([]DecoratedPost, error) {
	records, err := q.records.ReadAll()
	if err != nil {
		return nil, err
	}

	decorated := make([]DecoratedPost, 0, len(records))
	for _, rec := range records {
		decorated = append(decorated, DecoratedPost{
			PostRecord: rec,
			DateTime:   time.Unix(rec.PublishAt, 0).UTC().Format(time.RFC3339),
			TitleSlug:  Slugify(rec.Title),
		})
	}

	return decorated, nil
}

var (
	slugStrip    = regexp.MustCompile(`[*+~.()'"!:@]`)
	slugCollapse = regexp.MustCompile(`\s+`)
)

// Slugify lowercases a title, strips slug-hostile punctuation and turns
// whitespace runs into single hyphens.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStrip.ReplaceAllString(s, "")
	s = slugCollapse.ReplaceAllString(s, "-")
	return s
}
