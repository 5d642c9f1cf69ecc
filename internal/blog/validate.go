package blog

import (
	"regexp"
	"time"
	"unicode/utf8"
)

const (
	maxImageBytes       = 1 << 20
	maxAdditionalImages = 5
	minTitleLen         = 5
	maxTitleLen         = 50
	maxDescriptionLen   = 500
)

var titlePattern = regexp.MustCompile(`^[A-Za-z0-9\s]+$`)

// Upload is one file as it arrived over the wire. ContentType and Size
// come from the client; the transport filter rejects obvious mismatches
// early and Validate is the authoritative re-check.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// Submission is a candidate post before any side effect has happened.
type Submission struct {
	Title            string
	Description      string
	PublishAt        int64 // unix seconds
	MainImage        *Upload
	AdditionalImages []*Upload
}

// Validate checks a submission against the ingestion rules. Checks run in
// a fixed order and the first failure wins, so callers only ever see one
// reason per attempt. Pure, no side effects.
func Validate(sub Submission, now time.Time) error {
	if sub.Title == "" ||
		utf8.RuneCountInString(sub.Title) < minTitleLen ||
		utf8.RuneCountInString(sub.Title) > maxTitleLen ||
		!titlePattern.MatchString(sub.Title) {
		return ErrInvalidTitle
	}

	if sub.Description == "" || utf8.RuneCountInString(sub.Description) > maxDescriptionLen {
		return ErrInvalidDescription
	}

	if sub.MainImage == nil {
		return ErrMissingMainImage
	}

	if sub.MainImage.ContentType != "image/jpeg" {
		return ErrInvalidMainImageFormat
	}

	if sub.MainImage.Size > maxImageBytes {
		return ErrMainImageTooLarge
	}

	if sub.PublishAt == 0 || sub.PublishAt < now.Unix() {
		return ErrInvalidPublishTime
	}

	if len(sub.AdditionalImages) > maxAdditionalImages {
		return ErrInvalidAdditionalImage
	}
	for _, img := range sub.AdditionalImages {
		if img == nil || img.ContentType != "image/jpeg" || img.Size > maxImageBytes {
			return ErrInvalidAdditionalImage
		}
	}

	return nil
}
