package storage

import (
	"errors"
)

var (
	ErrStoreCorrupt     = errors.New("record store corrupt")
	ErrStoreUnavailable = errors.New("record store unavailable")
)

// PostRecord is the persisted shape of a blog post. Records are appended
// once at ingestion and never modified or deleted afterwards.
type PostRecord struct {
	Reference        string   `json:"reference"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	MainImage        string   `json:"main_image"`
	AdditionalImages []string `json:"additional_images"`
	PublishAt        int64    `json:"date_time"`
}
