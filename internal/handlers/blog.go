package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"blogapi/internal/blog"
	"blogapi/internal/storage"
	"blogapi/internal/telemetry"
)

const (
	maxUploadBytes  = 1 << 20 // per file, the transport-level multer-style filter
	maxRequestBytes = 8 << 20 // whole body: six 1MiB files plus form overhead
	maxFormMemory   = 12 << 20
	mainImageField  = "main_image"
	additionalField = "additional_images"
)

type IngestService interface {
	Ingest(ctx context.Context, sub blog.Submission) (storage.PostRecord, error)
}

type PostLister interface {
	ListPosts() ([]blog.DecoratedPost, error)
}

type TokenService interface {
	Issue(ctx context.Context, imagePath string) (string, error)
	Fetch(ctx context.Context, imagePath, token string) ([]byte, error)
}

// BlogHandler holds the state
type BlogHandler struct {
	Ingestor IngestService
	Posts    PostLister
	Tokens   TokenService
	Logger   *slog.Logger
	Metrics  *telemetry.Metrics
}

// NewBlogHandler creates the controller
func NewBlogHandler(ingestor IngestService, posts PostLister, tokens TokenService, logger *slog.Logger, metrics *telemetry.Metrics) *BlogHandler {
	return &BlogHandler{
		Ingestor: ingestor,
		Posts:    posts,
		Tokens:   tokens,
		Logger:   logger,
		Metrics:  metrics,
	}
}

// HandleAddPost accepts a multipart submission and runs it through the
// ingestion pipeline. The per-file size/type check here is the cheap early
// reject; the validator re-checks authoritatively.
func (h *BlogHandler) HandleAddPost() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// cap the whole body before parsing so an oversized request is
		// cut off mid-read instead of being spooled to disk first
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.clientError(w, "request body exceeds the upload limit")
				return
			}
			h.clientError(w, "could not parse multipart form")
			return
		}

		sub := blog.Submission{
			Title:       r.FormValue("title"),
			Description: r.FormValue("description"),
		}

		// a missing or garbled date_time stays zero and fails validation
		if v := r.FormValue("date_time"); v != "" {
			sub.PublishAt, _ = strconv.ParseInt(v, 10, 64)
		}

		if headers := r.MultipartForm.File[mainImageField]; len(headers) > 0 {
			upload, err := readUpload(headers[0])
			if err != nil {
				h.clientError(w, err.Error())
				return
			}
			sub.MainImage = upload
		}

		for _, fh := range r.MultipartForm.File[additionalField] {
			upload, err := readUpload(fh)
			if err != nil {
				h.clientError(w, err.Error())
				return
			}
			sub.AdditionalImages = append(sub.AdditionalImages, upload)
		}

		rec, err := h.Ingestor.Ingest(r.Context(), sub)
		if err != nil {
			var vErr *blog.ValidationError
			if errors.As(err, &vErr) {
				h.clientError(w, vErr.Error())
				return
			}
			h.Metrics.IngestFailuresTotal.Add(r.Context(), 1)
			h.internalError(w, r, err)
			return
		}

		h.Metrics.PostsIngestedTotal.Add(r.Context(), 1)
		h.Metrics.BlobsWrittenTotal.Add(r.Context(), int64(1+len(rec.AdditionalImages)))

		h.writeJSON(w, http.StatusCreated, rec)
	})
}

// HandlePosts lists every record in decorated, presentation-ready form.
func (h *BlogHandler) HandlePosts() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts, err := h.Posts.ListPosts()
		if err != nil {
			h.internalError(w, r, err)
			return
		}

		h.writeJSON(w, http.StatusOK, posts)
	})
}

var errUploadRejected = errors.New("only JPEG images up to 1MB are accepted")

// readUpload buffers one multipart file, applying the transport filter
func readUpload(fh *multipart.FileHeader) (*blog.Upload, error) {
	if fh.Size > maxUploadBytes {
		return nil, errUploadRejected
	}
	if fh.Header.Get("Content-Type") != "image/jpeg" {
		return nil, errUploadRejected
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errUploadRejected
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errUploadRejected
	}

	return &blog.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}
