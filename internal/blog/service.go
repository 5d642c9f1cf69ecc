package blog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"blogapi/internal/storage"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Service owns the write path: validate, normalize and store the images,
// then append the record. No record ever references a blob that failed to
// write, and a cancelled request never appends.
type Service struct {
	records    *storage.RecordStore
	blobs      storage.Provider
	normalizer *Normalizer
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewService(records *storage.RecordStore, blobs storage.Provider, normalizer *Normalizer, logger *slog.Logger) *Service {
	return &Service{
		records:    records,
		blobs:      blobs,
		normalizer: normalizer,
		logger:     logger,
		tracer:     otel.Tracer("blogapi/blog/service"),
		now:        time.Now,
	}
}

// Ingest runs a submission through the full pipeline and returns the
// persisted record.
func (s *Service) Ingest(ctx context.Context, sub Submission) (storage.PostRecord, error) {
	ctx, span := s.tracer.Start(ctx, "Blog.Ingest",
		trace.WithAttributes(attribute.Int("images.additional", len(sub.AdditionalImages))),
	)
	defer span.End()

	if err := Validate(sub, s.now()); err != nil {
		return storage.PostRecord{}, err
	}

	mainKey := fmt.Sprintf("main_%s.jpg", uuid.Must(uuid.NewV4()))
	additionalKeys := make([]string, len(sub.AdditionalImages))
	for i := range sub.AdditionalImages {
		additionalKeys[i] = fmt.Sprintf("additional_%d_%s.jpg", i+1, uuid.Must(uuid.NewV4()))
	}

	if err := s.writeBlobs(ctx, sub, mainKey, additionalKeys); err != nil {
		span.RecordError(err)
		return storage.PostRecord{}, err
	}

	// the client may have gone away while images were being written; the
	// blobs are harmless orphans but the record must not land
	if err := ctx.Err(); err != nil {
		return storage.PostRecord{}, err
	}

	rec, err := s.records.Insert(ctx, func(existing []storage.PostRecord) (storage.PostRecord, error) {
		ref, err := NextReference(existing)
		if err != nil {
			return storage.PostRecord{}, err
		}

		// publish gate re-evaluated with append time: normalization may
		// have pushed a bare-minimum date_time into the past
		if sub.PublishAt < s.now().Unix() {
			return storage.PostRecord{}, ErrInvalidPublishTime
		}

		return storage.PostRecord{
			Reference:        ref,
			Title:            sub.Title,
			Description:      sub.Description,
			MainImage:        mainKey,
			AdditionalImages: additionalKeys,
			PublishAt:        sub.PublishAt,
		}, nil
	})
	if err != nil {
		span.RecordError(err)
		s.removeBlobs(ctx, append([]string{mainKey}, additionalKeys...))
		return storage.PostRecord{}, err
	}

	s.logger.Info("post ingested", "reference", rec.Reference, "blobs", 1+len(additionalKeys))
	return rec, nil
}

// writeBlobs normalizes and stores every image of the submission
// concurrently. Any single failure aborts the post: blobs already written
// are removed so at most harmless orphans remain.
func (s *Service) writeBlobs(ctx context.Context, sub Submission, mainKey string, additionalKeys []string) error {
	type job struct {
		key  string
		data []byte
	}

	jobs := make([]job, 0, 1+len(sub.AdditionalImages))
	jobs = append(jobs, job{key: mainKey, data: sub.MainImage.Data})
	for i, img := range sub.AdditionalImages {
		jobs = append(jobs, job{key: additionalKeys[i], data: img.Data})
	}

	var wg sync.WaitGroup
	errs := make([]error, len(jobs))
	written := make([]bool, len(jobs))

	for i, j := range jobs {
		wg.Go(func() {
			_, span := s.tracer.Start(ctx, "Blog.WriteBlob",
				trace.WithAttributes(attribute.String("blob.key", j.key)),
			)
			defer span.End()

			normalized, err := s.normalizer.Normalize(j.data)
			if err != nil {
				errs[i] = err
				return
			}

			if err := s.blobs.Save(ctx, j.key, bytes.NewReader(normalized)); err != nil {
				errs[i] = fmt.Errorf("saving blob %s: %w", j.key, err)
				return
			}
			written[i] = true
		})
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		keys := make([]string, 0, len(jobs))
		for i, j := range jobs {
			if written[i] {
				keys = append(keys, j.key)
			}
		}
		s.removeBlobs(ctx, keys)
		return err
	}

	return nil
}

// removeBlobs is best effort. A blob that survives removal is an orphan
// nothing references, which is acceptable; a record referencing a missing
// blob is not.
func (s *Service) removeBlobs(ctx context.Context, keys []string) {
	// cleanup must still run when the request context is already dead
	ctx = context.WithoutCancel(ctx)

	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("orphan blob left behind", "key", key, "err", err)
		}
	}
}
