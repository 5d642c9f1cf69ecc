package token

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"blogapi/internal/storage"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrImageNotFound covers a missing blob and a path that tries to
	// escape the image root. Collapsing the two keeps the filesystem
	// layout unobservable from the outside.
	ErrImageNotFound = errors.New("image not found")
	ErrInvalidToken  = errors.New("invalid or expired token for the specified image")
)

type claims struct {
	ImagePath string `json:"image_path"`
	jwt.RegisteredClaims
}

// Service issues and verifies capability tokens. A token binds exactly one
// image path to an expiry; nothing is persisted, validity is recomputed
// from the signed payload and the clock on every check.
type Service struct {
	secret []byte
	ttl    time.Duration
	blobs  storage.Provider
	logger *slog.Logger
	now    func() time.Time
}

func NewService(secret string, ttl time.Duration, blobs storage.Provider, logger *slog.Logger) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		blobs:  blobs,
		logger: logger,
		now:    time.Now,
	}
}

// Issue signs a token for imagePath after confirming a blob exists there.
// Paths outside the managed root never sign.
func (s *Service) Issue(ctx context.Context, imagePath string) (string, error) {
	key, ok := sanitizeKey(imagePath)
	if !ok {
		s.logger.Warn("token refused: path escapes image root", "path", imagePath)
		return "", ErrImageNotFound
	}

	if !s.blobs.Exists(ctx, key) {
		return "", ErrImageNotFound
	}

	now := s.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ImagePath: imagePath,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})

	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	return signed, nil
}

// Fetch verifies tokenStr against imagePath and returns the blob bytes.
// The embedded path must equal the requested one byte for byte; no
// normalization happens before the comparison.
func (s *Service) Fetch(ctx context.Context, imagePath, tokenStr string) ([]byte, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		s.logger.Warn("token rejected", "path", imagePath, "err", err)
		return nil, ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.ImagePath != imagePath {
		s.logger.Warn("token rejected: path mismatch", "requested", imagePath)
		return nil, ErrInvalidToken
	}

	key, ok := sanitizeKey(imagePath)
	if !ok {
		s.logger.Warn("fetch refused: path escapes image root", "path", imagePath)
		return nil, ErrImageNotFound
	}

	reader, err := s.blobs.Open(ctx, key)
	if err != nil {
		// the blob may have existed at issuance and gone since; callers
		// see the same answer either way
		s.logger.Warn("blob missing at fetch time", "key", key, "err", err)
		return nil, ErrImageNotFound
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, ErrImageNotFound
	}

	return data, nil
}

// sanitizeKey canonicalizes a client-supplied image path and reports
// whether it stays inside the managed root.
func sanitizeKey(imagePath string) (string, bool) {
	if imagePath == "" || strings.ContainsRune(imagePath, '\\') || strings.ContainsRune(imagePath, 0) {
		return "", false
	}

	clean := path.Clean(imagePath)
	if clean == "." || clean == ".." || path.IsAbs(clean) || strings.HasPrefix(clean, "../") {
		return "", false
	}

	return clean, true
}
