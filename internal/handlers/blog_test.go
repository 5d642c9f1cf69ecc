package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"blogapi/internal/blog"
	"blogapi/internal/storage"
	"blogapi/internal/telemetry"
	"blogapi/internal/token"

	"go.opentelemetry.io/otel/metric/noop"
)

// newTestHandler wires the real pipeline against temp-dir storage so the
// HTTP tests exercise the same code paths production does.
func newTestHandler(t *testing.T) *BlogHandler {
	t.Helper()

	dir := t.TempDir()
	blobs, err := storage.NewLocalStorage(filepath.Join(dir, "images"))
	if err != nil {
		t.Fatalf("creating blob store: %v", err)
	}
	records := storage.NewRecordStore(filepath.Join(dir, "blogs.json"))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	metrics, err := telemetry.NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("creating metrics: %v", err)
	}

	ingestor := blog.NewService(records, blobs, blog.NewNormalizer(25, 0), logger)
	tokens := token.NewService("test-only-secret", 5*time.Minute, blobs, logger)

	return NewBlogHandler(ingestor, blog.NewQuery(records), tokens, logger, metrics)
}

func testJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := range 24 {
		for x := range 24 {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return buf.Bytes()
}

type formFile struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, files []formFile) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		hdr.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	return &body, mw.FormDataContentType()
}

func validFields() map[string]string {
	return map[string]string{
		"title":       "A perfectly fine title",
		"description": "A description",
		"date_time":   strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
	}
}

func addPost(t *testing.T, h *BlogHandler, fields map[string]string, files []formFile) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, fields, files)
	req := httptest.NewRequest(http.MethodPost, "/add", body)
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	h.HandleAddPost().ServeHTTP(rr, req)
	return rr
}

func TestHandleAddPostCreated(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	rr := addPost(t, h, validFields(), []formFile{
		{field: "main_image", filename: "main.jpg", contentType: "image/jpeg", data: testJPEG(t)},
		{field: "additional_images", filename: "one.jpg", contentType: "image/jpeg", data: testJPEG(t)},
		{field: "additional_images", filename: "two.jpg", contentType: "image/jpeg", data: testJPEG(t)},
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}

	var rec storage.PostRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if rec.Reference != "00001" {
		t.Errorf("reference = %q, want 00001", rec.Reference)
	}
	if rec.MainImage == "" || len(rec.AdditionalImages) != 2 {
		t.Errorf("image keys missing from record: %+v", rec)
	}
}

func TestHandleAddPostValidationFailures(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	img := testJPEG(t)

	tests := []struct {
		name    string
		mutate  func(fields map[string]string, files []formFile) []formFile
		wantErr string
	}{
		{name: "short title",
			mutate: func(fields map[string]string, files []formFile) []formFile {
				fields["title"] = "abc"
				return files
			},
			wantErr: "invalid title",
		},
		{name: "punctuation in title",
			mutate: func(fields map[string]string, files []formFile) []formFile {
				fields["title"] = "No punctuation allowed!"
				return files
			},
			wantErr: "invalid title",
		},
		{name: "missing main image",
			mutate: func(fields map[string]string, files []formFile) []formFile {
				return nil
			},
			wantErr: "main image is required",
		},
		{name: "publish time in the past",
			mutate: func(fields map[string]string, files []formFile) []formFile {
				fields["date_time"] = strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
				return files
			},
			wantErr: "invalid date_time",
		},
		{name: "non jpeg main image",
			mutate: func(fields map[string]string, files []formFile) []formFile {
				files[0].contentType = "image/png"
				return files
			},
			wantErr: "only JPEG images up to 1MB are accepted",
		},
		{name: "oversized main image",
			mutate: func(fields map[string]string, files []formFile) []formFile {
				files[0].data = make([]byte, 1<<20+1)
				return files
			},
			wantErr: "only JPEG images up to 1MB are accepted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fields := validFields()
			files := tt.mutate(fields, []formFile{
				{field: "main_image", filename: "main.jpg", contentType: "image/jpeg", data: img},
			})

			rr := addPost(t, h, fields, files)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
			}

			var resp struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if resp.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestHandleAddPostRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	// a single part bigger than the whole-request cap; the body reader
	// must cut it off rather than spool it all before rejecting
	rr := addPost(t, h, validFields(), []formFile{
		{field: "main_image", filename: "huge.jpg", contentType: "image/jpeg", data: make([]byte, 9<<20)},
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Error != "request body exceeds the upload limit" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestHandlePostsDecoration(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	publishAt := time.Now().Add(time.Hour).Unix()
	fields := validFields()
	fields["title"] = "Hello World Post"
	fields["date_time"] = strconv.FormatInt(publishAt, 10)

	if rr := addPost(t, h, fields, []formFile{
		{field: "main_image", filename: "main.jpg", contentType: "image/jpeg", data: testJPEG(t)},
	}); rr.Code != http.StatusCreated {
		t.Fatalf("seeding post failed: %d %s", rr.Code, rr.Body)
	}

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	rr := httptest.NewRecorder()
	h.HandlePosts().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}

	var posts []struct {
		Reference string `json:"reference"`
		Title     string `json:"title"`
		DateTime  string `json:"date_time"`
		TitleSlug string `json:"title_slug"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &posts); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}

	p := posts[0]
	if p.TitleSlug != "hello-world-post" {
		t.Errorf("title_slug = %q", p.TitleSlug)
	}
	parsed, err := time.Parse(time.RFC3339, p.DateTime)
	if err != nil {
		t.Fatalf("date_time %q is not RFC3339: %v", p.DateTime, err)
	}
	if parsed.Unix() != publishAt {
		t.Errorf("date_time = %v, want unix %d", parsed, publishAt)
	}
}

func TestTokenFlow(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	rr := addPost(t, h, validFields(), []formFile{
		{field: "main_image", filename: "main.jpg", contentType: "image/jpeg", data: testJPEG(t)},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("seeding post failed: %d %s", rr.Code, rr.Body)
	}
	var rec storage.PostRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}

	// issue a token for the stored main image
	body, _ := json.Marshal(map[string]string{"image_path": rec.MainImage})
	req := httptest.NewRequest(http.MethodPost, "/token", bytes.NewReader(body))
	tokRR := httptest.NewRecorder()
	h.HandleToken().ServeHTTP(tokRR, req)

	if tokRR.Code != http.StatusOK {
		t.Fatalf("token status = %d, body = %s", tokRR.Code, tokRR.Body)
	}
	var tokResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(tokRR.Body.Bytes(), &tokResp); err != nil {
		t.Fatal(err)
	}

	// redeem it
	req = httptest.NewRequest(http.MethodGet,
		"/bytoken?image_path="+rec.MainImage+"&token="+tokResp.Token, nil)
	imgRR := httptest.NewRecorder()
	h.HandleImageByToken().ServeHTTP(imgRR, req)

	if imgRR.Code != http.StatusOK {
		t.Fatalf("bytoken status = %d, body = %s", imgRR.Code, imgRR.Body)
	}
	if ct := imgRR.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if _, err := jpeg.Decode(bytes.NewReader(imgRR.Body.Bytes())); err != nil {
		t.Errorf("served bytes are not a decodable jpeg: %v", err)
	}
}

func TestTokenForUnknownImage(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	body, _ := json.Marshal(map[string]string{"image_path": "main_nothere.jpg"})
	req := httptest.NewRequest(http.MethodPost, "/token", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.HandleToken().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
}

func TestImageByTokenUniform404(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	rr := addPost(t, h, validFields(), []formFile{
		{field: "main_image", filename: "main.jpg", contentType: "image/jpeg", data: testJPEG(t)},
	})
	if rr.Code != http.StatusCreated {
		t.Fatal("seeding post failed")
	}
	var rec storage.PostRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}

	// bad token, missing image and traversal attempt must be
	// indistinguishable from the outside
	for _, q := range []string{
		"image_path=" + rec.MainImage + "&token=garbage",
		"image_path=main_other.jpg&token=garbage",
		"image_path=..%2Fblogs.json&token=garbage",
		"image_path=" + rec.MainImage,
	} {
		req := httptest.NewRequest(http.MethodGet, "/bytoken?"+q, nil)
		imgRR := httptest.NewRecorder()
		h.HandleImageByToken().ServeHTTP(imgRR, req)

		if imgRR.Code != http.StatusNotFound {
			t.Errorf("query %q: status = %d", q, imgRR.Code)
		}
		var resp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(imgRR.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if resp.Error != "not found" {
			t.Errorf("query %q: body %q leaks the failure cause", q, resp.Error)
		}
	}
}
