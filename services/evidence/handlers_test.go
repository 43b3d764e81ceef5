package evidence

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

type fakeUploader struct {
	result Result
	err    error
	got    Upload
	calls  int
}

func (u *fakeUploader) Upload(ctx context.Context, up Upload) (Result, error) {
	u.calls++
	u.got = up
	return u.result, u.err
}

func testHandler(t *testing.T, up Uploader, repo Repository, objects ObjectStore, cfg APIConfig) http.Handler {
	t.Helper()
	if cfg.ScannedBucket == "" {
		cfg.ScannedBucket = "scanned"
	}
	api, err := NewAPI(up, repo, objects, cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewAPI() error = %v", err)
	}
	handler, err := api.Routes()
	if err != nil {
		t.Fatalf("Routes() error = %v", err)
	}
	return handler
}

func uploadBody(filename, content string) string {
	return fmt.Sprintf(`{
		"action": {"name": "uploadFile"},
		"input": {"data": {
			"filename": %q,
			"base64_data": %q,
			"name": "n",
			"description": "d"
		}}
	}`, filename, base64.StdEncoding.EncodeToString([]byte(content)))
}

func TestHandleUploadStored(t *testing.T) {
	id := uuid.New()
	uploader := &fakeUploader{result: Result{EvidenceID: id}}
	handler := testHandler(t, uploader, newFakeRepository(), &fakeObjectStore{}, APIConfig{})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(uploadBody("a.txt", "hello")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		EvidenceID uuid.UUID `json:"evidence_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.EvidenceID != id {
		t.Fatalf("evidence_id = %s, want %s", resp.EvidenceID, id)
	}

	if uploader.got.Filename != "a.txt" {
		t.Fatalf("pipeline received filename %q", uploader.got.Filename)
	}
	if !bytes.Equal(uploader.got.Content, []byte("hello")) {
		t.Fatalf("pipeline received content %q", uploader.got.Content)
	}
	if uploader.got.Name != "n" || uploader.got.Description != "d" {
		t.Fatalf("pipeline received metadata %q/%q", uploader.got.Name, uploader.got.Description)
	}
}

func TestHandleUploadActionEnvelopeExtras(t *testing.T) {
	uploader := &fakeUploader{result: Result{EvidenceID: uuid.New()}}
	handler := testHandler(t, uploader, newFakeRepository(), &fakeObjectStore{}, APIConfig{})

	// Action callers attach session and query metadata alongside the fields
	// this handler consumes; the extras must not fail parsing.
	body := fmt.Sprintf(`{
		"action": {"name": "uploadFile"},
		"session_variables": {"x-hasura-role": "user"},
		"request_query": "mutation uploadFile { ... }",
		"input": {"data": {
			"filename": "a.txt",
			"base64_data": %q,
			"name": "n",
			"description": "d"
		}}
	}`, base64.StdEncoding.EncodeToString([]byte("hello")))

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if uploader.calls != 1 {
		t.Fatalf("pipeline calls = %d, want 1", uploader.calls)
	}
	if !bytes.Equal(uploader.got.Content, []byte("hello")) {
		t.Fatalf("pipeline received content %q", uploader.got.Content)
	}
}

func TestHandleUploadRejected(t *testing.T) {
	uploader := &fakeUploader{result: Result{Rejected: true, Reason: RejectionReason}}
	handler := testHandler(t, uploader, newFakeRepository(), &fakeObjectStore{}, APIConfig{})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(uploadBody("a.txt", "hello")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), RejectionReason) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHandleUploadFailure(t *testing.T) {
	uploader := &fakeUploader{err: fmt.Errorf("%w: dial tcp: connection refused", ErrScanUnavailable)}
	handler := testHandler(t, uploader, newFakeRepository(), &fakeObjectStore{}, APIConfig{})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(uploadBody("a.txt", "hello")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	// Infrastructure detail stays out of the response body.
	if strings.Contains(rec.Body.String(), "dial tcp") {
		t.Fatalf("body leaks failure detail: %s", rec.Body.String())
	}
}

func TestHandleUploadBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "invalid json",
			body: "{not json",
			want: http.StatusBadRequest,
		},
		{
			name: "missing filename",
			body: uploadBody("", "hello"),
			want: http.StatusBadRequest,
		},
		{
			name: "invalid base64",
			body: `{"action":{"name":"uploadFile"},"input":{"data":{"filename":"a.txt","base64_data":"!!!","name":"n","description":"d"}}}`,
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &fakeUploader{}
			handler := testHandler(t, uploader, newFakeRepository(), &fakeObjectStore{}, APIConfig{})

			req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if uploader.calls != 0 {
				t.Fatal("pipeline invoked for a malformed request")
			}
		})
	}
}

func TestHandleUploadTooLarge(t *testing.T) {
	uploader := &fakeUploader{}
	handler := testHandler(t, uploader, newFakeRepository(), &fakeObjectStore{}, APIConfig{MaxUploadSize: 4})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(uploadBody("a.txt", "hello")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if uploader.calls != 0 {
		t.Fatal("pipeline invoked for an oversize upload")
	}
}

func TestHandleGetEvidence(t *testing.T) {
	repo := newFakeRepository()
	id, err := repo.Insert(context.Background(), Evidence{
		Filename:    "a.txt",
		Name:        "n",
		Description: "d",
		S3Key:       "2024/03/07/abc/a.txt",
		SHA256:      "deadbeef",
	})
	if err != nil {
		t.Fatalf("seed repository: %v", err)
	}

	handler := testHandler(t, &fakeUploader{}, repo, &fakeObjectStore{}, APIConfig{})

	req := httptest.NewRequest(http.MethodGet, "/evidence/"+id.String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var ev Evidence
	if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ev.Filename != "a.txt" || ev.S3Key != "2024/03/07/abc/a.txt" || ev.Infected {
		t.Fatalf("record = %+v", ev)
	}
}

func TestHandleGetEvidenceNotFound(t *testing.T) {
	handler := testHandler(t, &fakeUploader{}, newFakeRepository(), &fakeObjectStore{}, APIConfig{})

	req := httptest.NewRequest(http.MethodGet, "/evidence/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleGetEvidenceInvalidID(t *testing.T) {
	handler := testHandler(t, &fakeUploader{}, newFakeRepository(), &fakeObjectStore{}, APIConfig{})

	req := httptest.NewRequest(http.MethodGet, "/evidence/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDownload(t *testing.T) {
	repo := newFakeRepository()
	id, err := repo.Insert(context.Background(), Evidence{
		Filename: "a.txt",
		S3Key:    "2024/03/07/abc/a.txt",
	})
	if err != nil {
		t.Fatalf("seed repository: %v", err)
	}

	store := &fakeObjectStore{presignURL: "https://s3.example/signed"}
	handler := testHandler(t, &fakeUploader{}, repo, store, APIConfig{})

	req := httptest.NewRequest(http.MethodGet, "/evidence/"+id.String()+"/download?ttl=60", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["url"] != "https://s3.example/signed" {
		t.Fatalf("url = %q", resp["url"])
	}
}

func TestHandleDownloadInvalidTTL(t *testing.T) {
	repo := newFakeRepository()
	id, err := repo.Insert(context.Background(), Evidence{Filename: "a.txt", S3Key: "k"})
	if err != nil {
		t.Fatalf("seed repository: %v", err)
	}

	handler := testHandler(t, &fakeUploader{}, repo, &fakeObjectStore{}, APIConfig{})

	req := httptest.NewRequest(http.MethodGet, "/evidence/"+id.String()+"/download?ttl=abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleHC(t *testing.T) {
	handler := testHandler(t, &fakeUploader{}, newFakeRepository(), &fakeObjectStore{}, APIConfig{})

	req := httptest.NewRequest(http.MethodGet, "/hc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHandleReadyz(t *testing.T) {
	healthy := func(ctx context.Context) error { return nil }
	unhealthy := func(ctx context.Context) error { return fmt.Errorf("clamav unavailable: %v", context.DeadlineExceeded) }

	tests := []struct {
		name   string
		checks []HealthCheck
		want   int
	}{
		{name: "all healthy", checks: []HealthCheck{healthy, healthy}, want: http.StatusOK},
		{name: "dependency down", checks: []HealthCheck{healthy, unhealthy}, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, err := NewAPI(&fakeUploader{}, newFakeRepository(), &fakeObjectStore{},
				APIConfig{ScannedBucket: "scanned"}, log.New(io.Discard, "", 0), tt.checks...)
			if err != nil {
				t.Fatalf("NewAPI() error = %v", err)
			}
			handler, err := api.Routes()
			if err != nil {
				t.Fatalf("Routes() error = %v", err)
			}

			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
