package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/tianheg/tg2mastodon/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeInstance is a minimal Mastodon API for exercising the publisher.
type fakeInstance struct {
	statuses     []url.Values
	uploads      int
	failStatuses bool
	failUploads  bool
	failAuth     bool
}

func (f *fakeInstance) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/statuses", func(w http.ResponseWriter, r *http.Request) {
		if f.failStatuses {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		r.ParseForm()
		f.statuses = append(f.statuses, r.PostForm)
		fmt.Fprint(w, `{"id":"101","url":"https://mastodon.example/@relay/101"}`)
	})
	mux.HandleFunc("/api/v1/media", func(w http.ResponseWriter, r *http.Request) {
		if f.failUploads {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		f.uploads++
		fmt.Fprint(w, `{"id":"42","type":"image"}`)
	})
	mux.HandleFunc("/api/v1/accounts/verify_credentials", func(w http.ResponseWriter, r *http.Request) {
		if f.failAuth {
			http.Error(w, `{"error":"The access token is invalid"}`, http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"id":"7","acct":"relay@mastodon.example"}`)
	})
	return mux
}

func newTestPublisher(t *testing.T, f *fakeInstance) *Mastodon {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewMastodon(MastodonConfig{Server: srv.URL, AccessToken: "test-token", Logger: testLogger()})
}

func TestPublishText(t *testing.T) {
	f := &fakeInstance{}
	pub := newTestPublisher(t, f)

	if err := pub.PublishText(context.Background(), "hello fediverse"); err != nil {
		t.Fatalf("publish text: %v", err)
	}
	if len(f.statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(f.statuses))
	}
	if got := f.statuses[0].Get("status"); got != "hello fediverse" {
		t.Fatalf("unexpected status text: %q", got)
	}
}

func TestPublishText_Error(t *testing.T) {
	f := &fakeInstance{failStatuses: true}
	pub := newTestPublisher(t, f)

	err := pub.PublishText(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *domain.PublishError
	if !errors.As(err, &perr) || perr.Op != "status" {
		t.Fatalf("expected publish error with op=status, got %v", err)
	}
}

func TestPublishMedia(t *testing.T) {
	f := &fakeInstance{}
	pub := newTestPublisher(t, f)

	path := filepath.Join(t.TempDir(), "pic.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := pub.PublishMedia(context.Background(), path, "a caption"); err != nil {
		t.Fatalf("publish media: %v", err)
	}
	if f.uploads != 1 {
		t.Fatalf("expected 1 upload, got %d", f.uploads)
	}
	if len(f.statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(f.statuses))
	}
	if got := f.statuses[0].Get("status"); got != "a caption" {
		t.Fatalf("unexpected caption: %q", got)
	}
	ids := f.statuses[0]["media_ids[]"]
	if len(ids) != 1 || ids[0] != "42" {
		t.Fatalf("expected media_ids [42], got %v", ids)
	}
}

func TestPublishMedia_EmptyCaption(t *testing.T) {
	f := &fakeInstance{}
	pub := newTestPublisher(t, f)

	path := filepath.Join(t.TempDir(), "pic.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := pub.PublishMedia(context.Background(), path, ""); err != nil {
		t.Fatalf("publish media: %v", err)
	}
	if got := f.statuses[0].Get("status"); got != "" {
		t.Fatalf("expected empty status, got %q", got)
	}
}

func TestPublishMedia_UploadError(t *testing.T) {
	f := &fakeInstance{failUploads: true}
	pub := newTestPublisher(t, f)

	path := filepath.Join(t.TempDir(), "pic.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := pub.PublishMedia(context.Background(), path, "caption")
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *domain.PublishError
	if !errors.As(err, &perr) || perr.Op != "media-upload" {
		t.Fatalf("expected publish error with op=media-upload, got %v", err)
	}
	if len(f.statuses) != 0 {
		t.Fatal("no status should be posted when upload fails")
	}
}

func TestPublishMedia_StatusError(t *testing.T) {
	f := &fakeInstance{failStatuses: true}
	pub := newTestPublisher(t, f)

	path := filepath.Join(t.TempDir(), "pic.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := pub.PublishMedia(context.Background(), path, "caption")
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *domain.PublishError
	if !errors.As(err, &perr) || perr.Op != "media-status" {
		t.Fatalf("expected publish error with op=media-status, got %v", err)
	}
	if f.uploads != 1 {
		t.Fatalf("upload should have happened, got %d", f.uploads)
	}
}

func TestPublishMedia_MissingFile(t *testing.T) {
	f := &fakeInstance{}
	pub := newTestPublisher(t, f)

	err := pub.PublishMedia(context.Background(), "/nonexistent/pic.jpg", "caption")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var perr *domain.PublishError
	if !errors.As(err, &perr) || perr.Op != "media-upload" {
		t.Fatalf("expected publish error with op=media-upload, got %v", err)
	}
}

func TestHealthy(t *testing.T) {
	pub := newTestPublisher(t, &fakeInstance{})
	if err := pub.Healthy(context.Background()); err != nil {
		t.Fatalf("healthy: %v", err)
	}
}

func TestHealthy_InvalidToken(t *testing.T) {
	pub := newTestPublisher(t, &fakeInstance{failAuth: true})
	if err := pub.Healthy(context.Background()); err == nil {
		t.Fatal("expected error for invalid token")
	}
}
