package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type upload struct {
	path        string
	contentType string
	size        int
}

// fakeS3 accepts PUT object requests and records them.
func fakeS3(t *testing.T) (*httptest.Server, func() []upload) {
	t.Helper()
	var (
		mu      sync.Mutex
		uploads []upload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "unsupported", http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		uploads = append(uploads, upload{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), size: len(body)})
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []upload {
		mu.Lock()
		defer mu.Unlock()
		return append([]upload(nil), uploads...)
	}
}

func newTestPublisher(t *testing.T, srv *httptest.Server) *Publisher {
	t.Helper()
	p, err := New(Options{
		Endpoint:   strings.TrimPrefix(srv.URL, "http://"),
		AccessKey:  "access",
		SecretKey:  "secret",
		Bucket:     "frames",
		Region:     "us-east-1",
		Prefix:     "/framecaster/",
		CDNBaseURL: "https://cdn.example.com/",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_Disabled(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestPublish(t *testing.T) {
	srv, uploads := fakeS3(t)
	p := newTestPublisher(t, srv)
	ctx := context.Background()

	u, err := p.PublishPNG(ctx, "card-1", []byte("\x89PNG fake"))
	if err != nil {
		t.Fatalf("PublishPNG: %v", err)
	}
	if u != "https://cdn.example.com/framecaster/card-1.png" {
		t.Errorf("PNG url = %q", u)
	}

	u, err = p.PublishJSON(ctx, "meta-1", map[string]string{"name": "Meroku"})
	if err != nil {
		t.Fatalf("PublishJSON: %v", err)
	}
	if u != "https://cdn.example.com/framecaster/meta-1.json" {
		t.Errorf("JSON url = %q", u)
	}

	u, err = p.PublishSVG(ctx, "", []byte("<svg/>"))
	if err != nil {
		t.Fatalf("PublishSVG: %v", err)
	}
	name, ok := strings.CutPrefix(u, "https://cdn.example.com/framecaster/")
	if !ok || !strings.HasSuffix(name, ".svg") {
		t.Fatalf("SVG url = %q", u)
	}
	if n := len(strings.TrimSuffix(name, ".svg")); n != 26 {
		t.Errorf("generated names are ULIDs, got %q", name)
	}

	got := uploads()
	want := []upload{
		{path: "/frames/framecaster/card-1.png", contentType: "image/png"},
		{path: "/frames/framecaster/meta-1.json", contentType: "application/json"},
		{path: "/frames/framecaster/" + name, contentType: "image/svg+xml"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d uploads, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].path != want[i].path || got[i].contentType != want[i].contentType {
			t.Errorf("upload %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPublish_UploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
	}))
	t.Cleanup(srv.Close)
	p := newTestPublisher(t, srv)

	_, err := p.PublishPNG(context.Background(), "x", []byte("data"))
	if err == nil {
		t.Fatal("expected an upload error")
	}
	if !strings.Contains(err.Error(), "framecaster/x.png") {
		t.Errorf("error should name the object: %v", err)
	}
}
