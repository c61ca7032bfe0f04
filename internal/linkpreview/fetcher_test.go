package linkpreview

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meroku/framecaster/internal/cache"
	"github.com/meroku/framecaster/internal/testutil"
)

func newTestFetcher(t *testing.T) (*Fetcher, cache.Cache) {
	t.Helper()
	c, _ := testutil.TestCache(t)
	return NewFetcher(c, &http.Client{Timeout: 5 * time.Second}), c
}

func TestFetchPreview_FullMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head>
			<meta property="og:title" content="Test Title">
			<meta property="og:description" content="Test Description">
			<meta property="og:image" content="https://example.com/img.png">
			<meta property="og:site_name" content="TestSite">
		</head><body></body></html>`)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	preview := f.FetchPreview(context.Background(), srv.URL)
	if preview == nil {
		t.Fatal("expected preview, got nil")
	}
	if preview.Title != "Test Title" {
		t.Errorf("title = %q, want %q", preview.Title, "Test Title")
	}
	if preview.Description != "Test Description" {
		t.Errorf("description = %q, want %q", preview.Description, "Test Description")
	}
	if preview.ImageURL != "https://example.com/img.png" {
		t.Errorf("image_url = %q, want %q", preview.ImageURL, "https://example.com/img.png")
	}
	if preview.SiteName != "TestSite" {
		t.Errorf("site_name = %q, want %q", preview.SiteName, "TestSite")
	}
}

func TestFetchPreview_Fallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head>
			<title>Fallback Title</title>
			<meta name="description" content="Fallback Description">
			<link rel="shortcut icon" href="/static/icon.png">
		</head><body></body></html>`)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	preview := f.FetchPreview(context.Background(), srv.URL+"/app")
	if preview == nil {
		t.Fatal("expected preview, got nil")
	}
	if preview.Title != "Fallback Title" {
		t.Errorf("title = %q, want %q", preview.Title, "Fallback Title")
	}
	if preview.Description != "Fallback Description" {
		t.Errorf("description = %q, want %q", preview.Description, "Fallback Description")
	}
	if want := srv.URL + "/static/icon.png"; preview.ImageURL != want {
		t.Errorf("image_url = %q, want %q", preview.ImageURL, want)
	}
}

func TestFetchPreview_NonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"key": "value"}`)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	if preview := f.FetchPreview(context.Background(), srv.URL); preview != nil {
		t.Errorf("expected nil for non-HTML, got %+v", preview)
	}
}

func TestFetchPreview_ErrorIsCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, c := newTestFetcher(t)
	ctx := context.Background()

	if preview := f.FetchPreview(ctx, srv.URL); preview != nil {
		t.Errorf("expected nil for 404, got %+v", preview)
	}
	entry, ok := cache.GetJSON[cacheEntry](ctx, c, cache.LinkPreview(srv.URL))
	if !ok || entry.FetchError == "" {
		t.Fatal("expected a negative cache entry")
	}

	f.FetchPreview(ctx, srv.URL)
	if calls.Load() != 1 {
		t.Errorf("expected 1 HTTP call, got %d", calls.Load())
	}
}

func TestFetchPreview_BodySizeLimit(t *testing.T) {
	largeHead := strings.Repeat("x", maxBodySize+1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>Big Page</title><!-- %s --></head><body></body></html>`, largeHead)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	// The title comes before the large content, so it should be found
	preview := f.FetchPreview(context.Background(), srv.URL)
	if preview == nil {
		t.Fatal("expected preview even with large body")
	}
	if preview.Title != "Big Page" {
		t.Errorf("title = %q, want %q", preview.Title, "Big Page")
	}
}

func TestFetchPreview_CacheHit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><meta property="og:title" content="Cached"></head><body></body></html>`)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	ctx := context.Background()

	if p := f.FetchPreview(ctx, srv.URL); p == nil || p.Title != "Cached" {
		t.Fatal("first fetch failed")
	}
	if p := f.FetchPreview(ctx, srv.URL); p == nil || p.Title != "Cached" {
		t.Fatal("second fetch failed")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 HTTP call, got %d", calls.Load())
	}
}

func TestParseOG_StopsAtBody(t *testing.T) {
	doc := `<html><head>
		<meta property="og:title" content="Head Title">
	</head><body>
		<meta property="og:title" content="Body Title">
	</body></html>`

	if data := parseOG(strings.NewReader(doc)); data.Title != "Head Title" {
		t.Errorf("title = %q, want %q", data.Title, "Head Title")
	}
}

func TestResolveRef(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"https://app.example.com/home", "/logo.png", "https://app.example.com/logo.png"},
		{"https://app.example.com/home/", "logo.png", "https://app.example.com/home/logo.png"},
		{"https://app.example.com", "https://cdn.example.com/x.png", "https://cdn.example.com/x.png"},
		{"https://app.example.com", "", ""},
	}
	for _, tt := range tests {
		if got := resolveRef(tt.base, tt.ref); got != tt.want {
			t.Errorf("resolveRef(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}
