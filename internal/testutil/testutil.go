// Package testutil holds fixtures shared by package tests: a Redis-backed
// cache on miniredis, synthetic images, and a counting image server.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/meroku/framecaster/internal/cache"
)

// TestCache returns a Redis cache backed by an in-process miniredis server.
// Both are closed when the test completes.
func TestCache(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c := cache.NewRedis(cache.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c, mr
}

// Solid returns a w×h image filled with c.
func Solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// PNG encodes a solid w×h image.
func PNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, Solid(w, h, c)); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

// JPEG encodes a solid w×h image.
func JPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Solid(w, h, c), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding jpeg: %v", err)
	}
	return buf.Bytes()
}

// ImageServer serves fixed bodies by path and counts requests. Unknown
// paths return 404.
type ImageServer struct {
	*httptest.Server

	mu     sync.Mutex
	bodies map[string][]byte
	hits   map[string]int
}

func NewImageServer(t *testing.T, bodies map[string][]byte) *ImageServer {
	t.Helper()

	s := &ImageServer{bodies: bodies, hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		body, ok := s.bodies[r.URL.Path]
		s.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(body))
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

// URL returns the absolute URL for path.
func (s *ImageServer) URL(path string) string {
	return s.Server.URL + path
}

// Hits reports how many requests path received.
func (s *ImageServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}
