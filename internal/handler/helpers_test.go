package handler

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/html"

	"github.com/meroku/framecaster/internal/cache"
	"github.com/meroku/framecaster/internal/catalog"
	"github.com/meroku/framecaster/internal/compose"
	"github.com/meroku/framecaster/internal/criteria"
	"github.com/meroku/framecaster/internal/farcaster"
	"github.com/meroku/framecaster/internal/fetch"
	"github.com/meroku/framecaster/internal/hub"
	"github.com/meroku/framecaster/internal/linkpreview"
	"github.com/meroku/framecaster/internal/storage"
	"github.com/meroku/framecaster/internal/testutil"
)

const (
	testPublicURL = "https://frames.example.com"
	signedFID     = 42
)

// signedMessage is the only payload the fake hub accepts.
var signedMessage = []byte{0xde, 0xad, 0xbe, 0xef}

// upstream fakes every remote service the handler talks to: the catalog,
// Neynar, the hub, an image host and an S3 bucket.
type upstream struct {
	*httptest.Server

	mu          sync.Mutex
	ratings     []catalog.Rating
	rateStatus  int
	requests    map[string]int
	uploads     []string
	channelFIDs []int64
	casts       []string
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()

	u := &upstream{
		rateStatus:  http.StatusOK,
		requests:    make(map[string]int),
		channelFIDs: []int64{signedFID},
		casts:       []string{"gm meroku"},
	}
	logo := testutil.PNG(t, 64, 64, color.RGBA{R: 255, A: 255})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/dapp/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": []catalog.App{
			{DappID: "app-1", Name: "Alpha App", Description: "The first app", Images: catalog.Images{Logo: u.URL + "/img/logo.png"}},
			{DappID: "app-2", Name: "Beta App", Description: "The second app", Images: catalog.Images{Logo: u.URL + "/img/logo.png"}},
		}})
	})
	mux.HandleFunc("POST /api/v1/dapp/rate", func(w http.ResponseWriter, r *http.Request) {
		var rating catalog.Rating
		_ = json.NewDecoder(r.Body).Decode(&rating)
		u.mu.Lock()
		u.ratings = append(u.ratings, rating)
		status := u.rateStatus
		u.mu.Unlock()
		w.WriteHeader(status)
	})
	mux.HandleFunc("POST /v1/validateMessage", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !bytes.Equal(body, signedMessage) {
			writeJSON(w, map[string]any{"valid": false})
			return
		}
		writeJSON(w, map[string]any{"valid": true, "message": map[string]any{"data": map[string]any{"fid": signedFID}}})
	})
	mux.HandleFunc("GET /v2/farcaster/user/bulk", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"users": []any{profile(u.URL, signedFID, "alice")}})
	})
	mux.HandleFunc("GET /v1/farcaster/followers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"result": map[string]any{"users": []any{profile(u.URL, 7, "bob")}}})
	})
	mux.HandleFunc("GET /v2/farcaster/channel/followers", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		users := make([]any, 0, len(u.channelFIDs))
		for _, fid := range u.channelFIDs {
			users = append(users, profile(u.URL, fid, "member"))
		}
		u.mu.Unlock()
		writeJSON(w, map[string]any{"users": users, "next": map[string]any{"cursor": nil}})
	})
	mux.HandleFunc("GET /v1/farcaster/casts", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		casts := make([]any, 0, len(u.casts))
		for _, c := range u.casts {
			casts = append(casts, map[string]any{"text": c})
		}
		u.mu.Unlock()
		writeJSON(w, map[string]any{"result": map[string]any{"casts": casts}})
	})
	mux.HandleFunc("GET /site/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><head>
			<meta property="og:description" content="From the app's own page">
			<meta property="og:image" content="/img/og.png">
		</head><body></body></html>`)
	})
	mux.HandleFunc("GET /img/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(logo)
	})
	mux.HandleFunc("PUT /frames/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		u.mu.Lock()
		u.uploads = append(u.uploads, r.URL.Path)
		u.mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	})

	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests[r.URL.Path]++
		u.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) count(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests[path]
}

func (u *upstream) recordedRatings() []catalog.Rating {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]catalog.Rating(nil), u.ratings...)
}

func (u *upstream) recordedUploads() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.uploads...)
}

func profile(base string, fid int64, username string) map[string]any {
	return map[string]any{
		"fid":          fid,
		"username":     username,
		"display_name": strings.ToUpper(username[:1]) + username[1:],
		"pfp_url":      base + "/img/pfp.png",
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type testOption func(*Dependencies, *upstream)

func withMint(c criteria.Criterion) testOption {
	return func(d *Dependencies, _ *upstream) { d.Mint = c }
}

// withPreviews enables Open Graph fallbacks for apps.
func withPreviews() testOption {
	return func(d *Dependencies, _ *upstream) {
		d.Previews = linkpreview.NewFetcher(cache.NewMemory(), &http.Client{Timeout: 2 * time.Second})
	}
}

// withStorage publishes into the upstream's fake bucket.
func withStorage(t *testing.T) testOption {
	return func(d *Dependencies, u *upstream) {
		p, err := storage.New(storage.Options{
			Endpoint:   strings.TrimPrefix(u.URL, "http://"),
			AccessKey:  "access",
			SecretKey:  "secret",
			Bucket:     "frames",
			Region:     "us-east-1",
			Prefix:     "framecaster",
			CDNBaseURL: "https://cdn.example.com",
		})
		if err != nil {
			t.Fatalf("storage.New: %v", err)
		}
		d.Publisher = p
	}
}

// testHandler creates a fully-wired Handler and router backed by fake
// upstream services.
func testHandler(t *testing.T, opts ...testOption) (*Handler, http.Handler, *upstream) {
	t.Helper()

	u := newUpstream(t)
	c := cache.NewMemory()

	fetcher := fetch.NewFetcher(c, fetch.Options{Timeout: 2 * time.Second, AllowPrivate: true})
	compositor, err := compose.New(fetcher, compose.Options{})
	if err != nil {
		t.Fatalf("compose.New: %v", err)
	}
	graph := farcaster.NewClient(c, farcaster.Options{BaseURL: u.URL, APIKey: "test-key", Timeout: 2 * time.Second})

	deps := Dependencies{
		Catalog:    catalog.NewClient(c, catalog.Options{BaseURL: u.URL, Timeout: 2 * time.Second}),
		Graph:      graph,
		Evaluator:  criteria.NewEvaluator(graph),
		Compositor: compositor,
		Hub:        hub.NewClient(u.URL, 2*time.Second),
		PublicURL:  testPublicURL + "/",
	}
	for _, opt := range opts {
		opt(&deps, u)
	}

	h := New(deps)
	h.intN = func(int) int { return 1 }
	t.Cleanup(h.Wait)

	r := chi.NewRouter()
	h.Routes(r)
	return h, r, u
}

// framePost builds a signed frame post from fid pressing button.
func framePost(path string, fid int64, button int) *http.Request {
	return framePostWith(path, fid, button, hex.EncodeToString(signedMessage))
}

func framePostWith(path string, fid int64, button int, messageBytes string) *http.Request {
	body, _ := json.Marshal(FrameRequest{
		UntrustedData: UntrustedData{FID: fid, ButtonIndex: button},
		TrustedData:   TrustedData{MessageBytes: messageBytes},
	})
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// frameMeta collects the <meta property=... content=...> pairs of a page.
func frameMeta(t *testing.T, body io.Reader) map[string]string {
	t.Helper()

	doc, err := html.Parse(body)
	if err != nil {
		t.Fatalf("parsing frame html: %v", err)
	}
	meta := make(map[string]string)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var prop, content string
			for _, a := range n.Attr {
				switch a.Key {
				case "property":
					prop = a.Val
				case "content":
					content = a.Val
				}
			}
			if prop != "" {
				meta[prop] = content
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return meta
}
