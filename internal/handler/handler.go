// Package handler serves the Farcaster frames: app discovery, rating,
// sharing, mint eligibility and the images they display.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/meroku/framecaster/internal/catalog"
	"github.com/meroku/framecaster/internal/compose"
	"github.com/meroku/framecaster/internal/criteria"
	"github.com/meroku/framecaster/internal/farcaster"
	"github.com/meroku/framecaster/internal/hub"
	"github.com/meroku/framecaster/internal/linkpreview"
	"github.com/meroku/framecaster/internal/storage"
)

const (
	DefaultPreRatingImage = "https://d7aseyv2y654x.cloudfront.net/pycaster-demo/assets/Pre_Rating.png"
	DefaultThanksImage    = "https://d7aseyv2y654x.cloudfront.net/pycaster-demo/assets/Ratings_Thanks.png"
	DefaultDappStoreURL   = "https://dappstore.app"

	warmTimeout    = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// Handler serves the frame endpoints.
type Handler struct {
	catalog        *catalog.Client
	graph          *farcaster.Client
	evaluator      *criteria.Evaluator
	compositor     *compose.Compositor
	hub            *hub.Client
	publisher      *storage.Publisher
	previews       *linkpreview.Fetcher
	mint           criteria.Criterion
	publicURL      string
	dappStoreURL   string
	preRatingImage string
	thanksImage    string

	intN       func(n int) int
	background sync.WaitGroup
}

// Dependencies holds all dependencies for the Handler. Publisher may be nil,
// which disables publishing rendered cards. Previews may be nil, which
// disables filling missing app details from the app's own page.
type Dependencies struct {
	Catalog        *catalog.Client
	Graph          *farcaster.Client
	Evaluator      *criteria.Evaluator
	Compositor     *compose.Compositor
	Hub            *hub.Client
	Publisher      *storage.Publisher
	Previews       *linkpreview.Fetcher
	Mint           criteria.Criterion
	PublicURL      string
	DappStoreURL   string
	PreRatingImage string
	ThanksImage    string
}

// New creates a new Handler with all dependencies
func New(deps Dependencies) *Handler {
	h := &Handler{
		catalog:        deps.Catalog,
		graph:          deps.Graph,
		evaluator:      deps.Evaluator,
		compositor:     deps.Compositor,
		hub:            deps.Hub,
		publisher:      deps.Publisher,
		previews:       deps.Previews,
		mint:           deps.Mint,
		publicURL:      strings.TrimRight(deps.PublicURL, "/"),
		dappStoreURL:   deps.DappStoreURL,
		preRatingImage: deps.PreRatingImage,
		thanksImage:    deps.ThanksImage,
		intN:           rand.IntN,
	}
	if h.dappStoreURL == "" {
		h.dappStoreURL = DefaultDappStoreURL
	}
	if h.preRatingImage == "" {
		h.preRatingImage = DefaultPreRatingImage
	}
	if h.thanksImage == "" {
		h.thanksImage = DefaultThanksImage
	}
	return h
}

// Wait blocks until background work started by requests has finished.
func (h *Handler) Wait() {
	h.background.Wait()
}

// url builds an absolute URL on the public host. Path segments in args are
// escaped.
func (h *Handler) url(format string, args ...string) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(a)
	}
	return h.publicURL + fmt.Sprintf(format, escaped...)
}

// goBackground runs fn detached from the request with its own timeout.
func (h *Handler) goBackground(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context)) {
	h.background.Add(1)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	go func() {
		defer h.background.Done()
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("background task panicked", "task", name, "panic", rec)
			}
		}()
		fn(ctx)
	}()
}
