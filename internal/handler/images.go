package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meroku/framecaster/internal/compose"
	"github.com/meroku/framecaster/internal/farcaster"
)

const (
	imageCacheControl = "public, max-age=300"
	defaultCardSize   = 48
	maxCardSize       = 200
)

func (h *Handler) writeImage(w http.ResponseWriter, r *http.Request, status int, components []compose.Component) {
	png, err := h.compositor.Compose(r.Context(), components)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", imageCacheControl)
	w.WriteHeader(status)
	_, _ = w.Write(png)
}

func parseFID(r *http.Request) (int64, error) {
	fid, err := strconv.ParseInt(chi.URLParam(r, "fid"), 10, 64)
	if err != nil || fid <= 0 {
		return 0, farcaster.ErrInvalidFID
	}
	return fid, nil
}

// profileComponents shows an avatar with a name and a message below it.
func profileComponents(p *farcaster.Profile, msg string) []compose.Component {
	if p == nil {
		return messageComponents(msg)
	}
	name := p.DisplayName
	if name == "" {
		name = "@" + p.Username
	}
	return []compose.Component{
		compose.ExternalImage{
			URL:      p.PfpURL,
			Position: image.Pt(573, 170),
			Shape:    compose.Circle{Radius: 110},
		},
		compose.Text{Content: name, Position: image.Pt(0, 300), FontSize: 44, Color: nameColor},
		compose.Text{Content: msg, Position: image.Pt(0, 370), FontSize: 36, Color: descriptionColor},
	}
}

// FollowerImage greets a random follower of fid.
func (h *Handler) FollowerImage(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	follower, err := h.graph.RandomFollower(r.Context(), fid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if follower == nil {
		h.writeImage(w, r, http.StatusOK, messageComponents("No followers yet"))
		return
	}
	h.writeImage(w, r, http.StatusOK, profileComponents(follower, fmt.Sprintf("Say hi to @%s!", follower.Username)))
}

// MintImage renders the eligibility card for fid. The status and failed
// query parameters only select the caption.
func (h *Handler) MintImage(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := h.graph.Profile(r.Context(), fid)
	if err != nil {
		slog.Warn("profile lookup failed", "fid", fid, "error", err)
	}

	q := r.URL.Query()
	var failed []string
	if f := q.Get("failed"); f != "" {
		failed = strings.Split(f, ",")
	}
	h.writeImage(w, r, http.StatusOK, profileComponents(profile, h.mintCaption(q.Get("status") == statusEligible, failed)))
}

// CardSVG renders up to three newline-separated sentences as an SVG card.
func (h *Handler) CardSVG(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size := defaultCardSize
	if s := q.Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxCardSize {
			badRequest(w, "size must be between 1 and 200")
			return
		}
		size = n
	}

	svg, err := compose.TextSVG(q.Get("text"), size)
	if errors.Is(err, compose.ErrTooManySentences) {
		badRequest(w, err.Error())
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u, ok := h.publishCard(r.Context(), svg); ok {
		w.Header().Set("Content-Location", u)
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", imageCacheControl)
	_, _ = w.Write(svg)
}

// publishCard uploads a rendered card under a name derived from its
// content, so the same text and size always map to one object.
func (h *Handler) publishCard(ctx context.Context, svg []byte) (string, bool) {
	if h.publisher == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	sum := sha256.Sum256(svg)
	u, err := h.publisher.PublishSVG(ctx, "cards/"+hex.EncodeToString(sum[:16]), svg)
	if err != nil {
		slog.Error("publishing card", "error", err)
		return "", false
	}
	return u, true
}
