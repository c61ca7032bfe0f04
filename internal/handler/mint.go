package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/meroku/framecaster/internal/criteria"
)

const (
	statusEligible   = "eligible"
	statusIneligible = "ineligible"
)

type mintMetadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	FID         int64    `json:"fid"`
	Conditions  []string `json:"conditions"`
}

// Mint checks the posting account against the mint criterion and shows the
// result. Eligible accounts get their card published when storage is
// configured.
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	act, err := frameAction(r)
	if err != nil || act.FID <= 0 {
		badRequest(w, "Invalid frame request")
		return
	}
	fid := act.FID

	res := h.evaluator.Evaluate(r.Context(), fid, h.mint)
	slog.Info("mint eligibility", "fid", fid, "eligible", res.Eligible, "failed", res.Failed)

	q := url.Values{}
	if res.Eligible {
		q.Set("status", statusEligible)
	} else {
		q.Set("status", statusIneligible)
		q.Set("failed", strings.Join(res.Failed, ","))
	}
	img := h.url("/frame/image/mint/%s", strconv.FormatInt(fid, 10)) + "?" + q.Encode()

	if !res.Eligible {
		renderFrame(w, Frame{
			Title:   "Not eligible yet",
			Image:   img,
			PostURL: h.url("/mint"),
			Buttons: []Button{{Label: "Check again"}},
		})
		return
	}

	if published, ok := h.publishMint(r.Context(), fid); ok {
		img = published
	}
	renderFrame(w, Frame{
		Title: "Eligible to mint",
		Image: img,
		Buttons: []Button{{
			Label:  "Share",
			Action: ActionLink,
			Target: composeIntent("I'm eligible to mint on Meroku!", []string{img}),
		}},
	})
}

// mintCaption describes the evaluation outcome using the configured
// criterion values.
func (h *Handler) mintCaption(eligible bool, failed []string) string {
	if eligible {
		return "You're eligible to mint!"
	}
	var todo []string
	for _, name := range failed {
		switch name {
		case criteria.FollowChannel:
			todo = append(todo, "follow /"+h.mint.FollowChannel)
		case criteria.FollowUser:
			if h.mint.FollowUser != nil {
				todo = append(todo, "follow "+h.mint.FollowUser.String())
			}
		case criteria.CastText:
			todo = append(todo, fmt.Sprintf("cast %q", h.mint.CastText))
		}
	}
	if len(todo) == 0 {
		return "Not eligible yet"
	}
	return "Not eligible yet: " + strings.Join(todo, ", ")
}

// publishMint renders the eligible card and publishes it with its metadata.
func (h *Handler) publishMint(ctx context.Context, fid int64) (string, bool) {
	if h.publisher == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	profile, err := h.graph.Profile(ctx, fid)
	if err != nil {
		slog.Warn("profile lookup failed", "fid", fid, "error", err)
	}
	png, err := h.compositor.Compose(ctx, profileComponents(profile, h.mintCaption(true, nil)))
	if err != nil {
		slog.Error("rendering mint card", "fid", fid, "error", err)
		return "", false
	}

	name := fmt.Sprintf("mint/%d", fid)
	imageURL, err := h.publisher.PublishPNG(ctx, name, png)
	if err != nil {
		slog.Error("publishing mint card", "fid", fid, "error", err)
		return "", false
	}

	meta := mintMetadata{
		Name:        fmt.Sprintf("Framecaster #%d", fid),
		Description: "Minted through a Farcaster frame.",
		Image:       imageURL,
		FID:         fid,
		Conditions:  h.mint.Conditions(),
	}
	if profile != nil && profile.Username != "" {
		meta.Name = "Framecaster @" + profile.Username
	}
	if _, err := h.publisher.PublishJSON(ctx, name, meta); err != nil {
		slog.Error("publishing mint metadata", "fid", fid, "error", err)
	}
	return imageURL, true
}
