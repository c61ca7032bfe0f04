package handler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meroku/framecaster/internal/catalog"
	"github.com/meroku/framecaster/internal/compose"
)

var errNoApps = errors.New("catalog has no apps")

var (
	nameColor        = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	descriptionColor = color.RGBA{A: 255}
)

// ratings maps rate-frame buttons to stars.
var ratings = map[int]int{1: 1, 2: 3, 3: 5}

const defaultRating = 3

func (h *Handler) appFrame(app catalog.App) Frame {
	return Frame{
		Title:   app.Name,
		Image:   h.url("/frame/image/%s", app.DappID),
		PostURL: h.url("/action/%s", app.DappID),
		Buttons: []Button{
			{Label: "Next app"},
			{Label: "Open", Action: ActionPostRedirect},
			{Label: "Rate"},
			{Label: "Share", Action: ActionPostRedirect},
		},
	}
}

func (h *Handler) randomApp(ctx context.Context) (catalog.App, error) {
	apps, err := h.catalog.Apps(ctx)
	if err != nil {
		return catalog.App{}, err
	}
	if len(apps) == 0 {
		return catalog.App{}, errNoApps
	}
	return apps[h.intN(len(apps))], nil
}

// Index serves the entry frame showing the first catalog app.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	apps, err := h.catalog.Apps(r.Context())
	if err == nil && len(apps) == 0 {
		err = errNoApps
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	renderFrame(w, h.appFrame(apps[0]))
}

// Action handles the app frame buttons: next app, open, rate and share.
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	act, err := frameAction(r)
	if err != nil {
		badRequest(w, "Invalid frame request")
		return
	}

	switch act.Button() {
	case 1:
		app, err := h.randomApp(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		renderFrame(w, h.appFrame(app))
	case 2:
		http.Redirect(w, r, h.catalog.ViewURL(appID, act.FID), http.StatusFound)
	case 3:
		renderFrame(w, Frame{
			Title:   "Rate this app",
			Image:   h.preRatingImage,
			PostURL: h.url("/rate/%s", appID),
			Buttons: []Button{{Label: "★"}, {Label: "★★★"}, {Label: "★★★★★"}},
		})
	case 4:
		http.Redirect(w, r, h.url("/redirect/%s", appID), http.StatusFound)
	default:
		badRequest(w, "Unknown button")
	}
}

// Rate records the star rating picked on the rate frame and thanks the user.
// A failed submission is logged; the thanks frame is shown regardless.
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	act, err := frameAction(r)
	if err != nil {
		badRequest(w, "Invalid frame request")
		return
	}

	stars, ok := ratings[act.Button()]
	if !ok {
		stars = defaultRating
	}
	if err := h.catalog.Rate(r.Context(), catalog.Rating{
		DappID: appID,
		Rating: stars,
		UserID: catalog.UserID(act.FID),
	}); err != nil {
		slog.Error("rating submission failed", "app_id", appID, "fid", act.FID, "error", err)
	}

	renderFrame(w, Frame{
		Title:   "Thanks for rating",
		Image:   h.thanksImage,
		PostURL: h.url("/thanks/%s", appID),
		Buttons: []Button{
			{Label: "Discover more"},
			{Label: "Visit the dappstore", Action: ActionPostRedirect},
		},
	})
}

// Thanks continues to a random app on button 1 and otherwise, or when the
// catalog is unavailable, sends the user to the dappstore.
func (h *Handler) Thanks(w http.ResponseWriter, r *http.Request) {
	act, err := frameAction(r)
	if err != nil || act.Button() != 1 {
		http.Redirect(w, r, h.dappStoreURL, http.StatusFound)
		return
	}
	app, err := h.randomApp(r.Context())
	if err != nil {
		slog.Error("picking next app", "error", err)
		http.Redirect(w, r, h.dappStoreURL, http.StatusFound)
		return
	}
	renderFrame(w, h.appFrame(app))
}

// enrich fills a missing logo from the app's screenshots, then any gaps
// left from the Open Graph tags of the app's home page.
func (h *Handler) enrich(ctx context.Context, app catalog.App) catalog.App {
	if app.Images.Logo == "" {
		app.Images.Logo = app.Images.Screenshot()
	}
	if h.previews == nil || app.AppURL == "" || (app.Images.Logo != "" && app.Description != "") {
		return app
	}
	p := h.previews.FetchPreview(ctx, app.AppURL)
	if p == nil {
		return app
	}
	if app.Images.Logo == "" {
		app.Images.Logo = p.ImageURL
	}
	if app.Description == "" {
		app.Description = p.Description
	}
	return app
}

func appComponents(app catalog.App) []compose.Component {
	return []compose.Component{
		compose.ExternalImage{
			URL:      app.Images.Logo,
			Position: image.Pt(100, 100),
			Shape:    compose.Circle{Radius: 60},
		},
		compose.Text{
			Content:  app.Name,
			Position: image.Pt(120, 0),
			FontSize: 40,
			Color:    nameColor,
		},
		compose.Text{
			Content:  app.Description,
			Position: image.Pt(0, 200),
			FontSize: 30,
			Color:    descriptionColor,
		},
	}
}

func messageComponents(msg string) []compose.Component {
	return []compose.Component{
		compose.Text{Content: msg, Position: image.Pt(0, 260), FontSize: 48, Color: nameColor},
	}
}

// FrameImage renders the app card PNG. Unknown apps get a 404 with a
// placeholder image so clients still have something to show.
func (h *Handler) FrameImage(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	app, err := h.catalog.App(r.Context(), appID)
	if errors.Is(err, catalog.ErrAppNotFound) {
		h.writeImage(w, r, http.StatusNotFound, messageComponents("App not found"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeImage(w, r, http.StatusOK, appComponents(h.enrich(r.Context(), *app)))
}

// Redirect sends the user to a Warpcast compose intent sharing the app.
// With storage configured the rendered card is published and embedded too.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	app, err := h.catalog.App(r.Context(), appID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	embeds := []string{h.catalog.ExplorerURL(appID)}
	if card, ok := h.publishAppCard(r.Context(), *app); ok {
		embeds = append(embeds, card)
	}
	http.Redirect(w, r, composeIntent(fmt.Sprintf("Check out %s on Meroku!", app.Name), embeds), http.StatusFound)
}

func (h *Handler) publishAppCard(ctx context.Context, app catalog.App) (string, bool) {
	if h.publisher == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	png, err := h.compositor.Compose(ctx, appComponents(h.enrich(ctx, app)))
	if err != nil {
		slog.Error("rendering app card", "app_id", app.DappID, "error", err)
		return "", false
	}
	u, err := h.publisher.PublishPNG(ctx, "apps/"+app.DappID, png)
	if err != nil {
		slog.Error("publishing app card", "app_id", app.DappID, "error", err)
		return "", false
	}
	return u, true
}

// composeIntent builds a Warpcast compose link. Text and embeds are query
// escaped so an embed's own query string stays inside its parameter.
func composeIntent(text string, embeds []string) string {
	var b strings.Builder
	b.WriteString("https://warpcast.com/~/compose?text=")
	b.WriteString(strings.ReplaceAll(url.QueryEscape(text), "+", "%20"))
	for _, e := range embeds {
		b.WriteString("&embeds[]=")
		b.WriteString(url.QueryEscape(e))
	}
	return b.String()
}
