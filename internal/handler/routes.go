package handler

import "github.com/go-chi/chi/v5"

// Routes registers the frame endpoints on r. Frame posts go through
// TrustMiddleware; images and redirects are public GETs.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.TrustMiddleware)
		r.Get("/", h.Index)
		r.Post("/action/{appID}", h.Action)
		r.Post("/rate/{appID}", h.Rate)
		r.Post("/thanks/{appID}", h.Thanks)
		r.Post("/mint", h.Mint)
	})

	r.Get("/frame/image/{appID}", h.FrameImage)
	r.Get("/frame/image/follower/{fid}", h.FollowerImage)
	r.Get("/frame/image/mint/{fid}", h.MintImage)
	r.Get("/redirect/{appID}", h.Redirect)
	r.Get("/card.svg", h.CardSVG)
}
