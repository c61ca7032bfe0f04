package handler

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
)

type contextKey string

const actionKey contextKey = "frameAction"

func withAction(ctx context.Context, a FrameAction) context.Context {
	return context.WithValue(ctx, actionKey, a)
}

func actionFromContext(ctx context.Context) (FrameAction, bool) {
	a, ok := ctx.Value(actionKey).(FrameAction)
	return a, ok
}

// TrustMiddleware authenticates frame posts. POST bodies must carry
// trustedData.messageBytes that the hub accepts; other methods pass
// through. The posting fid's followers and profile are warmed in the
// background whether or not the message validates.
func (h *Handler) TrustMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBody))
		if err != nil {
			badRequest(w, "Invalid request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		req, err := decodeFrameRequest(bytes.NewReader(body))
		if err != nil {
			slog.Debug("undecodable frame post", "path", r.URL.Path, "error", err)
			http.Error(w, "Request Unauthorized", http.StatusForbidden)
			return
		}

		if fid := req.UntrustedData.FID; fid > 0 && h.graph != nil {
			h.goBackground(r.Context(), warmTimeout, "warm", func(ctx context.Context) {
				h.graph.Warm(ctx, fid)
			})
		}

		fid, ok := h.validate(r.Context(), req)
		if !ok {
			http.Error(w, "Request Unauthorized", http.StatusForbidden)
			return
		}

		ctx := withAction(r.Context(), FrameAction{Request: req, FID: fid})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validate asks the hub about the signed message. A valid message whose fid
// differs from untrustedData.fid is accepted; the hub's fid wins.
func (h *Handler) validate(ctx context.Context, req FrameRequest) (int64, bool) {
	raw := req.TrustedData.MessageBytes
	if raw == "" {
		return 0, false
	}
	msg, err := hex.DecodeString(raw)
	if err != nil {
		slog.Debug("messageBytes is not hex", "error", err)
		return 0, false
	}

	res, err := h.hub.Validate(ctx, msg)
	if err != nil {
		slog.Warn("hub validation failed", "error", err)
		return 0, false
	}
	if !res.Valid {
		return 0, false
	}

	fid := res.FID
	if fid != req.UntrustedData.FID {
		slog.Info("validated fid differs from untrusted fid", "fid", fid, "untrusted_fid", req.UntrustedData.FID)
	}
	if fid <= 0 {
		fid = req.UntrustedData.FID
	}
	return fid, true
}
