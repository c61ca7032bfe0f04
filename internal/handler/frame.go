package handler

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
)

//go:embed templates/frame.html
var templateFS embed.FS

var frameTemplate = template.Must(template.New("frame.html").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).ParseFS(templateFS, "templates/frame.html"))

const maxFrameBody = 64 << 10

// Button actions understood by Farcaster clients. An empty action posts.
const (
	ActionPost         = ""
	ActionPostRedirect = "post_redirect"
	ActionLink         = "link"
)

type Button struct {
	Label  string
	Action string
	Target string
}

// Frame is one screen of a frame flow.
type Frame struct {
	Title   string
	Image   string
	PostURL string
	Buttons []Button
}

// FrameRequest is the body a Farcaster client posts when a button is
// pressed.
type FrameRequest struct {
	UntrustedData UntrustedData `json:"untrustedData"`
	TrustedData   TrustedData   `json:"trustedData"`
}

type UntrustedData struct {
	FID         int64  `json:"fid"`
	URL         string `json:"url"`
	MessageHash string `json:"messageHash"`
	Timestamp   int64  `json:"timestamp"`
	Network     int    `json:"network"`
	ButtonIndex int    `json:"buttonIndex"`
	InputText   string `json:"inputText,omitempty"`
	CastID      struct {
		FID  int64  `json:"fid"`
		Hash string `json:"hash"`
	} `json:"castId"`
}

type TrustedData struct {
	MessageBytes string `json:"messageBytes"`
}

// FrameAction is a parsed frame post. FID is the hub-verified fid when the
// request went through TrustMiddleware, otherwise the untrusted one.
type FrameAction struct {
	Request FrameRequest
	FID     int64
}

func (a FrameAction) Button() int {
	return a.Request.UntrustedData.ButtonIndex
}

func decodeFrameRequest(r io.Reader) (FrameRequest, error) {
	var req FrameRequest
	if err := json.NewDecoder(io.LimitReader(r, maxFrameBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return FrameRequest{}, err
	}
	return req, nil
}

// frameAction returns the action stored by TrustMiddleware, decoding the
// body when the middleware did not run.
func frameAction(r *http.Request) (FrameAction, error) {
	if a, ok := actionFromContext(r.Context()); ok {
		return a, nil
	}
	req, err := decodeFrameRequest(r.Body)
	if err != nil {
		return FrameAction{}, err
	}
	return FrameAction{Request: req, FID: req.UntrustedData.FID}, nil
}

func renderFrame(w http.ResponseWriter, f Frame) {
	var buf bytes.Buffer
	if err := frameTemplate.Execute(&buf, f); err != nil {
		slog.Error("rendering frame", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}
