// Package linkpreview reads Open Graph metadata from app home pages. Frames
// use it to fill in a logo or description the catalog does not have.
package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/meroku/framecaster/internal/cache"
)

const (
	maxBodySize    = 1 << 20 // 1 MB
	userAgentValue = "Framecaster/1.0 (+https://dappstore.app)"
)

// Fetcher fetches and caches link previews.
type Fetcher struct {
	cache  cache.Cache
	client *http.Client
}

// NewFetcher creates a Fetcher. client should refuse private addresses in
// production; see fetch.NewClient.
func NewFetcher(c cache.Cache, client *http.Client) *Fetcher {
	return &Fetcher{cache: c, client: client}
}

// FetchPreview returns a Preview for the URL, using the cache when possible.
// Returns nil if the URL could not be fetched or has no useful OG data;
// failures are cached so the page is not hammered.
func (f *Fetcher) FetchPreview(ctx context.Context, pageURL string) *Preview {
	key := cache.LinkPreview(pageURL)
	if cached, ok := cache.GetJSON[cacheEntry](ctx, f.cache, key); ok {
		if cached.FetchError != "" {
			return nil
		}
		p := cached.Preview
		return &p
	}

	og, err := f.fetchOG(ctx, pageURL)
	if err == nil && (og == nil || (og.Title == "" && og.Description == "" && og.ImageURL == "")) {
		err = errors.New("no og data")
	}
	if err != nil {
		slog.Debug("link preview unavailable", "url", pageURL, "error", err)
		cache.SetJSON(ctx, f.cache, key, cacheEntry{Preview: Preview{URL: pageURL}, FetchError: err.Error()}, cache.LinkPreviewError)
		return nil
	}

	og.URL = pageURL
	og.ImageURL = resolveRef(pageURL, og.ImageURL)
	cache.SetJSON(ctx, f.cache, key, cacheEntry{Preview: *og}, cache.LinkPreviewTTL)
	return og
}

// fetchOG performs an HTTP GET and parses OG meta tags.
func (f *Fetcher) fetchOG(ctx context.Context, pageURL string) (*Preview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, "text/html") {
		return nil, nil
	}

	return parseOG(io.LimitReader(resp.Body, maxBodySize)), nil
}

// parseOG extracts og:* meta tags from the document head and falls back to
// <title>, <meta name="description"> and the first icon link.
func parseOG(r io.Reader) *Preview {
	tokenizer := html.NewTokenizer(r)
	data := &Preview{}
	var fallbackTitle, fallbackDesc, icon string

	finish := func() *Preview {
		if data.Title == "" {
			data.Title = fallbackTitle
		}
		if data.Description == "" {
			data.Description = fallbackDesc
		}
		if data.ImageURL == "" {
			data.ImageURL = icon
		}
		return data
	}

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return finish()

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "body":
				return finish()

			case "title":
				if fallbackTitle == "" && tokenizer.Next() == html.TextToken {
					fallbackTitle = strings.TrimSpace(string(tokenizer.Text()))
				}

			case "meta":
				if !hasAttr {
					continue
				}
				attrs := readAttrs(tokenizer)
				content := attrs["content"]
				switch attrs["property"] {
				case "og:title":
					data.Title = content
				case "og:description":
					data.Description = content
				case "og:image":
					data.ImageURL = content
				case "og:site_name":
					data.SiteName = content
				}
				if attrs["name"] == "description" && fallbackDesc == "" {
					fallbackDesc = content
				}

			case "link":
				if !hasAttr {
					continue
				}
				attrs := readAttrs(tokenizer)
				if icon == "" && strings.Contains(attrs["rel"], "icon") {
					icon = attrs["href"]
				}
			}
		}
	}
}

// readAttrs collects all attributes from the current tag token.
func readAttrs(z *html.Tokenizer) map[string]string {
	attrs := make(map[string]string)
	for {
		key, val, more := z.TagAttr()
		if k := string(key); k != "" {
			attrs[k] = string(val)
		}
		if !more {
			break
		}
	}
	return attrs
}

// resolveRef makes ref absolute against base.
func resolveRef(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
