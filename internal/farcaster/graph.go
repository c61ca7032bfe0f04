package farcaster

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meroku/framecaster/internal/cache"
)

// Profile returns the account with the given fid, or nil when it is
// unknown or the API could not be reached.
func (c *Client) Profile(ctx context.Context, fid int64) (*Profile, error) {
	if fid <= 0 {
		return nil, ErrInvalidFID
	}

	key := cache.UserData(fid)
	if p, ok := cache.GetJSON[Profile](ctx, c.cache, key); ok {
		return p, nil
	}

	var resp struct {
		Users []Profile `json:"users"`
	}
	q := url.Values{"fids": {fidParam(fid)}, "viewer_fid": {fidParam(fid)}}
	if err := c.getJSON(ctx, "/v2/farcaster/user/bulk", q, &resp); err != nil {
		slog.Warn("profile lookup failed", "fid", fid, "error", err)
		return nil, nil
	}
	if len(resp.Users) != 1 {
		slog.Info("profile not found", "fid", fid, "results", len(resp.Users))
		return nil, nil
	}

	p := resp.Users[0]
	cache.SetJSON(ctx, c.cache, key, p, cache.UserDataTTL)
	return &p, nil
}

// Profiles looks up each distinct fid concurrently. Accounts that could not
// be loaded are missing from the result.
func (c *Client) Profiles(ctx context.Context, fids []int64) (map[int64]*Profile, error) {
	seen := make(map[int64]struct{}, len(fids))
	for _, fid := range fids {
		if fid <= 0 {
			return nil, ErrInvalidFID
		}
		seen[fid] = struct{}{}
	}

	var (
		mu  sync.Mutex
		out = make(map[int64]*Profile, len(seen))
		g   errgroup.Group
	)
	g.SetLimit(c.concurrency)
	for fid := range seen {
		g.Go(func() error {
			p, err := c.Profile(ctx, fid)
			if err != nil || p == nil {
				return nil
			}
			mu.Lock()
			out[fid] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out, nil
}

// Casts returns the text of the account's most recent casts, newest first.
// Casts are not cached.
func (c *Client) Casts(ctx context.Context, fid int64, limit int) ([]string, error) {
	if fid <= 0 {
		return nil, ErrInvalidFID
	}
	if limit <= 0 {
		limit = defaultCastLimit
	}

	var resp castsResponse
	q := url.Values{
		"fid":       {fidParam(fid)},
		"viewerFid": {fidParam(fid)},
		"limit":     {strconv.Itoa(limit)},
	}
	if err := c.getJSON(ctx, "/v1/farcaster/casts", q, &resp); err != nil {
		slog.Warn("casts lookup failed", "fid", fid, "error", err)
		return []string{}, nil
	}

	texts := make([]string, 0, len(resp.Result.Casts))
	for _, cast := range resp.Result.Casts {
		texts = append(texts, cast.Text)
	}
	return texts, nil
}

// ResolveUsername maps a username (optionally prefixed with @ or given as
// a profile URL) to its fid. The mapping is cached without expiry.
func (c *Client) ResolveUsername(ctx context.Context, name string) (int64, bool) {
	name = NormalizeUsername(name)
	if name == "" {
		return 0, false
	}

	key := cache.Username(name)
	if raw, ok := c.cache.Get(ctx, key); ok {
		if fid, err := strconv.ParseInt(raw, 10, 64); err == nil && fid > 0 {
			return fid, true
		}
	}

	var resp usersPage
	q := url.Values{"q": {name}, "viewer_fid": {"1"}}
	if err := c.getJSON(ctx, "/v2/farcaster/user/search", q, &resp); err != nil {
		slog.Warn("username search failed", "username", name, "error", err)
		return 0, false
	}
	users := resp.users()
	if len(users) == 0 || users[0].FID <= 0 {
		return 0, false
	}

	fid := users[0].FID
	c.cache.Set(ctx, key, strconv.FormatInt(fid, 10), cache.UsernameTTL)
	return fid, true
}

// Resolve returns the fid for ref, looking up usernames as needed.
func (c *Client) Resolve(ctx context.Context, ref UserRef) (int64, bool) {
	if ref.FID > 0 {
		return ref.FID, true
	}
	return c.ResolveUsername(ctx, ref.Username)
}

// FollowsChannel reports whether user appears among the channel's
// followers. The whole follower list may be paged through, so cost grows
// with channel size.
func (c *Client) FollowsChannel(ctx context.Context, channel string, user UserRef) (bool, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return false, ErrInvalidChannel
	}
	if user.IsZero() {
		return false, ErrInvalidUser
	}

	q := url.Values{"id": {channel}, "limit": {strconv.Itoa(channelPageSize)}}
	return c.walk(ctx, "/v2/farcaster/channel/followers", q, user.Matches), nil
}

// FollowsUser reports whether fid follows target.
func (c *Client) FollowsUser(ctx context.Context, fid int64, target UserRef) (bool, error) {
	if fid <= 0 {
		return false, ErrInvalidFID
	}
	if target.IsZero() {
		return false, ErrInvalidUser
	}

	q := url.Values{
		"fid":       {fidParam(fid)},
		"viewerFid": {fidParam(fid)},
		"limit":     {strconv.Itoa(followingPageSize)},
	}
	return c.walk(ctx, "/v1/farcaster/following", q, target.Matches), nil
}

// Followers returns followers of fid. The upstream request always asks for
// at least 150 accounts, so callers may receive more than limit. Each
// follower's profile and username mapping is cached as a side effect.
func (c *Client) Followers(ctx context.Context, fid int64, limit int) ([]Profile, error) {
	if fid <= 0 {
		return nil, ErrInvalidFID
	}

	key := cache.Followers(fid, limit)
	if list, ok := cache.GetJSON[[]Profile](ctx, c.cache, key); ok {
		return *list, nil
	}

	var page usersPage
	q := url.Values{
		"fid":       {fidParam(fid)},
		"viewerFid": {fidParam(fid)},
		"limit":     {strconv.Itoa(max(minFollowersLimit, limit))},
	}
	if err := c.getJSON(ctx, "/v1/farcaster/followers", q, &page); err != nil {
		slog.Warn("followers lookup failed", "fid", fid, "error", err)
		return []Profile{}, nil
	}

	followers := page.users()
	if followers == nil {
		followers = []Profile{}
	}
	cache.SetJSON(ctx, c.cache, key, followers, cache.FollowersTTL)
	for _, p := range followers {
		if p.FID <= 0 {
			continue
		}
		cache.SetJSON(ctx, c.cache, cache.UserData(p.FID), p, cache.UserDataTTL)
		if p.Username != "" {
			c.cache.Set(ctx, cache.Username(NormalizeUsername(p.Username)), strconv.FormatInt(p.FID, 10), cache.UsernameTTL)
		}
	}
	return followers, nil
}

// RandomFollower picks uniformly among a small follower sample. It returns
// nil when the account has no followers.
func (c *Client) RandomFollower(ctx context.Context, fid int64) (*Profile, error) {
	followers, err := c.Followers(ctx, fid, randomPoolSize)
	if err != nil {
		return nil, err
	}
	if len(followers) == 0 {
		return nil, nil
	}
	p := followers[c.intN(len(followers))]
	return &p, nil
}

// HasCastContaining reports whether any of the last count casts contains
// substr (case-sensitive).
func (c *Client) HasCastContaining(ctx context.Context, fid int64, substr string, count int) (bool, error) {
	casts, err := c.Casts(ctx, fid, count)
	if err != nil {
		return false, err
	}
	for _, text := range casts {
		if strings.Contains(text, substr) {
			return true, nil
		}
	}
	return false, nil
}

// Warm preloads the profile and follower list of fid into the cache.
func (c *Client) Warm(ctx context.Context, fid int64) {
	if fid <= 0 {
		return
	}
	var g errgroup.Group
	g.Go(func() error {
		_, err := c.Followers(ctx, fid, minFollowersLimit)
		return err
	})
	g.Go(func() error {
		_, err := c.Profile(ctx, fid)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Debug("cache warm-up incomplete", "fid", fid, "error", err)
	}
}
