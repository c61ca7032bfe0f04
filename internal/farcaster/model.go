package farcaster

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Profile is a social-graph account as returned by the Neynar user
// endpoints.
type Profile struct {
	FID            int64          `json:"fid"`
	Username       string         `json:"username"`
	DisplayName    string         `json:"display_name"`
	PfpURL         string         `json:"pfp_url"`
	CustodyAddress string         `json:"custody_address,omitempty"`
	FollowerCount  int            `json:"follower_count"`
	FollowingCount int            `json:"following_count"`
	Details        ProfileDetails `json:"profile"`
	Verifications  []string       `json:"verifications,omitempty"`
}

type ProfileDetails struct {
	Bio Bio `json:"bio"`
}

type Bio struct {
	Text string `json:"text"`
}

// UnmarshalJSON accepts both the v2 snake_case user object and the v1
// camelCase one (displayName, pfp.url, followerCount) returned by the
// following and followers endpoints.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type plain Profile
	var aux struct {
		plain
		LegacyDisplayName    string `json:"displayName"`
		LegacyFollowerCount  *int   `json:"followerCount"`
		LegacyFollowingCount *int   `json:"followingCount"`
		LegacyPfp            *struct {
			URL string `json:"url"`
		} `json:"pfp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*p = Profile(aux.plain)
	if p.DisplayName == "" {
		p.DisplayName = aux.LegacyDisplayName
	}
	if p.PfpURL == "" && aux.LegacyPfp != nil {
		p.PfpURL = aux.LegacyPfp.URL
	}
	if p.FollowerCount == 0 && aux.LegacyFollowerCount != nil {
		p.FollowerCount = *aux.LegacyFollowerCount
	}
	if p.FollowingCount == 0 && aux.LegacyFollowingCount != nil {
		p.FollowingCount = *aux.LegacyFollowingCount
	}
	return nil
}

// UserRef identifies an account either by fid or by username.
type UserRef struct {
	FID      int64
	Username string
}

func ByFID(fid int64) UserRef {
	return UserRef{FID: fid}
}

func ByUsername(name string) UserRef {
	return UserRef{Username: NormalizeUsername(name)}
}

// ParseUserRef treats all-digit input as a fid and anything else as a
// username (with the usual @ and profile URL forms accepted).
func ParseUserRef(s string) UserRef {
	s = strings.TrimSpace(s)
	if fid, err := strconv.ParseInt(s, 10, 64); err == nil && fid > 0 {
		return ByFID(fid)
	}
	return ByUsername(s)
}

func (u UserRef) IsZero() bool {
	return u.FID <= 0 && u.Username == ""
}

// Matches reports whether p is the referenced account. Fids compare
// exactly, usernames case-insensitively.
func (u UserRef) Matches(p Profile) bool {
	if u.FID > 0 {
		return p.FID == u.FID
	}
	return u.Username != "" && strings.EqualFold(p.Username, u.Username)
}

func (u UserRef) String() string {
	if u.FID > 0 {
		return strconv.FormatInt(u.FID, 10)
	}
	return "@" + u.Username
}

// NormalizeUsername strips surrounding whitespace, a leading "@", and a
// profile URL prefix such as https://warpcast.com/, then lowercases.
func NormalizeUsername(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
		// drop the host, keep the first path segment
		if j := strings.IndexByte(name, '/'); j >= 0 {
			name = name[j+1:]
		} else {
			name = ""
		}
		if j := strings.IndexAny(name, "/?#"); j >= 0 {
			name = name[:j]
		}
	}
	name = strings.TrimPrefix(name, "@")
	return strings.ToLower(name)
}

type cursor struct {
	Cursor *string `json:"cursor"`
}

// usersPage decodes both {users, next} and {result: {users, next}}.
type usersPage struct {
	Users  []Profile `json:"users"`
	Next   *cursor   `json:"next"`
	Result *struct {
		Users []Profile `json:"users"`
		Next  *cursor   `json:"next"`
	} `json:"result"`
}

func (p usersPage) users() []Profile {
	if len(p.Users) == 0 && p.Result != nil {
		return p.Result.Users
	}
	return p.Users
}

func (p usersPage) cursor() string {
	next := p.Next
	if next == nil && p.Result != nil {
		next = p.Result.Next
	}
	if next == nil || next.Cursor == nil {
		return ""
	}
	return *next.Cursor
}

type castsResponse struct {
	Result struct {
		Casts []struct {
			Text string `json:"text"`
		} `json:"casts"`
	} `json:"result"`
}
