package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	UserDataKey      = "user_data:%d"      // <fid>
	UsernameKey      = "username:%s"       // <normalized username>
	FollowersKey     = "followers:%d_%d"   // <fid>_<requested limit>
	ExternalImageKey = "external_image:%s" // <sha256 of url>
	LinkPreviewKey   = "link_preview:%s"   // <sha256 of url>
	CatalogAppsKey   = "catalog:apps"
)

const (
	UserDataTTL      = 20 * time.Minute
	UsernameTTL      = time.Duration(0) // usernames map to a stable fid
	FollowersTTL     = 10 * time.Minute
	ExternalImageTTL = 20 * time.Minute
	LinkPreviewTTL   = 24 * time.Hour
	LinkPreviewError = time.Hour // failed fetches are not retried sooner
)

func UserData(fid int64) string {
	return fmt.Sprintf(UserDataKey, fid)
}

func Username(name string) string {
	return fmt.Sprintf(UsernameKey, name)
}

func Followers(fid int64, limit int) string {
	return fmt.Sprintf(FollowersKey, fid, limit)
}

// ExternalImage hashes the URL so arbitrary query strings produce bounded,
// safe keys.
func ExternalImage(url string) string {
	return fmt.Sprintf(ExternalImageKey, urlHash(url))
}

func LinkPreview(url string) string {
	return fmt.Sprintf(LinkPreviewKey, urlHash(url))
}

func urlHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
