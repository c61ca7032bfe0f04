package linkpreview

// Preview is the Open Graph summary of a page.
type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
}

// cacheEntry is what the cache stores per URL. A non-empty FetchError marks
// a negative entry.
type cacheEntry struct {
	Preview
	FetchError string `json:"fetch_error,omitempty"`
}
