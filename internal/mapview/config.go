package mapview

import "strings"

// Config selects the browser map provider. Without an access token the
// dashboard falls back to the calendar alone.
type Config struct {
	Provider    string `json:"provider"`
	AccessToken string `json:"-"`
	// AllowedOrigins are the cross-origin pages that may open the map socket.
	AllowedOrigins []string `json:"-"`
}

// Enabled reports whether a map can be shown at all.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.AccessToken) != ""
}
