// Package signals derives the per-request inputs of traffic classification
// from an inbound landing-page request.
package signals

import (
	"net"
	"net/http"
	"strings"
)

// Query parameters carrying campaign attribution.
const (
	ParamGCLID      = "gclid"
	ParamCampaignID = "campaignid"
	ParamPlacement  = "placement"
	ParamNetwork    = "network"
	ParamRandom     = "random"
)

// botSubstrings are matched against the lower-cased User-Agent.
var botSubstrings = []string{"bot", "crawl", "spider", "slurp"}

// RequestSignals is everything classification needs from one request.
type RequestSignals struct {
	HasCampaignID bool
	GCLID         string
	CampaignID    string
	Placement     string
	Network       string
	RandomToken   string
	UserAgent     string
	IsBotLike     bool
	IsDesktopOS   bool
	ClientAddress string

	// Device is descriptive only and never feeds the routing decision.
	Device Device
}

// HasAllCampaignParams reports whether every attribution parameter besides
// gclid is present.
func (s RequestSignals) HasAllCampaignParams() bool {
	return s.CampaignID != "" && s.Placement != "" && s.RandomToken != "" && s.Network != ""
}

// Extractor builds RequestSignals. When TrustForwardedFor is set the first
// X-Forwarded-For hop is taken as the client address; only enable it behind
// a proxy that overwrites the header.
type Extractor struct {
	TrustForwardedFor bool
}

// Extract reads signals from r. It never fails; absent inputs produce zero values.
func (e Extractor) Extract(r *http.Request) RequestSignals {
	q := r.URL.Query()
	ua := r.Header.Get("User-Agent")

	s := RequestSignals{
		GCLID:         q.Get(ParamGCLID),
		CampaignID:    q.Get(ParamCampaignID),
		Placement:     q.Get(ParamPlacement),
		Network:       q.Get(ParamNetwork),
		RandomToken:   q.Get(ParamRandom),
		UserAgent:     ua,
		IsBotLike:     IsBotLike(ua),
		IsDesktopOS:   IsDesktopOS(ua),
		ClientAddress: e.ClientAddress(r),
		Device:        ParseDevice(ua),
	}
	s.HasCampaignID = s.GCLID != ""
	return s
}

// IsDesktopOS matches the literal, case-sensitive substring "Windows".
func IsDesktopOS(ua string) bool {
	return strings.Contains(ua, "Windows")
}

// IsBotLike matches any of bot, crawl, spider or slurp in the lower-cased UA.
func IsBotLike(ua string) bool {
	lower := strings.ToLower(ua)
	for _, s := range botSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ClientAddress returns the textual client IP for r, or "" if none can be
// determined.
func (e Extractor) ClientAddress(r *http.Request) string {
	if e.TrustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if ip := normalizeIP(first); ip != "" {
				return ip
			}
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return normalizeIP(host)
}

func normalizeIP(s string) string {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
