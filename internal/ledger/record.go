// Package ledger keeps the durable set of client addresses seen by the
// landing page together with their sticky campaign marker.
package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// Marker classifies a client address.
type Marker string

const (
	// MarkerPlain is assigned to addresses first seen without campaign attribution.
	MarkerPlain Marker = "plain"
	// MarkerCampaign is assigned once an address arrives with a gclid. It is never
	// downgraded.
	MarkerCampaign Marker = "campaign"
)

// LegacyCampaignPrefix tags campaign addresses in the flat `logged_ips` encoding.
const LegacyCampaignPrefix = "gclid_"

// Valid reports whether m is one of the known markers.
func (m Marker) Valid() bool {
	return m == MarkerPlain || m == MarkerCampaign
}

// ParseMarker converts a stored marker value.
func ParseMarker(s string) (Marker, error) {
	m := Marker(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown marker %q", ErrMalformedLedger, s)
	}
	return m, nil
}

// Record is one ledger entry.
type Record struct {
	Address string `json:"address"`
	Marker  Marker `json:"marker"`
}

// EncodeLegacy renders records in the `logged_ips` list form: bare addresses
// for plain records and gclid_-prefixed addresses for campaign records.
func EncodeLegacy(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if r.Marker == MarkerCampaign {
			out = append(out, LegacyCampaignPrefix+r.Address)
			continue
		}
		out = append(out, r.Address)
	}
	return out
}

// DecodeLegacy parses a `logged_ips` list. The legacy writer appended a
// second, prefixed entry when a plain address later carried a gclid, so the
// same address can appear twice; the campaign entry wins.
func DecodeLegacy(entries []string) ([]Record, error) {
	merged := make(map[string]Marker, len(entries))
	for i, e := range entries {
		addr, marker := e, MarkerPlain
		if strings.HasPrefix(e, LegacyCampaignPrefix) {
			addr, marker = strings.TrimPrefix(e, LegacyCampaignPrefix), MarkerCampaign
		}
		if strings.TrimSpace(addr) == "" {
			return nil, fmt.Errorf("%w: empty address at index %d", ErrMalformedLedger, i)
		}
		if merged[addr] != MarkerCampaign {
			merged[addr] = marker
		}
	}
	return sortedRecords(merged), nil
}

func sortedRecords(m map[string]Marker) []Record {
	out := make([]Record, 0, len(m))
	for addr, marker := range m {
		out = append(out, Record{Address: addr, Marker: marker})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
