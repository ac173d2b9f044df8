// Package allowlist loads the static set of client addresses that skip
// traffic classification.
package allowlist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// ErrMalformed is returned when the allow-list document cannot be parsed.
var ErrMalformed = errors.New("allow-list is malformed")

// List matches client addresses against exact IPs and CIDR prefixes.
// The zero value and a nil *List match nothing.
type List struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

type document struct {
	IPs *[]string `json:"ips"`
}

// Load reads {"ips": [...]} from path. An empty path disables the allow-list.
// A configured path that cannot be read or parsed is an error; the service
// must not start with an unreadable allow-list.
func Load(path string) (*List, error) {
	if path == "" {
		return &List{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read allow-list %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes an allow-list document.
func Parse(data []byte) (*List, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.IPs == nil {
		return nil, fmt.Errorf("%w: missing ips", ErrMalformed)
	}
	return New(*doc.IPs)
}

// New builds a List from IP or CIDR entries.
func New(entries []string) (*List, error) {
	l := &List{ips: make(map[string]struct{}, len(entries))}
	for i, raw := range entries {
		e := strings.TrimSpace(raw)
		if strings.Contains(e, "/") {
			_, n, err := net.ParseCIDR(e)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d %q: %v", ErrMalformed, i, raw, err)
			}
			l.nets = append(l.nets, n)
			continue
		}
		ip := net.ParseIP(e)
		if ip == nil {
			return nil, fmt.Errorf("%w: entry %d %q is not an IP address", ErrMalformed, i, raw)
		}
		l.ips[ip.String()] = struct{}{}
	}
	return l, nil
}

// Contains reports whether addr is allow-listed.
func (l *List) Contains(addr string) bool {
	if l == nil || addr == "" {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	if _, ok := l.ips[ip.String()]; ok {
		return true
	}
	for _, n := range l.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.ips) + len(l.nets)
}
