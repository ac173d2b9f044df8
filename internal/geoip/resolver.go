// Package geoip resolves client addresses to ISO country codes. Every
// resolver degrades to Unknown on failure; lookup errors never reach callers.
package geoip

import (
	"context"
	"errors"
)

// Unknown is returned when a country cannot be determined.
const Unknown = ""

// ErrLookup marks a failed lookup. It is logged and converted to Unknown.
var ErrLookup = errors.New("geo lookup failed")

// Resolver maps an address to a country code or Unknown.
type Resolver interface {
	Resolve(ctx context.Context, addr string) string
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, addr string) string

func (f ResolverFunc) Resolve(ctx context.Context, addr string) string { return f(ctx, addr) }

// Chain asks each resolver in order and returns the first known country.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, addr string) string {
	for _, r := range c {
		if r == nil {
			continue
		}
		if cc := r.Resolve(ctx, addr); cc != Unknown {
			return cc
		}
	}
	return Unknown
}
