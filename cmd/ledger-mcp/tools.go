package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/allowlist"
	"github.com/krati1611/smallhappinessclub/internal/analytics"
	"github.com/krati1611/smallhappinessclub/internal/ledger"
)

// visitQuerier is the read side of analytics.Analytics.
type visitQuerier interface {
	GetVisitsByAddress(ctx context.Context, addr string, limit int) ([]analytics.Visit, error)
	CountByRoute(ctx context.Context, since time.Time) ([]analytics.RouteCount, error)
}

// LedgerTools serves read-only views of the ledger. The ledger is reloaded
// from the backend on every call so answers track the running server.
type LedgerTools struct {
	backend   ledger.Backend
	allow     *allowlist.List
	visits    visitQuerier
	logger    *zap.Logger
	callLimit time.Duration
}

type LookupAddressInput struct {
	Address string `json:"address" jsonschema:"IPv4 or IPv6 client address"`
	Visits  int    `json:"visits,omitempty" jsonschema:"number of recent visits to include when analytics is configured"`
}

type LookupAddressOutput struct {
	Address      string            `json:"address" jsonschema:"normalized address"`
	Known        bool              `json:"known" jsonschema:"whether the ledger has a record"`
	Marker       string            `json:"marker,omitempty" jsonschema:"plain or campaign"`
	AllowListed  bool              `json:"allow_listed" jsonschema:"whether the address bypasses classification"`
	RecentVisits []analytics.Visit `json:"recent_visits,omitempty" jsonschema:"latest recorded visits, newest first"`
}

type LedgerSummaryInput struct{}

type LedgerSummaryOutput struct {
	Backend  string `json:"backend" jsonschema:"durable storage in use"`
	Total    int    `json:"total" jsonschema:"number of addresses"`
	Campaign int    `json:"campaign" jsonschema:"addresses carrying the campaign marker"`
	Plain    int    `json:"plain" jsonschema:"addresses carrying the plain marker"`
}

type RouteCountsInput struct {
	SinceHours int `json:"since_hours,omitempty" jsonschema:"look-back window in hours (default 24)"`
}

type RouteCountsOutput struct {
	Since  time.Time              `json:"since"`
	Routes []analytics.RouteCount `json:"routes"`
}

func lookupAddressTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "lookup_address",
		Description: "Show the ledger marker and allow-list status of a client address",
	}
}

func ledgerSummaryTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "ledger_summary",
		Description: "Count ledger records by marker",
	}
}

func routeCountsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "route_counts",
		Description: "Count recorded visits per classification route (requires ClickHouse)",
	}
}

// LookupAddress implements lookup_address.
func (t *LedgerTools) LookupAddress(ctx context.Context, req *mcp.CallToolRequest, in LookupAddressInput) (*mcp.CallToolResult, LookupAddressOutput, error) {
	ip := net.ParseIP(strings.TrimSpace(in.Address))
	if ip == nil {
		return nil, LookupAddressOutput{}, fmt.Errorf("invalid address %q", in.Address)
	}
	addr := ip.String()

	ctx, cancel := context.WithTimeout(ctx, t.callLimit)
	defer cancel()

	records, err := t.backend.Load(ctx)
	if err != nil {
		return nil, LookupAddressOutput{}, fmt.Errorf("load ledger: %w", err)
	}
	out := LookupAddressOutput{Address: addr, AllowListed: t.allow.Contains(addr)}
	for _, r := range records {
		if r.Address == addr {
			out.Known = true
			out.Marker = string(r.Marker)
			break
		}
	}

	if in.Visits > 0 && t.visits != nil {
		visits, err := t.visits.GetVisitsByAddress(ctx, addr, in.Visits)
		switch {
		case errors.Is(err, analytics.ErrUnavailable):
		case err != nil:
			t.logger.Warn("visit lookup failed", zap.String("addr", addr), zap.Error(err))
		default:
			out.RecentVisits = visits
		}
	}
	return nil, out, nil
}

// LedgerSummary implements ledger_summary.
func (t *LedgerTools) LedgerSummary(ctx context.Context, req *mcp.CallToolRequest, _ LedgerSummaryInput) (*mcp.CallToolResult, LedgerSummaryOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, t.callLimit)
	defer cancel()

	records, err := t.backend.Load(ctx)
	if err != nil {
		return nil, LedgerSummaryOutput{}, fmt.Errorf("load ledger: %w", err)
	}
	out := LedgerSummaryOutput{Backend: t.backend.Name(), Total: len(records)}
	for _, r := range records {
		if r.Marker == ledger.MarkerCampaign {
			out.Campaign++
		} else {
			out.Plain++
		}
	}
	return nil, out, nil
}

// RouteCounts implements route_counts.
func (t *LedgerTools) RouteCounts(ctx context.Context, req *mcp.CallToolRequest, in RouteCountsInput) (*mcp.CallToolResult, RouteCountsOutput, error) {
	if t.visits == nil {
		return nil, RouteCountsOutput{}, analytics.ErrUnavailable
	}
	hours := in.SinceHours
	if hours <= 0 {
		hours = 24
	}
	ctx, cancel := context.WithTimeout(ctx, t.callLimit)
	defer cancel()

	since := time.Now().Add(-time.Duration(hours) * time.Hour).Truncate(time.Second)
	counts, err := t.visits.CountByRoute(ctx, since)
	if err != nil {
		return nil, RouteCountsOutput{}, err
	}
	return nil, RouteCountsOutput{Since: since, Routes: counts}, nil
}

func registerTools(server *mcp.Server, t *LedgerTools) {
	mcp.AddTool(server, lookupAddressTool(), t.LookupAddress)
	mcp.AddTool(server, ledgerSummaryTool(), t.LedgerSummary)
	mcp.AddTool(server, routeCountsTool(), t.RouteCounts)
}
