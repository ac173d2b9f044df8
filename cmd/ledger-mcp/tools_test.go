package main

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/allowlist"
	"github.com/krati1611/smallhappinessclub/internal/analytics"
	"github.com/krati1611/smallhappinessclub/internal/ledger"
)

type fakeVisits struct {
	visits []analytics.Visit
	counts []analytics.RouteCount
	err    error
	since  time.Time
}

func (f *fakeVisits) GetVisitsByAddress(ctx context.Context, addr string, limit int) ([]analytics.Visit, error) {
	return f.visits, f.err
}

func (f *fakeVisits) CountByRoute(ctx context.Context, since time.Time) ([]analytics.RouteCount, error) {
	f.since = since
	return f.counts, f.err
}

func newTestTools(t *testing.T) *LedgerTools {
	t.Helper()
	backend, err := ledger.NewFileBackend(filepath.Join(t.TempDir(), "ledger.json"), ledger.FormatRecords)
	require.NoError(t, err)
	require.NoError(t, backend.Save(context.Background(), []ledger.Record{
		{Address: "192.0.2.1", Marker: ledger.MarkerPlain},
		{Address: "192.0.2.2", Marker: ledger.MarkerCampaign},
		{Address: "2001:db8::1", Marker: ledger.MarkerCampaign},
	}))
	allow, err := allowlist.New([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	return &LedgerTools{backend: backend, allow: allow, logger: zap.NewNop(), callLimit: time.Second}
}

func TestLookupAddress(t *testing.T) {
	tools := newTestTools(t)
	ctx := context.Background()

	_, out, err := tools.LookupAddress(ctx, nil, LookupAddressInput{Address: "192.0.2.2"})
	require.NoError(t, err)
	assert.True(t, out.Known)
	assert.Equal(t, "campaign", out.Marker)
	assert.False(t, out.AllowListed)

	_, out, err = tools.LookupAddress(ctx, nil, LookupAddressInput{Address: " 2001:DB8:0::1 "})
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", out.Address)
	assert.True(t, out.Known)

	_, out, err = tools.LookupAddress(ctx, nil, LookupAddressInput{Address: "10.1.2.3"})
	require.NoError(t, err)
	assert.False(t, out.Known)
	assert.True(t, out.AllowListed)

	_, _, err = tools.LookupAddress(ctx, nil, LookupAddressInput{Address: "nope"})
	assert.Error(t, err)
}

func TestLookupAddressWithVisits(t *testing.T) {
	tools := newTestTools(t)
	tools.visits = &fakeVisits{visits: []analytics.Visit{{RequestID: "r1", Route: "qualified"}}}

	_, out, err := tools.LookupAddress(context.Background(), nil, LookupAddressInput{Address: "192.0.2.1", Visits: 5})
	require.NoError(t, err)
	require.Len(t, out.RecentVisits, 1)
	assert.Equal(t, "r1", out.RecentVisits[0].RequestID)

	tools.visits = &fakeVisits{err: errors.New("timeout")}
	_, out, err = tools.LookupAddress(context.Background(), nil, LookupAddressInput{Address: "192.0.2.1", Visits: 5})
	require.NoError(t, err)
	assert.Empty(t, out.RecentVisits)
}

func TestLedgerSummary(t *testing.T) {
	tools := newTestTools(t)
	_, out, err := tools.LedgerSummary(context.Background(), nil, LedgerSummaryInput{})
	require.NoError(t, err)
	assert.Equal(t, LedgerSummaryOutput{Backend: "file", Total: 3, Campaign: 2, Plain: 1}, out)
}

func TestRouteCounts(t *testing.T) {
	tools := newTestTools(t)
	_, _, err := tools.RouteCounts(context.Background(), nil, RouteCountsInput{})
	assert.ErrorIs(t, err, analytics.ErrUnavailable)

	fv := &fakeVisits{counts: []analytics.RouteCount{{Route: "default", Count: 7}}}
	tools.visits = fv
	_, out, err := tools.RouteCounts(context.Background(), nil, RouteCountsInput{SinceHours: 2})
	require.NoError(t, err)
	assert.Equal(t, fv.counts, out.Routes)
	assert.WithinDuration(t, time.Now().Add(-2*time.Hour), fv.since, time.Minute)
}

func TestToolsOverInMemoryTransport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0.0.1"}, nil)
	registerTools(server, newTestTools(t))

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "ledger_summary", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.IsError)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out LedgerSummaryOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 3, out.Total)
}
