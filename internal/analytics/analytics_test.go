package analytics

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordVisitUnavailable(t *testing.T) {
	var a *Analytics
	assert.ErrorIs(t, a.RecordVisit(context.Background(), Visit{}), ErrUnavailable)

	a = &Analytics{}
	assert.ErrorIs(t, a.RecordVisit(context.Background(), Visit{}), ErrUnavailable)

	_, err := a.GetVisitsByAddress(context.Background(), "1.1.1.1", 5)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = a.CountByRoute(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestVisitArgs(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v := Visit{
		Timestamp:     ts,
		RequestID:     "req-1",
		ClientAddress: "203.0.113.1",
		Route:         "qualified",
		Qualified:     true,
		HasCampaignID: true,
		CampaignID:    OptionalString("c1"),
		Country:       OptionalString("US"),
		Placement:     OptionalString(""),
	}
	args := visitArgs(v)
	require.Len(t, args, 17)
	assert.Equal(t, ts, args[0])
	assert.Equal(t, uint8(1), args[4])
	assert.Equal(t, uint8(0), args[5])
	assert.Equal(t, sql.NullString{String: "c1", Valid: true}, args[8])
	assert.Equal(t, sql.NullString{}, args[9])
	assert.Equal(t, sql.NullString{String: "US", Valid: true}, args[11])
}

func TestMockAnalytics(t *testing.T) {
	m := NewMockAnalytics()
	require.NoError(t, m.RecordVisit(context.Background(), Visit{RequestID: "a"}))
	m.Err = errors.New("boom")
	assert.Error(t, m.RecordVisit(context.Background(), Visit{RequestID: "b"}))
	assert.Len(t, m.Recorded(), 2)

	assert.NoError(t, NoOp{}.RecordVisit(context.Background(), Visit{}))
}
