package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a reachable database; skipped unless POSTGRES_TEST_DSN is set.
func TestPostgresBackendRoundTrip(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	backend, err := InitPostgresBackend(ctx, dsn, PoolConfig{
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	})
	require.NoError(t, err)
	defer func() { _ = backend.Close() }()

	_, err = backend.DB.ExecContext(ctx, `DELETE FROM client_records`)
	require.NoError(t, err)

	want := []Record{
		{Address: "1.1.1.1", Marker: MarkerPlain},
		{Address: "2.2.2.2", Marker: MarkerCampaign},
	}
	require.NoError(t, backend.Save(ctx, want))
	got, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want[0].Marker = MarkerCampaign
	require.NoError(t, backend.Save(ctx, want[:1]))
	got, err = backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Record{{Address: "1.1.1.1", Marker: MarkerCampaign}}, got)
}
