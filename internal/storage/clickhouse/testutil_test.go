package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testImage = "clickhouse/clickhouse-server:24.1-alpine"

// newTestConn starts a ClickHouse container with an empty token_swap_volume
// table. The container is removed when the test ends.
func newTestConn(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test: requires docker")
	}
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImage,
			ExposedPorts: []string{"9000/tcp"},
			Env:          map[string]string{"CLICKHOUSE_DB": "sentinel"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("9000/tcp"),
				wait.ForLog("Ready for connections"),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	endpoint, err := ctr.PortEndpoint(ctx, "9000/tcp", "clickhouse")
	require.NoError(t, err)

	conn, err := NewConn(ctx, endpoint+"/sentinel")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Same DDL as migrations/clickhouse/001_token_swap_volume.sql, inlined
	// because the migrations package depends on this one.
	require.NoError(t, conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS token_swap_volume (
			chain        LowCardinality(String),
			address      String,
			timestamp_ms UInt64,
			volume_usd   Float64
		) ENGINE = MergeTree()
		ORDER BY (chain, address, timestamp_ms)
	`))
	return conn
}
