package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewMeterRecordsWithoutError(t *testing.T) {
	m, err := New(time.Minute)
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	m.RecordGatewayStart(ctx)
	m.RecordRequestDuration(ctx, "srv-1", "tools/call", 50*time.Millisecond)
	m.RecordError(ctx, "srv-1", "timeout")
}
