package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micheletedeschi/mtconnect-agent/internal/config"
)

func TestAgentStartsWithZeroExternalServices(t *testing.T) {
	cfg := &config.Config{
		HTTPAddr:            "127.0.0.1:0",
		RingCapacity:        16,
		AssetBufferCapacity: 16,
	}
	a, err := New(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, a.LoadDevicesFile())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, a.Start(ctx))
	defer a.Stop(context.Background())

	time.Sleep(50 * time.Millisecond)
	assert.Nil(t, a.db)
	assert.Nil(t, a.redis)
	assert.Nil(t, a.webhook)
}

func TestAgentStopAfterStartWithCancelledContextDoesNotPanic(t *testing.T) {
	cfg := &config.Config{HTTPAddr: "127.0.0.1:0"}
	a, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = a.Start(ctx)
	err = a.Stop(context.Background())
	_ = err // shutdown on an already-cancelled context may race the listener bind; only must not panic
}
