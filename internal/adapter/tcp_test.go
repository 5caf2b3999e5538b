package adapter

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micheletedeschi/mtconnect-agent/internal/ingest"
)

func TestClientForwardsLinesFromListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("2020-01-01T00:00:00Z|avail|AVAILABLE\n"))
		time.Sleep(50 * time.Millisecond)
	}()

	input := make(chan ingest.Line, 4)
	c := NewClient(Endpoint{DeviceUUID: "000", Address: ln.Addr().String()}, input, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go c.Run(ctx)

	select {
	case line := <-input:
		assert.Equal(t, "000", line.DeviceUUID)
		assert.Equal(t, "2020-01-01T00:00:00Z|avail|AVAILABLE", line.Text)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded line")
	}
}

func TestClientRunReturnsOnCancelDuringBackoff(t *testing.T) {
	input := make(chan ingest.Line, 1)
	c := NewClient(Endpoint{DeviceUUID: "000", Address: "127.0.0.1:1"}, input, nil)
	c.dial = func(network, address string) (net.Conn, error) {
		return nil, assert.AnError
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	c.Run(ctx)
	// No assertion beyond "returns promptly on ctx cancellation without panicking".
}
