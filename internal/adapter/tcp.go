// Package adapter implements the TCP client named at its interface by
// spec.md §6 and given a concrete shape by SPEC_FULL.md §4.6: one
// goroutine per configured adapter endpoint, reconnecting with
// bounded exponential backoff on loss.
package adapter

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/micheletedeschi/mtconnect-agent/internal/ingest"
)

var errConnectionClosed = errors.New("adapter: connection closed by peer")

const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// Endpoint names one adapter connection: the device it feeds and
// where to dial it.
type Endpoint struct {
	DeviceUUID string
	Address    string // host:port
}

// Client connects to one adapter endpoint and forwards every line it
// reads to the ingest sequencer's input channel.
type Client struct {
	endpoint Endpoint
	input    chan<- ingest.Line
	log      *zap.Logger
	dial     func(network, address string) (net.Conn, error)
}

func NewClient(endpoint Endpoint, input chan<- ingest.Line, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{endpoint: endpoint, input: input, log: log, dial: net.Dial}
}

// Run connects and reads newline-delimited SHDR lines until ctx is
// cancelled, reconnecting on any read/dial error with exponential
// backoff from 100ms to 30s, reset after any successful line read
// (spec.md §7's "Transient (retried)" error kind).
func (c *Client) Run(ctx context.Context) {
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connectAndRead(ctx, func() { backoff = initialBackoff }); err != nil {
			c.log.Warn("adapter: connection lost, retrying",
				zap.String("uuid", c.endpoint.DeviceUUID),
				zap.String("addr", c.endpoint.Address),
				zap.Duration("backoff", backoff),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}

		// connectAndRead only returns nil when ctx was cancelled
		// mid-read; loop will exit on the next Done() check.
		backoff = initialBackoff
	}
}

func (c *Client) connectAndRead(ctx context.Context, onLine func()) error {
	conn, err := c.dial("tcp", c.endpoint.Address)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		c.input <- ingest.Line{DeviceUUID: c.endpoint.DeviceUUID, Text: line}
		onLine()
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errConnectionClosed
}
