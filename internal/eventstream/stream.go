// Package eventstream publishes derived asset-change events onto a
// Redis stream for downstream consumers, grounded on
// owl-common/redis's XADD wrapper (SPEC_FULL.md §4.8).
package eventstream

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
)

const streamKey = "mtconnect:asset-events"

// Publisher fans a derived-event channel out to a Redis stream.
// Delivery is fire-and-forget: a failed XADD is logged and the next
// event is published regardless, since the stream is a convenience
// feed rather than the system of record (the store's ring buffers are).
type Publisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewPublisher(client *redis.Client, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{client: client, log: log}
}

// Run subscribes to derived and publishes each observation until ctx
// is cancelled or derived is closed.
func (p *Publisher) Run(ctx context.Context, derived <-chan model.Observation) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-derived:
			if !ok {
				return
			}
			p.publish(ctx, obs)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, obs model.Observation) {
	values := map[string]interface{}{
		"deviceUuid":   obs.DeviceUUID,
		"dataItemId":   obs.ID,
		"dataItemName": obs.DataItemName,
		"sequence":     fmt.Sprintf("%d", obs.Sequence),
		"time":         obs.Time,
	}
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: values,
	}).Result()
	if err != nil {
		p.log.Warn("eventstream: XADD failed", zap.String("id", obs.ID), zap.Error(err))
	}
}
