package eventstream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
)

func TestPublisherXAddsDerivedObservation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := NewPublisher(client, nil)
	derived := make(chan model.Observation, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go p.Run(ctx, derived)
	derived <- model.Observation{DeviceUUID: "dev1", ID: model.AssetChangedID, DataItemName: "assetChanged", Sequence: 42, Time: "2026-08-03T00:00:00Z"}

	require.Eventually(t, func() bool {
		n, err := client.XLen(context.Background(), streamKey).Result()
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)
}
