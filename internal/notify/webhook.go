// Package notify delivers derived asset-change events to external
// webhook subscribers over HTTP, grounded on the resty/v2 usage in
// wisefido-data's vendor API clients (SPEC_FULL.md §4.8).
package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
)

// Payload is the JSON body POSTed to each subscriber URL.
type Payload struct {
	DeviceUUID   string `json:"deviceUuid"`
	DataItemID   string `json:"dataItemId"`
	DataItemName string `json:"dataItemName"`
	Sequence     uint64 `json:"sequence"`
	Time         string `json:"time"`
	Value        string `json:"value"`
}

// WebhookNotifier fans a derived-event channel out to a fixed set of
// subscriber URLs. Each URL's failures are isolated: one subscriber
// timing out never blocks or drops events for another.
type WebhookNotifier struct {
	client *resty.Client
	urls   []string
	log    *zap.Logger
}

func NewWebhookNotifier(urls []string, log *zap.Logger) *WebhookNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(1 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{client: client, urls: urls, log: log}
}

func valueText(v model.Value) string {
	switch v.Kind {
	case model.KindCondition:
		return v.Condition.Message
	case model.KindMessage:
		return v.Message.Text
	case model.KindAlarm:
		return v.Alarm.Text
	case model.KindTimeSeries:
		return v.TimeSeries.Samples
	default:
		return v.Scalar
	}
}

// Run subscribes to derived and delivers each observation to every
// configured subscriber URL concurrently, until ctx is cancelled.
func (n *WebhookNotifier) Run(ctx context.Context, derived <-chan model.Observation) {
	if len(n.urls) == 0 {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-derived:
			if !ok {
				return
			}
			n.deliver(ctx, obs)
		}
	}
}

func (n *WebhookNotifier) deliver(ctx context.Context, obs model.Observation) {
	payload := Payload{
		DeviceUUID:   obs.DeviceUUID,
		DataItemID:   obs.ID,
		DataItemName: obs.DataItemName,
		Sequence:     obs.Sequence,
		Time:         obs.Time,
		Value:        valueText(obs.Value),
	}
	for _, url := range n.urls {
		go n.post(ctx, url, payload)
	}
}

func (n *WebhookNotifier) post(ctx context.Context, url string, payload Payload) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(url)
	if err != nil {
		n.log.Warn("notify: webhook delivery failed", zap.String("url", url), zap.Error(err))
		return
	}
	if resp.IsError() {
		n.log.Warn("notify: webhook rejected event",
			zap.String("url", url), zap.Int("status", resp.StatusCode()))
	}
}
