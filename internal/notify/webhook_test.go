package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
)

func TestWebhookNotifierDeliversToAllSubscribers(t *testing.T) {
	var mu sync.Mutex
	var hits []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier([]string{server.URL + "/a", server.URL + "/b"}, nil)
	derived := make(chan model.Observation, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go n.Run(ctx, derived)
	derived <- model.Observation{DeviceUUID: "dev1", ID: "assetChg", Value: model.Value{Scalar: "x"}}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(hits) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestWebhookNotifierIsolatesSubscriberFailure(t *testing.T) {
	var mu sync.Mutex
	var healthyHits int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		healthyHits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier([]string{"http://127.0.0.1:0/unreachable", server.URL}, nil)
	derived := make(chan model.Observation, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go n.Run(ctx, derived)
	derived <- model.Observation{DeviceUUID: "dev1", ID: "assetChg", Value: model.Value{Scalar: "x"}}

	// The unreachable URL must not prevent delivery to the healthy one.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return healthyHits >= 1
	}, time.Second, 10*time.Millisecond)
}
