// Package agent wires the schema registry, store, ingest sequencer,
// adapter clients, HTTP server, and the audit/eventstream/webhook
// subscribers into one process, following the lifecycle shape of
// wisefido-sensor-fusion's cmd entrypoint (SPEC_FULL.md §5/§6).
package agent

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/micheletedeschi/mtconnect-agent/internal/adapter"
	"github.com/micheletedeschi/mtconnect-agent/internal/audit"
	"github.com/micheletedeschi/mtconnect-agent/internal/config"
	"github.com/micheletedeschi/mtconnect-agent/internal/eventstream"
	"github.com/micheletedeschi/mtconnect-agent/internal/httpapi"
	"github.com/micheletedeschi/mtconnect-agent/internal/ingest"
	"github.com/micheletedeschi/mtconnect-agent/internal/model"
	"github.com/micheletedeschi/mtconnect-agent/internal/notify"
	"github.com/micheletedeschi/mtconnect-agent/internal/schema"
	"github.com/micheletedeschi/mtconnect-agent/internal/store"
)

// Agent owns every long-lived component and coordinates startup and
// graceful shutdown.
type Agent struct {
	cfg *config.Config
	log *zap.Logger

	registry   *schema.Registry
	store      *store.Store
	sequencer  *ingest.Sequencer
	validator  *schema.Validator
	adapters   []*adapter.Client
	httpServer *http.Server

	db          *sql.DB
	auditSink   *audit.Sink
	redis       *redis.Client
	publisher   *eventstream.Publisher
	webhook     *notify.WebhookNotifier

	cancel context.CancelFunc
	done   chan struct{}
}

// New assembles an Agent from its configuration without starting
// anything.
func New(cfg *config.Config, log *zap.Logger) (*Agent, error) {
	if log == nil {
		log = zap.NewNop()
	}

	registry := schema.NewRegistry()
	st := store.New(cfg.RingCapacity, cfg.AssetBufferCapacity)
	seq := ingest.NewSequencer(registry, st, log, 256)

	a := &Agent{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		store:     st,
		sequencer: seq,
		validator: schema.NewValidator(cfg.XSDValidatorCmd, nil),
	}

	for _, ep := range cfg.Adapters {
		a.adapters = append(a.adapters, adapter.NewClient(ep, seq.Input(), log))
	}

	handlers := httpapi.NewHandlers(registry, st, log)
	router := httpapi.NewRouter(log)
	httpapi.RegisterRoutes(router, handlers)
	a.httpServer = &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	if cfg.Database.Configured() {
		db, err := sql.Open("postgres", cfg.Database.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("agent: opening audit database: %w", err)
		}
		a.db = db
		a.auditSink = audit.NewSink(db, log)
	}

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.publisher = eventstream.NewPublisher(a.redis, log)
	}

	if len(cfg.WebhookURLs) > 0 {
		a.webhook = notify.NewWebhookNotifier(cfg.WebhookURLs, log)
	}

	return a, nil
}

// LoadDevicesFile preloads device descriptions from cfg.DevicesFile,
// a no-op if unconfigured.
func (a *Agent) LoadDevicesFile() error {
	if a.cfg.DevicesFile == "" {
		return nil
	}
	devices, err := schema.LoadDevicesFile(a.cfg.DevicesFile)
	if err != nil {
		return err
	}
	for _, dev := range devices {
		if err := a.sequencer.InsertSchema(dev); err != nil {
			return fmt.Errorf("agent: inserting device %q: %w", dev.UUID, err)
		}
	}
	return nil
}

// Start launches every background component. It returns once
// everything is running; Stop performs the graceful shutdown sequence
// from spec.md §5.
func (a *Agent) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	if a.db != nil && a.auditSink != nil {
		if err := a.auditSink.EnsureSchema(runCtx); err != nil {
			a.log.Warn("agent: audit schema setup failed, audit sink disabled", zap.Error(err))
			a.auditSink = nil
		}
	}

	// Subscribe before the sequencer starts running: each subscriber gets
	// its own channel so the publisher and webhook notifier both see
	// every derived event instead of splitting one shared channel
	// between them (SPEC_FULL.md §4.8).
	var publisherDerived, webhookDerived <-chan model.Observation
	if a.publisher != nil {
		publisherDerived = a.sequencer.Subscribe()
	}
	if a.webhook != nil {
		webhookDerived = a.sequencer.Subscribe()
	}

	go a.sequencer.Run(runCtx)

	for _, client := range a.adapters {
		go client.Run(runCtx)
	}

	if a.auditSink != nil {
		go a.auditSink.Run(runCtx, a.sequencer.Applied())
	}
	if a.publisher != nil {
		go a.publisher.Run(runCtx, publisherDerived)
	}
	if a.webhook != nil {
		go a.webhook.Run(runCtx, webhookDerived)
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(a.done)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	a.log.Info("agent: started", zap.String("http_addr", a.cfg.HTTPAddr), zap.Int("adapters", len(a.adapters)))
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// Stop performs the shutdown sequence: stop accepting new adapter
// lines and HTTP connections, let the sequencer drain, then close the
// remaining resources.
func (a *Agent) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := a.httpServer.Shutdown(shutdownCtx)

	if a.done != nil {
		<-a.done
	}

	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}

	a.log.Info("agent: stopped")
	return err
}
