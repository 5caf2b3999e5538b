// Package ingest implements the single-writer sequencer described in
// spec.md §5: one goroutine drains a channel fed by adapter readers,
// runs each line through the SHDR parser, and applies the result to
// the store. This is the only writer of store state; HTTP handlers
// never call Update/ApplyAssetCommand directly.
package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
	"github.com/micheletedeschi/mtconnect-agent/internal/schema"
	"github.com/micheletedeschi/mtconnect-agent/internal/shdr"
	"github.com/micheletedeschi/mtconnect-agent/internal/store"
)

// Line is one adapter-read input: a raw SHDR line scoped to a device.
type Line struct {
	DeviceUUID string
	Text       string
}

// AppliedCommand is emitted once per successful asset command or
// schema insertion, for the audit sink (SPEC_FULL.md §4.7).
type AppliedCommand struct {
	Kind    string // "asset" | "schema"
	Verb    string
	AssetID string
	UUID    string
	At      time.Time
}

// Sequencer owns the parser and store and is the sole caller of their
// mutating methods.
type Sequencer struct {
	registry *schema.Registry
	store    *store.Store
	log      *zap.Logger

	parsers map[string]*shdr.Parser

	input       chan Line
	queueDepth  int
	subscribers []chan model.Observation
	applied     chan AppliedCommand
}

func NewSequencer(registry *schema.Registry, st *store.Store, log *zap.Logger, queueDepth int) *Sequencer {
	if log == nil {
		log = zap.NewNop()
	}
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Sequencer{
		registry:   registry,
		store:      st,
		log:        log,
		parsers:    make(map[string]*shdr.Parser),
		input:      make(chan Line, queueDepth),
		queueDepth: queueDepth,
		applied:    make(chan AppliedCommand, queueDepth),
	}
}

// Input returns the channel adapter readers push lines onto.
func (s *Sequencer) Input() chan<- Line { return s.input }

// Subscribe registers a new independent channel of
// ASSET_CHANGED/ASSET_REMOVED observations: the event stream publisher
// and webhook notifier each call Subscribe once at startup so every
// subscriber sees every derived event (SPEC_FULL.md §4.8), rather than
// competing as readers of one shared channel. Must be called before
// Run starts.
func (s *Sequencer) Subscribe() <-chan model.Observation {
	ch := make(chan model.Observation, s.queueDepth)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Applied returns the channel of applied-command records for the
// audit sink (SPEC_FULL.md §4.7).
func (s *Sequencer) Applied() <-chan AppliedCommand { return s.applied }

func (s *Sequencer) parserFor(uuid string) *shdr.Parser {
	p, ok := s.parsers[uuid]
	if !ok {
		p = shdr.NewParser(s.registry, s.log)
		s.parsers[uuid] = p
	}
	return p
}

// Run drains the input queue until ctx is cancelled (spec.md §5's
// shutdown step (b): stop accepting new lines, then drain).
func (s *Sequencer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case line := <-s.input:
					s.handleLine(line)
				default:
					return
				}
			}
		case line := <-s.input:
			s.handleLine(line)
		}
	}
}

func (s *Sequencer) handleLine(line Line) {
	res, err := s.parserFor(line.DeviceUUID).Parse(line.DeviceUUID, line.Text)
	if err != nil {
		s.log.Warn("ingest: parse error, line discarded", zap.String("uuid", line.DeviceUUID), zap.Error(err))
		return
	}

	for _, obs := range res.Observations {
		if applied, ok := s.store.Update(obs); ok {
			s.emitDerivedIfSynthetic(applied)
		}
	}

	if res.Asset != nil {
		derived, err := s.store.ApplyAssetCommand(res.Asset)
		if err != nil {
			s.log.Warn("ingest: asset command rejected", zap.String("verb", res.Asset.Verb), zap.Error(err))
			return
		}
		for _, obs := range derived {
			s.publishDerived(obs)
		}
		s.publishApplied(AppliedCommand{Kind: "asset", Verb: res.Asset.Verb, AssetID: res.Asset.AssetID, UUID: line.DeviceUUID})
	}
}

// emitDerivedIfSynthetic forwards ASSET_CHANGED/ASSET_REMOVED
// observations produced outside ApplyAssetCommand's own return value
// (none currently are, since those ids only ever arrive through
// asset commands) — kept as the single choke point so any future
// synthetic dataitem follows the same fan-out path.
func (s *Sequencer) emitDerivedIfSynthetic(obs model.Observation) {
	if obs.ID == model.AssetChangedID || obs.ID == model.AssetRemovedID {
		s.publishDerived(obs)
	}
}

func (s *Sequencer) publishDerived(obs model.Observation) {
	for _, ch := range s.subscribers {
		select {
		case ch <- obs:
		default:
			s.log.Warn("ingest: derived-event channel full, dropping event", zap.String("id", obs.ID))
		}
	}
}

func (s *Sequencer) publishApplied(cmd AppliedCommand) {
	cmd.At = time.Now()
	select {
	case s.applied <- cmd:
	default:
		s.log.Warn("ingest: applied-command channel full, dropping audit record")
	}
}

// InsertSchema inserts a device description and records the
// applied-command audit event (SPEC_FULL.md §4.7 names insertSchema
// as an audited operation alongside asset commands).
func (s *Sequencer) InsertSchema(dev *schema.Device) error {
	if err := s.registry.InsertSchema(dev); err != nil {
		return err
	}
	s.publishApplied(AppliedCommand{Kind: "schema", UUID: dev.UUID})
	return nil
}
