// Package audit records applied asset commands and schema insertions
// to Postgres for compliance review, grounded on owl-common/database's
// database/sql + lib/pq pairing (SPEC_FULL.md §4.7). Recording is
// best-effort: a failed insert is logged and the worker moves on, since
// the store's ring buffers remain the system of record.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/micheletedeschi/mtconnect-agent/internal/ingest"
)

// Sink writes applied-command records to a single audit table on one
// background worker goroutine, so writes are serialized without a
// connection-pool contention risk for a low-volume audit trail.
type Sink struct {
	db  *sql.DB
	log *zap.Logger
}

func NewSink(db *sql.DB, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{db: db, log: log}
}

// EnsureSchema creates the audit table if it does not already exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS asset_command_audit (
			id          BIGSERIAL PRIMARY KEY,
			kind        TEXT NOT NULL,
			verb        TEXT NOT NULL DEFAULT '',
			asset_id    TEXT NOT NULL DEFAULT '',
			device_uuid TEXT NOT NULL DEFAULT '',
			applied_at  TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("audit: creating table: %w", err)
	}
	return nil
}

// Run drains applied until ctx is cancelled or the channel is closed,
// writing one row per record.
func (s *Sink) Run(ctx context.Context, applied <-chan ingest.AppliedCommand) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-applied:
			if !ok {
				return
			}
			s.write(ctx, cmd)
		}
	}
}

func (s *Sink) write(ctx context.Context, cmd ingest.AppliedCommand) {
	const query = `
		INSERT INTO asset_command_audit (kind, verb, asset_id, device_uuid, applied_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, cmd.Kind, cmd.Verb, cmd.AssetID, cmd.UUID, cmd.At)
	if err != nil {
		s.log.Warn("audit: insert failed, record dropped",
			zap.String("kind", cmd.Kind), zap.String("verb", cmd.Verb), zap.Error(err))
	}
}
