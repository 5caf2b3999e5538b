package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/micheletedeschi/mtconnect-agent/internal/ingest"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Sink) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewSink(db, nil)
}

func TestEnsureSchemaCreatesTable(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS asset_command_audit`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunWritesOneRowPerAppliedCommand(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	applied := make(chan ingest.AppliedCommand, 1)
	cmd := ingest.AppliedCommand{Kind: "asset", Verb: "ASSET", AssetID: "CT1", UUID: "dev1", At: time.Now()}

	mock.ExpectExec(`INSERT INTO asset_command_audit`).
		WithArgs(cmd.Kind, cmd.Verb, cmd.AssetID, cmd.UUID, cmd.At).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx, applied)
		close(done)
	}()

	applied <- cmd
	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
