package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
	"github.com/micheletedeschi/mtconnect-agent/internal/schema"
	"github.com/micheletedeschi/mtconnect-agent/internal/store"
)

func newTestSequencer(t *testing.T) (*Sequencer, *store.Store) {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.InsertSchema(&schema.Device{
		UUID: "000", Name: "VMC",
		DataItems: []*schema.DataItem{
			{ID: "dev_avail", Name: "avail", Type: "AVAILABILITY", Category: model.CategoryEvent},
		},
	}))
	st := store.New(100, 100)
	return NewSequencer(reg, st, nil, 16), st
}

func TestHandleLineUpdatesStore(t *testing.T) {
	seq, st := newTestSequencer(t)

	seq.handleLine(Line{DeviceUUID: "000", Text: "2020-01-01T00:00:00Z|avail|AVAILABLE"})

	current := st.SnapshotCurrent([]string{"dev_avail"})
	require.Len(t, current, 1)
	assert.Equal(t, "AVAILABLE", current[0].Value.Scalar)
}

func TestHandleLineAssetCommandPublishesDerived(t *testing.T) {
	seq, _ := newTestSequencer(t)
	derived := seq.Subscribe()

	seq.handleLine(Line{DeviceUUID: "000", Text: "2020-01-01T00:00:00Z|@ASSET@|EM233|CuttingTool|<CuttingTool/>"})

	select {
	case obs := <-derived:
		assert.Equal(t, model.AssetChangedID, obs.ID)
		assert.Equal(t, "EM233", obs.Value.Scalar)
	default:
		t.Fatal("expected a derived ASSET_CHANGED observation")
	}

	select {
	case applied := <-seq.Applied():
		assert.Equal(t, "asset", applied.Kind)
		assert.Equal(t, "EM233", applied.AssetID)
	default:
		t.Fatal("expected an applied-command audit record")
	}
}

func TestSubscribeFansOutDerivedEventsToEverySubscriber(t *testing.T) {
	seq, _ := newTestSequencer(t)
	publisherDerived := seq.Subscribe()
	webhookDerived := seq.Subscribe()

	seq.handleLine(Line{DeviceUUID: "000", Text: "2020-01-01T00:00:00Z|@ASSET@|EM233|CuttingTool|<CuttingTool/>"})

	select {
	case obs := <-publisherDerived:
		assert.Equal(t, model.AssetChangedID, obs.ID)
	default:
		t.Fatal("expected the first subscriber to receive the derived event")
	}

	select {
	case obs := <-webhookDerived:
		assert.Equal(t, model.AssetChangedID, obs.ID)
	default:
		t.Fatal("expected the second subscriber to also receive the derived event")
	}
}
