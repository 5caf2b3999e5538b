package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
)

func sampleDevice() *Device {
	return &Device{
		UUID: "000", Name: "VMC-3Axis",
		Components: []*Component{
			{
				ID: "e1", ComponentType: "Electric", Name: "Electric",
				DataItems: []*DataItem{{ID: "dev_avail", Name: "avail", Type: "AVAILABILITY", Category: model.CategoryEvent}},
			},
			{
				ID: "ax1", ComponentType: "Axes", Name: "Axes",
				DataItems: []*DataItem{
					{ID: "dev_va", Name: "Va", Type: "VOLTAGE", Category: model.CategorySample, Representation: model.RepresentationTimeSeries},
				},
			},
		},
	}
}

func TestInsertAndResolveByName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.InsertSchema(sampleDevice()))

	kind, ok := r.Resolve("000", "Va")
	require.True(t, ok)
	assert.Equal(t, "dev_va", kind.ID)
	assert.Equal(t, model.RepresentationTimeSeries, kind.Representation)

	_, ok = r.Resolve("000", "nope")
	assert.False(t, ok)
}

func TestResolvePathByType(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.InsertSchema(sampleDevice()))

	ids, err := r.ResolvePath(`Axes//DataItem[@type="VOLTAGE"]`, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev_va"}, ids)
}

func TestResolvePathUnknownPredicateMatchesNothing(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.InsertSchema(sampleDevice()))

	ids, err := r.ResolvePath(`DataItem[@bogus="x"]`, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPathValidation(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.InsertSchema(sampleDevice()))

	ok, err := r.PathValidation(`Electric//DataItem`, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.PathValidation(`Spindle//DataItem`, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertSchemaIsIdempotentByUUID(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.InsertSchema(sampleDevice()))
	require.NoError(t, r.InsertSchema(sampleDevice()))

	assert.Len(t, r.GetAllDeviceUuids(), 1)
	ids, err := r.ResolvePath(`DataItem[@type="VOLTAGE"]`, nil)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestParseDeviceJSONRoundTrip(t *testing.T) {
	raw := []byte(`{"uuid":"000","name":"VMC-3Axis","dataitems":[{"id":"dev_avail","name":"avail","type":"AVAILABILITY","category":"EVENT"}]}`)

	dev, err := ParseDeviceJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "000", dev.UUID)
	require.Len(t, dev.DataItems, 1)
	assert.Equal(t, "avail", dev.DataItems[0].Name)
}
