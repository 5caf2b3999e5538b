package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
	"github.com/micheletedeschi/mtconnect-agent/internal/schema"
	"github.com/micheletedeschi/mtconnect-agent/internal/store"
)

func testDevice() *schema.Device {
	return &schema.Device{
		UUID: "000", Name: "VMC-3Axis",
		Components: []*schema.Component{
			{
				ID: "e1", ComponentType: "Electric", Name: "Electric",
				DataItems: []*schema.DataItem{{ID: "dev_avail", Name: "avail", Type: "AVAILABILITY", Category: model.CategoryEvent}},
			},
		},
	}
}

func newTestHandlers(t *testing.T) (*Handlers, *store.Store) {
	registry := schema.NewRegistry()
	require.NoError(t, registry.InsertSchema(testDevice()))
	st := store.New(10, 10)
	return NewHandlers(registry, st, nil), st
}

func TestCurrentWithoutAtServesLiveState(t *testing.T) {
	h, st := newTestHandlers(t)
	st.Update(model.Observation{ID: "dev_avail", DeviceUUID: "000", DataItemName: "avail", Value: model.ScalarValue("AVAILABLE")})

	req := httptest.NewRequest(http.MethodGet, "/current", nil)
	rec := httptest.NewRecorder()
	h.Current(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AVAILABLE")
}

func TestCurrentWithAtReconstructsHistoricalState(t *testing.T) {
	h, st := newTestHandlers(t)
	st.Update(model.Observation{ID: "dev_avail", DeviceUUID: "000", DataItemName: "avail", Value: model.ScalarValue("AVAILABLE")})
	st.Update(model.Observation{ID: "dev_avail", DeviceUUID: "000", DataItemName: "avail", Value: model.ScalarValue("UNAVAILABLE")})

	req := httptest.NewRequest(http.MethodGet, "/current?at=1", nil)
	rec := httptest.NewRecorder()
	h.Current(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AVAILABLE")
	assert.NotContains(t, rec.Body.String(), "UNAVAILABLE")
}

func TestCurrentWithInvalidAtReturnsBadRequest(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/current?at=not-a-number", nil)
	rec := httptest.NewRecorder()
	h.Current(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCurrentWithOutOfRangeAtReturnsOutOfRange(t *testing.T) {
	h, st := newTestHandlers(t)
	st.Update(model.Observation{ID: "dev_avail", DeviceUUID: "000", DataItemName: "avail", Value: model.ScalarValue("AVAILABLE")})

	req := httptest.NewRequest(http.MethodGet, "/current?at=999", nil)
	rec := httptest.NewRecorder()
	h.Current(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "OUT_OF_RANGE")
}
