package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
	"github.com/micheletedeschi/mtconnect-agent/internal/schema"
	"github.com/micheletedeschi/mtconnect-agent/internal/store"
	"github.com/micheletedeschi/mtconnect-agent/internal/xmlutil"
)

// Handlers implements the read-only query/serializer endpoints from
// spec.md §4.5/§6. Every method here only reads from registry/store —
// the ingest sequencer is the sole writer (spec.md §5).
type Handlers struct {
	registry *schema.Registry
	store    *store.Store
	log      *zap.Logger
}

func NewHandlers(registry *schema.Registry, st *store.Store, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{registry: registry, store: st, log: log}
}

func writeXML(w http.ResponseWriter, status int, node *model.Node) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` + "\n" + xmlutil.WriteNode(node)))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeXML(w, status, BuildErrorXML(code, message))
}

func (h *Handlers) resolveIDs(r *http.Request) ([]string, error) {
	path := r.URL.Query().Get("path")
	if path == "" {
		return nil, nil
	}
	uuids := r.URL.Query()["device"]
	return h.registry.ResolvePath(path, uuids)
}

func (h *Handlers) devices(r *http.Request) []*schema.Device {
	uuids := r.URL.Query()["device"]
	if len(uuids) == 0 {
		uuids = h.registry.GetAllDeviceUuids()
	}
	out := make([]*schema.Device, 0, len(uuids))
	for _, u := range uuids {
		if d, ok := h.registry.GetDevice(u); ok {
			out = append(out, d)
		}
	}
	return out
}

// Probe serves GET /probe: the device schema tree, no observation values.
func (h *Handlers) Probe(w http.ResponseWriter, r *http.Request) {
	writeXML(w, http.StatusOK, BuildProbeXML(h.devices(r)))
}

// Current serves GET /current?path=&device=&at=<seq>: the latest
// value per matched dataitem, with CONDITION rendered as its
// aggregated active set. With at, the "latest" is reconstructed as of
// that historical sequence instead of live state; since only the
// live active-condition set is tracked, CONDITION at a historical
// point renders as the single matched observation (the /sample
// shape) rather than the aggregated view.
func (h *Handlers) Current(w http.ResponseWriter, r *http.Request) {
	ids, err := h.resolveIDs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_XPATH", err.Error())
		return
	}

	atParam := r.URL.Query().Get("at")
	if atParam == "" {
		observations := h.store.SnapshotCurrent(ids)
		writeXML(w, http.StatusOK, BuildStreamsXML(h.devices(r), observations, h.store.GetActiveConditions))
		return
	}

	at, err := strconv.ParseUint(atParam, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "at must be a non-negative integer")
		return
	}
	observations, err := h.store.SnapshotAt(ids, at)
	if err != nil {
		if errors.Is(err, store.ErrOutOfRange) {
			writeError(w, http.StatusBadRequest, "OUT_OF_RANGE", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	writeXML(w, http.StatusOK, BuildStreamsXML(h.devices(r), observations, nil))
}

// Sample serves GET /sample?path=&from=&count=&device=: a historical
// sequence window.
func (h *Handlers) Sample(w http.ResponseWriter, r *http.Request) {
	ids, err := h.resolveIDs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_XPATH", err.Error())
		return
	}

	from, count, err := parseWindowParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	observations, err := h.store.SampleWindow(ids, from, count)
	if err != nil {
		if errors.Is(err, store.ErrOutOfRange) {
			writeError(w, http.StatusBadRequest, "OUT_OF_RANGE", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	writeXML(w, http.StatusOK, BuildStreamsXML(h.devices(r), observations, nil))
}

func parseWindowParams(r *http.Request) (from, count uint64, err error) {
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		from, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, 0, errors.New("from must be a non-negative integer")
		}
	} else {
		from = 1
	}
	count = 100
	if v := q.Get("count"); v != "" {
		count, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, 0, errors.New("count must be a non-negative integer")
		}
	}
	return from, count, nil
}

// Assets serves GET /assets?type=&count=.
func (h *Handlers) Assets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	assetType := q.Get("type")
	count := 0
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "count must be a non-negative integer")
			return
		}
		count = n
	}
	writeXML(w, http.StatusOK, BuildAssetsXML(h.store.ListAssets(assetType, count)))
}

// ExportSampleXLSX serves GET /export/sample.xlsx?path=&from=&count=:
// the same sampleWindow query /sample uses, rendered as a spreadsheet
// for MES systems that consume offline reports (SPEC_FULL.md §4.5).
func (h *Handlers) ExportSampleXLSX(w http.ResponseWriter, r *http.Request) {
	ids, err := h.resolveIDs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_XPATH", err.Error())
		return
	}
	from, count, err := parseWindowParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	observations, err := h.store.SampleWindow(ids, from, count)
	if err != nil {
		if errors.Is(err, store.ErrOutOfRange) {
			writeError(w, http.StatusBadRequest, "OUT_OF_RANGE", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	buf, err := RenderSampleXLSX(observations)
	if err != nil {
		h.log.Error("httpapi: rendering sample.xlsx failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to render spreadsheet")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="sample.xlsx"`)
	w.Write(buf)
}

func valueText(v model.Value) string {
	switch v.Kind {
	case model.KindCondition:
		return strings.Join([]string{v.Condition.Level, v.Condition.NativeCode, v.Condition.Message}, " ")
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
