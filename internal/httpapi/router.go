package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router wraps the standard library's http.ServeMux — this lineage
// deliberately avoids pulling in a third-party router for a surface
// this small (see DESIGN.md).
type Router struct {
	mux *http.ServeMux
	log *zap.Logger
}

func NewRouter(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{mux: http.NewServeMux(), log: log}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterRoutes wires the HTTP surface from SPEC_FULL.md §6:
// /probe, /current, /sample, /assets, and the additive
// /export/sample.xlsx.
func RegisterRoutes(r *Router, h *Handlers) {
	r.Handle("/probe", h.Probe)
	r.Handle("/current", h.Current)
	r.Handle("/sample", h.Sample)
	r.Handle("/assets", h.Assets)
	r.Handle("/export/sample.xlsx", h.ExportSampleXLSX)
}
