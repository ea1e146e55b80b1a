// Package server is the command transport: a WebSocket endpoint
// carrying the ControlCommand envelope of spec.md §6, a plain text
// report endpoint, and a Prometheus /metrics mount. Grounded on the
// teacher's internal/handlers (http.go route registration,
// websocket.go client loop shape), generalized from bare
// http.ServeMux to gorilla/mux so the plain text report route sits
// beside the WebSocket endpoint as a named, method-restricted route.
// Snapshot and every other command travel only over the WebSocket.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trafficwatch/internal/core"
	"trafficwatch/internal/flowtable"
	"trafficwatch/internal/report"
)

// NewRouter builds the HTTP mux: the WebSocket command endpoint, a
// plain text report endpoint (spec.md §6's "Report file" rendered
// over HTTP instead of to a file), and Prometheus metrics.
func NewRouter(ctl *core.Controller) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", HandleWebSocket(ctl))
	r.HandleFunc("/api/report", handleReport(ctl)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// handleReport renders the entire flow table as the spec.md §6 plain
// text report, paging through Table.Snapshot since it caps each call
// at its internal page size.
func handleReport(ctl *core.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var all []flowtable.Entry
		for page := 1; ; page++ {
			entries, total := ctl.Table().Snapshot(flowtable.Filter{}, flowtable.SortMostRecent, page)
			all = append(all, entries...)
			if len(all) >= total || len(entries) == 0 {
				break
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := report.WriteText(w, all); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
