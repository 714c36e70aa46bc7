// Package httpapi exposes the simulator's control surface over HTTP:
// status, Prometheus metrics, and a live-reloadable JSON config endpoint,
// grounded on client/doublezerod's internal/config.NewUpdateHandler shape.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/malbeclabs/rplsim/internal/simconfig"
	"github.com/malbeclabs/rplsim/internal/world"
)

// StatusResponse summarizes a world's live state for /status.
type StatusResponse struct {
	Now       int64            `json:"now"`
	NodeCount int              `json:"node_count"`
	Nodes     []NodeStatus     `json:"nodes"`
	Pending   int              `json:"pending_events"`
	Buckets   int              `json:"pending_buckets"`
	Config    simconfig.Values `json:"config"`
}

// NodeStatus is one node's entry in StatusResponse.
type NodeStatus struct {
	Name   string  `json:"name"`
	MAC    string  `json:"mac"`
	IP     string  `json:"ip"`
	Alive  bool    `json:"alive"`
	Busy   bool    `json:"busy"`
	Queued int     `json:"queued"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// NewStatusHandler renders w's current state as JSON.
func NewStatusHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		snaps := w.Registry.ListSnapshot()
		res := StatusResponse{
			Now:       int64(w.Clock.Now()),
			NodeCount: len(snaps),
			Nodes:     make([]NodeStatus, 0, len(snaps)),
			Pending:   w.Scheduler.Len(),
			Buckets:   w.Scheduler.BucketCount(),
			Config:    w.Config.Snapshot(),
		}
		for _, n := range snaps {
			s := n.Snapshot()
			res.Nodes = append(res.Nodes, NodeStatus{
				Name:   s.Name,
				MAC:    s.MAC,
				IP:     s.IP,
				Alive:  s.Alive,
				Busy:   s.Busy,
				Queued: s.Queued,
				X:      s.Position.X,
				Y:      s.Position.Y,
			})
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(rw).Encode(res); err != nil {
			http.Error(rw, fmt.Sprintf("error generating response: %v", err), http.StatusInternalServerError)
		}
	}
}

// ConfigUpdateResponse is returned by NewConfigUpdateHandler on success.
type ConfigUpdateResponse struct {
	Status string `json:"status"`
}

// NewConfigUpdateHandler accepts a JSON body of recognized options (spec.md
// §6) and merges them over cfg's current values.
func NewConfigUpdateHandler(log *slog.Logger, cfg *simconfig.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if err := cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		log.Info("configuration updated")

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(ConfigUpdateResponse{Status: "ok"}); err != nil {
			http.Error(w, fmt.Sprintf("error generating response: %v", err), http.StatusInternalServerError)
		}
	}
}

// Mux builds the full handler: /status, /metrics, /config.
func Mux(log *slog.Logger, w *world.World) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/status", NewStatusHandler(w))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/config", NewConfigUpdateHandler(log, w.Config))
	return mux
}
