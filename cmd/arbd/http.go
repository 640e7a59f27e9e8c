package main

import (
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/config"
	"github.com/phenomenon0/sportsarb/pkg/metrics"
	"github.com/phenomenon0/sportsarb/pkg/paper"
	"github.com/phenomenon0/sportsarb/pkg/scheduler"
	"github.com/phenomenon0/sportsarb/pkg/store"
	"github.com/phenomenon0/sportsarb/pkg/stream"
)

// app carries the HTTP surface's collaborators.
type app struct {
	cfg    *config.Config
	st     *store.Store
	hub    *stream.Hub
	met    *metrics.Metrics
	sim    *paper.Simulator
	health func() map[string]scheduler.ConnectorHealth
}

func newApp(cfg *config.Config, st *store.Store, hub *stream.Hub, met *metrics.Metrics, sched *scheduler.Scheduler) *app {
	return &app{cfg: cfg, st: st, hub: hub, met: met, sim: paper.New(st), health: sched.Health}
}

func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"data_source": a.cfg.ActiveDataSource(),
			"connectors":  a.health(),
		})
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		events, err := a.st.ListEvents(r.Context(), 500)
		if err != nil {
			a.httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(events))
	})

	mux.HandleFunc("/bindings", func(w http.ResponseWriter, r *http.Request) {
		status := canonical.BindingStatus(r.URL.Query().Get("status"))
		bindings, err := a.st.ListBindings(r.Context(), status, 500)
		if err != nil {
			a.httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(bindings))
	})

	mux.HandleFunc("/orderbooks", func(w http.ResponseWriter, r *http.Request) {
		tops, err := a.st.RecentTops(r.Context(), 200, !a.cfg.EnableDemoFallback)
		if err != nil {
			a.httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(tops))
	})

	mux.HandleFunc("/signals", func(w http.ResponseWriter, r *http.Request) {
		signals, err := a.st.ListOpenSignalsWithEvents(r.Context(), 100, !a.cfg.EnableDemoFallback)
		if err != nil {
			a.httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(signals))
	})

	// Review queue and the manual mapping actions.
	mux.HandleFunc("/mappings", func(w http.ResponseWriter, r *http.Request) {
		status := canonical.StatusReview
		if q := r.URL.Query().Get("status"); q != "" {
			status = canonical.BindingStatus(q)
		}
		bindings, err := a.st.ListBindings(r.Context(), status, 500)
		if err != nil {
			a.httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(bindings))
	})
	mux.HandleFunc("/mappings/approve", a.mappingAction(canonical.StatusAuto, 1))
	mux.HandleFunc("/mappings/reject", a.mappingAction(canonical.StatusRejected, 0))
	mux.HandleFunc("/mappings/override", a.mappingAction(canonical.StatusOverride, 1))

	mux.HandleFunc("/paper/simulate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			SignalID string   `json:"signal_id"`
			Size     *float64 `json:"size"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
			return
		}
		pos, err := a.sim.SimulateSignal(r.Context(), req.SignalID, req.Size, time.Now().UTC())
		if err != nil {
			a.httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pos)
	})

	mux.HandleFunc("/paper/close", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			PositionID string `json:"position_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
			return
		}
		pos, err := a.sim.ClosePosition(r.Context(), req.PositionID, time.Now().UTC())
		if err != nil {
			a.httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pos)
	})

	mux.HandleFunc("/paper/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := a.st.Stats(r.Context())
		if err != nil {
			a.httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		latest := a.hub.Latest()
		if latest == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot yet"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(latest)
	})

	mux.HandleFunc("/ws", a.hub.ServeWS)
	mux.Handle("/metrics", promhttp.HandlerFor(a.met.Registry(), promhttp.HandlerOpts{}))

	return mux
}

// mappingAction updates both bindings of a pair to the given status.
func (a *app) mappingAction(status canonical.BindingStatus, confidence float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			PolyMarketID   string `json:"poly_market_id"`
			KalshiMarketID string `json:"kalshi_market_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PolyMarketID == "" || req.KalshiMarketID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "poly_market_id and kalshi_market_id required"})
			return
		}
		if err := a.st.SetBindingStatus(r.Context(), canonical.VenuePoly, req.PolyMarketID, status, confidence); err != nil {
			a.httpError(w, err)
			return
		}
		if err := a.st.SetBindingStatus(r.Context(), canonical.VenueKalshi, req.KalshiMarketID, status, confidence); err != nil {
			a.httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
	}
}

// httpError maps store sentinels onto 404/400 and everything else onto 500.
func (a *app) httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// orEmpty keeps list endpoints returning [] instead of null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
