package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"warehousesim/internal/persistence/r2s3"
	"warehousesim/internal/sim/warehouse"
	"warehousesim/internal/transport/httpapi"
	"warehousesim/internal/transport/observer"
)

// adminServer serves the local-only endpoints. They never mutate the simulation.
type adminServer struct {
	api    *httpapi.Server
	rt     *runRuntime
	hub    *observer.Hub
	idx    runtimeIndex
	mirror *r2s3.Mirror
	logger *log.Logger
}

type stateResponse struct {
	RunID       string           `json:"run_id"`
	Tick        uint64           `json:"tick"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	Totals      warehouse.Totals `json:"totals"`
	AllShelved  bool             `json:"all_shelved"`
	LastStepMS  float64          `json:"last_step_ms"`
	LastDigest  string           `json:"last_digest,omitempty"`
	Facade      httpapi.Stats    `json:"facade"`
	ObserverSub int              `json:"observer_sessions"`
}

func (a *adminServer) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)
	mux.HandleFunc("/admin/v1/state", a.handleState)
	mux.HandleFunc("/admin/v1/snapshot", a.handleSnapshot)

	obsSrv := observer.NewServer(a.hub, a.api, a.logger)
	mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	return mux
}

func (a *adminServer) handleState(rw http.ResponseWriter, r *http.Request) {
	if !observer.IsLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	var resp stateResponse
	ok := a.api.With(func(w *warehouse.Warehouse) {
		cfg := w.Config()
		resp = stateResponse{
			RunID:      w.RunID(),
			Tick:       w.CurrentTick(),
			Width:      cfg.Width,
			Height:     cfg.Height,
			Totals:     w.Totals(),
			AllShelved: w.AllShelved(),
			LastStepMS: w.LastStepTime(),
			LastDigest: w.LastDigest(),
		}
	})
	rw.Header().Set("Content-Type", "application/json")
	if !ok {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "code": "E_NOT_INITIALIZED"})
		return
	}
	resp.Facade = a.api.Stats()
	resp.ObserverSub = a.hub.Sessions()
	_ = json.NewEncoder(rw).Encode(resp)
}

func (a *adminServer) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !observer.IsLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	var (
		path string
		tick uint64
		err  error
	)
	ok := a.api.With(func(w *warehouse.Warehouse) {
		snap := w.ExportSnapshot()
		tick = snap.Header.Tick
		path, err = a.rt.save(snap)
	})
	rw.Header().Set("Content-Type", "application/json")
	switch {
	case !ok:
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": "no run yet"})
	case err != nil:
		rw.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
	default:
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick, "path": path})
	}
}

func (a *adminServer) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	a.api.With(func(w *warehouse.Warehouse) {
		run := w.RunID()
		t := w.Totals()

		fmt.Fprintf(rw, "# HELP warehousesim_tick Current run tick.\n")
		fmt.Fprintf(rw, "# TYPE warehousesim_tick gauge\n")
		fmt.Fprintf(rw, "warehousesim_tick{run=%q} %d\n", run, w.CurrentTick())

		fmt.Fprintf(rw, "# HELP warehousesim_boxes Boxes by location.\n")
		fmt.Fprintf(rw, "# TYPE warehousesim_boxes gauge\n")
		fmt.Fprintf(rw, "warehousesim_boxes{run=%q,where=%q} %d\n", run, "stacks", t.OnStacks)
		fmt.Fprintf(rw, "warehousesim_boxes{run=%q,where=%q} %d\n", run, "shelves", t.OnShelves)
		fmt.Fprintf(rw, "warehousesim_boxes{run=%q,where=%q} %d\n", run, "carried", t.Carried)

		fmt.Fprintf(rw, "# HELP warehousesim_stacks Box stacks still on the floor.\n")
		fmt.Fprintf(rw, "# TYPE warehousesim_stacks gauge\n")
		fmt.Fprintf(rw, "warehousesim_stacks{run=%q} %d\n", run, t.Stacks)

		fmt.Fprintf(rw, "# HELP warehousesim_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE warehousesim_step_ms gauge\n")
		fmt.Fprintf(rw, "warehousesim_step_ms{run=%q} %.3f\n", run, w.LastStepTime())
	})

	st := a.api.Stats()
	fmt.Fprintf(rw, "# HELP warehousesim_http_requests_total Facade requests by outcome.\n")
	fmt.Fprintf(rw, "# TYPE warehousesim_http_requests_total counter\n")
	fmt.Fprintf(rw, "warehousesim_http_requests_total{outcome=%q} %d\n", "all", st.Requests)
	fmt.Fprintf(rw, "warehousesim_http_requests_total{outcome=%q} %d\n", "step", st.Steps)
	fmt.Fprintf(rw, "warehousesim_http_requests_total{outcome=%q} %d\n", "error", st.Failures)

	fmt.Fprintf(rw, "# HELP warehousesim_observer_sessions Connected observer sessions.\n")
	fmt.Fprintf(rw, "# TYPE warehousesim_observer_sessions gauge\n")
	fmt.Fprintf(rw, "warehousesim_observer_sessions %d\n", a.hub.Sessions())

	if a.idx != nil {
		is := a.idx.Stats()
		fmt.Fprintf(rw, "# HELP warehousesim_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE warehousesim_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "warehousesim_index_queue_depth %d\n", is.QueueDepth)
		fmt.Fprintf(rw, "# HELP warehousesim_index_dropped_total Index records dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE warehousesim_index_dropped_total counter\n")
		fmt.Fprintf(rw, "warehousesim_index_dropped_total{kind=%q} %d\n", "run", is.DropRunTotal)
		fmt.Fprintf(rw, "warehousesim_index_dropped_total{kind=%q} %d\n", "tick", is.DropTickTotal)
		fmt.Fprintf(rw, "warehousesim_index_dropped_total{kind=%q} %d\n", "audit", is.DropAuditTotal)
		fmt.Fprintf(rw, "warehousesim_index_dropped_total{kind=%q} %d\n", "snapshot", is.DropSnapshotTotal)
		fmt.Fprintf(rw, "warehousesim_index_dropped_total{kind=%q} %d\n", "archive", is.DropArchiveTotal)
	}

	writeMirrorMetrics(rw, a.mirror)
}

func writeMirrorMetrics(rw http.ResponseWriter, m *r2s3.Mirror) {
	if m == nil {
		return
	}
	s := m.Stats()
	fmt.Fprintf(rw, "# HELP warehousesim_mirror_queue_depth Current mirror queue depth.\n")
	fmt.Fprintf(rw, "# TYPE warehousesim_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "warehousesim_mirror_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP warehousesim_mirror_files_total Mirror files by outcome.\n")
	fmt.Fprintf(rw, "# TYPE warehousesim_mirror_files_total counter\n")
	fmt.Fprintf(rw, "warehousesim_mirror_files_total{outcome=%q} %d\n", "enqueued", s.EnqueuedTotal)
	fmt.Fprintf(rw, "warehousesim_mirror_files_total{outcome=%q} %d\n", "dropped", s.DroppedTotal)
	fmt.Fprintf(rw, "warehousesim_mirror_files_total{outcome=%q} %d\n", "uploaded", s.UploadedTotal)
	fmt.Fprintf(rw, "warehousesim_mirror_files_total{outcome=%q} %d\n", "failed", s.FailedTotal)

	fmt.Fprintf(rw, "# HELP warehousesim_mirror_last_success_unix Unix time of the last successful upload.\n")
	fmt.Fprintf(rw, "# TYPE warehousesim_mirror_last_success_unix gauge\n")
	fmt.Fprintf(rw, "warehousesim_mirror_last_success_unix %d\n", s.LastSuccessUnix)
}
