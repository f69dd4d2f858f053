package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"warehousesim/internal/observerproto"
	plog "warehousesim/internal/persistence/log"
	"warehousesim/internal/protocol"
	"warehousesim/internal/sim/tuning"
	"warehousesim/internal/sim/warehouse"
	"warehousesim/internal/transport/observer"
)

const maxBodyBytes = 1 << 20

type AuditLogger interface {
	WriteAudit(entry plog.AuditEntry) error
}

type Options struct {
	// Tuning supplies everything the init request does not: stack limits, encoding and
	// snapshot cadence.
	Tuning tuning.Tuning
	// Seed is used when the init request carries no SEED.
	Seed int64

	// NewRunID defaults to a random UUID.
	NewRunID func() string

	// OnInit runs once, under the server lock, right after the warehouse is built.
	OnInit func(w *warehouse.Warehouse)
	// OnStep runs under the server lock after every tick.
	OnStep func(w *warehouse.Warehouse)

	Audit AuditLogger
}

// Server is the HTTP facade. It owns one warehouse, created by the first valid POST and
// kept until the process exits. Every POST advances it by one tick.
type Server struct {
	log  *log.Logger
	opts Options

	mu  sync.Mutex
	sim *warehouse.Warehouse

	requests atomic.Uint64
	steps    atomic.Uint64
	failures atomic.Uint64
}

func NewServer(opts Options, logger *log.Logger) *Server {
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return uuid.NewString() }
	}
	return &Server{log: logger, opts: opts}
}

// Adopt installs an already-built warehouse, e.g. one resumed from a snapshot.
func (s *Server) Adopt(w *warehouse.Warehouse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sim = w
	if s.opts.OnInit != nil {
		s.opts.OnInit(w)
	}
}

// With runs fn under the server lock. ok is false when no warehouse exists yet.
func (s *Server) With(fn func(w *warehouse.Warehouse)) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sim == nil {
		return false
	}
	fn(s.sim)
	return true
}

// Bootstrap implements observer.Source.
func (s *Server) Bootstrap() (resp observerproto.BootstrapResponse, ok bool) {
	ok = s.With(func(w *warehouse.Warehouse) {
		resp = observer.BootstrapFromWarehouse(w)
	})
	return resp, ok
}

type Stats struct {
	Requests uint64 `json:"requests"`
	Steps    uint64 `json:"steps"`
	Failures uint64 `json:"failures"`
}

func (s *Server) Stats() Stats {
	return Stats{
		Requests: s.requests.Load(),
		Steps:    s.steps.Load(),
		Failures: s.failures.Load(),
	}
}

func (s *Server) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	switch r.Method {
	case http.MethodGet:
		s.handleGet(rw, r)
	case http.MethodPost:
		s.handlePost(rw, r)
	default:
		rw.Header().Set("Allow", "GET, POST")
		s.writeError(rw, r, http.StatusMethodNotAllowed, protocol.ErrMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGet(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/html")
	rw.WriteHeader(http.StatusOK)
	fmt.Fprintf(rw, "GET request for %s", r.URL.RequestURI())
	s.audit(r, http.StatusOK, "", "", 0)
}

func (s *Server) handlePost(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(rw, r, http.StatusBadRequest, protocol.ErrProtoBadRequest, "read body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim == nil {
		w, status, code, err := s.build(body)
		if err != nil {
			s.writeError(rw, r, status, code, err.Error())
			return
		}
		s.sim = w
		if s.opts.OnInit != nil {
			s.opts.OnInit(w)
		}
		if s.log != nil {
			cfg := w.Config()
			s.log.Printf("run %s created grid=%dx%d robots=%d boxes=%d shelves=%d seed=%d",
				cfg.RunID, cfg.Width, cfg.Height, cfg.Robots, cfg.Boxes, cfg.Shelves, cfg.Seed)
		}
	}

	tick := s.sim.Step()
	s.steps.Add(1)
	if s.opts.OnStep != nil {
		s.opts.OnStep(s.sim)
	}

	resp := Positions(s.sim)
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(resp)
	s.audit(r, http.StatusOK, "", s.sim.RunID(), tick)
}

func (s *Server) build(body []byte) (*warehouse.Warehouse, int, string, error) {
	req, err := protocol.DecodeInit(body)
	if err != nil {
		return nil, http.StatusBadRequest, protocol.ErrProtoBadRequest, err
	}
	seed := s.opts.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	cfg := s.opts.Tuning.Config(seed)
	cfg.RunID = s.opts.NewRunID()
	cfg.Width = req.MapW
	cfg.Height = req.MapH
	cfg.Robots = req.RobotNum
	cfg.Boxes = req.BoxNum
	cfg.Shelves = 0

	w, err := warehouse.New(cfg)
	switch {
	case err == nil:
		return w, http.StatusOK, "", nil
	case errors.Is(err, warehouse.ErrCapacityExhausted):
		return nil, http.StatusUnprocessableEntity, protocol.ErrCapacityExhausted, err
	case errors.Is(err, warehouse.ErrBadConfig):
		return nil, http.StatusBadRequest, protocol.ErrProtoBadRequest, err
	default:
		return nil, http.StatusInternalServerError, protocol.ErrInternal, err
	}
}

// Positions lists every live entity: robots, then box stacks, then shelves. Removed
// stacks are skipped. y is the index of a stack's top box and 0 for everything else.
func Positions(w *warehouse.Warehouse) protocol.StepResponse {
	resp := protocol.StepResponse{Data: make([]protocol.Position, 0, len(w.Entities()))}
	for _, r := range w.Robots() {
		if p, ok := r.Position(); ok {
			resp.Data = append(resp.Data, protocol.Position{X: p.X, Z: p.Y})
		}
	}
	for _, st := range w.Stacks() {
		p, ok := st.Position()
		if !ok {
			continue
		}
		y := st.BoxCount() - 1
		if y < 0 {
			y = 0
		}
		resp.Data = append(resp.Data, protocol.Position{X: p.X, Z: p.Y, Y: y})
	}
	for _, sh := range w.Shelves() {
		if p, ok := sh.Position(); ok {
			resp.Data = append(resp.Data, protocol.Position{X: p.X, Z: p.Y})
		}
	}
	return resp
}

func (s *Server) writeError(rw http.ResponseWriter, r *http.Request, status int, code, msg string) {
	s.failures.Add(1)
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(protocol.ErrorResponse{Code: code, Message: msg})
	if s.log != nil {
		s.log.Printf("%s %s -> %d %s: %s", r.Method, r.URL.Path, status, code, msg)
	}
	s.audit(r, status, code, "", 0)
}

func (s *Server) audit(r *http.Request, status int, code, runID string, tick uint64) {
	if s.opts.Audit == nil {
		return
	}
	_ = s.opts.Audit.WriteAudit(plog.AuditEntry{
		Time:   time.Now().UTC(),
		RunID:  runID,
		Remote: r.RemoteAddr,
		Method: r.Method,
		Path:   r.URL.Path,
		Status: status,
		Code:   code,
		Tick:   tick,
	})
}
