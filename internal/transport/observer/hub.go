package observer

import (
	"encoding/json"
	"sync"

	"warehousesim/internal/observerproto"
	"warehousesim/internal/protocol"
	"warehousesim/internal/sim/encoding"
	"warehousesim/internal/sim/warehouse"
)

// FrameFromWarehouse builds the frame for the warehouse's current state. The caller must
// hold whatever lock guards w.
func FrameFromWarehouse(w *warehouse.Warehouse) observerproto.FrameMsg {
	cfg := w.Config()
	t := w.Totals()
	msg := observerproto.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: observerproto.Version,
		RunID:           cfg.RunID,
		Tick:            w.CurrentTick(),
		Width:           cfg.Width,
		Height:          cfg.Height,
		Cells:           w.CurrentFrame().Flatten(),
		Totals: observerproto.Totals{
			OnStacks:  t.OnStacks,
			OnShelves: t.OnShelves,
			Carried:   t.Carried,
			Stacks:    t.Stacks,
		},
	}
	for _, ev := range w.LastEvents() {
		msg.Events = append(msg.Events, observerproto.EventInfo{
			Type:   string(ev.Type),
			Entity: ev.Entity,
			Target: ev.Target,
			X:      ev.Pos.X,
			Y:      ev.Pos.Y,
			Dir:    ev.Dir,
		})
	}
	return msg
}

// BootstrapFromWarehouse describes w for a viewer that is about to subscribe.
func BootstrapFromWarehouse(w *warehouse.Warehouse) observerproto.BootstrapResponse {
	cfg := w.Config()
	enc := cfg.Encoding
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		RunID:           cfg.RunID,
		Tick:            w.CurrentTick(),
		GridParams: observerproto.GridParams{
			Width:    cfg.Width,
			Height:   cfg.Height,
			Robots:   len(w.Robots()),
			Boxes:    len(w.Stacks()),
			Shelves:  len(w.Shelves()),
			MaxStack: cfg.MaxStack,
			Seed:     cfg.Seed,
		},
		Encoding: observerproto.Encoding{
			Robot:    enc.Robot,
			RobotBox: enc.RobotBox,
			Box:      enc.Box,
			Shelf:    enc.Shelf,
			ShelfBox: enc.ShelfBox,
		},
	}
}

type session struct {
	out     chan []byte
	every   int
	events  bool
	compact bool
}

type variant struct{ events, compact bool }

// Hub fans frames out to observer sessions. Publish never blocks: a slow session only
// ever holds the newest frame.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session
	latest   *observerproto.FrameMsg
}

func NewHub() *Hub {
	return &Hub{sessions: map[string]*session{}}
}

func (h *Hub) Join(id string, sub observerproto.SubscribeMsg) <-chan []byte {
	s := &session{out: make(chan []byte, 8)}
	applySubscribe(s, sub)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[id] = s
	if h.latest != nil {
		if b, err := encodeFor(s, *h.latest); err == nil {
			sendLatest(s.out, b)
		}
	}
	return s.out
}

func (h *Hub) Update(id string, sub observerproto.SubscribeMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[id]; ok {
		applySubscribe(s, sub)
	}
}

func (h *Hub) Leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) Publish(msg observerproto.FrameMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &msg
	if len(h.sessions) == 0 {
		return
	}

	encoded := map[variant][]byte{}
	for _, s := range h.sessions {
		if s.every > 1 && msg.Tick%uint64(s.every) != 0 {
			continue
		}
		key := variant{s.events, s.compact}
		b, ok := encoded[key]
		if !ok {
			b, _ = encodeFor(s, msg)
			encoded[key] = b
		}
		if b != nil {
			sendLatest(s.out, b)
		}
	}
}

func applySubscribe(s *session, sub observerproto.SubscribeMsg) {
	every := sub.EveryTicks
	if every <= 0 {
		every = 1
	}
	if every > 10000 {
		every = 10000
	}
	s.every = every
	s.events = sub.IncludeEvents
	s.compact = sub.CompactCells
}

func encodeFor(s *session, msg observerproto.FrameMsg) ([]byte, error) {
	if !s.events {
		msg.Events = nil
	}
	if s.compact {
		// Frames that cannot be packed go out as plain cells.
		if rle, ok := encoding.EncodeCells(msg.Cells); ok {
			msg.CellsRLE = rle
			msg.Cells = nil
		}
	}
	return json.Marshal(msg)
}

// sendLatest delivers b, replacing the oldest queued frame when ch is full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
