package warehouse

import (
	"fmt"

	"warehousesim/internal/sim/grid"
)

type EventType string

const (
	EventMove     EventType = "MOVE"
	EventPick     EventType = "PICK"
	EventPutShelf EventType = "PUT_SHELF"
	EventPutStack EventType = "PUT_STACK"
	EventDepleted EventType = "DEPLETED"
	EventStuck    EventType = "STUCK"
)

// Event is one observable mutation made during a robot's turn.
type Event struct {
	Type   EventType `json:"type"`
	Entity int       `json:"entity"`
	Target int       `json:"target,omitempty"`
	Pos    grid.Pos  `json:"pos"`
	Dir    string    `json:"dir,omitempty"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	RunID  string  `json:"run_id"`
	Tick   uint64  `json:"tick"`
	Events []Event `json:"events,omitempty"`
	Digest string  `json:"digest"`
}

func (w *Warehouse) record(ev Event) {
	w.pending = append(w.pending, ev)
}

func entityLabel(e Entity) string {
	pos, ok := e.Position()
	if !ok {
		return fmt.Sprintf("%s#%d(removed)", e.Kind(), e.ID())
	}
	return fmt.Sprintf("%s#%d%s box=%d", e.Kind(), e.ID(), pos, e.BoxCount())
}

func (r *Robot) String() string    { return entityLabel(r) }
func (s *BoxStack) String() string { return entityLabel(s) }
func (s *Shelf) String() string    { return entityLabel(s) }
