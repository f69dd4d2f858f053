package warehouse

import "warehousesim/internal/sim/grid"

// Robot moves boxes from stacks to shelves, one box at a time.
// Invariant: carrying == (BoxCount() == 1).
type Robot struct {
	base
	facing   grid.Dir
	carrying bool
}

func (r *Robot) Kind() Kind       { return KindRobot }
func (r *Robot) Facing() grid.Dir { return r.facing }
func (r *Robot) Carrying() bool   { return r.carrying }

// Update decides the robot's action for this tick from the current neighborhood only.
func (r *Robot) Update(w *Warehouse) {
	pos, ok := r.Position()
	if !ok {
		return
	}
	neighbors := w.grid.Neighbors(pos)
	if r.carrying {
		r.deliver(w, pos, neighbors)
		return
	}
	r.search(w, pos, neighbors)
}

// search picks from the smallest adjacent stack, or wanders when none is in reach.
func (r *Robot) search(w *Warehouse, pos grid.Pos, neighbors []grid.Occupant) {
	var target *BoxStack
	for _, n := range neighbors {
		s, ok := n.(*BoxStack)
		if !ok {
			continue
		}
		if target == nil || s.box < target.box {
			target = s
		}
	}
	if target != nil {
		r.pick(w, target)
		return
	}
	if d := r.findDir(w, pos); d != grid.None {
		r.move(w, pos, d)
	}
}

// deliver hands the box to an adjacent shelf. Without one it keeps moving, and when it
// cannot move it consolidates onto the fullest adjacent stack that still has room.
func (r *Robot) deliver(w *Warehouse, pos grid.Pos, neighbors []grid.Occupant) {
	shelfSeen := false
	for _, n := range neighbors {
		if s, ok := n.(*Shelf); ok {
			shelfSeen = true
			r.put(w, s)
		}
	}
	if shelfSeen {
		return
	}

	// len(neighbors) counts occupied cells only, so this is "not boxed in", not "on an edge".
	if len(neighbors) < 8 {
		if d := r.findDir(w, pos); d != grid.None {
			r.move(w, pos, d)
			return
		}
	}

	var target *BoxStack
	for _, n := range neighbors {
		s, ok := n.(*BoxStack)
		if !ok || s.box >= w.cfg.MaxStack {
			continue
		}
		if target == nil || s.box > target.box {
			target = s
		}
	}
	if target != nil {
		r.put(w, target)
		return
	}
	w.record(Event{Type: EventStuck, Entity: r.id, Pos: pos})
}

// pick takes one box from s. A stack that is already empty is cleared away without a transfer.
func (r *Robot) pick(w *Warehouse, s *BoxStack) {
	if r.carrying || r.box != 0 {
		r.carrying = r.box == 1
		return
	}
	at, _ := s.Position()
	if s.box > 0 {
		s.box--
		r.box = 1
		r.carrying = true
		w.record(Event{Type: EventPick, Entity: r.id, Target: s.id, Pos: at})
	}
	if s.box <= 0 {
		w.grid.Remove(s)
		w.record(Event{Type: EventDepleted, Entity: s.id, Pos: at})
	}
}

// put drops the carried box onto a shelf or stack with room left.
func (r *Robot) put(w *Warehouse, target Entity) bool {
	if !r.carrying || r.box != 1 {
		r.carrying = r.box == 1
		return false
	}
	var dst *base
	switch t := target.(type) {
	case *Shelf:
		dst = &t.base
	case *BoxStack:
		dst = &t.base
	default:
		return false
	}
	if dst.box >= w.cfg.MaxStack {
		return false
	}
	dst.box++
	r.box = 0
	r.carrying = false

	at, _ := target.Position()
	typ := EventPutShelf
	if target.Kind() == KindBoxStack {
		typ = EventPutStack
	}
	w.record(Event{Type: typ, Entity: r.id, Target: target.ID(), Pos: at})
	return true
}

// findDir returns the first open heading, trying the current facing and then turning
// clockwise, or grid.None if all four are blocked.
func (r *Robot) findDir(w *Warehouse, pos grid.Pos) grid.Dir {
	d := r.facing
	for i := 0; i < 4; i++ {
		if w.grid.IsEmpty(pos.Add(d.Offset())) {
			return d
		}
		d = d.Clockwise()
	}
	return grid.None
}

// move steps one cell along d. The target must already be known to be free.
func (r *Robot) move(w *Warehouse, from grid.Pos, d grid.Dir) {
	to := from.Add(d.Offset())
	w.grid.Move(r, to)
	r.facing = d
	w.record(Event{Type: EventMove, Entity: r.id, Pos: to, Dir: d.String()})
}
