package warehouse

import (
	"fmt"

	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/grid"
)

func (w *Warehouse) exportEntities() []snapshot.EntityV1 {
	out := make([]snapshot.EntityV1, 0, len(w.entities))
	for _, e := range w.entities {
		pos, placed := e.Position()
		ev := snapshot.EntityV1{
			ID:     e.ID(),
			Kind:   e.Kind().String(),
			Placed: placed,
			Pos:    [2]int{pos.X, pos.Y},
			Box:    e.BoxCount(),
		}
		if r, ok := e.(*Robot); ok {
			ev.Facing = r.facing.String()
			ev.Carrying = r.carrying
		}
		out = append(out, ev)
	}
	return out
}

// ExportSnapshot captures everything needed to resume the run, including frame history.
func (w *Warehouse) ExportSnapshot() snapshot.SnapshotV1 {
	enc := w.cfg.Encoding
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			RunID:   w.cfg.RunID,
			Tick:    w.tick,
		},
		Width:           w.cfg.Width,
		Height:          w.cfg.Height,
		Robots:          len(w.robots),
		Boxes:           len(w.stacks),
		Shelves:         len(w.shelves),
		MaxStack:        w.cfg.MaxStack,
		BoxInitialCount: w.cfg.BoxInitialCount,
		Seed:            w.cfg.Seed,
		Encoding: snapshot.EncodingV1{
			Robot:    enc.Robot,
			RobotBox: enc.RobotBox,
			Box:      enc.Box,
			Shelf:    enc.Shelf,
			ShelfBox: enc.ShelfBox,
		},
		Initial:  append([]snapshot.EntityV1(nil), w.initial...),
		Entities: w.exportEntities(),
		Finished: w.AllShelved(),
	}
	snap.Frames = make([]snapshot.FrameV1, 0, len(w.frames))
	for i, f := range w.frames {
		snap.Frames = append(snap.Frames, snapshot.FrameV1{Tick: uint64(i), Cells: f.Flatten()})
	}
	return snap
}

// ImportSnapshot rebuilds a warehouse from a snapshot. Entity ids, removed stacks, robot
// headings, the tick counter and the frame history are all restored.
func ImportSnapshot(snap snapshot.SnapshotV1) (*Warehouse, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	cfg := ConfigOf(snap)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	cfg.Shelves = snap.Shelves
	w := newEmpty(cfg)

	for i, ev := range snap.Entities {
		if ev.ID != i {
			return nil, fmt.Errorf("snapshot entity %d has id %d", i, ev.ID)
		}
		var e Entity
		switch ev.Kind {
		case KindRobot.String():
			if err := checkRobotBoxes(i, ev.Box); err != nil {
				return nil, err
			}
			facing := grid.ParseDir(ev.Facing)
			if facing == grid.None {
				facing = grid.Up
			}
			e = w.addRobot(facing, ev.Box)
		case KindBoxStack.String():
			if err := checkPileBoxes("stack", i, ev.Box, cfg.MaxStack); err != nil {
				return nil, err
			}
			e = w.addStack(ev.Box)
		case KindShelf.String():
			if err := checkPileBoxes("shelf", i, ev.Box, cfg.MaxStack); err != nil {
				return nil, err
			}
			e = w.addShelf(ev.Box)
		default:
			return nil, fmt.Errorf("snapshot entity %d: unknown kind %q", i, ev.Kind)
		}
		if !ev.Placed {
			continue
		}
		if err := w.grid.Place(e, grid.Pos{X: ev.Pos[0], Y: ev.Pos[1]}); err != nil {
			return nil, fmt.Errorf("restore %s %d: %w", ev.Kind, ev.ID, err)
		}
	}
	if len(w.robots) != snap.Robots || len(w.stacks) != snap.Boxes || len(w.shelves) != snap.Shelves {
		return nil, fmt.Errorf("snapshot counts do not match its entities")
	}

	w.initial = append([]snapshot.EntityV1(nil), snap.Initial...)
	if len(w.initial) == 0 {
		w.initial = w.exportEntities()
	}
	w.tick = snap.Header.Tick
	for _, f := range snap.Frames {
		w.frames = append(w.frames, Unflatten(f.Cells, cfg.Width, cfg.Height))
	}
	return w, nil
}

// ConfigOf recovers the run parameters stored in snap.
func ConfigOf(snap snapshot.SnapshotV1) Config {
	return Config{
		RunID:           snap.Header.RunID,
		Width:           snap.Width,
		Height:          snap.Height,
		Robots:          snap.Robots,
		Boxes:           snap.Boxes,
		Shelves:         snap.Shelves,
		MaxStack:        snap.MaxStack,
		BoxInitialCount: snap.BoxInitialCount,
		Seed:            snap.Seed,
		Encoding: Encoding{
			Robot:    snap.Encoding.Robot,
			RobotBox: snap.Encoding.RobotBox,
			Box:      snap.Encoding.Box,
			Shelf:    snap.Encoding.Shelf,
			ShelfBox: snap.Encoding.ShelfBox,
		},
	}
}

// Rewind rebuilds snap's run from its initial layout and steps it until toTick ticks have
// run. The result is what the live run looked like at that tick.
func Rewind(snap snapshot.SnapshotV1, toTick uint64) (*Warehouse, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if len(snap.Initial) == 0 {
		return nil, fmt.Errorf("snapshot has no initial layout")
	}
	w, err := NewFromLayout(ConfigOf(snap), InitialLayoutOf(snap))
	if err != nil {
		return nil, err
	}
	for w.tick < toTick {
		w.Step()
	}
	return w, nil
}

// InitialLayout rebuilds the starting positions recorded when the run was created.
// Replaying from it reproduces the run tick by tick.
func (w *Warehouse) InitialLayout() Layout {
	return layoutFromEntities(w.initial)
}

func layoutFromEntities(ents []snapshot.EntityV1) Layout {
	var l Layout
	for _, ev := range ents {
		pos := grid.Pos{X: ev.Pos[0], Y: ev.Pos[1]}
		switch ev.Kind {
		case KindRobot.String():
			l.Robots = append(l.Robots, RobotSpec{Pos: pos, Facing: grid.ParseDir(ev.Facing), Boxes: ev.Box})
		case KindBoxStack.String():
			l.Stacks = append(l.Stacks, StackSpec{Pos: pos, Boxes: ev.Box, Removed: !ev.Placed})
		case KindShelf.String():
			l.Shelves = append(l.Shelves, StackSpec{Pos: pos, Boxes: ev.Box})
		}
	}
	return l
}

// InitialLayoutOf is InitialLayout for a snapshot that has not been imported.
func InitialLayoutOf(snap snapshot.SnapshotV1) Layout {
	return layoutFromEntities(snap.Initial)
}
