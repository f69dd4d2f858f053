package warehouse

import (
	"context"
	"errors"
	"testing"

	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/grid"
)

func mustLayout(t *testing.T, w, h int, l Layout) *Warehouse {
	t.Helper()
	wh, err := NewFromLayout(Config{RunID: "test", Width: w, Height: h}, l)
	if err != nil {
		t.Fatalf("NewFromLayout: %v", err)
	}
	return wh
}

func pos(t *testing.T, e Entity) grid.Pos {
	t.Helper()
	p, ok := e.Position()
	if !ok {
		t.Fatalf("%v is not on the grid", e)
	}
	return p
}

func TestPickFromAdjacentStack(t *testing.T) {
	w := mustLayout(t, 5, 5, Layout{
		Robots: []RobotSpec{{Pos: grid.Pos{X: 0, Y: 0}, Facing: grid.Up}},
		Stacks: []StackSpec{{Pos: grid.Pos{X: 1, Y: 0}, Boxes: 1}},
	})
	w.Step()

	r := w.Robots()[0]
	if !r.Carrying() || r.BoxCount() != 1 {
		t.Fatalf("robot should carry one box, got carrying=%v box=%d", r.Carrying(), r.BoxCount())
	}
	if _, ok := w.Stacks()[0].Position(); ok {
		t.Fatalf("depleted stack should be removed")
	}
	if w.Grid().At(grid.Pos{X: 1, Y: 0}) != nil {
		t.Fatalf("stack cell should be free")
	}
	if got := pos(t, r); got != (grid.Pos{X: 0, Y: 0}) {
		t.Fatalf("robot should not move while picking, at %v", got)
	}
	evs := w.LastEvents()
	if len(evs) != 2 || evs[0].Type != EventPick || evs[1].Type != EventDepleted {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestPickChoosesSmallestStack(t *testing.T) {
	w := mustLayout(t, 5, 5, Layout{
		Robots: []RobotSpec{{Pos: grid.Pos{X: 2, Y: 2}}},
		Stacks: []StackSpec{
			{Pos: grid.Pos{X: 1, Y: 1}, Boxes: 4},
			{Pos: grid.Pos{X: 3, Y: 3}, Boxes: 2},
			{Pos: grid.Pos{X: 3, Y: 1}, Boxes: 3},
		},
	})
	w.Step()
	if got := w.Stacks()[1].BoxCount(); got != 1 {
		t.Fatalf("smallest stack should lose a box, has %d", got)
	}
	if w.Stacks()[0].BoxCount() != 4 || w.Stacks()[2].BoxCount() != 3 {
		t.Fatalf("other stacks should be untouched")
	}
}

func TestDeliverToShelf(t *testing.T) {
	w := mustLayout(t, 5, 5, Layout{
		Robots:  []RobotSpec{{Pos: grid.Pos{X: 2, Y: 2}, Boxes: 1}},
		Shelves: []StackSpec{{Pos: grid.Pos{X: 3, Y: 2}, Boxes: 2}},
	})
	w.Step()

	r := w.Robots()[0]
	if r.Carrying() || r.BoxCount() != 0 {
		t.Fatalf("robot should be empty, got carrying=%v box=%d", r.Carrying(), r.BoxCount())
	}
	if got := w.Shelves()[0].BoxCount(); got != 3 {
		t.Fatalf("shelf count: got %d want 3", got)
	}
}

func TestFullShelfEndsTurn(t *testing.T) {
	w := mustLayout(t, 5, 5, Layout{
		Robots:  []RobotSpec{{Pos: grid.Pos{X: 2, Y: 2}, Boxes: 1}},
		Shelves: []StackSpec{{Pos: grid.Pos{X: 3, Y: 2}, Boxes: 5}},
	})
	w.Step()
	r := w.Robots()[0]
	if !r.Carrying() || pos(t, r) != (grid.Pos{X: 2, Y: 2}) {
		t.Fatalf("robot next to a full shelf should keep its box and stay put")
	}
	if w.Shelves()[0].BoxCount() != 5 {
		t.Fatalf("full shelf must not grow")
	}
}

func TestBlockedRobotStays(t *testing.T) {
	w := mustLayout(t, 5, 5, Layout{
		Robots: []RobotSpec{
			{Pos: grid.Pos{X: 2, Y: 2}, Facing: grid.Left},
			{Pos: grid.Pos{X: 2, Y: 3}},
			{Pos: grid.Pos{X: 2, Y: 1}},
			{Pos: grid.Pos{X: 1, Y: 2}},
			{Pos: grid.Pos{X: 3, Y: 2}},
		},
	})
	w.Step()
	r := w.Robots()[0]
	if got := pos(t, r); got != (grid.Pos{X: 2, Y: 2}) {
		t.Fatalf("blocked robot moved to %v", got)
	}
	if r.Facing() != grid.Left {
		t.Fatalf("blocked robot turned to %v", r.Facing())
	}
}

func TestMoveTurnsClockwise(t *testing.T) {
	w := mustLayout(t, 3, 3, Layout{
		Robots: []RobotSpec{{Pos: grid.Pos{X: 0, Y: 0}, Facing: grid.Left}},
	})
	w.Step()
	r := w.Robots()[0]
	if got := pos(t, r); got != (grid.Pos{X: 0, Y: 1}) {
		t.Fatalf("robot should step up to (0,1), at %v", got)
	}
	if r.Facing() != grid.Up {
		t.Fatalf("facing: got %v want UP", r.Facing())
	}
	evs := w.LastEvents()
	if len(evs) != 1 || evs[0].Type != EventMove || evs[0].Dir != "UP" {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestCarryingRobotConsolidatesWhenBoxedIn(t *testing.T) {
	w := mustLayout(t, 3, 3, Layout{
		Robots: []RobotSpec{
			{Pos: grid.Pos{X: 1, Y: 1}, Boxes: 1},
			{Pos: grid.Pos{X: 0, Y: 1}},
			{Pos: grid.Pos{X: 2, Y: 1}},
			{Pos: grid.Pos{X: 0, Y: 2}},
			{Pos: grid.Pos{X: 1, Y: 2}},
			{Pos: grid.Pos{X: 2, Y: 2}},
		},
		Stacks: []StackSpec{
			{Pos: grid.Pos{X: 0, Y: 0}, Boxes: 2},
			{Pos: grid.Pos{X: 1, Y: 0}, Boxes: 4},
			{Pos: grid.Pos{X: 2, Y: 0}, Boxes: 5},
		},
	})
	w.Step()
	if w.Robots()[0].Carrying() {
		t.Fatalf("robot should have dropped its box")
	}
	// The other robots pick from the stacks later in the same tick, so check robot 0's event.
	evs := w.LastEvents()
	if len(evs) == 0 || evs[0].Type != EventPutStack || evs[0].Entity != 0 || evs[0].Target != w.Stacks()[1].ID() {
		t.Fatalf("fullest open stack should receive the box, events %+v", evs)
	}
}

func TestCarryingRobotStuck(t *testing.T) {
	var robots []RobotSpec
	robots = append(robots, RobotSpec{Pos: grid.Pos{X: 1, Y: 1}, Boxes: 1})
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			if x == 1 && y == 1 {
				continue
			}
			robots = append(robots, RobotSpec{Pos: grid.Pos{X: x, Y: y}})
		}
	}
	w := mustLayout(t, 3, 3, Layout{Robots: robots})
	w.Step()
	if !w.Robots()[0].Carrying() {
		t.Fatalf("stuck robot must keep its box")
	}
	if evs := w.LastEvents(); len(evs) != 1 || evs[0].Type != EventStuck || evs[0].Entity != 0 {
		t.Fatalf("expected one STUCK event, got %+v", evs)
	}
}

func TestDriveLegacyStopsAfterOneTick(t *testing.T) {
	w, err := New(Config{Width: 40, Height: 30, Robots: 5, Boxes: 25, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := Drive(context.Background(), w, 100, StopLegacy)
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if n != 1 || w.CurrentTick() != 1 || len(w.Frames()) != 1 {
		t.Fatalf("legacy stop should run exactly one tick, ran %d", n)
	}
}

func TestDriveRobotsGoneRunsToLimit(t *testing.T) {
	w, err := New(Config{Width: 10, Height: 10, Robots: 2, Boxes: 4, Seed: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := Drive(context.Background(), w, 25, StopWhenRobotsGone)
	if err != nil || n != 25 {
		t.Fatalf("Drive: n=%d err=%v", n, err)
	}
}

func TestDriveHonorsContext(t *testing.T) {
	w, err := New(Config{Width: 10, Height: 10, Robots: 2, Boxes: 4, Seed: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := Drive(ctx, w, 10, nil)
	if !errors.Is(err, context.Canceled) || n != 0 {
		t.Fatalf("expected immediate cancel, n=%d err=%v", n, err)
	}
}

func TestParseStopCheck(t *testing.T) {
	for _, name := range []string{"legacy", "robots", "shelved", ""} {
		if _, err := ParseStopCheck(name); err != nil {
			t.Fatalf("%q: %v", name, err)
		}
	}
	if _, err := ParseStopCheck("forever"); err == nil {
		t.Fatalf("expected error for unknown stop check")
	}
}

func TestNewCapacityExhausted(t *testing.T) {
	_, err := New(Config{Width: 2, Height: 2, Robots: 3, Boxes: 2, Seed: 1})
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("expected ErrCapacityExhausted, got %v", err)
	}
}

func TestNewDerivesShelves(t *testing.T) {
	w, err := New(Config{Width: 40, Height: 30, Robots: 5, Boxes: 25, Seed: 7})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(w.Robots()) != 5 || len(w.Stacks()) != 25 || len(w.Shelves()) != 5 {
		t.Fatalf("counts: %d robots %d stacks %d shelves", len(w.Robots()), len(w.Stacks()), len(w.Shelves()))
	}
	if got := w.Grid().EmptyCount(); got != 40*30-35 {
		t.Fatalf("empty cells: %d", got)
	}
	for i, e := range w.Entities() {
		if e.ID() != i {
			t.Fatalf("entity %d has id %d", i, e.ID())
		}
	}
}

func TestInvariantsHoldOverLongRun(t *testing.T) {
	cfg := Config{Width: 12, Height: 10, Robots: 5, Boxes: 25, Seed: 11}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := w.Totals().All()
	if want != 25 {
		t.Fatalf("initial boxes: %d", want)
	}
	for i := 0; i < 300; i++ {
		w.Step()
		if got := w.Totals().All(); got != want {
			t.Fatalf("tick %d: box total %d want %d", i, got, want)
		}
		for _, e := range w.Entities() {
			p, ok := e.Position()
			if !ok {
				if e.Kind() != KindBoxStack {
					t.Fatalf("tick %d: %v left the grid", i, e)
				}
				continue
			}
			if !w.Grid().InBounds(p) || w.Grid().At(p) != grid.Occupant(e) {
				t.Fatalf("tick %d: %v not where the grid says", i, e)
			}
			if e.BoxCount() < 0 || e.BoxCount() > w.MaxStack() {
				t.Fatalf("tick %d: %v box count out of range", i, e)
			}
		}
		for _, r := range w.Robots() {
			if r.Carrying() != (r.BoxCount() == 1) {
				t.Fatalf("tick %d: %v carrying flag out of sync", i, r)
			}
		}
	}
}

func TestDeterministicForSeed(t *testing.T) {
	run := func() []string {
		w, err := New(Config{Width: 15, Height: 15, Robots: 4, Boxes: 12, Seed: 99})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		var out []string
		for i := 0; i < 60; i++ {
			w.Step()
			out = append(out, w.LastDigest())
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("digest diverged at tick %d", i)
		}
	}
}

func TestReplayFromInitialLayout(t *testing.T) {
	cfg := Config{RunID: "r", Width: 15, Height: 15, Robots: 4, Boxes: 12, Seed: 5}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	replay, err := NewFromLayout(cfg, w.InitialLayout())
	if err != nil {
		t.Fatalf("NewFromLayout: %v", err)
	}
	if w.StateDigest() != replay.StateDigest() {
		t.Fatalf("initial digests differ")
	}
	for i := 0; i < 40; i++ {
		w.Step()
		replay.Step()
		if w.LastDigest() != replay.LastDigest() {
			t.Fatalf("replay diverged at tick %d", i)
		}
	}
}

func TestExportImportResumes(t *testing.T) {
	w, err := New(Config{RunID: "resume", Width: 15, Height: 12, Robots: 4, Boxes: 12, Seed: 21})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 15; i++ {
		w.Step()
	}

	path := snapshot.Path(t.TempDir(), w.CurrentTick())
	if err := snapshot.WriteSnapshot(path, w.ExportSnapshot()); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	restored, err := ImportSnapshot(snap)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if restored.CurrentTick() != 15 || len(restored.Frames()) != 15 {
		t.Fatalf("restored tick=%d frames=%d", restored.CurrentTick(), len(restored.Frames()))
	}
	if restored.StateDigest() != w.StateDigest() {
		t.Fatalf("digest mismatch after import")
	}
	for i := 0; i < 30; i++ {
		w.Step()
		restored.Step()
		if w.LastDigest() != restored.LastDigest() {
			t.Fatalf("resumed run diverged at tick %d", w.CurrentTick())
		}
	}
}

func TestRewindMatchesLiveRun(t *testing.T) {
	w, err := New(Config{RunID: "rewind", Width: 12, Height: 12, Robots: 3, Boxes: 9, Seed: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var digests []string
	for i := 0; i < 25; i++ {
		w.Step()
		digests = append(digests, w.StateDigest())
	}
	snap := w.ExportSnapshot()

	back, err := Rewind(snap, 10)
	if err != nil {
		t.Fatalf("rewind: %v", err)
	}
	if back.CurrentTick() != 10 || back.StateDigest() != digests[9] {
		t.Fatalf("rewind to 10: tick=%d digest mismatch", back.CurrentTick())
	}
	if len(back.Frames()) != 10 {
		t.Fatalf("rewind frames=%d", len(back.Frames()))
	}
	if cfg := ConfigOf(snap); cfg.RunID != "rewind" || cfg.Boxes != 9 || cfg.Encoding != DefaultEncoding() {
		t.Fatalf("ConfigOf: %+v", cfg)
	}

	snap.Initial = nil
	if _, err := Rewind(snap, 1); err == nil {
		t.Fatalf("expected error without an initial layout")
	}
}

func TestFrameCapturedBeforeUpdate(t *testing.T) {
	w := mustLayout(t, 5, 5, Layout{
		Robots:  []RobotSpec{{Pos: grid.Pos{X: 0, Y: 0}}},
		Stacks:  []StackSpec{{Pos: grid.Pos{X: 1, Y: 0}, Boxes: 1}},
		Shelves: []StackSpec{{Pos: grid.Pos{X: 4, Y: 4}, Boxes: 2}},
	})
	w.Step()
	f := w.Frames()[0]
	if f[0][0] != 10 || f[1][0] != 50 || f[4][4] != 252 || f[2][2] != 0 {
		t.Fatalf("unexpected frame values: %v", f)
	}
	now := w.CurrentFrame()
	if now[0][0] != 20 || now[1][0] != 0 {
		t.Fatalf("current frame should show a loaded robot: %v", now)
	}
	flat := f.Flatten()
	if len(flat) != 25 || flat[1*5+0] != 50 {
		t.Fatalf("flatten layout wrong")
	}
	back := Unflatten(flat, 5, 5)
	if back[4][4] != 252 {
		t.Fatalf("unflatten mismatch")
	}
}

type recordingLogger struct{ entries []TickLogEntry }

func (l *recordingLogger) WriteTick(e TickLogEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func TestStepFeedsLoggerAndSnapshotSink(t *testing.T) {
	w, err := New(Config{RunID: "sink", Width: 8, Height: 8, Robots: 2, Boxes: 4, Seed: 2, SnapshotEveryTicks: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger := &recordingLogger{}
	sink := make(chan snapshot.SnapshotV1, 4)
	w.SetTickLogger(logger)
	w.SetSnapshotSink(sink)

	for i := 0; i < 4; i++ {
		if got := w.Step(); got != uint64(i) {
			t.Fatalf("Step returned %d want %d", got, i)
		}
	}
	if len(logger.entries) != 4 || logger.entries[3].Tick != 3 || logger.entries[3].Digest != w.LastDigest() {
		t.Fatalf("unexpected log entries: %+v", logger.entries)
	}
	if len(sink) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(sink))
	}
	if s := <-sink; s.Header.Tick != 2 || s.Header.RunID != "sink" {
		t.Fatalf("first snapshot header: %+v", s.Header)
	}
}

func TestDeliverOnlyFirstShelfInNeighborOrder(t *testing.T) {
	w := mustLayout(t, 5, 5, Layout{
		Robots: []RobotSpec{{Pos: grid.Pos{X: 2, Y: 2}, Boxes: 1}},
		Shelves: []StackSpec{
			{Pos: grid.Pos{X: 3, Y: 3}},
			{Pos: grid.Pos{X: 1, Y: 1}},
		},
	})
	w.Step()

	r := w.Robots()[0]
	if r.Carrying() || r.BoxCount() != 0 {
		t.Fatalf("robot should have delivered, carrying=%v box=%d", r.Carrying(), r.BoxCount())
	}
	// (1,1) precedes (3,3) in neighbor order even though it was registered later.
	if a, b := w.Shelves()[0].BoxCount(), w.Shelves()[1].BoxCount(); a != 0 || b != 1 {
		t.Fatalf("shelves = %d %d, want 0 1", a, b)
	}
}

func TestCornerRobotConsolidatesWhenFindDirFails(t *testing.T) {
	w := mustLayout(t, 4, 4, Layout{
		Robots: []RobotSpec{{Pos: grid.Pos{X: 0, Y: 0}, Facing: grid.Up, Boxes: 1}},
		Stacks: []StackSpec{
			{Pos: grid.Pos{X: 1, Y: 0}, Boxes: 2},
			{Pos: grid.Pos{X: 0, Y: 1}, Boxes: 3},
		},
	})
	w.Step()

	r := w.Robots()[0]
	if got := pos(t, r); got != (grid.Pos{X: 0, Y: 0}) {
		t.Fatalf("robot should not move, at %v", got)
	}
	if r.Carrying() {
		t.Fatalf("robot should have deposited its box")
	}
	if a, b := w.Stacks()[0].BoxCount(), w.Stacks()[1].BoxCount(); a != 2 || b != 4 {
		t.Fatalf("stacks = %d %d, want 2 4", a, b)
	}
}

func TestPickTieGoesToFirstInNeighborOrder(t *testing.T) {
	w := mustLayout(t, 5, 5, Layout{
		Robots: []RobotSpec{{Pos: grid.Pos{X: 2, Y: 2}}},
		Stacks: []StackSpec{
			{Pos: grid.Pos{X: 3, Y: 3}, Boxes: 2},
			{Pos: grid.Pos{X: 2, Y: 1}, Boxes: 2},
		},
	})
	w.Step()
	if a, b := w.Stacks()[0].BoxCount(), w.Stacks()[1].BoxCount(); a != 2 || b != 1 {
		t.Fatalf("stacks = %d %d, want 2 1", a, b)
	}
}

func TestLaterRobotSeesEarlierMoveInSameTick(t *testing.T) {
	w := mustLayout(t, 1, 3, Layout{
		Robots: []RobotSpec{
			{Pos: grid.Pos{X: 0, Y: 1}, Facing: grid.Up},
			{Pos: grid.Pos{X: 0, Y: 0}, Facing: grid.Up},
		},
	})
	w.Step()
	if got := pos(t, w.Robots()[0]); got != (grid.Pos{X: 0, Y: 2}) {
		t.Fatalf("first robot at %v", got)
	}
	if got := pos(t, w.Robots()[1]); got != (grid.Pos{X: 0, Y: 1}) {
		t.Fatalf("second robot should follow into the freed cell, at %v", got)
	}
}

func TestLaterRobotSkipsStackDepletedThisTick(t *testing.T) {
	w := mustLayout(t, 5, 5, Layout{
		Robots: []RobotSpec{
			{Pos: grid.Pos{X: 0, Y: 0}, Facing: grid.Up},
			{Pos: grid.Pos{X: 2, Y: 0}, Facing: grid.Up},
		},
		Stacks: []StackSpec{{Pos: grid.Pos{X: 1, Y: 0}, Boxes: 1}},
	})
	w.Step()

	if !w.Robots()[0].Carrying() {
		t.Fatalf("first robot should hold the only box")
	}
	second := w.Robots()[1]
	if second.Carrying() {
		t.Fatalf("second robot picked from a removed stack")
	}
	if got := pos(t, second); got != (grid.Pos{X: 2, Y: 1}) {
		t.Fatalf("second robot should search by moving up, at %v", got)
	}
	if tot := w.Totals(); tot.All() != 1 || tot.Carried != 1 {
		t.Fatalf("box count changed: %+v", tot)
	}
}

func TestNewRejectsOversizedGrid(t *testing.T) {
	cases := []Config{
		{Width: 5000, Height: 5000, Robots: 1},
		{Width: 4000000000, Height: 4000000000, Robots: 1},
		{Width: 4, Height: 4, Robots: 1, MaxCells: 10},
	}
	for _, cfg := range cases {
		if _, err := New(cfg); !errors.Is(err, ErrBadConfig) {
			t.Fatalf("%dx%d (max %d): expected ErrBadConfig, got %v", cfg.Width, cfg.Height, cfg.MaxCells, err)
		}
	}
	if _, err := New(Config{Width: 4, Height: 4, Robots: 1, MaxCells: 16}); err != nil {
		t.Fatalf("grid at the limit should build: %v", err)
	}
}

func TestImportRejectsOutOfRangeBoxes(t *testing.T) {
	w := mustLayout(t, 5, 5, Layout{
		Robots:  []RobotSpec{{Pos: grid.Pos{X: 0, Y: 0}}},
		Stacks:  []StackSpec{{Pos: grid.Pos{X: 2, Y: 2}, Boxes: 3}},
		Shelves: []StackSpec{{Pos: grid.Pos{X: 4, Y: 4}}},
	})
	cases := map[string]func(*snapshot.SnapshotV1){
		"robot carries two": func(s *snapshot.SnapshotV1) { s.Entities[0].Box = 2 },
		"negative stack":    func(s *snapshot.SnapshotV1) { s.Entities[1].Box = -1 },
		"overfull shelf":    func(s *snapshot.SnapshotV1) { s.Entities[2].Box = 6 },
	}
	for name, corrupt := range cases {
		snap := w.ExportSnapshot()
		snap.Entities = append([]snapshot.EntityV1(nil), snap.Entities...)
		corrupt(&snap)
		if _, err := ImportSnapshot(snap); !errors.Is(err, ErrBadConfig) {
			t.Fatalf("%s: expected ErrBadConfig, got %v", name, err)
		}
	}
	if _, err := ImportSnapshot(w.ExportSnapshot()); err != nil {
		t.Fatalf("clean snapshot should import: %v", err)
	}
}
