package warehouse

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/grid"
)

// ErrCapacityExhausted is returned when the requested entities do not fit on the grid.
var ErrCapacityExhausted = grid.ErrCapacityExhausted

var ErrBadConfig = errors.New("bad warehouse config")

// DefaultMaxCells bounds Width*Height when Config.MaxCells is unset.
const DefaultMaxCells = 1 << 22

type Config struct {
	RunID  string
	Width  int
	Height int

	Robots int
	Boxes  int
	// Shelves defaults to ceil(Boxes/Robots) when zero.
	Shelves int

	MaxStack        int
	BoxInitialCount int
	Seed            int64

	// SnapshotEveryTicks controls how often a snapshot is offered to the sink (0 disables).
	SnapshotEveryTicks int

	// MaxCells caps Width*Height (DefaultMaxCells when zero).
	MaxCells int

	Encoding Encoding
}

// ShelfCount is ceil(boxes/robots), or 0 without robots.
func ShelfCount(boxes, robots int) int {
	if robots <= 0 || boxes <= 0 {
		return 0
	}
	return (boxes + robots - 1) / robots
}

func (c *Config) normalize() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: grid %dx%d", ErrBadConfig, c.Width, c.Height)
	}
	if c.MaxCells <= 0 {
		c.MaxCells = DefaultMaxCells
	}
	if c.Width > c.MaxCells/c.Height {
		return fmt.Errorf("%w: grid %dx%d exceeds %d cells", ErrBadConfig, c.Width, c.Height, c.MaxCells)
	}
	if c.Robots < 0 || c.Boxes < 0 || c.Shelves < 0 {
		return fmt.Errorf("%w: negative entity count", ErrBadConfig)
	}
	if c.MaxStack <= 0 {
		c.MaxStack = 5
	}
	if c.BoxInitialCount <= 0 {
		c.BoxInitialCount = 1
	}
	if c.BoxInitialCount > c.MaxStack {
		return fmt.Errorf("%w: box_initial_count %d exceeds max_stack %d", ErrBadConfig, c.BoxInitialCount, c.MaxStack)
	}
	if c.Shelves == 0 {
		c.Shelves = ShelfCount(c.Boxes, c.Robots)
	}
	if c.Encoding == (Encoding{}) {
		c.Encoding = DefaultEncoding()
	}
	return nil
}

// Warehouse is the tick scheduler and owns the grid. It is single-threaded: callers that
// share an instance across goroutines must serialize access.
type Warehouse struct {
	cfg  Config
	grid *grid.Grid

	// Registration order: robots, then stacks, then shelves.
	entities []Entity
	robots   []*Robot
	stacks   []*BoxStack
	shelves  []*Shelf
	initial  []snapshot.EntityV1

	tick   uint64
	frames []Frame

	pending    []Event
	lastEvents []Event
	lastDigest string
	lastStep   time.Duration

	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1
}

// New builds a warehouse with every entity dropped on a random empty cell.
func New(cfg Config) (*Warehouse, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	w := newEmpty(cfg)
	rng := rand.New(rand.NewSource(cfg.Seed))

	for i := 0; i < cfg.Robots; i++ {
		r := w.addRobot(grid.Up, 0)
		if _, err := w.grid.PlaceAtRandomEmpty(r, rng); err != nil {
			return nil, fmt.Errorf("place robot %d: %w", i, err)
		}
	}
	for i := 0; i < cfg.Boxes; i++ {
		s := w.addStack(cfg.BoxInitialCount)
		if _, err := w.grid.PlaceAtRandomEmpty(s, rng); err != nil {
			return nil, fmt.Errorf("place box stack %d: %w", i, err)
		}
	}
	for i := 0; i < cfg.Shelves; i++ {
		s := w.addShelf(0)
		if _, err := w.grid.PlaceAtRandomEmpty(s, rng); err != nil {
			return nil, fmt.Errorf("place shelf %d: %w", i, err)
		}
	}
	w.initial = w.exportEntities()
	return w, nil
}

type RobotSpec struct {
	Pos    grid.Pos
	Facing grid.Dir
	Boxes  int
}

type StackSpec struct {
	Pos     grid.Pos
	Boxes   int
	Removed bool
}

// Layout places entities at fixed cells. Registration order is still robots, stacks, shelves.
type Layout struct {
	Robots  []RobotSpec
	Stacks  []StackSpec
	Shelves []StackSpec
}

// NewFromLayout builds a warehouse from explicit positions. cfg's entity counts are replaced
// by the layout's.
func NewFromLayout(cfg Config, layout Layout) (*Warehouse, error) {
	cfg.Robots = len(layout.Robots)
	cfg.Boxes = len(layout.Stacks)
	cfg.Shelves = len(layout.Shelves)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	cfg.Shelves = len(layout.Shelves)
	w := newEmpty(cfg)

	for i, spec := range layout.Robots {
		if err := checkRobotBoxes(i, spec.Boxes); err != nil {
			return nil, err
		}
		facing := spec.Facing
		if facing == grid.None {
			facing = grid.Up
		}
		r := w.addRobot(facing, spec.Boxes)
		if err := w.grid.Place(r, spec.Pos); err != nil {
			return nil, fmt.Errorf("place robot %d: %w", i, err)
		}
	}
	for i, spec := range layout.Stacks {
		if err := checkPileBoxes("stack", i, spec.Boxes, cfg.MaxStack); err != nil {
			return nil, err
		}
		s := w.addStack(spec.Boxes)
		if spec.Removed {
			continue
		}
		if err := w.grid.Place(s, spec.Pos); err != nil {
			return nil, fmt.Errorf("place box stack %d: %w", i, err)
		}
	}
	for i, spec := range layout.Shelves {
		if err := checkPileBoxes("shelf", i, spec.Boxes, cfg.MaxStack); err != nil {
			return nil, err
		}
		s := w.addShelf(spec.Boxes)
		if err := w.grid.Place(s, spec.Pos); err != nil {
			return nil, fmt.Errorf("place shelf %d: %w", i, err)
		}
	}
	w.initial = w.exportEntities()
	return w, nil
}

func checkRobotBoxes(i, boxes int) error {
	if boxes < 0 || boxes > 1 {
		return fmt.Errorf("%w: robot %d carries %d boxes", ErrBadConfig, i, boxes)
	}
	return nil
}

func checkPileBoxes(kind string, i, boxes, maxStack int) error {
	if boxes < 0 || boxes > maxStack {
		return fmt.Errorf("%w: %s %d holds %d boxes", ErrBadConfig, kind, i, boxes)
	}
	return nil
}

func newEmpty(cfg Config) *Warehouse {
	return &Warehouse{
		cfg:  cfg,
		grid: grid.New(cfg.Width, cfg.Height),
	}
}

func (w *Warehouse) addRobot(facing grid.Dir, boxes int) *Robot {
	r := &Robot{base: base{id: len(w.entities), box: boxes}, facing: facing, carrying: boxes == 1}
	w.entities = append(w.entities, r)
	w.robots = append(w.robots, r)
	return r
}

func (w *Warehouse) addStack(boxes int) *BoxStack {
	s := &BoxStack{base: base{id: len(w.entities), box: boxes}}
	w.entities = append(w.entities, s)
	w.stacks = append(w.stacks, s)
	return s
}

func (w *Warehouse) addShelf(boxes int) *Shelf {
	s := &Shelf{base: base{id: len(w.entities), box: boxes}}
	w.entities = append(w.entities, s)
	w.shelves = append(w.shelves, s)
	return s
}

func (w *Warehouse) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *Warehouse) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

// SetSnapshotEveryTicks changes the snapshot cadence; snapshots do not record it.
func (w *Warehouse) SetSnapshotEveryTicks(n int) { w.cfg.SnapshotEveryTicks = n }

func (w *Warehouse) Config() Config        { return w.cfg }
func (w *Warehouse) Grid() *grid.Grid      { return w.grid }
func (w *Warehouse) CurrentTick() uint64   { return w.tick }
func (w *Warehouse) Entities() []Entity    { return w.entities }
func (w *Warehouse) Robots() []*Robot      { return w.robots }
func (w *Warehouse) Stacks() []*BoxStack   { return w.stacks }
func (w *Warehouse) Shelves() []*Shelf     { return w.shelves }
func (w *Warehouse) LastEvents() []Event   { return w.lastEvents }
func (w *Warehouse) LastDigest() string    { return w.lastDigest }
func (w *Warehouse) Frames() []Frame       { return w.frames }
func (w *Warehouse) RunID() string         { return w.cfg.RunID }
func (w *Warehouse) MaxStack() int         { return w.cfg.MaxStack }
func (w *Warehouse) Encoding() Encoding    { return w.cfg.Encoding }
func (w *Warehouse) LastStepTime() float64 { return float64(w.lastStep.Microseconds()) / 1000 }

// Step runs one tick: capture a frame, then let every live entity act once in
// registration order. Later entities see what earlier ones changed. Returns the tick
// that was executed.
func (w *Warehouse) Step() uint64 {
	start := time.Now()
	nowTick := w.tick

	w.frames = append(w.frames, w.captureFrame())

	w.pending = nil
	for _, e := range w.entities {
		if _, ok := e.Position(); !ok {
			continue
		}
		e.Update(w)
	}
	w.lastEvents = w.pending
	w.pending = nil

	w.lastDigest = w.StateDigest()
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			RunID:  w.cfg.RunID,
			Tick:   nowTick,
			Events: w.lastEvents,
			Digest: w.lastDigest,
		})
	}

	w.tick++
	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && w.tick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot():
		default:
			// Drop snapshot if sink is backed up.
		}
	}
	w.lastStep = time.Since(start)
	return nowTick
}

// IsDone reports whether no robot is left on the grid. No rule removes robots, so this
// stays false for any warehouse that started with at least one robot.
func (w *Warehouse) IsDone() bool {
	for _, r := range w.robots {
		if _, ok := r.Position(); ok {
			return false
		}
	}
	return true
}

// AllShelved reports whether every box has left the floor: no stack remains and no robot
// is still carrying.
func (w *Warehouse) AllShelved() bool {
	for _, s := range w.stacks {
		if _, ok := s.Position(); ok {
			return false
		}
	}
	for _, r := range w.robots {
		if r.carrying {
			return false
		}
	}
	return true
}

// Totals counts boxes by where they currently are.
type Totals struct {
	OnStacks  int `json:"on_stacks"`
	OnShelves int `json:"on_shelves"`
	Carried   int `json:"carried"`
	Stacks    int `json:"stacks"`
}

func (t Totals) All() int { return t.OnStacks + t.OnShelves + t.Carried }

func (w *Warehouse) Totals() Totals {
	var t Totals
	for _, s := range w.stacks {
		if _, ok := s.Position(); ok {
			t.OnStacks += s.box
			t.Stacks++
		}
	}
	for _, s := range w.shelves {
		t.OnShelves += s.box
	}
	for _, r := range w.robots {
		t.Carried += r.box
	}
	return t
}
