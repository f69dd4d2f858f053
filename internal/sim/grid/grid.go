package grid

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrCapacityExhausted = errors.New("no empty cell left")
	ErrOutOfBounds       = errors.New("position out of bounds")
	ErrOccupied          = errors.New("cell occupied")
	ErrAlreadyPlaced     = errors.New("occupant already placed")
)

// Pos is a grid coordinate.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Pos) Add(o Pos) Pos { return Pos{X: p.X + o.X, Y: p.Y + o.Y} }

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Placement records where an occupant sits. Types that live on a Grid embed it.
type Placement struct {
	pos    Pos
	placed bool
}

// Position returns the current coordinate; ok is false once the occupant was removed
// (or before it was ever placed).
func (p *Placement) Position() (pos Pos, ok bool) { return p.pos, p.placed }

func (p *Placement) placement() *Placement { return p }

// Occupant is anything that can hold a cell. Satisfied by embedding Placement.
type Occupant interface {
	Position() (Pos, bool)
	placement() *Placement
}

// Grid is a bounded, single-occupancy 2D space without wraparound.
// It is not safe for concurrent use.
type Grid struct {
	width  int
	height int
	cells  []Occupant // y*width + x
	filled int
}

func New(width, height int) *Grid {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Grid{
		width:  width,
		height: height,
		cells:  make([]Occupant, width*height),
	}
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// EmptyCount is the number of unoccupied cells.
func (g *Grid) EmptyCount() int { return len(g.cells) - g.filled }

func (g *Grid) InBounds(p Pos) bool {
	return p.X >= 0 && p.X < g.width && p.Y >= 0 && p.Y < g.height
}

// IsEmpty reports whether p is in bounds and unoccupied.
func (g *Grid) IsEmpty(p Pos) bool {
	return g.InBounds(p) && g.cells[g.index(p)] == nil
}

// At returns the occupant at p, or nil.
func (g *Grid) At(p Pos) Occupant {
	if !g.InBounds(p) {
		return nil
	}
	return g.cells[g.index(p)]
}

// Place puts o at p.
func (g *Grid) Place(o Occupant, p Pos) error {
	pl := o.placement()
	if pl.placed {
		return ErrAlreadyPlaced
	}
	if !g.InBounds(p) {
		return fmt.Errorf("place at %s: %w", p, ErrOutOfBounds)
	}
	if g.cells[g.index(p)] != nil {
		return fmt.Errorf("place at %s: %w", p, ErrOccupied)
	}
	g.set(o, p)
	return nil
}

// PlaceAtRandomEmpty puts o on a cell drawn uniformly from the cells that are empty
// right now. It fails with ErrCapacityExhausted when the grid is full.
func (g *Grid) PlaceAtRandomEmpty(o Occupant, rng *rand.Rand) (Pos, error) {
	if o.placement().placed {
		return Pos{}, ErrAlreadyPlaced
	}
	empty := g.EmptyCount()
	if empty == 0 {
		return Pos{}, ErrCapacityExhausted
	}
	// Pick the k-th empty cell in row-major order.
	k := rng.Intn(empty)
	for i, c := range g.cells {
		if c != nil {
			continue
		}
		if k == 0 {
			p := Pos{X: i % g.width, Y: i / g.width}
			g.set(o, p)
			return p, nil
		}
		k--
	}
	return Pos{}, ErrCapacityExhausted
}

// Move relocates o to p. The destination is not validated; callers check
// InBounds and IsEmpty first.
func (g *Grid) Move(o Occupant, p Pos) {
	pl := o.placement()
	if pl.placed {
		g.cells[g.index(pl.pos)] = nil
		g.filled--
	}
	g.set(o, p)
}

// Remove frees o's cell and clears its position.
func (g *Grid) Remove(o Occupant) {
	pl := o.placement()
	if !pl.placed {
		return
	}
	if g.cells[g.index(pl.pos)] == o {
		g.cells[g.index(pl.pos)] = nil
		g.filled--
	}
	pl.placed = false
}

// Neighbors returns the occupants of the Moore neighborhood of p. Cells are visited
// with dy outer and dx inner, both from -1 to 1; edge cells simply yield fewer results.
func (g *Grid) Neighbors(p Pos) []Occupant {
	out := make([]Occupant, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			q := Pos{X: p.X + dx, Y: p.Y + dy}
			if !g.InBounds(q) {
				continue
			}
			if c := g.cells[g.index(q)]; c != nil {
				out = append(out, c)
			}
		}
	}
	return out
}

// Each visits every cell in column-major order (x outer, y inner), occupied or not.
func (g *Grid) Each(fn func(p Pos, o Occupant)) {
	for x := 0; x < g.width; x++ {
		for y := 0; y < g.height; y++ {
			fn(Pos{X: x, Y: y}, g.cells[y*g.width+x])
		}
	}
}

func (g *Grid) index(p Pos) int { return p.Y*g.width + p.X }

func (g *Grid) set(o Occupant, p Pos) {
	g.cells[g.index(p)] = o
	g.filled++
	pl := o.placement()
	pl.pos = p
	pl.placed = true
}
