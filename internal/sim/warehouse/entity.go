package warehouse

import "warehousesim/internal/sim/grid"

type Kind int

const (
	KindRobot Kind = iota + 1
	KindBoxStack
	KindShelf
)

func (k Kind) String() string {
	switch k {
	case KindRobot:
		return "ROBOT"
	case KindBoxStack:
		return "BOX"
	case KindShelf:
		return "SHELF"
	default:
		return "UNKNOWN"
	}
}

// Entity is a cell occupant. The set of implementations is closed: Robot, BoxStack, Shelf.
type Entity interface {
	grid.Occupant

	ID() int
	Kind() Kind
	BoxCount() int

	// Update runs the entity's turn within a tick.
	Update(w *Warehouse)

	sealed()
}

type base struct {
	grid.Placement
	id  int
	box int
}

func (b *base) ID() int       { return b.id }
func (b *base) BoxCount() int { return b.box }
func (b *base) sealed()       {}

// BoxStack is a pile of boxes waiting to be moved. It disappears when its last box is taken.
type BoxStack struct{ base }

func (s *BoxStack) Kind() Kind        { return KindBoxStack }
func (s *BoxStack) Update(*Warehouse) {}

// Shelf is a deposit target. Shelves are never removed.
type Shelf struct{ base }

func (s *Shelf) Kind() Kind        { return KindShelf }
func (s *Shelf) Update(*Warehouse) {}
