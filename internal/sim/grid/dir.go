package grid

// Dir is an axis-aligned heading. The numeric values follow the clockwise cycle
// UP -> RIGHT -> DOWN -> LEFT.
type Dir int

const (
	None  Dir = -1
	Up    Dir = 0
	Right Dir = 1
	Down  Dir = 2
	Left  Dir = 3
)

// Clockwise returns the next heading in the cycle.
func (d Dir) Clockwise() Dir {
	switch d {
	case Up:
		return Right
	case Right:
		return Down
	case Down:
		return Left
	case Left:
		return Up
	default:
		return None
	}
}

// Offset returns the unit step for d. Up is +Y.
func (d Dir) Offset() Pos {
	switch d {
	case Up:
		return Pos{X: 0, Y: 1}
	case Down:
		return Pos{X: 0, Y: -1}
	case Left:
		return Pos{X: -1, Y: 0}
	case Right:
		return Pos{X: 1, Y: 0}
	default:
		return Pos{}
	}
}

func (d Dir) String() string {
	switch d {
	case Up:
		return "UP"
	case Right:
		return "RIGHT"
	case Down:
		return "DOWN"
	case Left:
		return "LEFT"
	default:
		return "NONE"
	}
}

// ParseDir is the inverse of Dir.String.
func ParseDir(s string) Dir {
	switch s {
	case "UP":
		return Up
	case "RIGHT":
		return Right
	case "DOWN":
		return Down
	case "LEFT":
		return Left
	default:
		return None
	}
}
