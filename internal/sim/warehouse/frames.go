package warehouse

import "warehousesim/internal/sim/grid"

// Encoding maps an occupant to the scalar stored in a Frame.
//
//	robot: box*RobotBox + Robot
//	stack: box*Box
//	shelf: box*ShelfBox + Shelf
//	empty: 0
type Encoding struct {
	Robot    float64 `yaml:"robot" json:"robot"`
	RobotBox float64 `yaml:"robot_box" json:"robot_box"`
	Box      float64 `yaml:"box" json:"box"`
	Shelf    float64 `yaml:"shelf" json:"shelf"`
	ShelfBox float64 `yaml:"shelf_box" json:"shelf_box"`
}

func DefaultEncoding() Encoding {
	return Encoding{Robot: 10, RobotBox: 10, Box: 50, Shelf: 250, ShelfBox: 1}
}

func (enc Encoding) Value(e Entity) float64 {
	if e == nil {
		return 0
	}
	box := float64(e.BoxCount())
	switch e.Kind() {
	case KindRobot:
		return box*enc.RobotBox + enc.Robot
	case KindBoxStack:
		return box * enc.Box
	case KindShelf:
		return box*enc.ShelfBox + enc.Shelf
	default:
		return 0
	}
}

// Frame is the grid encoded as numbers, indexed [x][y].
type Frame [][]float64

func (w *Warehouse) captureFrame() Frame {
	f := make(Frame, w.grid.Width())
	for x := range f {
		f[x] = make([]float64, w.grid.Height())
	}
	w.grid.Each(func(p grid.Pos, o grid.Occupant) {
		if e, ok := o.(Entity); ok {
			f[p.X][p.Y] = w.cfg.Encoding.Value(e)
		}
	})
	return f
}

// CurrentFrame encodes the grid as it is now, without recording it.
func (w *Warehouse) CurrentFrame() Frame { return w.captureFrame() }

// Flatten returns the cells column by column (index x*height + y).
func (f Frame) Flatten() []float64 {
	if len(f) == 0 {
		return nil
	}
	h := len(f[0])
	out := make([]float64, 0, len(f)*h)
	for _, col := range f {
		out = append(out, col...)
	}
	return out
}

// Unflatten is the inverse of Flatten.
func Unflatten(cells []float64, width, height int) Frame {
	f := make(Frame, width)
	for x := 0; x < width; x++ {
		f[x] = make([]float64, height)
		for y := 0; y < height; y++ {
			if i := x*height + y; i < len(cells) {
				f[x][y] = cells[i]
			}
		}
	}
	return f
}
