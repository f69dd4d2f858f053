package main

import (
	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/mattn/go-runewidth"

	"warehousesim/internal/sim/warehouse"
)

type cellKind int

const (
	cellEmpty cellKind = iota
	cellRobot
	cellRobotLoaded
	cellStack
	cellShelf
	cellUnknown
)

// decodeCell maps an encoded frame value back to what occupied the cell. An empty shelf and a
// full stack can share a value under some encodings; the shelf wins.
func decodeCell(v float64, enc warehouse.Encoding, maxStack int) (cellKind, int) {
	switch {
	case v == 0:
		return cellEmpty, 0
	case v == enc.Robot:
		return cellRobot, 0
	case v == enc.Robot+enc.RobotBox:
		return cellRobotLoaded, 1
	}
	if enc.ShelfBox > 0 && v >= enc.Shelf {
		n := (v - enc.Shelf) / enc.ShelfBox
		if n == float64(int(n)) && int(n) <= maxStack {
			return cellShelf, int(n)
		}
	}
	if enc.Box > 0 {
		n := v / enc.Box
		if n == float64(int(n)) && n >= 1 && int(n) <= maxStack {
			return cellStack, int(n)
		}
	}
	return cellUnknown, 0
}

var (
	stackLow  = colorful.Color{R: 0.55, G: 0.35, B: 0.15}
	stackHigh = colorful.Color{R: 0.95, G: 0.25, B: 0.10}
	shelfLow  = colorful.Color{R: 0.15, G: 0.35, B: 0.20}
	shelfHigh = colorful.Color{R: 0.20, G: 0.90, B: 0.35}
)

// heat blends from lo to hi by n/max in HCL space.
func heat(lo, hi colorful.Color, n, max int) tcell.Color {
	t := 0.0
	if max > 0 {
		t = float64(n) / float64(max)
	}
	if t > 1 {
		t = 1
	}
	c := lo.BlendHcl(hi, t).Clamped()
	r, g, b := c.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}

// glyph returns the two-column rendering of one cell.
func glyph(kind cellKind, boxes, maxStack int) (string, tcell.Style) {
	base := tcell.StyleDefault
	switch kind {
	case cellRobot:
		return "R ", base.Foreground(tcell.ColorYellow).Bold(true)
	case cellRobotLoaded:
		return "R*", base.Foreground(tcell.ColorOrange).Bold(true)
	case cellStack:
		return "B" + string(rune('0'+boxes)), base.Foreground(tcell.ColorWhite).Background(heat(stackLow, stackHigh, boxes, maxStack))
	case cellShelf:
		return "S" + string(rune('0'+boxes)), base.Foreground(tcell.ColorBlack).Background(heat(shelfLow, shelfHigh, boxes, maxStack))
	case cellUnknown:
		return "??", base.Foreground(tcell.ColorRed)
	default:
		return "· ", base.Foreground(tcell.ColorDarkGray)
	}
}

// drawText writes s at (x, y), honoring wide runes, and clips it to maxWidth columns.
func drawText(s tcell.Screen, x, y, maxWidth int, style tcell.Style, text string) {
	if maxWidth <= 0 {
		return
	}
	text = runewidth.Truncate(text, maxWidth, "…")
	col := x
	for _, r := range text {
		s.SetContent(col, y, r, nil, style)
		col += runewidth.RuneWidth(r)
	}
}

// drawFrame renders cells (flattened x*height+y) with y growing upwards on screen.
func drawFrame(s tcell.Screen, f viewFrame, enc warehouse.Encoding, maxStack int) {
	s.Clear()
	sw, sh := s.Size()
	for x := 0; x < f.Width; x++ {
		for y := 0; y < f.Height; y++ {
			row := 1 + (f.Height - 1 - y)
			col := 2 * x
			if row >= sh-1 || col+1 >= sw {
				continue
			}
			i := x*f.Height + y
			if i >= len(f.Cells) {
				continue
			}
			kind, boxes := decodeCell(f.Cells[i], enc, maxStack)
			text, style := glyph(kind, boxes, maxStack)
			drawText(s, col, row, 2, style, text)
		}
	}
	drawText(s, 0, 0, sw, tcell.StyleDefault.Bold(true), f.Title)
	drawText(s, 0, sh-1, sw, tcell.StyleDefault.Foreground(tcell.ColorGray), f.Status)
	s.Show()
}
