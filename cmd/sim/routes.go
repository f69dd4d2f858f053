package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"warehousesim/internal/sim/grid"
	"warehousesim/internal/sim/warehouse"
)

type routeLine struct {
	Robot    int
	At       grid.Pos
	Carrying bool
	Target   warehouse.Kind
	Found    bool
	Route    grid.Route
}

// routeReport finds, for every robot on the grid, the shortest open path to the kind of
// entity it wants next: a shelf when carrying, a box stack otherwise.
func routeReport(w *warehouse.Warehouse) []routeLine {
	out := make([]routeLine, 0, len(w.Robots()))
	for _, r := range w.Robots() {
		pos, ok := r.Position()
		if !ok {
			continue
		}
		want := warehouse.KindBoxStack
		if r.Carrying() {
			want = warehouse.KindShelf
		}
		route, found := w.Grid().FindRoute(pos, func(o grid.Occupant) bool {
			e, ok := o.(warehouse.Entity)
			return ok && e.Kind() == want
		})
		out = append(out, routeLine{
			Robot:    r.ID(),
			At:       pos,
			Carrying: r.Carrying(),
			Target:   want,
			Found:    found,
			Route:    route,
		})
	}
	return out
}

func printRouteReport(wr io.Writer, w *warehouse.Warehouse) {
	tw := tabwriter.NewWriter(wr, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "tick %d\n", w.CurrentTick())
	fmt.Fprintln(tw, "ROBOT\tAT\tCARRYING\tTARGET\tFIRST\tSTEPS\tFROM")
	for _, l := range routeReport(w) {
		if !l.Found {
			fmt.Fprintf(tw, "%d\t%s\t%v\t%s\t-\tunreachable\t-\n", l.Robot, l.At, l.Carrying, l.Target)
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%v\t%s\t%s\t%d\t%s\n", l.Robot, l.At, l.Carrying, l.Target, l.Route.First, l.Route.Steps, l.Route.To)
	}
	_ = tw.Flush()
}
