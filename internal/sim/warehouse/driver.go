package warehouse

import (
	"context"
	"fmt"
)

// StopCheck is asked after every tick whether the run should end.
type StopCheck func(w *Warehouse) bool

// StopLegacy always stops. It reproduces the reference driver, whose termination test
// looked at a method value instead of calling it and therefore ended every run after the
// first tick.
func StopLegacy(*Warehouse) bool { return true }

// StopWhenRobotsGone uses IsDone. Robots are never removed, so this runs to maxTicks.
func StopWhenRobotsGone(w *Warehouse) bool { return w.IsDone() }

// StopWhenShelved ends the run once every box has been delivered.
func StopWhenShelved(w *Warehouse) bool { return w.AllShelved() }

func ParseStopCheck(name string) (StopCheck, error) {
	switch name {
	case "legacy":
		return StopLegacy, nil
	case "robots":
		return StopWhenRobotsGone, nil
	case "shelved", "":
		return StopWhenShelved, nil
	default:
		return nil, fmt.Errorf("unknown stop check %q (want legacy, robots or shelved)", name)
	}
}

// Drive steps w up to maxTicks times, consulting stop after each tick, and returns how
// many ticks ran. It only returns an error when ctx ends first.
func Drive(ctx context.Context, w *Warehouse, maxTicks int, stop StopCheck) (int, error) {
	steps := 0
	for i := 0; i < maxTicks; i++ {
		select {
		case <-ctx.Done():
			return steps, ctx.Err()
		default:
		}
		w.Step()
		steps++
		if stop != nil && stop(w) {
			break
		}
	}
	return steps, nil
}
