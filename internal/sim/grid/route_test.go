package grid

import "testing"

func TestFindRoute_AroundWall(t *testing.T) {
	// 5x3, wall at x=2 for y=0..1, goal at (4,0).
	g := New(5, 3)
	start := Pos{0, 0}
	_ = g.Place(&token{name: "me"}, start)
	_ = g.Place(&token{name: "wall"}, Pos{2, 0})
	_ = g.Place(&token{name: "wall"}, Pos{2, 1})
	_ = g.Place(&token{name: "goal"}, Pos{4, 0})

	isGoal := func(o Occupant) bool { return o.(*token).name == "goal" }
	r, ok := g.FindRoute(start, isGoal)
	if !ok {
		t.Fatalf("expected a route")
	}
	// The wall forces a detour through y=2; (3,1) is the first cell touching the goal.
	if r.Steps != 6 {
		t.Fatalf("steps: got %d want 6 (route %+v)", r.Steps, r)
	}
	if r.First != Right && r.First != Up {
		t.Fatalf("unexpected first step %s", r.First)
	}
	if r.To != (Pos{3, 1}) {
		t.Fatalf("route end: got %v want (3,1)", r.To)
	}
}

func TestFindRoute_AlreadyAdjacentAndUnreachable(t *testing.T) {
	g := New(3, 3)
	_ = g.Place(&token{name: "me"}, Pos{0, 0})
	_ = g.Place(&token{name: "goal"}, Pos{1, 1})
	isGoal := func(o Occupant) bool { return o.(*token).name == "goal" }

	r, ok := g.FindRoute(Pos{0, 0}, isGoal)
	if !ok || r.Steps != 0 || r.First != None {
		t.Fatalf("expected zero-length route, got %+v ok=%v", r, ok)
	}

	if _, ok := g.FindRoute(Pos{0, 0}, func(Occupant) bool { return false }); ok {
		t.Fatalf("expected no route")
	}
}
