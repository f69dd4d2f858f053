package grid

// Route is the result of a breadth-first search: the first step to take and the number
// of orthogonal steps to a cell adjacent to the goal.
type Route struct {
	First Dir
	Steps int
	To    Pos
}

// FindRoute searches outward from `from` over empty cells (orthogonal steps only) for the
// nearest cell whose Moore neighborhood contains an occupant accepted by goal. The start
// cell itself counts, in which case Steps is 0 and First is None.
func (g *Grid) FindRoute(from Pos, goal func(Occupant) bool) (Route, bool) {
	if !g.InBounds(from) || goal == nil {
		return Route{}, false
	}

	type node struct {
		pos   Pos
		first Dir
		steps int
	}
	visited := map[Pos]bool{from: true}
	frontier := []node{{pos: from, first: None}}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]

		for _, n := range g.Neighbors(cur.pos) {
			if goal(n) {
				return Route{First: cur.first, Steps: cur.steps, To: cur.pos}, true
			}
		}

		for d := Up; d <= Left; d++ {
			next := cur.pos.Add(d.Offset())
			if visited[next] || !g.IsEmpty(next) {
				continue
			}
			visited[next] = true
			first := cur.first
			if first == None {
				first = d
			}
			frontier = append(frontier, node{pos: next, first: first, steps: cur.steps + 1})
		}
	}
	return Route{}, false
}
