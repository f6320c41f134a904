package scene

import (
	"container/heap"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Planner provides A* pathfinding over a walk grid.
type Planner struct {
	grid *WalkGrid

	// Reusable data structures (cleared between searches)
	openHeap  *nodeHeap
	closedSet map[int]struct{}
	cameFrom  map[int]int
	gScore    map[int]float64
}

// astarNode is a node in the A* search.
type astarNode struct {
	gx, gy int     // Grid coordinates
	f      float64 // f = g + h (priority)
	index  int     // Heap index
}

// nodeHeap implements heap.Interface for A* open set.
type nodeHeap []*astarNode

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i].f < h[j].f }
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *nodeHeap) Push(x any) {
	n := x.(*astarNode)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*h = old[0 : n-1]
	return node
}

// NewPlanner creates an A* planner for the grid.
func NewPlanner(grid *WalkGrid) *Planner {
	return &Planner{
		grid:      grid,
		openHeap:  &nodeHeap{},
		closedSet: make(map[int]struct{}, 256),
		cameFrom:  make(map[int]int, 256),
		gScore:    make(map[int]float64, 256),
	}
}

// FindPath computes a path from start to goal. Waypoints are open cell
// centres at the height of start, ending with goal itself. Returns nil if no
// path exists. Start and goal in blocked cells use the nearest open cell
// within the grid's snap distance.
func (a *Planner) FindPath(start, goal r3.Vec) []r3.Vec {
	grid := a.grid

	startGX, startGY, ok := a.entry(start)
	if !ok {
		return nil
	}
	goalGX, goalGY, ok := a.entry(goal)
	if !ok {
		return nil
	}

	// Same cell - walk straight there
	if startGX == goalGX && startGY == goalGY {
		return []r3.Vec{goal}
	}

	// Clear reusable data structures
	*a.openHeap = (*a.openHeap)[:0]
	clear(a.closedSet)
	clear(a.cameFrom)
	clear(a.gScore)

	startID := startGY*grid.cols + startGX
	goalID := goalGY*grid.cols + goalGX

	a.gScore[startID] = 0
	heap.Push(a.openHeap, &astarNode{gx: startGX, gy: startGY, f: heuristic(startGX, startGY, goalGX, goalGY)})

	// A* main loop
	maxIterations := 4 * grid.cols * grid.rows
	for iterations := 0; a.openHeap.Len() > 0 && iterations < maxIterations; iterations++ {
		current := heap.Pop(a.openHeap).(*astarNode)
		currentID := current.gy*grid.cols + current.gx

		// Goal reached
		if currentID == goalID {
			return a.reconstructPath(startID, goalID, start.Y, goal)
		}

		if _, done := a.closedSet[currentID]; done {
			continue
		}
		a.closedSet[currentID] = struct{}{}

		// Check 8-connected neighbors
		neighbors := [8][2]int{
			{current.gx - 1, current.gy},     // W
			{current.gx + 1, current.gy},     // E
			{current.gx, current.gy - 1},     // N
			{current.gx, current.gy + 1},     // S
			{current.gx - 1, current.gy - 1}, // NW
			{current.gx + 1, current.gy - 1}, // NE
			{current.gx - 1, current.gy + 1}, // SW
			{current.gx + 1, current.gy + 1}, // SE
		}

		for i, n := range neighbors {
			ngx, ngy := n[0], n[1]
			if grid.IsBlocked(ngx, ngy) {
				continue
			}

			// Diagonal moves must not cut corners
			if i >= 4 {
				dx := ngx - current.gx
				dy := ngy - current.gy
				if grid.IsBlocked(current.gx+dx, current.gy) || grid.IsBlocked(current.gx, current.gy+dy) {
					continue
				}
			}

			neighborID := ngy*grid.cols + ngx
			if _, ok := a.closedSet[neighborID]; ok {
				continue
			}

			moveCost := 1.0
			if i >= 4 {
				moveCost = math.Sqrt2
			}
			tentativeG := a.gScore[currentID] + moveCost

			if existingG, exists := a.gScore[neighborID]; exists && tentativeG >= existingG {
				continue
			}

			a.cameFrom[neighborID] = currentID
			a.gScore[neighborID] = tentativeG
			// Stale duplicates are skipped via closedSet on pop
			heap.Push(a.openHeap, &astarNode{gx: ngx, gy: ngy, f: tentativeG + heuristic(ngx, ngy, goalGX, goalGY)})
		}
	}

	// No path found
	return nil
}

// entry returns the grid cell a path through p starts or ends in.
func (a *Planner) entry(p r3.Vec) (gx, gy int, ok bool) {
	open, ok := a.grid.Nearest(p)
	if !ok {
		return 0, 0, false
	}
	gx, gy = a.grid.WorldToGrid(open)
	return gx, gy, true
}

// heuristic computes the Euclidean distance heuristic for A*.
func heuristic(gx1, gy1, gx2, gy2 int) float64 {
	return math.Hypot(float64(gx2-gx1), float64(gy2-gy1))
}

// reconstructPath builds the path from cameFrom map.
func (a *Planner) reconstructPath(startID, goalID int, y float64, goal r3.Vec) []r3.Vec {
	// Build path in reverse
	var pathIDs []int
	for current := goalID; current != startID; {
		pathIDs = append(pathIDs, current)
		prev, ok := a.cameFrom[current]
		if !ok {
			break
		}
		current = prev
	}
	pathIDs = append(pathIDs, startID)

	// Reverse and convert to world coordinates
	path := make([]r3.Vec, len(pathIDs))
	for i := range pathIDs {
		id := pathIDs[len(pathIDs)-1-i]
		p := a.grid.GridToWorld(id%a.grid.cols, id/a.grid.cols)
		p.Y = y
		path[i] = p
	}
	// The goal cell centre gives way to the goal itself
	path[len(path)-1] = goal

	return a.simplifyPath(path)
}

// simplifyPath removes waypoints that are in a straight line.
func (a *Planner) simplifyPath(path []r3.Vec) []r3.Vec {
	if len(path) <= 2 {
		return path
	}

	simplified := make([]r3.Vec, 0, len(path))
	simplified = append(simplified, path[0])

	anchor := path[0]
	for i := 1; i < len(path)-1; i++ {
		// Keep path[i] only if the anchor cannot see past it
		if !a.clearLine(anchor, path[i+1]) {
			simplified = append(simplified, path[i])
			anchor = path[i]
		}
	}

	simplified = append(simplified, path[len(path)-1])
	return simplified
}

// clearLine checks if there's a clear line between two points on the grid.
// The goal may lie in a blocked cell within snap distance, so only points
// short of the end are checked.
func (a *Planner) clearLine(from, to r3.Vec) bool {
	d := r3.Sub(to, from)
	d.Y = 0
	dist := r3.Norm(d)
	if dist < 0.01 {
		return true
	}

	stepSize := a.grid.cellSize * 0.5
	steps := int(dist / stepSize)
	dir := r3.Scale(1/dist, d)

	for i := 0; i < steps; i++ {
		if !a.grid.Open(r3.Add(from, r3.Scale(float64(i)*stepSize, dir))) {
			return false
		}
	}
	return true
}
