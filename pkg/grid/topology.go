package grid

import (
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Graph returns the bus connectivity as an undirected graph. Parallel
// branches collapse into one edge.
func (g *Grid) Graph() *simple.UndirectedGraph {
	ug := simple.NewUndirectedGraph()
	for _, b := range g.Buses {
		ug.AddNode(simple.Node(b.ID))
	}
	for _, br := range g.Branches {
		ends := br.Buses()
		ug.SetEdge(ug.NewEdge(simple.Node(ends[0]), simple.Node(ends[1])))
	}
	return ug
}

// Islands returns the connected groups of buses that have no path to the
// slack bus, each sorted by bus id. A grid without a slack bus reports every
// component.
func (g *Grid) Islands() [][]int {
	slack := int64(g.SlackBus())

	var islands [][]int
	for _, cc := range topo.ConnectedComponents(g.Graph()) {
		ids := make([]int, 0, len(cc))
		attached := false
		for _, n := range cc {
			if n.ID() == slack {
				attached = true
			}
			ids = append(ids, int(n.ID()))
		}
		if attached {
			continue
		}
		slices.Sort(ids)
		islands = append(islands, ids)
	}
	slices.SortFunc(islands, func(a, b []int) int { return a[0] - b[0] })
	return islands
}
