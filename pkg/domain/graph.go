package domain

// Edge is one event-labelled arc of a Graph. To is -1 when the target is unknown.
type Edge struct {
	Event string
	To    int
}

// Graph is the transition graph of a Specification with states addressed by
// stable integer indices (their declaration position).
type Graph struct {
	names []string
	index map[string]int
	edges [][]Edge
}

// NewGraph indexes the states and transitions of spec.
// When a state name is declared twice the first declaration wins.
func NewGraph(spec *Specification) *Graph {
	g := &Graph{
		names: make([]string, len(spec.States)),
		index: make(map[string]int, len(spec.States)),
		edges: make([][]Edge, len(spec.States)),
	}
	for i, st := range spec.States {
		g.names[i] = st.Name
		if _, dup := g.index[st.Name]; !dup {
			g.index[st.Name] = i
		}
	}
	for i, st := range spec.States {
		for _, t := range st.On {
			to, ok := g.index[t.Target]
			if !ok {
				to = -1
			}
			g.edges[i] = append(g.edges[i], Edge{Event: t.Event, To: to})
		}
	}
	return g
}

// Len returns the number of states.
func (g *Graph) Len() int { return len(g.names) }

// Index returns the index of the named state.
func (g *Graph) Index(name string) (int, bool) {
	i, ok := g.index[name]
	return i, ok
}

// Name returns the state name at index i.
func (g *Graph) Name(i int) string { return g.names[i] }

// Edges returns the outgoing arcs of state i in declaration order.
func (g *Graph) Edges(i int) []Edge { return g.edges[i] }

// Reachable performs a breadth-first scan from start and returns, for every
// state index, whether it can be reached.
func (g *Graph) Reachable(start int) []bool {
	seen := make([]bool, len(g.names))
	if start < 0 || start >= len(g.names) {
		return seen
	}

	queue := []int{start}
	seen[start] = true
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, e := range g.edges[current] {
			if e.To < 0 || seen[e.To] {
				continue
			}
			seen[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return seen
}
