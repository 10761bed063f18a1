package community

import "sort"

// Graph is an undirected weighted author interaction graph. Nodes are
// indexed densely; the id slice maps an index back to the author handle.
type Graph struct {
	ids     []string
	index   map[string]int
	weights []map[int]float64
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// Node interns an author handle and returns its index.
func (g *Graph) Node(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}

	i := len(g.ids)
	g.ids = append(g.ids, id)
	g.index[id] = i
	g.weights = append(g.weights, make(map[int]float64))

	return i
}

// AddEdge accumulates weight on the undirected edge between two authors.
// Self-loops are dropped.
func (g *Graph) AddEdge(a, b string, weight float64) {
	if a == b || weight <= 0 {
		return
	}

	i, j := g.Node(a), g.Node(b)
	g.weights[i][j] += weight
	g.weights[j][i] += weight
}

// Order returns the node count.
func (g *Graph) Order() int { return len(g.ids) }

// ID returns the author handle at a node index.
func (g *Graph) ID(i int) string { return g.ids[i] }

// Degree returns the weighted degree of a node.
func (g *Graph) Degree(i int) float64 {
	var d float64
	for _, w := range g.weights[i] {
		d += w
	}

	return d
}

// EdgeCount returns the number of distinct undirected edges.
func (g *Graph) EdgeCount() int {
	total := 0
	for _, nbrs := range g.weights {
		total += len(nbrs)
	}

	return total / 2
}

// TotalWeight returns the sum of all undirected edge weights.
func (g *Graph) TotalWeight() float64 {
	var total float64
	for _, nbrs := range g.weights {
		for _, w := range nbrs {
			total += w
		}
	}

	return total / 2
}

// Louvain partitions the graph by single-level modularity optimization:
// every node starts in its own community, then nodes greedily move to the
// neighboring community with the best modularity gain until a full pass
// makes no move. Returns the community index per node.
func (g *Graph) Louvain() []int {
	n := g.Order()
	labels := make([]int, n)

	for i := range labels {
		labels[i] = i
	}

	m := g.TotalWeight()
	if m == 0 {
		return labels
	}

	// communityDegree tracks the summed weighted degree per community.
	communityDegree := make([]float64, n)
	for i := 0; i < n; i++ {
		communityDegree[i] = g.Degree(i)
	}

	for moved := true; moved; {
		moved = false

		for i := 0; i < n; i++ {
			current := labels[i]
			degree := g.Degree(i)

			// Weight from node i into each neighboring community.
			links := make(map[int]float64)
			for j, w := range g.weights[i] {
				links[labels[j]] += w
			}

			communityDegree[current] -= degree

			best, bestGain := current, 0.0

			for community, link := range links {
				gain := link - degree*communityDegree[community]/(2*m)
				if gain > bestGain {
					best, bestGain = community, gain
				}
			}

			communityDegree[best] += degree
			labels[i] = best

			if best != current {
				moved = true
			}
		}
	}

	return compactLabels(labels)
}

// compactLabels renumbers community labels to be contiguous from zero,
// ordered by first appearance.
func compactLabels(labels []int) []int {
	remap := make(map[int]int)
	next := 0

	for _, l := range labels {
		if _, ok := remap[l]; !ok {
			remap[l] = next
			next++
		}
	}

	out := make([]int, len(labels))
	for i, l := range labels {
		out[i] = remap[l]
	}

	return out
}

// Members groups node indices by community label, each group sorted.
func Members(labels []int) map[int][]int {
	groups := make(map[int][]int)

	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}

	for _, g := range groups {
		sort.Ints(g)
	}

	return groups
}
