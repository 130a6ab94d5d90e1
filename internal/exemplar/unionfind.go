package exemplar

// unionFind is a disjoint-set structure over candidate indices, used to
// collect duplicate clusters from the pairwise similarity matrix.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

// find returns the root of x, compressing the path as it goes.
func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// union merges the sets containing x and y, smaller set under larger.
func (uf *unionFind) union(x, y int) {
	rx, ry := uf.find(x), uf.find(y)
	if rx == ry {
		return
	}
	if uf.size[rx] < uf.size[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
}

// sets returns the disjoint sets with members in ascending index order, sets
// ordered by their smallest member. Index order matters: candidates are loaded
// by weight descending, so each set's first member is its highest-weight row.
func (uf *unionFind) sets() [][]int {
	groups := make(map[int][]int)
	var order []int
	for i := range uf.parent {
		root := uf.find(i)
		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], i)
	}

	result := make([][]int, 0, len(order))
	for _, root := range order {
		result = append(result, groups[root])
	}
	return result
}
