package interp

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// vertex is a triangulation vertex stored in the k-d tree.
type vertex struct {
	p  point
	id int
}

// Compare implements kdtree.Comparable.
func (v vertex) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(vertex)
	switch d {
	case 0:
		return v.p.x - q.p.x
	case 1:
		return v.p.y - q.p.y
	default:
		panic("illegal dimension")
	}
}

// Dims implements kdtree.Comparable.
func (v vertex) Dims() int { return 2 }

// Distance returns the squared Euclidean distance.
func (v vertex) Distance(c kdtree.Comparable) float64 {
	q := c.(vertex)
	dx, dy := v.p.x-q.p.x, v.p.y-q.p.y
	return dx*dx + dy*dy
}

// vertices satisfies kdtree.Interface.
type vertices []vertex

func (vs vertices) Index(i int) kdtree.Comparable         { return vs[i] }
func (vs vertices) Len() int                              { return len(vs) }
func (vs vertices) Slice(start, end int) kdtree.Interface { return vs[start:end] }

// Pivot stably sorts along d and takes the middle element, so the tree
// shape depends only on the input order.
func (vs vertices) Pivot(d kdtree.Dim) int {
	sort.Stable(plane{vertices: vs, Dim: d})
	return len(vs) / 2
}

type plane struct {
	vertices
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.vertices[i].p.x < p.vertices[j].p.x
	case 1:
		return p.vertices[i].p.y < p.vertices[j].p.y
	default:
		panic("illegal dimension")
	}
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{vertices: p.vertices[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.vertices[i], p.vertices[j] = p.vertices[j], p.vertices[i]
}

// locator finds the triangle containing a point. A walk starts from a
// triangle incident to the nearest vertex and steps across the edge with the
// most negative barycentric weight until every weight is non-negative.
type locator struct {
	tr   *triangulation
	tree *kdtree.Tree
}

func newLocator(tr *triangulation) *locator {
	vs := make(vertices, len(tr.pts))
	for i, p := range tr.pts {
		vs[i] = vertex{p: p, id: i}
	}
	return &locator{tr: tr, tree: kdtree.New(vs, false)}
}

// locate returns the containing triangle and the barycentric weights of p,
// or -1 when p lies outside the convex hull.
func (l *locator) locate(p point) (int, [3]float64) {
	start := 0
	if nearest, _ := l.tree.Nearest(vertex{p: p}); nearest != nil {
		if t := l.tr.vertexTri[nearest.(vertex).id]; t >= 0 {
			start = t
		}
	}

	t := start
	for steps := 0; steps <= len(l.tr.tris); steps++ {
		w := l.tr.barycentric(t, p)
		worst := 0
		for i := 1; i < 3; i++ {
			if w[i] < w[worst] {
				worst = i
			}
		}
		if w[worst] >= -eps {
			if w[worst] <= eps {
				// On an edge or vertex several triangles qualify; the
				// lowest index wins regardless of where the walk began.
				return l.scan(p)
			}
			return t, w
		}

		n := l.tr.nbrs[t][worst]
		if n < 0 {
			// The hull is convex, so lying beyond a hull edge means lying
			// outside the hull.
			return -1, [3]float64{}
		}
		t = n
	}

	return l.scan(p)
}

// scan returns the lowest-index triangle containing p. It is the fallback
// when a walk does not settle and the tie-break for points on shared edges.
func (l *locator) scan(p point) (int, [3]float64) {
	for t := range l.tr.tris {
		w := l.tr.barycentric(t, p)
		if w[0] >= -eps && w[1] >= -eps && w[2] >= -eps {
			return t, w
		}
	}
	return -1, [3]float64{}
}
