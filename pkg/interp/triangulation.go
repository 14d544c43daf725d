package interp

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// eps is the tolerance used by the orientation, in-circle and containment
// predicates. Coordinates are normalized into a unit frame before any
// predicate runs, so a fixed absolute tolerance is meaningful.
const eps = 1e-12

var errDegenerate = errors.New("point set is degenerate")

// point is a coordinate in the normalized frame.
type point struct {
	x, y float64
}

// frame maps raw coordinates into a frame centred on the bounding box and
// scaled uniformly so the larger extent spans [-1, 1]. Uniform scaling and
// translation leave the Delaunay triangulation unchanged.
type frame struct {
	cx, cy, scale float64
}

func newFrame(xs, ys []float64) frame {
	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := range xs {
		minX, maxX = math.Min(minX, xs[i]), math.Max(maxX, xs[i])
		minY, maxY = math.Min(minY, ys[i]), math.Max(maxY, ys[i])
	}
	scale := math.Max(maxX-minX, maxY-minY) / 2
	if scale == 0 {
		scale = 1
	}
	return frame{cx: (minX + maxX) / 2, cy: (minY + maxY) / 2, scale: scale}
}

func (f frame) apply(x, y float64) point {
	return point{x: (x - f.cx) / f.scale, y: (y - f.cy) / f.scale}
}

// triangulation is an index-based planar subdivision. tris[t] holds the
// vertex indices of triangle t in counter-clockwise order and nbrs[t][i] is
// the triangle across the edge opposite tris[t][i], or -1 on the hull.
type triangulation struct {
	pts       []point
	tris      [][3]int
	nbrs      [][3]int
	vertexTri []int
}

// triangulate builds a Delaunay triangulation of pts. Points are inserted in
// lexicographic order, each new point being joined to every hull edge it
// can see; Lawson flips then restore the empty-circumcircle property.
func triangulate(pts []point) (*triangulation, error) {
	if len(pts) < 3 {
		return nil, fmt.Errorf("%w: %d points", errDegenerate, len(pts))
	}

	order := make([]int, len(pts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := pts[order[a]], pts[order[b]]
		if pa.x != pb.x {
			return pa.x < pb.x
		}
		return pa.y < pb.y
	})

	tr := &triangulation{pts: pts}
	hull, next, err := tr.seed(order)
	if err != nil {
		return nil, err
	}

	for _, q := range order[next:] {
		hull, err = tr.insertOutside(hull, q)
		if err != nil {
			return nil, err
		}
	}

	if err := tr.legalize(); err != nil {
		return nil, err
	}
	return tr, nil
}

// seed triangulates the collinear run at the start of order together with
// the first point off that line. It returns the counter-clockwise hull and
// the position in order of the next point to insert.
func (tr *triangulation) seed(order []int) ([]int, int, error) {
	p0, p1 := tr.pts[order[0]], tr.pts[order[1]]
	k := 2
	for ; k < len(order); k++ {
		if math.Abs(orient(p0, p1, tr.pts[order[k]])) > eps {
			break
		}
	}
	if k == len(order) {
		return nil, 0, fmt.Errorf("%w: all points are collinear", errDegenerate)
	}

	apex := order[k]
	line := order[:k]
	left := orient(p0, tr.pts[line[k-1]], tr.pts[apex]) > 0

	hull := make([]int, 0, k+1)
	if left {
		for i := 0; i+1 < len(line); i++ {
			tr.tris = append(tr.tris, [3]int{line[i], line[i+1], apex})
		}
		hull = append(hull, line...)
		hull = append(hull, apex)
	} else {
		for i := 0; i+1 < len(line); i++ {
			tr.tris = append(tr.tris, [3]int{line[i+1], line[i], apex})
		}
		hull = append(hull, line[0], apex)
		for i := len(line) - 1; i >= 1; i-- {
			hull = append(hull, line[i])
		}
	}
	return hull, k + 1, nil
}

// insertOutside adds vertex q, which lies outside the current hull, by
// fanning it to the contiguous chain of hull edges visible from q.
func (tr *triangulation) insertOutside(hull []int, q int) ([]int, error) {
	m := len(hull)
	pq := tr.pts[q]
	visible := func(e int) bool {
		a, b := hull[e%m], hull[(e+1)%m]
		return orient(tr.pts[a], tr.pts[b], pq) < -eps
	}

	start := -1
	for e := 0; e < m; e++ {
		if visible(e) {
			start = e
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: vertex %d sees no hull edge", errDegenerate, q)
	}

	// Widen [first, last] to the whole visible chain, which may wrap.
	first, last := start, start
	for n := 0; n < m && visible((first-1+m)%m); n++ {
		first = (first - 1 + m) % m
	}
	for n := 0; n < m && visible((last+1)%m); n++ {
		last = (last + 1) % m
	}

	for e := first; ; e = (e + 1) % m {
		a, b := hull[e], hull[(e+1)%m]
		tr.tris = append(tr.tris, [3]int{a, q, b})
		if e == last {
			break
		}
	}

	// Keep hull[last+1] .. hull[first], then close with q.
	next := make([]int, 0, m+1)
	for i := (last + 1) % m; ; i = (i + 1) % m {
		next = append(next, hull[i])
		if i == first {
			break
		}
	}
	return append(next, q), nil
}

// legalize flips edges that violate the Delaunay condition until none
// remain. Cocircular configurations are left alone, which keeps the result
// independent of floating-point noise. On return the neighbour arrays are
// current.
func (tr *triangulation) legalize() error {
	maxPasses := len(tr.pts)*len(tr.pts) + 16
	for pass := 0; ; pass++ {
		if pass > maxPasses {
			return fmt.Errorf("%w: edge flipping did not converge", errDegenerate)
		}

		tr.link()
		touched := make([]bool, len(tr.tris))
		flipped := false

		for t := range tr.tris {
			for i := 0; i < 3; i++ {
				n := tr.nbrs[t][i]
				if n < t || touched[t] || touched[n] {
					continue
				}
				if tr.flip(t, i, n) {
					touched[t], touched[n] = true, true
					flipped = true
				}
			}
		}

		if !flipped {
			return nil
		}
	}
}

// flip replaces the edge opposite tris[t][i], shared with triangle n, by the
// other diagonal of the quadrilateral when the opposite vertex of n lies
// strictly inside the circumcircle of t.
func (tr *triangulation) flip(t, i, n int) bool {
	a := tr.tris[t][i]
	b := tr.tris[t][(i+1)%3]
	c := tr.tris[t][(i+2)%3]

	d := -1
	for _, v := range tr.tris[n] {
		if v != b && v != c {
			d = v
		}
	}
	if d < 0 {
		return false
	}

	pa, pb, pc, pd := tr.pts[a], tr.pts[b], tr.pts[c], tr.pts[d]
	if inCircle(pa, pb, pc, pd) <= eps {
		return false
	}
	if orient(pa, pb, pd) <= eps || orient(pa, pd, pc) <= eps {
		return false
	}

	tr.tris[t] = [3]int{a, b, d}
	tr.tris[n] = [3]int{a, d, c}
	return true
}

// link rebuilds the neighbour arrays and the vertex-to-triangle index.
func (tr *triangulation) link() {
	type slot struct{ tri, idx int }
	edges := make(map[[2]int]slot, 3*len(tr.tris))

	tr.nbrs = make([][3]int, len(tr.tris))
	for t, tri := range tr.tris {
		for i := 0; i < 3; i++ {
			tr.nbrs[t][i] = -1
			key := edgeKey(tri[(i+1)%3], tri[(i+2)%3])
			if other, ok := edges[key]; ok {
				tr.nbrs[t][i] = other.tri
				tr.nbrs[other.tri][other.idx] = t
				continue
			}
			edges[key] = slot{tri: t, idx: i}
		}
	}

	tr.vertexTri = make([]int, len(tr.pts))
	for v := range tr.vertexTri {
		tr.vertexTri[v] = -1
	}
	for t, tri := range tr.tris {
		for _, v := range tri {
			if tr.vertexTri[v] < 0 {
				tr.vertexTri[v] = t
			}
		}
	}
}

// barycentric returns the barycentric coordinates of p with respect to
// triangle t. The weights sum to one; a weight is negative when p lies on
// the far side of the edge opposite that vertex.
func (tr *triangulation) barycentric(t int, p point) [3]float64 {
	tri := tr.tris[t]
	a, b, c := tr.pts[tri[0]], tr.pts[tri[1]], tr.pts[tri[2]]

	det := (b.y-c.y)*(a.x-c.x) + (c.x-b.x)*(a.y-c.y)
	l0 := ((b.y-c.y)*(p.x-c.x) + (c.x-b.x)*(p.y-c.y)) / det
	l1 := ((c.y-a.y)*(p.x-c.x) + (a.x-c.x)*(p.y-c.y)) / det
	return [3]float64{l0, l1, 1 - l0 - l1}
}

func edgeKey(u, v int) [2]int {
	if u > v {
		u, v = v, u
	}
	return [2]int{u, v}
}

// orient is twice the signed area of triangle abc; positive when abc turns
// counter-clockwise.
func orient(a, b, c point) float64 {
	return (b.x-a.x)*(c.y-a.y) - (b.y-a.y)*(c.x-a.x)
}

// inCircle is positive when d lies inside the circumcircle of the
// counter-clockwise triangle abc.
func inCircle(a, b, c, d point) float64 {
	adx, ady := a.x-d.x, a.y-d.y
	bdx, bdy := b.x-d.x, b.y-d.y
	cdx, cdy := c.x-d.x, c.y-d.y

	ad := adx*adx + ady*ady
	bd := bdx*bdx + bdy*bdy
	cd := cdx*cdx + cdy*cdy

	return ad*(bdx*cdy-cdx*bdy) - bd*(adx*cdy-cdx*ady) + cd*(adx*bdy-bdx*ady)
}
