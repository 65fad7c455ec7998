package systems

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultKNearestCap bounds k-nearest queries so dense clusters cannot blow up
// per-agent query cost.
const DefaultKNearestCap = 50

// treePoint is an indexed agent position satisfying kdtree.Comparable.
type treePoint struct {
	pos r2.Vec
	idx int
}

func (p treePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(treePoint)
	if d == 0 {
		return p.pos.X - q.pos.X
	}
	return p.pos.Y - q.pos.Y
}

func (p treePoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance, matching kdtree.Point.
func (p treePoint) Distance(c kdtree.Comparable) float64 {
	return distanceSq(p.pos, c.(treePoint).pos)
}

// treePoints satisfies kdtree.Interface.
type treePoints []treePoint

func (p treePoints) Index(i int) kdtree.Comparable { return p[i] }
func (p treePoints) Len() int                      { return len(p) }
func (p treePoints) Pivot(d kdtree.Dim) int        { return treePlane{treePoints: p, Dim: d}.Pivot() }
func (p treePoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

// treePlane sorts points along one dimension for median selection.
type treePlane struct {
	kdtree.Dim
	treePoints
}

func (p treePlane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.treePoints[i].pos.X < p.treePoints[j].pos.X
	}
	return p.treePoints[i].pos.Y < p.treePoints[j].pos.Y
}
func (p treePlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p treePlane) Slice(start, end int) kdtree.SortSlicer {
	return treePlane{Dim: p.Dim, treePoints: p.treePoints[start:end]}
}
func (p treePlane) Swap(i, j int) {
	p.treePoints[i], p.treePoints[j] = p.treePoints[j], p.treePoints[i]
}

// KDTree is a balanced 2-D tree rebuilt from scratch every frame.
type KDTree struct {
	tree   *kdtree.Tree
	points treePoints
	kCap   int

	// MaxResults caps radius query results to the lowest indices. Zero means unlimited.
	MaxResults int
}

// NewKDTree creates an empty tree. kCap bounds k-nearest queries; zero selects
// DefaultKNearestCap.
func NewKDTree(kCap int) *KDTree {
	if kCap <= 0 {
		kCap = DefaultKNearestCap
	}
	return &KDTree{kCap: kCap}
}

// Rebuild constructs a new tree over positions.
func (t *KDTree) Rebuild(positions []r2.Vec) {
	t.points = t.points[:0]
	for i, p := range positions {
		t.points = append(t.points, treePoint{pos: p, idx: i})
	}
	if len(t.points) == 0 {
		t.tree = nil
		return
	}
	// kdtree.New reorders its input; t.points is our own copy.
	t.tree = kdtree.New(t.points, false)
}

// QueryRadius appends the indices of points within radius of p, in index order.
func (t *KDTree) QueryRadius(dst []int, p r2.Vec, radius float64) []int {
	if radius <= 0 || t.tree == nil {
		return dst
	}
	keep := kdtree.NewDistKeeper(radius * radius)
	t.tree.NearestSet(keep, treePoint{pos: p, idx: -1})

	base := len(dst)
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		dst = append(dst, c.Comparable.(treePoint).idx)
	}
	sort.Ints(dst[base:])
	if t.MaxResults > 0 && len(dst)-base > t.MaxResults {
		dst = dst[:base+t.MaxResults]
	}
	return dst
}

// QueryKNearest appends up to min(k, cap) nearest points, ordered by distance then index.
func (t *KDTree) QueryKNearest(dst []Neighbor, p r2.Vec, k int) []Neighbor {
	if k <= 0 || t.tree == nil {
		return dst
	}
	k = min(k, t.kCap)
	q := treePoint{pos: p, idx: -1}

	// Keep one extra so a distance tie at the k-th place can be detected.
	nk := kdtree.NewNKeeper(k + 1)
	t.tree.NearestSet(nk, q)
	base := len(dst)
	dst = appendKept(dst, nk.Heap)
	found := dst[base:]
	sortNeighbors(found)

	if len(found) > k && found[k].DistSq == found[k-1].DistSq {
		// The keeper drops tied points arbitrarily; refetch everything at the
		// boundary distance so ties resolve by index.
		dk := kdtree.NewDistKeeper(found[k-1].DistSq)
		t.tree.NearestSet(dk, q)
		dst = appendKept(dst[:base], dk.Heap)
		sortNeighbors(dst[base:])
	}
	if len(dst)-base > k {
		dst = dst[:base+k]
	}
	return dst
}

func appendKept(dst []Neighbor, h kdtree.Heap) []Neighbor {
	for _, c := range h {
		// Keepers seed their heap with a sentinel that carries no point.
		if c.Comparable == nil {
			continue
		}
		tp := c.Comparable.(treePoint)
		dst = append(dst, Neighbor{Index: tp.idx, Pos: tp.pos, DistSq: c.Dist})
	}
	return dst
}
