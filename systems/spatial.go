// Package systems implements the per-frame stages of the flocking engine:
// neighbor indexing, steering, partitioning and integration.
package systems

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/flock/config"
)

// Neighbor is one k-nearest query result.
type Neighbor struct {
	Index  int
	Pos    r2.Vec
	DistSq float64 // squared distance to the query point
}

// SpatialIndex answers neighborhood queries over the positions passed to the
// last Rebuild. After Rebuild returns, queries are read-only and may run
// concurrently from multiple goroutines.
type SpatialIndex interface {
	// Rebuild replaces the indexed point set.
	Rebuild(positions []r2.Vec)
	// QueryRadius appends the indices of all points within radius of p to dst.
	QueryRadius(dst []int, p r2.Vec, radius float64) []int
	// QueryKNearest appends up to k nearest points to dst, ordered by distance
	// then index.
	QueryKNearest(dst []Neighbor, p r2.Vec, k int) []Neighbor
}

// NewIndex builds the spatial index selected by cfg. Both strategies cap
// radius results at spatial.max_neighbors.
func NewIndex(cfg *config.Config) SpatialIndex {
	if cfg.Derived.UseKDTree {
		k := cfg.Spatial.KNearestCap
		if k == 0 {
			k = DefaultKNearestCap
		}
		// Nearest gathering asks for k+1 to leave room for the querying agent.
		t := NewKDTree(k + 1)
		t.MaxResults = cfg.Spatial.MaxNeighbors
		return t
	}
	g := NewSpatialGrid(cfg.World.Width, cfg.World.Height, cfg.Derived.CellSize)
	g.MaxResults = cfg.Spatial.MaxNeighbors
	return g
}

// maxGridCells bounds the cell count; finer requests get larger cells.
const maxGridCells = 1 << 20

// SpatialGrid provides O(1) neighbor lookups using a uniform cell grid.
// Points outside the world are clamped into the edge cells.
type SpatialGrid struct {
	cellSize float64
	cols     int
	rows     int
	cells    [][]int32 // flat grid of agent index lists
	used     []int32   // cells made non-empty by the last Rebuild
	points   []r2.Vec

	// MaxResults caps radius query results. Zero means unlimited.
	MaxResults int
}

// NewSpatialGrid creates a spatial grid covering the given world size.
func NewSpatialGrid(width, height, cellSize float64) *SpatialGrid {
	if cellSize <= 0 || math.IsNaN(cellSize) {
		cellSize = 1
	}
	width, height = max(width, 0), max(height, 0)
	for (width/cellSize+1)*(height/cellSize+1) > maxGridCells {
		cellSize *= 2
	}
	cols := int(width/cellSize) + 1
	rows := int(height/cellSize) + 1

	return &SpatialGrid{
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		cells:    make([][]int32, cols*rows),
	}
}

// CellSize returns the grid's cell edge length.
func (g *SpatialGrid) CellSize() float64 { return g.cellSize }

// Rebuild clears the cells touched last time and inserts every position in O(n).
func (g *SpatialGrid) Rebuild(positions []r2.Vec) {
	for _, c := range g.used {
		g.cells[c] = g.cells[c][:0]
	}
	g.used = g.used[:0]
	g.points = positions
	for i, p := range positions {
		idx := g.cellIndex(p)
		if len(g.cells[idx]) == 0 {
			g.used = append(g.used, int32(idx))
		}
		g.cells[idx] = append(g.cells[idx], int32(i))
	}
}

// QueryRadius appends the indices of all points within radius of p (inclusive).
// The scan covers every cell overlapping the query square and filters by
// squared distance.
func (g *SpatialGrid) QueryRadius(dst []int, p r2.Vec, radius float64) []int {
	if radius <= 0 || len(g.points) == 0 {
		return dst
	}

	c0, c1 := g.span(p.X-radius, p.X+radius, g.cols)
	r0, r1 := g.span(p.Y-radius, p.Y+radius, g.rows)
	radiusSq := radius * radius
	found := 0

	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			for _, i := range g.cells[row*g.cols+col] {
				if distanceSq(g.points[i], p) > radiusSq {
					continue
				}
				dst = append(dst, int(i))
				found++
				// Early exit if we hit the cap
				if g.MaxResults > 0 && found >= g.MaxResults {
					return dst
				}
			}
		}
	}
	return dst
}

// QueryKNearest expands square rings of cells around p until the k-th best
// candidate is closer than anything in the unscanned cells.
func (g *SpatialGrid) QueryKNearest(dst []Neighbor, p r2.Vec, k int) []Neighbor {
	if k <= 0 || len(g.points) == 0 {
		return dst
	}

	base := len(dst)
	cc := clampInt(int(math.Floor(p.X/g.cellSize)), 0, g.cols-1)
	cr := clampInt(int(math.Floor(p.Y/g.cellSize)), 0, g.rows-1)
	maxRing := max(g.cols, g.rows)

	for ring := 0; ring <= maxRing; ring++ {
		for row := cr - ring; row <= cr+ring; row++ {
			if row < 0 || row >= g.rows {
				continue
			}
			for col := cc - ring; col <= cc+ring; col++ {
				if col < 0 || col >= g.cols {
					continue
				}
				// Only the ring's perimeter is new
				if row != cr-ring && row != cr+ring && col != cc-ring && col != cc+ring {
					continue
				}
				for _, i := range g.cells[row*g.cols+col] {
					q := g.points[i]
					dst = append(dst, Neighbor{Index: int(i), Pos: q, DistSq: distanceSq(q, p)})
				}
			}
		}

		found := dst[base:]
		if len(found) < k {
			continue
		}
		sortNeighbors(found)
		// Unscanned points lie at least ring*cellSize away. Points clamped into
		// edge cells may be farther from their cell than that, never closer.
		bound := float64(ring) * g.cellSize
		if found[k-1].DistSq <= bound*bound {
			break
		}
	}

	found := dst[base:]
	sortNeighbors(found)
	if len(found) > k {
		dst = dst[:base+k]
	}
	return dst
}

// span converts a world interval to a clamped inclusive cell range.
func (g *SpatialGrid) span(lo, hi float64, n int) (int, int) {
	a := clampInt(int(math.Floor(lo/g.cellSize)), 0, n-1)
	b := clampInt(int(math.Floor(hi/g.cellSize)), 0, n-1)
	return a, b
}

// cellIndex returns the flat index for a world position.
func (g *SpatialGrid) cellIndex(p r2.Vec) int {
	col := clampInt(int(math.Floor(p.X/g.cellSize)), 0, g.cols-1)
	row := clampInt(int(math.Floor(p.Y/g.cellSize)), 0, g.rows-1)
	return row*g.cols + col
}

// sortNeighbors orders by distance ascending, ties by index ascending.
func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(a, b int) bool {
		if ns[a].DistSq != ns[b].DistSq {
			return ns[a].DistSq < ns[b].DistSq
		}
		return ns[a].Index < ns[b].Index
	})
}
