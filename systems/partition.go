package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// DefaultParallelThreshold is the agent count below which one partition is used.
	DefaultParallelThreshold = 100
	// DefaultMaxRegions caps the number of spatial regions.
	DefaultMaxRegions = 8
)

// Partition is the set of agent indices that fall in one spatial region for
// one frame. Indices are ascending.
type Partition struct {
	Region  int
	Indices []int
}

// PartitionOptions controls when and how finely the world is split.
type PartitionOptions struct {
	Threshold int // below this many agents, use one partition; zero selects the default
	Cap       int // maximum regions; zero selects the default
}

// Partition splits agents into disjoint spatial regions for parallel force
// computation. Partitions are appended to dst[:0] so the caller can reuse the
// Indices buffers across frames. Empty regions are dropped; the result is
// ordered by region and is identical for identical input.
func Partition(dst []Partition, positions []r2.Vec, bounds r2.Vec, workers int, opts PartitionOptions) []Partition {
	n := len(positions)
	if n == 0 {
		return dst[:0]
	}

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultParallelThreshold
	}
	limit := opts.Cap
	if limit <= 0 {
		limit = DefaultMaxRegions
	}

	if n < threshold {
		dst = resizePartitions(dst, 1)
		p := &dst[0]
		p.Region = 0
		p.Indices = p.Indices[:0]
		for i := 0; i < n; i++ {
			p.Indices = append(p.Indices, i)
		}
		return dst
	}

	regions := min(max(workers, 1), limit)
	side := int(math.Ceil(math.Sqrt(float64(regions))))
	cellW := bounds.X / float64(side)
	cellH := bounds.Y / float64(side)

	dst = resizePartitions(dst, side*side)
	for i := range dst {
		dst[i].Region = i
		dst[i].Indices = dst[i].Indices[:0]
	}

	for i, p := range positions {
		col := regionCoord(p.X, cellW, side)
		row := regionCoord(p.Y, cellH, side)
		r := row*side + col
		dst[r].Indices = append(dst[r].Indices, i)
	}

	// Compact non-empty regions to the front, keeping their buffers.
	out := 0
	for i := range dst {
		if len(dst[i].Indices) == 0 {
			continue
		}
		dst[out], dst[i] = dst[i], dst[out]
		out++
	}
	return dst[:out]
}

// regionCoord maps a coordinate to a clamped region column or row.
func regionCoord(x, cell float64, side int) int {
	if cell <= 0 || math.IsNaN(x) {
		return 0
	}
	f := math.Floor(x / cell)
	if f >= float64(side) {
		return side - 1
	}
	return clampInt(int(math.Max(f, 0)), 0, side-1)
}

// resizePartitions returns dst with length n, keeping existing Indices buffers.
func resizePartitions(dst []Partition, n int) []Partition {
	if cap(dst) >= n {
		return dst[:n]
	}
	grown := make([]Partition, n)
	copy(grown, dst[:cap(dst)])
	return grown
}
