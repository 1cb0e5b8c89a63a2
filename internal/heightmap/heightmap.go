// Package heightmap folds terrain samples into a maximum-height lookup keyed
// by horizontal cell.
package heightmap

import (
	"sort"

	"renderbot.ai/internal/protocol"
)

// Index is immutable once built. Build a new one to reflect a new world
// snapshot.
type Index struct {
	heights map[protocol.Coord]float64
}

// Build folds every collection into one map, keeping the highest sample
// per cell. The result does not depend on the order of the samples.
func Build(collections ...[]protocol.Feature) *Index {
	n := 0
	for _, c := range collections {
		n += len(c)
	}
	idx := &Index{heights: make(map[protocol.Coord]float64, n)}
	for _, c := range collections {
		for _, f := range c {
			k := f.Coord()
			if h, ok := idx.heights[k]; !ok || f.Height > h {
				idx.heights[k] = f.Height
			}
		}
	}
	return idx
}

// FromWorld builds the index from a world_info snapshot.
func FromWorld(w protocol.WorldInfo) *Index {
	return Build(w.World.Blocks, w.World.Forest, w.World.ExtraMeshes)
}

// Query returns the stored height. ok is false for a cell no sample
// covered, which is distinct from a stored height of zero.
func (i *Index) Query(c protocol.Coord) (height float64, ok bool) {
	if i == nil {
		return 0, false
	}
	height, ok = i.heights[c]
	return height, ok
}

func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.heights)
}

// Coords returns every known cell sorted by x, then z.
func (i *Index) Coords() []protocol.Coord {
	if i == nil {
		return nil
	}
	out := make([]protocol.Coord, 0, len(i.heights))
	for c := range i.heights {
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].X != out[b].X {
			return out[a].X < out[b].X
		}
		return out[a].Z < out[b].Z
	})
	return out
}

// Features flattens the index back into one sample per cell, in Coords order.
func (i *Index) Features() []protocol.Feature {
	cs := i.Coords()
	out := make([]protocol.Feature, 0, len(cs))
	for _, c := range cs {
		out = append(out, protocol.Feature{X: c.X, Z: c.Z, Height: i.heights[c]})
	}
	return out
}
