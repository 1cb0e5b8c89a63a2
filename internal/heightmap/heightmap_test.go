package heightmap

import (
	"math/rand"
	"testing"

	"renderbot.ai/internal/protocol"
)

func TestBuild_KeepsMaximumPerCell(t *testing.T) {
	idx := Build([]protocol.Feature{{X: 1, Z: 1, Height: 3}, {X: 1, Z: 1, Height: 7}, {X: 1, Z: 1, Height: 5}})
	h, ok := idx.Query(protocol.Coord{X: 1, Z: 1})
	if !ok || h != 7 {
		t.Fatalf("Query(1,1)=%v,%v want 7,true", h, ok)
	}
}

func TestBuild_OrderIndependent(t *testing.T) {
	base := []protocol.Feature{
		{X: 0, Z: 0, Height: 1}, {X: 0, Z: 0, Height: 4.5}, {X: 0, Z: 0, Height: 2},
		{X: 3, Z: -2, Height: 9}, {X: 3, Z: -2, Height: 0},
		{X: -1, Z: 5, Height: 0.25},
	}
	want := Build(base)
	r := rand.New(rand.NewSource(7))
	for n := 0; n < 20; n++ {
		shuffled := append([]protocol.Feature(nil), base...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		// Also vary how the samples are split across collections.
		cut := r.Intn(len(shuffled) + 1)
		got := Build(shuffled[:cut], nil, shuffled[cut:])
		for _, c := range want.Coords() {
			wh, _ := want.Query(c)
			gh, ok := got.Query(c)
			if !ok || gh != wh {
				t.Fatalf("shuffle %d: Query(%v)=%v,%v want %v", n, c, gh, ok, wh)
			}
		}
		if got.Len() != want.Len() {
			t.Fatalf("shuffle %d: len=%d want %d", n, got.Len(), want.Len())
		}
	}
}

func TestQuery_UnknownDistinctFromZero(t *testing.T) {
	idx := Build([]protocol.Feature{{X: 2, Z: 2, Height: 0}})
	h, ok := idx.Query(protocol.Coord{X: 2, Z: 2})
	if !ok || h != 0 {
		t.Fatalf("stored zero: got %v,%v", h, ok)
	}
	if _, ok := idx.Query(protocol.Coord{X: 9, Z: 9}); ok {
		t.Fatalf("unseen cell reported as known")
	}
	var nilIdx *Index
	if _, ok := nilIdx.Query(protocol.Coord{}); ok {
		t.Fatalf("nil index reported a height")
	}
}

func TestFromWorld_FoldsAllCollections(t *testing.T) {
	w := protocol.WorldInfo{World: protocol.WorldData{
		Blocks:      []protocol.Feature{{X: 0, Z: 0, Height: 1}},
		Forest:      []protocol.Feature{{X: 0, Z: 0, Height: 3}, {X: 1, Z: 0, Height: 2}},
		ExtraMeshes: []protocol.Feature{{X: 1, Z: 0, Height: 1.5}, {X: 2, Z: 0, Height: 4}},
	}}
	idx := FromWorld(w)
	cases := map[protocol.Coord]float64{{X: 0, Z: 0}: 3, {X: 1, Z: 0}: 2, {X: 2, Z: 0}: 4}
	for c, want := range cases {
		if h, ok := idx.Query(c); !ok || h != want {
			t.Fatalf("Query(%v)=%v,%v want %v", c, h, ok, want)
		}
	}
	fs := idx.Features()
	if len(fs) != 3 || fs[0].X != 0 || fs[2].X != 2 {
		t.Fatalf("features=%+v", fs)
	}
}
