package utils

import (
	"testing"
)

func TestLattice_Coordinates(t *testing.T) {
	l := Lattice{NX: 3, NY: 2, NZ: 2, Spacing: 0.5}
	if n := l.NumPoints(); n != 12 {
		t.Fatalf("Expected 12 points, got %d", n)
	}

	// Point (1, 1, 1)
	x := l.Coordinates(1 + 3*(1+2*1))
	if x != [3]float64{0.5, 0.5, 0.5} {
		t.Errorf("Expected (0.5, 0.5, 0.5), got %v", x)
	}

	// Corner point has one neighbor along each axis
	if got := l.Neighbors(0, 0.5); len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 6 {
		t.Errorf("Expected neighbors [1 3 6], got %v", got)
	}

	if err := (Lattice{NX: 0, NY: 1, NZ: 1, Spacing: 1}).Validate(); err == nil {
		t.Error("Expected an error for an empty lattice")
	}
}

func TestDecomposition(t *testing.T) {
	seen := make(map[int]int)
	for rank := 0; rank < 3; rank++ {
		block := BlockGIDs(10, 3, rank)
		for _, gid := range block {
			seen[gid]++
		}
		// 10 points over 3 ranks: 4, 3, 3
		expected := 3
		if rank == 0 {
			expected = 4
		}
		if len(block) != expected {
			t.Errorf("Rank %d: expected %d points, got %d", rank, expected, len(block))
		}
		for _, gid := range CyclicGIDs(10, 3, rank) {
			if gid%3 != rank {
				t.Errorf("Rank %d: cyclic id %d belongs elsewhere", rank, gid)
			}
		}
	}
	if len(seen) != 10 {
		t.Errorf("Expected 10 distinct ids, got %d", len(seen))
	}
	for gid, n := range seen {
		if n != 1 {
			t.Errorf("Id %d assigned %d times", gid, n)
		}
	}
}
