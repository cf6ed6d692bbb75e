package godf

import (
	"testing"
)

// Identical (kind, size) requests must return the same device table.
func TestTableReuse(t *testing.T) {
	m := newTestManager(t, DefaultConfig())
	tc := m.devices[0].pumap

	p1, err := tc.fetch(TableUnpack2D, 8)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	p2, err := tc.fetch(TableUnpack2D, 8)
	if err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	// Same device region: a write through one is seen through the other.
	saved := p1.Int32()[0]
	p1.Int32()[0] = -123
	if p2.Int32()[0] != -123 {
		t.Error("refetch returned a different device table")
	}
	p1.Int32()[0] = saved

	// Different sizes and kinds are distinct entries.
	p3, _ := tc.fetch(TableUnpack2D, 9)
	if p3.Size() == p1.Size() {
		t.Error("different sizes share a table allocation")
	}
	if _, err := tc.fetch(TableH2effUnpack, 8); err != nil {
		t.Fatalf("fetch h2eff-unpack failed: %v", err)
	}
	if len(tc.tables) != 3 {
		t.Errorf("expected 3 cached tables, got %d", len(tc.tables))
	}
}

func TestTableValidation(t *testing.T) {
	m := newTestManager(t, DefaultConfig())
	tc := m.devices[0].pumap

	if _, err := tc.fetch(TableUnpack2D, 0); !IsInvalidArgError(err) {
		t.Errorf("zero size: expected invalid-arg error, got %v", err)
	}
	if _, err := tc.fetch(TableKind(77), 4); !IsInvalidArgError(err) {
		t.Errorf("unknown kind: expected invalid-arg error, got %v", err)
	}
}

func TestUnpack2DTable(t *testing.T) {
	const n = 6
	table := buildUnpack2D(n)
	if len(table) != n*n {
		t.Fatalf("table has %d entries, want %d", len(table), n*n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := trilIndex(i, j)
			if i < j {
				want = trilIndex(j, i)
			}
			if got := int(table[i*n+j]); got != want {
				t.Errorf("table[%d,%d] = %d, want %d", i, j, got, want)
			}
		}
	}
}

// Packing after unpacking must reproduce the packed input exactly.
func TestH2effTableRoundTrip(t *testing.T) {
	const ncas = 4
	npair := ncas * (ncas + 1) / 2
	unpack := buildH2effUnpack(ncas)
	pack := buildH2effPack(ncas)
	if len(unpack) != ncas*ncas*ncas {
		t.Fatalf("unpack table has %d entries, want %d", len(unpack), ncas*ncas*ncas)
	}
	if len(pack) != ncas*npair {
		t.Fatalf("pack table has %d entries, want %d", len(pack), ncas*npair)
	}

	packed := make([]float64, ncas*npair)
	for i := range packed {
		packed[i] = float64(i) * 1.5
	}
	dense := make([]float64, ncas*ncas*ncas)
	for i := range dense {
		dense[i] = packed[unpack[i]]
	}
	// Dense copies of a symmetric pair must agree.
	for u := 0; u < ncas; u++ {
		for v := 0; v < ncas; v++ {
			for w := 0; w < ncas; w++ {
				if dense[(u*ncas+v)*ncas+w] != dense[(u*ncas+w)*ncas+v] {
					t.Fatalf("unpacked tensor not pair-symmetric at (%d,%d,%d)", u, v, w)
				}
			}
		}
	}
	for i := range packed {
		if got := dense[pack[i]]; got != packed[i] {
			t.Errorf("round trip broke packed[%d]: got %g, want %g", i, got, packed[i])
		}
	}
}

func TestTrilIndex(t *testing.T) {
	// Packed indices enumerate the lower triangle row by row.
	want := 0
	for i := 0; i < 10; i++ {
		for j := 0; j <= i; j++ {
			if got := trilIndex(i, j); got != want {
				t.Fatalf("trilIndex(%d,%d) = %d, want %d", i, j, got, want)
			}
			want++
		}
	}
}
