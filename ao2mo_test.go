package godf

import (
	"math/rand"
	"testing"
)

func TestTransformAO2MOMatchesReference(t *testing.T) {
	const nao, nmo, nauxb = 9, 7, 5
	naoPair := nao * (nao + 1) / 2
	rng := rand.New(rand.NewSource(30))

	m := newTestManager(t, DefaultConfig())
	src := NewSourceID()
	eri := randSlice(rng, nauxb*naoPair)
	mo := randSlice(rng, nao*nmo)
	tol := DefaultTolerance()
	var ref Reference

	cases := []struct {
		name               string
		braStart, braCount int
		ketStart, ketCount int
		mode               int
	}{
		{"full hermitian", 0, nmo, 0, nmo, Hermitian},
		{"occ x virt", 0, 3, 3, 4, Hermitian},
		{"antihermitian", 1, 4, 2, 3, AntiHermitian},
		{"symmetric window", 2, 5, 0, 2, Symmetric},
	}
	for _, tc := range cases {
		got, err := m.TransformAO2MO(0, src, 0, eri, mo, nao, nmo,
			tc.braStart, tc.braCount, tc.ketStart, tc.ketCount, tc.mode)
		if err != nil {
			t.Fatalf("%s: TransformAO2MO failed: %v", tc.name, err)
		}
		want := ref.AO2MO(eri, mo, nao, nmo,
			tc.braStart, tc.braCount, tc.ketStart, tc.ketCount, tc.mode)
		if err := tol.Verify(tc.name, got, want); err != nil {
			t.Error(err)
		}
	}
}

// An empty shell window yields an empty result with no device work.
func TestTransformAO2MOEmptyWindow(t *testing.T) {
	const nao, nmo = 6, 4
	naoPair := nao * (nao + 1) / 2
	rng := rand.New(rand.NewSource(31))

	m := newTestManager(t, DefaultConfig())
	eri := randSlice(rng, 2*naoPair)
	mo := randSlice(rng, nao*nmo)

	out, err := m.TransformAO2MO(0, NewSourceID(), 0, eri, mo, nao, nmo, 0, 0, 0, nmo, Hermitian)
	if err != nil {
		t.Fatalf("empty bra failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("empty bra produced %d values", len(out))
	}
	out, err = m.TransformAO2MO(0, NewSourceID(), 0, eri, mo, nao, nmo, 0, nmo, 2, 0, Hermitian)
	if err != nil {
		t.Fatalf("empty ket failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("empty ket produced %d values", len(out))
	}
}

// Repeated transforms over the same source must reuse the cached block.
func TestTransformAO2MOCacheReuse(t *testing.T) {
	const nao, nmo = 5, 5
	naoPair := nao * (nao + 1) / 2
	rng := rand.New(rand.NewSource(32))

	m := newTestManager(t, DefaultConfig())
	src := NewSourceID()
	eri := randSlice(rng, 3*naoPair)
	mo := randSlice(rng, nao*nmo)

	for i := 0; i < 3; i++ {
		if _, err := m.TransformAO2MO(0, src, 0, eri, mo, nao, nmo, 0, nmo, 0, nmo, Hermitian); err != nil {
			t.Fatalf("transform %d failed: %v", i, err)
		}
	}
	bs := blockStats(t, m, src, 0)
	if bs.Updates != 1 {
		t.Errorf("expected 1 transfer across 3 transforms, got %d", bs.Updates)
	}
	if bs.Hits != 3 {
		t.Errorf("expected 3 hits, got %d", bs.Hits)
	}
}

func TestTransformAO2MOValidation(t *testing.T) {
	const nao, nmo = 4, 4
	naoPair := nao * (nao + 1) / 2
	rng := rand.New(rand.NewSource(33))

	m := newTestManager(t, DefaultConfig())
	src := NewSourceID()
	eri := randSlice(rng, naoPair)
	mo := randSlice(rng, nao*nmo)

	if _, err := m.TransformAO2MO(0, src, 0, eri, mo, nao, nmo, 0, nmo+1, 0, nmo, Hermitian); !IsShapeError(err) {
		t.Errorf("bra overflow: expected shape error, got %v", err)
	}
	if _, err := m.TransformAO2MO(0, src, 0, eri, mo, nao, nmo, -1, 2, 0, nmo, Hermitian); !IsShapeError(err) {
		t.Errorf("negative bra start: expected shape error, got %v", err)
	}
	if _, err := m.TransformAO2MO(0, src, 0, eri, mo, nao, nmo, 0, nmo, 3, 2, Hermitian); !IsShapeError(err) {
		t.Errorf("ket overflow: expected shape error, got %v", err)
	}
	if _, err := m.TransformAO2MO(0, src, 0, eri, mo, nao, nmo, 0, nmo, 0, nmo, 99); !IsInvalidArgError(err) {
		t.Errorf("bad mode: expected invalid-arg error, got %v", err)
	}
	if _, err := m.TransformAO2MO(0, src, 0, eri[:naoPair-1], mo, nao, nmo, 0, nmo, 0, nmo, Hermitian); !IsShapeError(err) {
		t.Errorf("ragged block: expected shape error, got %v", err)
	}
	if _, err := m.TransformAO2MO(0, src, 0, eri, mo[:3], nao, nmo, 0, nmo, 0, nmo, Hermitian); !IsShapeError(err) {
		t.Errorf("short mo: expected shape error, got %v", err)
	}
}
