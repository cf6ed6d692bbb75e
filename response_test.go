package godf

import (
	"math/rand"
	"testing"
)

func TestOrbitalResponseMatchesReference(t *testing.T) {
	const nmo, ncore, ncas = 7, 2, 3
	const nocc = ncore + ncas
	ncas2 := ncas * ncas
	rng := rand.New(rand.NewSource(50))

	m := newTestManager(t, DefaultConfig())
	ppaa := randSlice(rng, nmo*nmo*ncas2)
	papa := randSlice(rng, nmo*ncas*nmo*ncas)
	paaa := randSlice(rng, nmo*ncas*ncas2)
	ocm2 := randSlice(rng, ncas2*ncas2)
	tcm2 := randSlice(rng, ncas2*ncas2)
	gorb := randSlice(rng, nmo*nmo)

	got, err := m.OrbitalResponse(0, ppaa, papa, paaa, ocm2, tcm2, gorb, ncore, nocc, nmo)
	if err != nil {
		t.Fatalf("OrbitalResponse failed: %v", err)
	}

	var ref Reference
	want := ref.OrbitalResponse(ppaa, papa, paaa, ocm2, tcm2, gorb, ncore, nocc, nmo)
	if err := DefaultTolerance().Verify("orbital response", got, want); err != nil {
		t.Error(err)
	}
}

// With a symmetric gradient the output minus gorb is antisymmetric, the
// f1 - f1^T structure of the contraction.
func TestOrbitalResponseAntisymmetry(t *testing.T) {
	const nmo, ncore, ncas = 6, 1, 3
	const nocc = ncore + ncas
	ncas2 := ncas * ncas
	rng := rand.New(rand.NewSource(51))

	m := newTestManager(t, DefaultConfig())
	ppaa := randSlice(rng, nmo*nmo*ncas2)
	papa := randSlice(rng, nmo*ncas*nmo*ncas)
	paaa := randSlice(rng, nmo*ncas*ncas2)
	ocm2 := randSlice(rng, ncas2*ncas2)
	tcm2 := randSlice(rng, ncas2*ncas2)
	gorb := make([]float64, nmo*nmo)

	out, err := m.OrbitalResponse(0, ppaa, papa, paaa, ocm2, tcm2, gorb, ncore, nocc, nmo)
	if err != nil {
		t.Fatalf("OrbitalResponse failed: %v", err)
	}
	tol := DefaultTolerance()
	for p := 0; p < nmo; p++ {
		for q := 0; q < nmo; q++ {
			if !tol.Within(out[p*nmo+q], -out[q*nmo+p]) {
				t.Fatalf("not antisymmetric at (%d,%d): %g vs %g",
					p, q, out[p*nmo+q], out[q*nmo+p])
			}
		}
	}
}

func TestOrbitalResponseValidation(t *testing.T) {
	m := newTestManager(t, DefaultConfig())

	// nocc must equal ncore+ncas with everything inside nmo.
	if _, err := m.OrbitalResponse(0, nil, nil, nil, nil, nil, nil, 2, 1, 4); !IsShapeError(err) {
		t.Errorf("inverted window: expected shape error, got %v", err)
	}
	if _, err := m.OrbitalResponse(0, nil, nil, nil, nil, nil, nil, 0, 5, 4); !IsShapeError(err) {
		t.Errorf("window past nmo: expected shape error, got %v", err)
	}

	// Tensor length mismatches.
	const nmo, ncore, nocc = 4, 1, 3
	ncas := nocc - ncore
	ncas2 := ncas * ncas
	good := func(n int) []float64 { return make([]float64, n) }
	_, err := m.OrbitalResponse(0, good(3), good(nmo*ncas*nmo*ncas),
		good(nmo*ncas*ncas2), good(ncas2*ncas2), good(ncas2*ncas2), good(nmo*nmo),
		ncore, nocc, nmo)
	if !IsShapeError(err) {
		t.Errorf("short ppaa: expected shape error, got %v", err)
	}
}
