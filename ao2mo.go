package godf

import (
	"fmt"

	"github.com/gqcx/godf/compute/blas64"
)

// validateWindow checks one orbital shell window against the MO count
func validateWindow(op, name string, start, count, nmo int) error {
	if start < 0 || count < 0 || start+count > nmo {
		return NewShapeError(op,
			fmt.Sprintf("%s window [%d,%d) outside [0,%d)", name, start, start+count, nmo))
	}
	return nil
}

// TransformAO2MO transforms one triangular-packed integral block from
// the AO basis into the MO basis restricted to the bra/ket windows:
//
//	out[p, i, j] = sum_{uv} C[u, braStart+i] E_p[u, v] C[v, ketStart+j]
//
// mode selects the Hermitian/AntiHermitian/Symmetric unpacking of the
// packed rows; with AntiHermitian, overlapping bra and ket windows
// produce the antisymmetrized block rather than double-counting the
// diagonal. Empty windows yield an empty result without dispatch. The
// block is fetched through the ERI cache, so repeated transforms over
// the same source re-use the device copy.
func (m *Manager) TransformAO2MO(device int, src SourceID, block int, eri, mo []float64,
	nao, nmo, braStart, braCount, ketStart, ketCount, mode int) ([]float64, error) {

	dd, err := m.device("TransformAO2MO", device)
	if err != nil {
		return nil, err
	}
	if nao <= 0 || nmo <= 0 {
		return nil, NewShapeError("TransformAO2MO",
			fmt.Sprintf("nao=%d nmo=%d must be positive", nao, nmo))
	}
	if len(mo) != nao*nmo {
		return nil, NewShapeError("TransformAO2MO",
			fmt.Sprintf("mo coefficients: got %d values, want nao*nmo = %d", len(mo), nao*nmo))
	}
	if mode != Hermitian && mode != AntiHermitian && mode != Symmetric {
		return nil, NewInvalidArgError("TransformAO2MO",
			fmt.Sprintf("unknown symmetry mode %d", mode))
	}
	if err := validateWindow("TransformAO2MO", "bra", braStart, braCount, nmo); err != nil {
		return nil, err
	}
	if err := validateWindow("TransformAO2MO", "ket", ketStart, ketCount, nmo); err != nil {
		return nil, err
	}
	naoPair := nao * (nao + 1) / 2
	if len(eri) == 0 || len(eri)%naoPair != 0 {
		return nil, NewShapeError("TransformAO2MO",
			fmt.Sprintf("integral block: %d values is not a multiple of nao_pair %d", len(eri), naoPair))
	}
	nauxb := len(eri) / naoPair

	// Empty shell windows contribute nothing.
	if braCount == 0 || ketCount == 0 {
		return []float64{}, nil
	}

	// Temporaries may still be in flight from earlier submissions.
	dd.stream.Synchronize()

	if _, err := dd.EnsureCapacity(BufTmp1, nauxb*nao*nao); err != nil {
		return nil, err
	}
	if _, err := dd.EnsureCapacity(BufTmp2, nauxb*nao*ketCount); err != nil {
		return nil, err
	}
	if _, err := dd.EnsureCapacity(BufTmp3, nauxb*braCount*ketCount); err != nil {
		return nil, err
	}
	if _, err := dd.EnsureCapacity(BufMO, nao*(braCount+ketCount)); err != nil {
		return nil, err
	}

	// Stage the bra/ket coefficient windows contiguously.
	coeff := make([]float64, nao*(braCount+ketCount))
	for u := 0; u < nao; u++ {
		for i := 0; i < braCount; i++ {
			coeff[u*braCount+i] = mo[u*nmo+braStart+i]
		}
	}
	ket := coeff[nao*braCount:]
	for u := 0; u < nao; u++ {
		for j := 0; j < ketCount; j++ {
			ket[u*ketCount+j] = mo[u*nmo+ketStart+j]
		}
	}
	if err := m.backend.Memcpy(dd.buffers[BufMO].ptr, coeff, len(coeff)*8, MemcpyHostToDevice); err != nil {
		return nil, err
	}

	table, err := dd.pumap.fetch(TableUnpack2D, nao)
	if err != nil {
		return nil, err
	}
	eriPtr, err := dd.eri.fetch(dd, src, block, eri, dd.sourceChanged)
	if err != nil {
		return nil, err
	}

	dd.stream.Submit(func() {
		e := eriPtr.Float64()[:nauxb*naoPair]
		tbl := table.Int32()[:nao*nao]
		full := dd.buffers[BufTmp1].ptr.Float64()
		half := dd.buffers[BufTmp2].ptr.Float64()
		out := dd.buffers[BufTmp3].ptr.Float64()
		cbra := dd.buffers[BufMO].ptr.Float64()[:nao*braCount]
		cket := dd.buffers[BufMO].ptr.Float64()[nao*braCount : nao*(braCount+ketCount)]

		for p := 0; p < nauxb; p++ {
			ep := full[p*nao*nao : (p+1)*nao*nao]
			unpackTrilTable(nao, e[p*naoPair:(p+1)*naoPair], ep, tbl, mode)

			hp := half[p*nao*ketCount : (p+1)*nao*ketCount]
			blas64.Dgemm(false, false, nao, ketCount, nao,
				1.0, ep, nao, cket, ketCount, 0.0, hp, ketCount)
			blas64.Dgemm(true, false, braCount, ketCount, nao,
				1.0, cbra, braCount, hp, ketCount,
				0.0, out[p*braCount*ketCount:(p+1)*braCount*ketCount], ketCount)
		}
	})

	dd.stream.Synchronize()
	result := make([]float64, nauxb*braCount*ketCount)
	if err := m.backend.Memcpy(result, dd.buffers[BufTmp3].ptr, len(result)*8, MemcpyDeviceToHost); err != nil {
		return nil, err
	}
	return result, nil
}
