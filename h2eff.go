package godf

import (
	"fmt"

	"github.com/gqcx/godf/compute/blas64"
)

// h2effEntry is the device-resident transformed-integral operand
// produced by GetH2effDF and rotated in place by UpdateH2effSub. It
// follows the same caching discipline as an ERI block: explicit
// source-changed flag first, shadow-sample backstop second.
type h2effEntry struct {
	src     SourceID
	ptr     DevicePtr
	elems   int
	hits    int64
	updates int64
	shadow  []float64
	stride  int
}

func (m *Manager) validateActive(op string, ncore, ncas, nmo int) error {
	if nmo <= 0 || ncas <= 0 || ncore < 0 || ncore+ncas > nmo {
		return NewShapeError(op,
			fmt.Sprintf("active window ncore=%d ncas=%d inconsistent with nmo=%d", ncore, ncas, nmo))
	}
	return nil
}

// GetH2effDF builds the active-space transformed integral tensor
// (pu|vw) from a source's DF block sequence: p runs over all nmo
// orbitals, u/v/w over the ncas active orbitals, and the (v,w) pair is
// triangular packed. The result is returned to the host and retained
// device-resident for subsequent UpdateH2effSub calls. Blocks stream
// through the ERI cache like any other operand.
func (m *Manager) GetH2effDF(device int, src SourceID, blocks [][]float64, mo []float64,
	nao, nmo, ncore, ncas int) ([]float64, error) {

	dd, err := m.device("GetH2effDF", device)
	if err != nil {
		return nil, err
	}
	if nao <= 0 {
		return nil, NewShapeError("GetH2effDF", fmt.Sprintf("nao=%d must be positive", nao))
	}
	if err := m.validateActive("GetH2effDF", ncore, ncas, nmo); err != nil {
		return nil, err
	}
	if len(mo) != nao*nmo {
		return nil, NewShapeError("GetH2effDF",
			fmt.Sprintf("mo coefficients: got %d values, want nao*nmo = %d", len(mo), nao*nmo))
	}
	naoPair := nao * (nao + 1) / 2
	maxAux := 0
	for i, blk := range blocks {
		if len(blk) == 0 || len(blk)%naoPair != 0 {
			return nil, NewShapeError("GetH2effDF",
				fmt.Sprintf("block %d: %d values is not a multiple of nao_pair %d",
					i, len(blk), naoPair))
		}
		if nb := len(blk) / naoPair; nb > maxAux {
			maxAux = nb
		}
	}
	if len(blocks) == 0 {
		return nil, NewInvalidArgError("GetH2effDF", "no integral blocks")
	}

	npair := ncas * (ncas + 1) / 2
	ncas2 := ncas * ncas
	outElems := nmo * ncas * npair

	dd.stream.Synchronize()

	// The resident operand owns its allocation so it survives unrelated
	// scratch-buffer growth.
	entry := dd.h2eff
	if entry == nil || entry.elems != outElems {
		if entry != nil && !entry.ptr.IsNil() {
			if err := m.backend.Free(device, entry.ptr); err != nil {
				return nil, err
			}
		}
		ptr, err := m.backend.Alloc(device, outElems*8)
		if err != nil {
			return nil, NewMemoryError("GetH2effDF",
				fmt.Sprintf("cannot allocate %d-element h2eff on device %d", outElems, device), err)
		}
		entry = &h2effEntry{ptr: ptr, elems: outElems}
		dd.h2eff = entry
	}
	entry.src = src

	// tmp2 holds, per block: the half transform W (nao x ncas per row),
	// the packed active pairs, and one dense ncas x ncas scratch.
	if _, err := dd.EnsureCapacity(BufTmp1, maxAux*nao*nao); err != nil {
		return nil, err
	}
	if _, err := dd.EnsureCapacity(BufTmp2, maxAux*(nao*ncas+npair)+ncas2); err != nil {
		return nil, err
	}
	if _, err := dd.EnsureCapacity(BufTmp3, maxAux*nmo*ncas); err != nil {
		return nil, err
	}
	if _, err := dd.EnsureCapacity(BufMO, nao*nmo); err != nil {
		return nil, err
	}
	if err := m.backend.Memcpy(dd.buffers[BufMO].ptr, mo, len(mo)*8, MemcpyHostToDevice); err != nil {
		return nil, err
	}

	unpackTbl, err := dd.pumap.fetch(TableUnpack2D, nao)
	if err != nil {
		return nil, err
	}
	packTbl, err := dd.pumap.fetch(TableH2effPack, ncas)
	if err != nil {
		return nil, err
	}

	dd.zero(entry.ptr, outElems)

	for i, blk := range blocks {
		if i > 0 && !m.cache.enabled() {
			dd.stream.Synchronize()
		}
		eriPtr, err := dd.eri.fetch(dd, src, i, blk, dd.sourceChanged)
		if err != nil {
			return nil, err
		}
		nauxb := len(blk) / naoPair
		out := entry.ptr
		dd.stream.Submit(func() {
			e := eriPtr.Float64()[:nauxb*naoPair]
			tbl := unpackTbl.Int32()[:nao*nao]
			pack := packTbl.Int32()[:ncas*npair]
			full := dd.buffers[BufTmp1].ptr.Float64()
			w := dd.buffers[BufTmp2].ptr.Float64()[:nauxb*nao*ncas]
			aPack := dd.buffers[BufTmp2].ptr.Float64()[maxAux*nao*ncas : maxAux*nao*ncas+nauxb*npair]
			aDense := dd.buffers[BufTmp2].ptr.Float64()[maxAux*(nao*ncas+npair) : maxAux*(nao*ncas+npair)+ncas2]
			t := dd.buffers[BufTmp3].ptr.Float64()
			moDev := dd.buffers[BufMO].ptr.Float64()[:nao*nmo]
			cact := moDev[ncore:] // nao x ncas window, row stride nmo

			for p := 0; p < nauxb; p++ {
				ep := full[p*nao*nao : (p+1)*nao*nao]
				unpackTrilTable(nao, e[p*naoPair:(p+1)*naoPair], ep, tbl, Hermitian)

				wp := w[p*nao*ncas : (p+1)*nao*ncas]
				blas64.Dgemm(false, false, nao, ncas, nao,
					1.0, ep, nao, cact, nmo, 0.0, wp, ncas)
				blas64.Dgemm(true, false, nmo, ncas, nao,
					1.0, moDev, nmo, wp, ncas, 0.0, t[p*nmo*ncas:(p+1)*nmo*ncas], ncas)
				blas64.Dgemm(true, false, ncas, ncas, nao,
					1.0, cact, nmo, wp, ncas, 0.0, aDense, ncas)
				for pr := 0; pr < npair; pr++ {
					aPack[p*npair+pr] = aDense[pack[pr]]
				}
			}

			// h2eff[mu, pair] += sum_p T_p[mu] A_p[pair]
			blas64.Dgemm(true, false, nmo*ncas, npair, nauxb,
				1.0, t, nmo*ncas, aPack, npair, 1.0, out.Float64()[:outElems], npair)
		})
	}

	dd.stream.Synchronize()
	result := make([]float64, outElems)
	if err := m.backend.Memcpy(result, entry.ptr, outElems*8, MemcpyDeviceToHost); err != nil {
		return nil, err
	}

	entry.hits++
	entry.updates++
	entry.shadow, entry.stride = sampleShadow(result, m.cfg.ShadowProbes)

	m.log.Debug("h2eff built", "device", device, "source", string(src),
		"blocks", len(blocks), "elems", outElems)
	return result, nil
}

// UpdateH2effSub rotates the cached transformed-integral tensor by the
// orbital rotation umat (nmo x nmo): the full index by umat, the three
// active indices by its active-active window. The caller's h2eff slice
// is both the staleness reference and the output: if the device copy is
// current (same source, no changed flag, shadow probes agree) the upload
// is skipped, and the rotated tensor is written back into h2eff.
func (m *Manager) UpdateH2effSub(device int, src SourceID, ncore, ncas, nmo int, umat, h2eff []float64) error {
	dd, err := m.device("UpdateH2effSub", device)
	if err != nil {
		return err
	}
	if err := m.validateActive("UpdateH2effSub", ncore, ncas, nmo); err != nil {
		return err
	}
	if len(umat) != nmo*nmo {
		return NewShapeError("UpdateH2effSub",
			fmt.Sprintf("umat: got %d values, want nmo^2 = %d", len(umat), nmo*nmo))
	}
	npair := ncas * (ncas + 1) / 2
	ncas3 := ncas * ncas * ncas
	elems := nmo * ncas * npair
	if len(h2eff) != elems {
		return NewShapeError("UpdateH2effSub",
			fmt.Sprintf("h2eff: got %d values, want nmo*ncas*pair = %d", len(h2eff), elems))
	}

	dd.stream.Synchronize()

	// Resident-operand staleness check, same discipline as the ERI cache.
	entry := dd.h2eff
	fresh := entry != nil && entry.src == src && entry.elems == elems &&
		!dd.sourceChanged && shadowEqual(entry.shadow, entry.stride, h2eff)
	if !fresh {
		if entry == nil || entry.elems != elems {
			if entry != nil && !entry.ptr.IsNil() {
				if err := m.backend.Free(device, entry.ptr); err != nil {
					return err
				}
			}
			ptr, err := m.backend.Alloc(device, elems*8)
			if err != nil {
				return NewMemoryError("UpdateH2effSub",
					fmt.Sprintf("cannot allocate %d-element h2eff on device %d", elems, device), err)
			}
			entry = &h2effEntry{ptr: ptr, elems: elems}
			dd.h2eff = entry
		}
		entry.src = src
		if err := m.backend.Memcpy(entry.ptr, h2eff, elems*8, MemcpyHostToDevice); err != nil {
			return err
		}
		entry.updates++
	}
	entry.hits++

	if _, err := dd.EnsureCapacity(BufUMat, nmo*nmo); err != nil {
		return err
	}
	if _, err := dd.EnsureCapacity(BufUCAS, ncas*ncas); err != nil {
		return err
	}
	if _, err := dd.EnsureCapacity(BufTmp1, nmo*ncas3); err != nil {
		return err
	}
	if _, err := dd.EnsureCapacity(BufTmp2, nmo*ncas3); err != nil {
		return err
	}
	if err := m.backend.Memcpy(dd.buffers[BufUMat].ptr, umat, len(umat)*8, MemcpyHostToDevice); err != nil {
		return err
	}
	ucas := make([]float64, ncas*ncas)
	for i := 0; i < ncas; i++ {
		for j := 0; j < ncas; j++ {
			ucas[i*ncas+j] = umat[(ncore+i)*nmo+ncore+j]
		}
	}
	if err := m.backend.Memcpy(dd.buffers[BufUCAS].ptr, ucas, len(ucas)*8, MemcpyHostToDevice); err != nil {
		return err
	}

	unpackTbl, err := dd.pumap.fetch(TableH2effUnpack, ncas)
	if err != nil {
		return err
	}
	packTbl, err := dd.pumap.fetch(TableH2effPack, ncas)
	if err != nil {
		return err
	}

	out := entry.ptr
	dd.stream.Submit(func() {
		packed := out.Float64()[:elems]
		dense := dd.buffers[BufTmp1].ptr.Float64()[:nmo*ncas3]
		work := dd.buffers[BufTmp2].ptr.Float64()[:nmo*ncas3]
		u := dd.buffers[BufUMat].ptr.Float64()[:nmo*nmo]
		uc := dd.buffers[BufUCAS].ptr.Float64()[:ncas*ncas]
		utbl := unpackTbl.Int32()[:ncas3]
		ptbl := packTbl.Int32()[:ncas*npair]

		// Unpack the (v,w) pairs to the dense (u,v,w) layout.
		for p := 0; p < nmo; p++ {
			src := packed[p*ncas*npair : (p+1)*ncas*npair]
			dst := dense[p*ncas3 : (p+1)*ncas3]
			for i := 0; i < ncas3; i++ {
				dst[i] = src[utbl[i]]
			}
		}

		// Rotate the full index: work = U^T dense, viewed (nmo, ncas^3).
		blas64.Dgemm(true, false, nmo, ncas3, nmo,
			1.0, u, nmo, dense, ncas3, 0.0, work, ncas3)

		// Rotate the three active indices per full-index slice.
		for p := 0; p < nmo; p++ {
			wp := work[p*ncas3 : (p+1)*ncas3]
			dp := dense[p*ncas3 : (p+1)*ncas3]
			// u index: dp = Uc^T wp, viewed (ncas, ncas^2)
			blas64.Dgemm(true, false, ncas, ncas*ncas, ncas,
				1.0, uc, ncas, wp, ncas*ncas, 0.0, dp, ncas*ncas)
			for a := 0; a < ncas; a++ {
				dpa := dp[a*ncas*ncas : (a+1)*ncas*ncas]
				wpa := wp[a*ncas*ncas : (a+1)*ncas*ncas]
				// v then w index: wpa = Uc^T dpa Uc
				blas64.Dgemm(true, false, ncas, ncas, ncas,
					1.0, uc, ncas, dpa, ncas, 0.0, wpa, ncas)
				blas64.Dgemm(false, false, ncas, ncas, ncas,
					1.0, wpa, ncas, uc, ncas, 0.0, dpa, ncas)
			}
			// dp now holds the slice with u rotated and (v,w) rotated
			copy(wp, dp)
		}

		// Repack the (v,w) pairs.
		for p := 0; p < nmo; p++ {
			src := work[p*ncas3 : (p+1)*ncas3]
			dst := packed[p*ncas*npair : (p+1)*ncas*npair]
			for i := 0; i < ncas*npair; i++ {
				dst[i] = src[ptbl[i]]
			}
		}
	})

	dd.stream.Synchronize()
	if err := m.backend.Memcpy(h2eff, entry.ptr, elems*8, MemcpyDeviceToHost); err != nil {
		return err
	}
	entry.updates++
	entry.shadow, entry.stride = sampleShadow(h2eff, m.cfg.ShadowProbes)

	m.log.Debug("h2eff rotated", "device", device, "source", string(src),
		"fresh", fresh)
	return nil
}

// H2effStatus reports the resident transformed-integral operand of one
// device, or false if none is cached.
func (m *Manager) H2effStatus(device int) (BlockStatus, bool, error) {
	dd, err := m.device("H2effStatus", device)
	if err != nil {
		return BlockStatus{}, false, err
	}
	if dd.h2eff == nil {
		return BlockStatus{}, false, nil
	}
	return BlockStatus{
		Index:   -1,
		Elems:   dd.h2eff.elems,
		Hits:    dd.h2eff.hits,
		Updates: dd.h2eff.updates,
	}, true, nil
}
