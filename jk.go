package godf

import (
	"fmt"

	"github.com/gqcx/godf/compute/blas64"
)

// jkContext carries the streaming geometry for one batch sequence.
// Created by InitStreaming, reused until the next InitStreaming call.
type jkContext struct {
	nao     int
	naux    int
	nset    int
	blksize int
	naoPair int
}

// InitStreaming sizes the device's buffers for an upcoming batch of
// block-streamed JK builds: nao orbitals, naux auxiliary functions,
// nset density matrices, blocks of at most blksize auxiliary rows.
// Accumulators are zeroed. Buffers only ever grow, so calling this
// repeatedly with similar sizes costs no reallocation.
func (m *Manager) InitStreaming(device, nao, naux, nset, blksize int) error {
	dd, err := m.device("InitStreaming", device)
	if err != nil {
		return err
	}
	if nao <= 0 || naux <= 0 || nset <= 0 {
		return NewShapeError("InitStreaming",
			fmt.Sprintf("nao=%d naux=%d nset=%d must all be positive", nao, naux, nset))
	}
	if blksize <= 0 {
		blksize = m.cfg.BlockSize
	}
	if blksize > naux {
		blksize = naux
	}
	naoPair := nao * (nao + 1) / 2

	// Prior batches may still be reading these buffers.
	dd.stream.Synchronize()

	sizes := []struct {
		name  BufferName
		elems int
	}{
		{BufRho, nset * naux},
		{BufVJ, nset * naoPair},
		{BufVK, nset * nao * nao},
		{BufTmp1, blksize * nao * nao},
		{BufTmp2, blksize * nao * nao},
		{BufDMS, nset * nao * nao},
		{BufDMTril, nset * naoPair},
		{BufERI, blksize * naoPair},
	}
	for _, s := range sizes {
		if _, err := dd.EnsureCapacity(s.name, s.elems); err != nil {
			return err
		}
	}

	dd.jk = &jkContext{
		nao:     nao,
		naux:    naux,
		nset:    nset,
		blksize: blksize,
		naoPair: naoPair,
	}
	dd.zero(dd.buffers[BufVJ].ptr, nset*naoPair)
	dd.zero(dd.buffers[BufVK].ptr, nset*nao*nao)

	m.log.Debug("streaming initialized", "device", device,
		"nao", nao, "naux", naux, "nset", nset, "blksize", blksize)
	return nil
}

// SubmitBlockBatch runs the streaming J/K accumulation for one source's
// block sequence. Each block holds a (naux_block x nao_pair) slice of
// the triangular-packed three-center integrals, fetched through the ERI
// cache. Results stay device-resident; call RetrieveResult to pull
// them. Several sources may be submitted before any retrieval, which
// keeps the device busy while the host prepares the next submission.
func (m *Manager) SubmitBlockBatch(device int, src SourceID, dms []float64, blocks [][]float64, withJ, withK bool) error {
	dd, err := m.device("SubmitBlockBatch", device)
	if err != nil {
		return err
	}
	if dd.jk == nil {
		return ErrNotInitialized
	}
	if !withJ && !withK {
		return NewInvalidArgError("SubmitBlockBatch", "neither J nor K requested")
	}
	ctx := dd.jk
	if len(dms) != ctx.nset*ctx.nao*ctx.nao {
		return NewShapeError("SubmitBlockBatch",
			fmt.Sprintf("density matrices: got %d values, want nset*nao^2 = %d",
				len(dms), ctx.nset*ctx.nao*ctx.nao))
	}
	maxAux := 0
	for i, blk := range blocks {
		if len(blk) == 0 || len(blk)%ctx.naoPair != 0 {
			return NewShapeError("SubmitBlockBatch",
				fmt.Sprintf("block %d: %d values is not a multiple of nao_pair %d",
					i, len(blk), ctx.naoPair))
		}
		nb := len(blk) / ctx.naoPair
		if nb > ctx.naux {
			return NewShapeError("SubmitBlockBatch",
				fmt.Sprintf("block %d: %d aux rows exceeds naux %d declared to InitStreaming",
					i, nb, ctx.naux))
		}
		if nb > maxAux {
			maxAux = nb
		}
	}

	// Prior batch compute must finish before density staging buffers and
	// any regrown temporaries are touched.
	dd.stream.Synchronize()

	if maxAux > ctx.blksize {
		if _, err := dd.EnsureCapacity(BufTmp1, maxAux*ctx.nao*ctx.nao); err != nil {
			return err
		}
		if _, err := dd.EnsureCapacity(BufTmp2, maxAux*ctx.nao*ctx.nao); err != nil {
			return err
		}
		if _, err := dd.EnsureCapacity(BufERI, maxAux*ctx.naoPair); err != nil {
			return err
		}
	}

	dmtril := PackTrilDM(ctx.nset, ctx.nao, dms)
	if err := m.backend.Memcpy(dd.buffers[BufDMS].ptr, dms, len(dms)*8, MemcpyHostToDevice); err != nil {
		return err
	}
	if err := m.backend.Memcpy(dd.buffers[BufDMTril].ptr, dmtril, len(dmtril)*8, MemcpyHostToDevice); err != nil {
		return err
	}

	table, err := dd.pumap.fetch(TableUnpack2D, ctx.nao)
	if err != nil {
		return err
	}

	for i, blk := range blocks {
		// With the cache disabled every block stages through the same
		// scratch buffer; the previous block's compute must drain first.
		if i > 0 && !m.cache.enabled() {
			dd.stream.Synchronize()
		}
		eriPtr, err := dd.eri.fetch(dd, src, i, blk, dd.sourceChanged)
		if err != nil {
			return err
		}
		nauxb := len(blk) / ctx.naoPair
		dd.stream.Submit(func() {
			computeJKBlock(dd, ctx, eriPtr, table, nauxb, withJ, withK)
		})
	}

	m.log.Debug("jk block batch submitted", "device", device,
		"source", string(src), "blocks", len(blocks),
		"with_j", withJ, "with_k", withK)
	return nil
}

// computeJKBlock accumulates one integral block into the device J/K
// accumulators. Runs on the device stream.
func computeJKBlock(dd *DeviceState, ctx *jkContext, eriPtr, table DevicePtr, nauxb int, withJ, withK bool) {
	nao, nset, naoPair := ctx.nao, ctx.nset, ctx.naoPair
	eri := eriPtr.Float64()[:nauxb*naoPair]

	if withJ {
		dmtril := dd.buffers[BufDMTril].ptr.Float64()[:nset*naoPair]
		rho := dd.buffers[BufRho].ptr.Float64()[:nset*nauxb]
		vj := dd.buffers[BufVJ].ptr.Float64()[:nset*naoPair]

		// rho_sp = sum_x dmtril_sx eri_px ; vj_sx += sum_p rho_sp eri_px
		blas64.Dgemm(false, true, nset, nauxb, naoPair,
			1.0, dmtril, naoPair, eri, naoPair, 0.0, rho, nauxb)
		blas64.Dgemm(false, false, nset, naoPair, nauxb,
			1.0, rho, nauxb, eri, naoPair, 1.0, vj, naoPair)
	}

	if withK {
		buf1 := dd.buffers[BufTmp1].ptr.Float64()
		buf2 := dd.buffers[BufTmp2].ptr.Float64()
		dms := dd.buffers[BufDMS].ptr.Float64()
		vk := dd.buffers[BufVK].ptr.Float64()
		tbl := table.Int32()[:nao*nao]

		for p := 0; p < nauxb; p++ {
			unpackTrilTable(nao, eri[p*naoPair:(p+1)*naoPair],
				buf2[p*nao*nao:(p+1)*nao*nao], tbl, Hermitian)
		}
		for s := 0; s < nset; s++ {
			dm := dms[s*nao*nao : (s+1)*nao*nao]
			for p := 0; p < nauxb; p++ {
				// buf1_p = D_s * E_p, so buf1^T buf2 = sum_p E_p D_s E_p
				blas64.Dsymm(nao, nao, 1.0, dm, nao,
					buf2[p*nao*nao:(p+1)*nao*nao], nao,
					0.0, buf1[p*nao*nao:(p+1)*nao*nao], nao)
			}
			blas64.Dgemm(true, false, nao, nao, nauxb*nao,
				1.0, buf1, nao, buf2, nao,
				1.0, vk[s*nao*nao:(s+1)*nao*nao], nao)
		}
	}
}

// RetrieveResult copies the finished J/K accumulators back to host
// memory and resets them for the next source. vj is returned dense
// (hermitian-unpacked), vk dense; both have shape (nset, nao, nao) in
// row-major order.
func (m *Manager) RetrieveResult(device int) (vj, vk []float64, err error) {
	dd, err := m.device("RetrieveResult", device)
	if err != nil {
		return nil, nil, err
	}
	if dd.jk == nil {
		return nil, nil, NewExecutionError("RetrieveResult",
			"streaming context not initialized; call InitStreaming first", nil)
	}
	ctx := dd.jk

	dd.stream.Synchronize()

	vjPacked := make([]float64, ctx.nset*ctx.naoPair)
	if err := m.backend.Memcpy(vjPacked, dd.buffers[BufVJ].ptr, len(vjPacked)*8, MemcpyDeviceToHost); err != nil {
		return nil, nil, err
	}
	vk = make([]float64, ctx.nset*ctx.nao*ctx.nao)
	if err := m.backend.Memcpy(vk, dd.buffers[BufVK].ptr, len(vk)*8, MemcpyDeviceToHost); err != nil {
		return nil, nil, err
	}

	vj = make([]float64, ctx.nset*ctx.nao*ctx.nao)
	for s := 0; s < ctx.nset; s++ {
		UnpackTril(ctx.nao, vjPacked[s*ctx.naoPair:(s+1)*ctx.naoPair],
			vj[s*ctx.nao*ctx.nao:(s+1)*ctx.nao*ctx.nao], Hermitian)
	}

	dd.zero(dd.buffers[BufVJ].ptr, ctx.nset*ctx.naoPair)
	dd.zero(dd.buffers[BufVK].ptr, ctx.nset*ctx.nao*ctx.nao)
	return vj, vk, nil
}
