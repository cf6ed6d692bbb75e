package godf

import (
	"fmt"

	"github.com/gqcx/godf/compute/blas64"
)

// OrbitalResponse computes the two-electron part of the orbital
// gradient used in active-space optimization from the half-transformed
// integral intermediates and the correlated two-body density:
//
//	cm      = (ocm2 + tcm2), symmetrized over bra/ket pair swap
//	dJ[vw]  = sum_u cm[u,u,v,w]          (Coulomb-like active density)
//	dK[uv]  = sum_w cm[u,w,w,v]          (exchange-like active density)
//	f1[pq]  = sum_vw ppaa[p,q,v,w] dJ[vw] + sum_uv papa[p,u,q,v] dK[uv]
//	f1[p,ncore+u] += sum_vwx paaa[p,v,w,x] cm[u,v,w,x]
//	out     = gorb + f1 - f1^T
//
// Shapes: ppaa (nmo,nmo,ncas,ncas), papa (nmo,ncas,nmo,ncas), paaa
// (nmo,ncas,ncas,ncas), ocm2/tcm2 (ncas,ncas,ncas,ncas), gorb
// (nmo,nmo), all row-major with ncas = nocc - ncore.
func (m *Manager) OrbitalResponse(device int, ppaa, papa, paaa, ocm2, tcm2, gorb []float64,
	ncore, nocc, nmo int) ([]float64, error) {

	dd, err := m.device("OrbitalResponse", device)
	if err != nil {
		return nil, err
	}
	ncas := nocc - ncore
	if err := m.validateActive("OrbitalResponse", ncore, ncas, nmo); err != nil {
		return nil, err
	}
	ncas2 := ncas * ncas
	ncas3 := ncas2 * ncas
	ncas4 := ncas2 * ncas2
	for _, c := range []struct {
		name string
		got  int
		want int
	}{
		{"ppaa", len(ppaa), nmo * nmo * ncas2},
		{"papa", len(papa), nmo * ncas * nmo * ncas},
		{"paaa", len(paaa), nmo * ncas3},
		{"ocm2", len(ocm2), ncas4},
		{"tcm2", len(tcm2), ncas4},
		{"gorb", len(gorb), nmo * nmo},
	} {
		if c.got != c.want {
			return nil, NewShapeError("OrbitalResponse",
				fmt.Sprintf("%s: got %d values, want %d", c.name, c.got, c.want))
		}
	}

	dd.stream.Synchronize()

	// Device staging: the large intermediates plus the result.
	if _, err := dd.EnsureCapacity(BufTmp1, len(ppaa)+len(papa)+len(paaa)); err != nil {
		return nil, err
	}
	if _, err := dd.EnsureCapacity(BufTmp2, 3*ncas4+2*ncas2); err != nil {
		return nil, err
	}
	if _, err := dd.EnsureCapacity(BufTmp3, 2*nmo*nmo); err != nil {
		return nil, err
	}
	ints := dd.buffers[BufTmp1].ptr
	if err := m.backend.Memcpy(ints, ppaa, len(ppaa)*8, MemcpyHostToDevice); err != nil {
		return nil, err
	}
	papaDev := ints.Float64()[len(ppaa) : len(ppaa)+len(papa)]
	if err := m.backend.Memcpy(papaDev, papa, len(papa)*8, MemcpyHostToDevice); err != nil {
		return nil, err
	}
	paaaDev := ints.Float64()[len(ppaa)+len(papa) : len(ppaa)+len(papa)+len(paaa)]
	if err := m.backend.Memcpy(paaaDev, paaa, len(paaa)*8, MemcpyHostToDevice); err != nil {
		return nil, err
	}
	dens := dd.buffers[BufTmp2].ptr
	if err := m.backend.Memcpy(dens, ocm2, ncas4*8, MemcpyHostToDevice); err != nil {
		return nil, err
	}
	tcmDev := dens.Float64()[ncas4 : 2*ncas4]
	if err := m.backend.Memcpy(tcmDev, tcm2, ncas4*8, MemcpyHostToDevice); err != nil {
		return nil, err
	}
	gorbDev := dd.buffers[BufTmp3].ptr
	if err := m.backend.Memcpy(gorbDev, gorb, nmo*nmo*8, MemcpyHostToDevice); err != nil {
		return nil, err
	}

	dd.stream.Submit(func() {
		ppaaD := ints.Float64()[:len(ppaa)]
		ocm := dens.Float64()[:ncas4]
		tcm := dens.Float64()[ncas4 : 2*ncas4]
		cm := dens.Float64()[2*ncas4 : 3*ncas4]
		dJ := dens.Float64()[3*ncas4 : 3*ncas4+ncas2]
		dK := dens.Float64()[3*ncas4+ncas2 : 3*ncas4+2*ncas2]
		out := gorbDev.Float64()[:nmo*nmo]
		f1 := dd.buffers[BufTmp3].ptr.Float64()[nmo*nmo : 2*nmo*nmo]

		// cm = 0.5*(ocm2 + tcm2 + their bra/ket pair transpose)
		for u := 0; u < ncas; u++ {
			for v := 0; v < ncas; v++ {
				for w := 0; w < ncas; w++ {
					for x := 0; x < ncas; x++ {
						i := ((u*ncas+v)*ncas+w)*ncas + x
						j := ((v*ncas+u)*ncas+x)*ncas + w
						cm[i] = 0.5 * (ocm[i] + tcm[i] + ocm[j] + tcm[j])
					}
				}
			}
		}

		for v := 0; v < ncas; v++ {
			for w := 0; w < ncas; w++ {
				var sJ float64
				for u := 0; u < ncas; u++ {
					sJ += cm[((u*ncas+u)*ncas+v)*ncas+w]
				}
				dJ[v*ncas+w] = sJ
			}
		}
		for u := 0; u < ncas; u++ {
			for v := 0; v < ncas; v++ {
				var sK float64
				for w := 0; w < ncas; w++ {
					sK += cm[((u*ncas+w)*ncas+w)*ncas+v]
				}
				dK[u*ncas+v] = sK
			}
		}

		// Coulomb-like term: f1 viewed (nmo^2, ncas^2) x dJ
		blas64.Dgemm(false, false, nmo*nmo, 1, ncas2,
			1.0, ppaaD, ncas2, dJ, 1, 0.0, f1, 1)

		// Exchange-like term, per bra orbital: papa[p] is (ncas, nmo, ncas)
		for p := 0; p < nmo; p++ {
			pp := papaDev[p*ncas*nmo*ncas : (p+1)*ncas*nmo*ncas]
			for q := 0; q < nmo; q++ {
				var s float64
				for u := 0; u < ncas; u++ {
					row := pp[(u*nmo+q)*ncas : (u*nmo+q)*ncas+ncas]
					for v := 0; v < ncas; v++ {
						s += row[v] * dK[u*ncas+v]
					}
				}
				f1[p*nmo+q] += s
			}
		}

		// Active-column term: f1[:, ncore:nocc] += paaa . cm
		for p := 0; p < nmo; p++ {
			pa := paaaDev[p*ncas3 : (p+1)*ncas3]
			for u := 0; u < ncas; u++ {
				f1[p*nmo+ncore+u] += blas64.Ddot(pa, cm[u*ncas3:(u+1)*ncas3])
			}
		}

		// out = gorb + f1 - f1^T
		for p := 0; p < nmo; p++ {
			for q := 0; q < nmo; q++ {
				out[p*nmo+q] += f1[p*nmo+q] - f1[q*nmo+p]
			}
		}
	})

	dd.stream.Synchronize()
	result := make([]float64, nmo*nmo)
	if err := m.backend.Memcpy(result, gorbDev, len(result)*8, MemcpyDeviceToHost); err != nil {
		return nil, err
	}
	return result, nil
}
