// Package godf reference implementations for verification
package godf

// Reference contains simple, dense (non-blocked) implementations of the
// streaming drivers. These are used for testing and verification of the
// device paths; they never touch device memory.
type Reference struct{}

// JK computes the Coulomb and exchange matrices from the full packed
// three-center tensor (naux rows of nao_pair values) without blocking.
// Both results have shape (nset, nao, nao).
func (r Reference) JK(cderi []float64, dms []float64, nao, nset int) (vj, vk []float64) {
	naoPair := nao * (nao + 1) / 2
	naux := len(cderi) / naoPair
	vj = make([]float64, nset*nao*nao)
	vk = make([]float64, nset*nao*nao)

	ep := make([]float64, nao*nao)
	edt := make([]float64, nao*nao)
	for p := 0; p < naux; p++ {
		UnpackTril(nao, cderi[p*naoPair:(p+1)*naoPair], ep, Hermitian)
		for s := 0; s < nset; s++ {
			dm := dms[s*nao*nao : (s+1)*nao*nao]

			var rho float64
			for i := 0; i < nao; i++ {
				for j := 0; j < nao; j++ {
					rho += ep[i*nao+j] * dm[i*nao+j]
				}
			}
			for i := 0; i < nao*nao; i++ {
				vj[s*nao*nao+i] += rho * ep[i]
			}

			// vk_s += E_p D_s E_p
			for i := 0; i < nao; i++ {
				for j := 0; j < nao; j++ {
					var sum float64
					for k := 0; k < nao; k++ {
						sum += ep[i*nao+k] * dm[k*nao+j]
					}
					edt[i*nao+j] = sum
				}
			}
			for i := 0; i < nao; i++ {
				for j := 0; j < nao; j++ {
					var sum float64
					for k := 0; k < nao; k++ {
						sum += edt[i*nao+k] * ep[k*nao+j]
					}
					vk[s*nao*nao+i*nao+j] += sum
				}
			}
		}
	}
	return vj, vk
}

// AO2MO transforms one packed block into the MO basis restricted to the
// bra/ket windows, by direct summation.
func (r Reference) AO2MO(eri, mo []float64, nao, nmo, braStart, braCount, ketStart, ketCount, mode int) []float64 {
	naoPair := nao * (nao + 1) / 2
	nauxb := len(eri) / naoPair
	out := make([]float64, nauxb*braCount*ketCount)
	ep := make([]float64, nao*nao)
	for p := 0; p < nauxb; p++ {
		UnpackTril(nao, eri[p*naoPair:(p+1)*naoPair], ep, mode)
		for i := 0; i < braCount; i++ {
			for j := 0; j < ketCount; j++ {
				var sum float64
				for u := 0; u < nao; u++ {
					cu := mo[u*nmo+braStart+i]
					if cu == 0 {
						continue
					}
					for v := 0; v < nao; v++ {
						sum += cu * ep[u*nao+v] * mo[v*nmo+ketStart+j]
					}
				}
				out[(p*braCount+i)*ketCount+j] = sum
			}
		}
	}
	return out
}

// H2effDF builds the packed active-space tensor (pu|vw) from the full
// packed three-center tensor by direct summation.
func (r Reference) H2effDF(cderi, mo []float64, nao, nmo, ncore, ncas int) []float64 {
	naoPair := nao * (nao + 1) / 2
	naux := len(cderi) / naoPair
	npair := ncas * (ncas + 1) / 2
	out := make([]float64, nmo*ncas*npair)

	ep := make([]float64, nao*nao)
	t := make([]float64, nmo*ncas)
	a := make([]float64, ncas*ncas)
	for p := 0; p < naux; p++ {
		UnpackTril(nao, cderi[p*naoPair:(p+1)*naoPair], ep, Hermitian)
		for i := 0; i < nmo; i++ {
			for u := 0; u < ncas; u++ {
				var sum float64
				for mu := 0; mu < nao; mu++ {
					for nu := 0; nu < nao; nu++ {
						sum += mo[mu*nmo+i] * ep[mu*nao+nu] * mo[nu*nmo+ncore+u]
					}
				}
				t[i*ncas+u] = sum
			}
		}
		for v := 0; v < ncas; v++ {
			for w := 0; w < ncas; w++ {
				a[v*ncas+w] = t[(ncore+v)*ncas+w]
			}
		}
		for i := 0; i < nmo; i++ {
			for u := 0; u < ncas; u++ {
				for v := 0; v < ncas; v++ {
					for w := 0; w <= v; w++ {
						out[(i*ncas+u)*npair+trilIndex(v, w)] += t[i*ncas+u] * a[v*ncas+w]
					}
				}
			}
		}
	}
	return out
}

// RotateH2eff applies the orbital rotation to a packed h2eff tensor by
// direct summation: full index by umat, active indices by its
// active-active window.
func (r Reference) RotateH2eff(h2eff, umat []float64, ncore, ncas, nmo int) []float64 {
	npair := ncas * (ncas + 1) / 2
	ncas3 := ncas * ncas * ncas

	// unpack
	dense := make([]float64, nmo*ncas3)
	for p := 0; p < nmo; p++ {
		for u := 0; u < ncas; u++ {
			for v := 0; v < ncas; v++ {
				for w := 0; w < ncas; w++ {
					pr := trilIndex(v, w)
					if v < w {
						pr = trilIndex(w, v)
					}
					dense[((p*ncas+u)*ncas+v)*ncas+w] = h2eff[(p*ncas+u)*npair+pr]
				}
			}
		}
	}

	uc := func(i, j int) float64 { return umat[(ncore+i)*nmo+ncore+j] }
	rot := make([]float64, nmo*ncas3)
	for p := 0; p < nmo; p++ {
		for u := 0; u < ncas; u++ {
			for v := 0; v < ncas; v++ {
				for w := 0; w < ncas; w++ {
					var sum float64
					for q := 0; q < nmo; q++ {
						for x := 0; x < ncas; x++ {
							for y := 0; y < ncas; y++ {
								for z := 0; z < ncas; z++ {
									sum += umat[q*nmo+p] * uc(x, u) * uc(y, v) * uc(z, w) *
										dense[((q*ncas+x)*ncas+y)*ncas+z]
								}
							}
						}
					}
					rot[((p*ncas+u)*ncas+v)*ncas+w] = sum
				}
			}
		}
	}

	out := make([]float64, nmo*ncas*npair)
	for p := 0; p < nmo; p++ {
		for u := 0; u < ncas; u++ {
			for v := 0; v < ncas; v++ {
				for w := 0; w <= v; w++ {
					out[(p*ncas+u)*npair+trilIndex(v, w)] = rot[((p*ncas+u)*ncas+v)*ncas+w]
				}
			}
		}
	}
	return out
}

// OrbitalResponse evaluates the orbital-response contraction by direct
// summation, mirroring the documented device semantics.
func (r Reference) OrbitalResponse(ppaa, papa, paaa, ocm2, tcm2, gorb []float64, ncore, nocc, nmo int) []float64 {
	ncas := nocc - ncore
	ncas2 := ncas * ncas
	ncas3 := ncas2 * ncas

	cm := make([]float64, ncas2*ncas2)
	for u := 0; u < ncas; u++ {
		for v := 0; v < ncas; v++ {
			for w := 0; w < ncas; w++ {
				for x := 0; x < ncas; x++ {
					i := ((u*ncas+v)*ncas+w)*ncas + x
					j := ((v*ncas+u)*ncas+x)*ncas + w
					cm[i] = 0.5 * (ocm2[i] + tcm2[i] + ocm2[j] + tcm2[j])
				}
			}
		}
	}

	f1 := make([]float64, nmo*nmo)
	for p := 0; p < nmo; p++ {
		for q := 0; q < nmo; q++ {
			var s float64
			for v := 0; v < ncas; v++ {
				for w := 0; w < ncas; w++ {
					var dJ float64
					for u := 0; u < ncas; u++ {
						dJ += cm[((u*ncas+u)*ncas+v)*ncas+w]
					}
					s += ppaa[((p*nmo+q)*ncas+v)*ncas+w] * dJ
				}
			}
			for u := 0; u < ncas; u++ {
				for v := 0; v < ncas; v++ {
					var dK float64
					for w := 0; w < ncas; w++ {
						dK += cm[((u*ncas+w)*ncas+w)*ncas+v]
					}
					s += papa[((p*ncas+u)*nmo+q)*ncas+v] * dK
				}
			}
			f1[p*nmo+q] = s
		}
	}
	for p := 0; p < nmo; p++ {
		for u := 0; u < ncas; u++ {
			var s float64
			for i := 0; i < ncas3; i++ {
				s += paaa[p*ncas3+i] * cm[u*ncas3+i]
			}
			f1[p*nmo+ncore+u] += s
		}
	}

	out := make([]float64, nmo*nmo)
	for p := 0; p < nmo; p++ {
		for q := 0; q < nmo; q++ {
			out[p*nmo+q] = gorb[p*nmo+q] + f1[p*nmo+q] - f1[q*nmo+p]
		}
	}
	return out
}
