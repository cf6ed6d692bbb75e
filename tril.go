package godf

// Host-side triangular packing helpers shared by the streaming drivers
// and the reference implementations. Conventions follow the usual
// np_helper layout: the lower triangle packed row-major, pair index
// i*(i+1)/2 + j for i >= j.

// PackTril packs the lower triangle of the dense n x n matrix a into
// dst, which must hold n*(n+1)/2 values.
func PackTril(n int, a, dst []float64) {
	k := 0
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			dst[k] = a[i*n+j]
			k++
		}
	}
}

// UnpackTril expands a packed triangle into the dense n x n matrix dst.
// mode selects how the strict upper triangle is filled: Hermitian and
// Symmetric mirror the lower triangle, AntiHermitian negates it.
func UnpackTril(n int, tril, dst []float64, mode int) {
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			v := tril[trilIndex(i, j)]
			dst[i*n+j] = v
			if i == j {
				continue
			}
			switch mode {
			case AntiHermitian:
				dst[j*n+i] = -v
			default:
				dst[j*n+i] = v
			}
		}
	}
}

// unpackTrilTable expands a packed triangle using a device-resident
// unpack table, the gather the compute kernels use on device.
func unpackTrilTable(n int, tril, dst []float64, table []int32, mode int) {
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := tril[table[i*n+j]]
			if mode == AntiHermitian && i < j {
				v = -v
			}
			dst[i*n+j] = v
		}
	}
}

// SymmetrizeTriu fills the strict upper triangle of the dense n x n
// matrix a from its lower triangle according to mode.
func SymmetrizeTriu(n int, a []float64, mode int) {
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			switch mode {
			case AntiHermitian:
				a[j*n+i] = -a[i*n+j]
			default:
				a[j*n+i] = a[i*n+j]
			}
		}
	}
}

// PackTrilDM packs nset density matrices for the Coulomb contraction:
// tril(dm + dm^T) with the diagonal halved, so the row-packed form
// counts every off-diagonal pair twice and each diagonal element once.
func PackTrilDM(nset, n int, dms []float64) []float64 {
	npair := n * (n + 1) / 2
	out := make([]float64, nset*npair)
	for s := 0; s < nset; s++ {
		dm := dms[s*n*n : (s+1)*n*n]
		k := s * npair
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				v := dm[i*n+j] + dm[j*n+i]
				if i == j {
					v *= 0.5
				}
				out[k+trilIndex(i, j)] = v
			}
		}
	}
	return out
}
