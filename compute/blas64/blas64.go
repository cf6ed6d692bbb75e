// Package blas64 provides the dense float64 compute primitives the
// streaming drivers dispatch onto device buffers. The implementations
// are deliberately simple row-parallel loops; they define the numeric
// contract, not the fastest possible kernel.
package blas64

import (
	"runtime"
	"sync"
)

// Work below this many multiply-adds stays on the calling goroutine
const parallelThreshold = 1 << 16

// Dgemm computes C = alpha*op(A)*op(B) + beta*C with row-major storage.
// op(A) is m x k, op(B) is k x n, C is m x n. lda/ldb/ldc are the row
// strides of the stored (untransposed) matrices.
func Dgemm(transA, transB bool, m, n, k int, alpha float64, a []float64, lda int, b []float64, ldb int, beta float64, c []float64, ldc int) {
	if m == 0 || n == 0 {
		return
	}
	scaleRows(m, n, beta, c, ldc)
	if k == 0 || alpha == 0 {
		return
	}

	parallelRows(m, m*n*k, func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			ci := c[i*ldc : i*ldc+n]
			for l := 0; l < k; l++ {
				av := aAt(transA, a, lda, i, l)
				if av == 0 {
					continue
				}
				av *= alpha
				if !transB {
					bl := b[l*ldb : l*ldb+n]
					for j := range ci {
						ci[j] += av * bl[j]
					}
				} else {
					for j := range ci {
						ci[j] += av * b[j*ldb+l]
					}
				}
			}
		}
	})
}

// Dsymm computes C = alpha*A*B + beta*C where A is a symmetric m x m
// matrix stored full (both triangles populated). Mirrors the dsymm
// side='L' contract the exchange contraction relies on.
func Dsymm(m, n int, alpha float64, a []float64, lda int, b []float64, ldb int, beta float64, c []float64, ldc int) {
	Dgemm(false, false, m, n, m, alpha, a, lda, b, ldb, beta, c, ldc)
}

// Daxpy computes y += alpha*x
func Daxpy(alpha float64, x, y []float64) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}

// Ddot computes the dot product of x and y
func Ddot(x, y []float64) float64 {
	var sum float64
	for i := range x {
		sum += x[i] * y[i]
	}
	return sum
}

func aAt(trans bool, a []float64, lda, i, l int) float64 {
	if trans {
		return a[l*lda+i]
	}
	return a[i*lda+l]
}

func scaleRows(m, n int, beta float64, c []float64, ldc int) {
	if beta == 1 {
		return
	}
	for i := 0; i < m; i++ {
		ci := c[i*ldc : i*ldc+n]
		if beta == 0 {
			for j := range ci {
				ci[j] = 0
			}
		} else {
			for j := range ci {
				ci[j] *= beta
			}
		}
	}
}

// parallelRows splits [0,m) across workers when the work is large
// enough to amortize goroutine startup.
func parallelRows(m int, flops int, fn func(i0, i1 int)) {
	workers := runtime.NumCPU()
	if flops < parallelThreshold || workers < 2 || m < 2 {
		fn(0, m)
		return
	}
	if workers > m {
		workers = m
	}
	chunk := (m + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		i0 := w * chunk
		i1 := i0 + chunk
		if i1 > m {
			i1 = m
		}
		if i0 >= i1 {
			break
		}
		wg.Add(1)
		go func(i0, i1 int) {
			defer wg.Done()
			fn(i0, i1)
		}(i0, i1)
	}
	wg.Wait()
}
