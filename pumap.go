package godf

import (
	"fmt"
)

// TableKind enumerates the packing/unmap index tables. Each table is a
// pure function of (kind, size): built once per device, shared by every
// call, never invalidated.
type TableKind int

const (
	// TableUnpack2D maps dense (n,n) positions to lower-triangular
	// packed indices, for unpacking 1-D packed arrays into matrices
	TableUnpack2D TableKind = iota

	// TableH2effUnpack maps dense (u,v,w) positions of a transformed
	// integral slice to its (u, pair(v,w)) packed layout
	TableH2effUnpack

	// TableH2effPack maps (u, pair(v,w)) packed positions back to the
	// dense (u,v,w) layout
	TableH2effPack
)

// String returns the table kind for diagnostics
func (k TableKind) String() string {
	switch k {
	case TableUnpack2D:
		return "unpack2d"
	case TableH2effUnpack:
		return "h2eff-unpack"
	case TableH2effPack:
		return "h2eff-pack"
	default:
		return fmt.Sprintf("table(%d)", int(k))
	}
}

type tableKey struct {
	kind TableKind
	n    int
}

// tableCache memoizes device-resident index tables by (kind, size).
// One instance per device, owned by its DeviceState.
type tableCache struct {
	device  int
	backend Backend
	tables  map[tableKey]DevicePtr
}

func newTableCache(device int, backend Backend) *tableCache {
	return &tableCache{
		device:  device,
		backend: backend,
		tables:  make(map[tableKey]DevicePtr),
	}
}

// fetch returns the device-resident table for (kind, n), building and
// transferring it on first request.
func (tc *tableCache) fetch(kind TableKind, n int) (DevicePtr, error) {
	if n <= 0 {
		return DevicePtr{}, NewInvalidArgError("fetch",
			fmt.Sprintf("table %s: size must be positive, got %d", kind, n))
	}
	key := tableKey{kind: kind, n: n}
	if ptr, ok := tc.tables[key]; ok {
		return ptr, nil
	}

	var table []int32
	switch kind {
	case TableUnpack2D:
		table = buildUnpack2D(n)
	case TableH2effUnpack:
		table = buildH2effUnpack(n)
	case TableH2effPack:
		table = buildH2effPack(n)
	default:
		return DevicePtr{}, NewInvalidArgError("fetch",
			fmt.Sprintf("unknown table kind %d", int(kind)))
	}

	ptr, err := tc.backend.Alloc(tc.device, len(table)*4)
	if err != nil {
		return DevicePtr{}, NewMemoryError("fetch",
			fmt.Sprintf("table %s size %d on device %d", kind, n, tc.device), err)
	}
	if err := tc.backend.Memcpy(ptr, table, len(table)*4, MemcpyHostToDevice); err != nil {
		return DevicePtr{}, err
	}
	tc.tables[key] = ptr
	return ptr, nil
}

// free releases all cached tables
func (tc *tableCache) free() {
	for key, ptr := range tc.tables {
		_ = tc.backend.Free(tc.device, ptr)
		delete(tc.tables, key)
	}
}

// trilIndex returns the lower-triangular packed index of (i,j), i >= j
func trilIndex(i, j int) int {
	return i*(i+1)/2 + j
}

// buildUnpack2D builds the generic dense-to-packed map: entry (i,j) of
// an n x n matrix holds the packed index of the pair, so
// dense[i*n+j] = packed[table[i*n+j]] unpacks in one gather.
func buildUnpack2D(n int) []int32 {
	table := make([]int32, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i >= j {
				table[i*n+j] = int32(trilIndex(i, j))
			} else {
				table[i*n+j] = int32(trilIndex(j, i))
			}
		}
	}
	return table
}

// buildH2effUnpack builds the transform-specific unpack map for one
// (ncas, pair(ncas)) slice: entry (u,v,w) holds the source index in the
// packed layout.
func buildH2effUnpack(ncas int) []int32 {
	npair := ncas * (ncas + 1) / 2
	table := make([]int32, ncas*ncas*ncas)
	for u := 0; u < ncas; u++ {
		for v := 0; v < ncas; v++ {
			for w := 0; w < ncas; w++ {
				p := trilIndex(v, w)
				if v < w {
					p = trilIndex(w, v)
				}
				table[(u*ncas+v)*ncas+w] = int32(u*npair + p)
			}
		}
	}
	return table
}

// buildH2effPack builds the inverse map: entry (u, pair(v,w)) holds the
// source index in the dense (u,v,w) layout, taking the v >= w member of
// each pair.
func buildH2effPack(ncas int) []int32 {
	npair := ncas * (ncas + 1) / 2
	table := make([]int32, ncas*npair)
	for u := 0; u < ncas; u++ {
		for v := 0; v < ncas; v++ {
			for w := 0; w <= v; w++ {
				table[u*npair+trilIndex(v, w)] = int32((u*ncas+v)*ncas + w)
			}
		}
	}
	return table
}
