package godf

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
)

// SourceID is an opaque identity token for a host-side integral source
// (one density-fitting object). Callers mint one token per source and
// keep it for the source's lifetime; keying by token rather than by host
// address removes any aliasing risk when host objects are destroyed and
// reallocated.
type SourceID string

// NewSourceID mints a fresh source identity token
func NewSourceID() SourceID {
	return SourceID(uuid.NewString())
}

// cacheToggle is the process-wide ERI cache switch. Disabling is
// irreversible for the life of the manager.
type cacheToggle struct {
	on atomic.Bool
}

func (t *cacheToggle) enabled() bool { return t.on.Load() }
func (t *cacheToggle) disable()      { t.on.Store(false) }

// eriEntry is one device-resident integral block
type eriEntry struct {
	ptr     DevicePtr
	elems   int
	hits    int64
	updates int64

	// host-side probes recorded at last transfer, used to detect content
	// drift when the caller fails to signal a change
	shadow []float64
	stride int
}

// eriBlocks is the per-source slot array. Its length carries the extra
// slot margin beyond the observed block count.
type eriBlocks struct {
	slots    []*eriEntry
	observed int // highest block index seen + 1
}

// eriCache maps (source, block index) to a device-resident copy of an
// integral block. One instance per device; entries are refreshed in
// place on staleness and never evicted before teardown.
type eriCache struct {
	device  int
	backend Backend
	enabled *cacheToggle
	extra   int
	probes  int

	sources map[SourceID]*eriBlocks
}

func newERICache(device int, backend Backend, cfg Config, enabled *cacheToggle) *eriCache {
	return &eriCache{
		device:  device,
		backend: backend,
		enabled: enabled,
		extra:   cfg.ERICacheExtra,
		probes:  cfg.ShadowProbes,
		sources: make(map[SourceID]*eriBlocks),
	}
}

// fetch returns a device pointer holding the given host block, reusing
// the cached copy when it is still valid. sourceChanged is the explicit
// caller signal; the shadow-sample comparison backstops it. With the
// cache disabled every call stages a fresh transfer through the scratch
// buffer and no counters advance.
func (c *eriCache) fetch(dd *DeviceState, src SourceID, block int, host []float64, sourceChanged bool) (DevicePtr, error) {
	if len(host) == 0 {
		return DevicePtr{}, NewInvalidArgError("fetch", "empty integral block")
	}
	if block < 0 {
		return DevicePtr{}, NewInvalidArgError("fetch",
			fmt.Sprintf("negative block index %d", block))
	}

	if !c.enabled.enabled() {
		ptr, err := dd.EnsureCapacity(BufERI, len(host))
		if err != nil {
			return DevicePtr{}, err
		}
		if err := c.backend.Memcpy(ptr, host, len(host)*8, MemcpyHostToDevice); err != nil {
			return DevicePtr{}, err
		}
		return ptr, nil
	}

	blocks := c.sources[src]
	if blocks == nil {
		blocks = &eriBlocks{}
		c.sources[src] = blocks
	}
	if block >= len(blocks.slots) {
		grown := make([]*eriEntry, block+1+c.extra)
		copy(grown, blocks.slots)
		blocks.slots = grown
	}
	if block+1 > blocks.observed {
		blocks.observed = block + 1
	}

	entry := blocks.slots[block]
	if entry == nil {
		ptr, err := c.backend.Alloc(c.device, len(host)*8)
		if err != nil {
			return DevicePtr{}, NewMemoryError("fetch",
				fmt.Sprintf("source %s block %d: cannot cache %d elements on device %d",
					src, block, len(host), c.device), err)
		}
		entry = &eriEntry{ptr: ptr, elems: len(host)}
		blocks.slots[block] = entry
		if err := c.refresh(entry, host); err != nil {
			return DevicePtr{}, err
		}
		entry.hits = 1
		return entry.ptr, nil
	}

	stale := sourceChanged || entry.elems != len(host) || !c.shadowMatches(entry, host)
	if stale {
		if entry.elems != len(host) {
			old := entry.ptr
			// Clear before freeing so a failed regrow cannot leave the
			// entry pointing at released memory; the next fetch then takes
			// the fresh-allocation path instead of double freeing.
			entry.ptr, entry.elems = DevicePtr{}, 0
			blocks.slots[block] = nil
			if err := c.backend.Free(c.device, old); err != nil {
				return DevicePtr{}, err
			}
			ptr, err := c.backend.Alloc(c.device, len(host)*8)
			if err != nil {
				return DevicePtr{}, NewMemoryError("fetch",
					fmt.Sprintf("source %s block %d: cannot regrow to %d elements",
						src, block, len(host)), err)
			}
			entry.ptr = ptr
			entry.elems = len(host)
			blocks.slots[block] = entry
		}
		if err := c.refresh(entry, host); err != nil {
			return DevicePtr{}, err
		}
	}
	entry.hits++
	return entry.ptr, nil
}

// refresh re-transfers the host block and records a new shadow sample
func (c *eriCache) refresh(entry *eriEntry, host []float64) error {
	if err := c.backend.Memcpy(entry.ptr, host, len(host)*8, MemcpyHostToDevice); err != nil {
		return err
	}
	entry.updates++
	entry.shadow, entry.stride = sampleShadow(host, c.probes)
	return nil
}

func (c *eriCache) shadowMatches(entry *eriEntry, host []float64) bool {
	return shadowEqual(entry.shadow, entry.stride, host)
}

// sampleShadow records up to probes elements strided across the host
// block, the fingerprint used later to detect content drift.
func sampleShadow(host []float64, probes int) ([]float64, int) {
	stride := len(host) / probes
	if stride < 1 {
		stride = 1
	}
	n := len(host) / stride
	if n > probes {
		n = probes
	}
	shadow := make([]float64, n)
	for i := range shadow {
		shadow[i] = host[i*stride]
	}
	return shadow, stride
}

// shadowEqual compares recorded probes against the current host data.
// A change confined to unsampled elements can slip through; the explicit
// source-changed flag is the primary signal and this check only a
// backstop.
func shadowEqual(shadow []float64, stride int, host []float64) bool {
	for i, v := range shadow {
		if host[i*stride] != v {
			return false
		}
	}
	return true
}

// free releases all cached device blocks
func (c *eriCache) free() {
	for _, blocks := range c.sources {
		for _, entry := range blocks.slots {
			if entry != nil && !entry.ptr.IsNil() {
				_ = c.backend.Free(c.device, entry.ptr)
			}
		}
	}
	c.sources = make(map[SourceID]*eriBlocks)
}

// Introspection types, JSON-tagged for the diagnostics CLI.

// BlockStatus reports one cached block's counters
type BlockStatus struct {
	Index   int   `json:"index"`
	Elems   int   `json:"elems"`
	Hits    int64 `json:"hits"`
	Updates int64 `json:"updates"`
}

// SourceStatus reports the cache state of one source on one device
type SourceStatus struct {
	Source SourceID      `json:"source"`
	Blocks int           `json:"blocks"` // observed block count
	Slots  int           `json:"slots"`  // reserved incl. extra margin
	Bytes  int64         `json:"bytes"`
	Stats  []BlockStatus `json:"block_stats"`
}

// CacheStatus reports one device's ERI cache partition
type CacheStatus struct {
	Device  int            `json:"device"`
	Enabled bool           `json:"enabled"`
	Sources []SourceStatus `json:"sources"`
}

func (c *eriCache) status() CacheStatus {
	st := CacheStatus{
		Device:  c.device,
		Enabled: c.enabled.enabled(),
	}
	for src, blocks := range c.sources {
		ss := SourceStatus{
			Source: src,
			Blocks: blocks.observed,
			Slots:  len(blocks.slots),
		}
		for i, entry := range blocks.slots {
			if entry == nil {
				continue
			}
			ss.Bytes += int64(entry.elems) * 8
			ss.Stats = append(ss.Stats, BlockStatus{
				Index:   i,
				Elems:   entry.elems,
				Hits:    entry.hits,
				Updates: entry.updates,
			})
		}
		st.Sources = append(st.Sources, ss)
	}
	sort.Slice(st.Sources, func(i, j int) bool {
		return st.Sources[i].Source < st.Sources[j].Source
	})
	return st
}
