// Package godf accelerates block-streamed density-fitting workloads by
// keeping their most expensive operands resident on accelerator devices.
//
// The package is organized around a Manager that owns one DeviceState per
// device. Each DeviceState carries grow-only scratch buffers, a memoized
// packing-table cache, and an ordered execution stream. Electron-repulsion
// integral (ERI) blocks fetched through the Manager are cached on-device and
// reused across calls; a caller-supplied source-changed flag plus a cheap
// shadow-sample content check decide when a cached block must be refreshed.
//
// On top of the caches sit three block-streaming drivers: the JK builder
// (Coulomb/exchange matrices from density matrices and DF integral blocks),
// the AO2MO transform, and the orbital-response contraction used in
// active-space optimization.
//
// Example usage:
//
//	mgr, _ := godf.New(godf.DefaultConfig())
//	defer mgr.Close()
//
//	src := godf.NewSourceID()
//	mgr.InitStreaming(0, nao, naux, nset, blksize)
//	mgr.SubmitBlockBatch(0, src, dms, blocks, true, true)
//	vj, vk, _ := mgr.RetrieveResult(0)
package godf
