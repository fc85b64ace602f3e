// Package tilesync keeps framebuffers in sync across the tiers of a
// distributed, tile based renderer.
//
// # Overview
//
// Render nodes produce partial pixel results continuously. A merge tier
// folds fragments from many nodes into one master image and clients get
// periodic updates. tilesync makes this cheap by sending only what
// changed: images are cut into 8x8 tiles, each tile carries a 64-bit mask
// of the pixels that hold valid data, and snapshots diff a buffer against
// the state last sent to find the pixels worth transmitting.
//
// # Quick Start
//
//	// Render node: two frames, the live one and the last sent state.
//	live := tilesync.NewFrame(1920, 1080)
//	sent := tilesync.NewFrame(1920, 1080)
//	delta := tilesync.NewDeltaMasks()
//
//	live.AddSample(10, 20, f32.Vec4{1, 0.5, 0.2, 1}, 1)
//	live.SnapshotWeighted(sent, delta, false)
//	msg, _ := live.EncodeDelta(delta, nil)
//
//	// Merge tier: accumulate fragments, forward normalized deltas.
//	master := tilesync.NewFrameBufferSet(1920, 1080)
//	master.MergeFrom(nodeID, msg)
//	master.SnapshotDelta(forwarded, delta, false)
//	update, _ := master.EncodeDelta(delta, nil)
//
//	// Client: apply updates.
//	m, _ := wire.Decode(update)
//	client.Apply(m)
//
// # Architecture
//
// The module is organized into:
//   - tile: tile geometry, active masks, tile subsets
//   - pixel: tiled buffers with format checked accessors
//   - snapshot: per tile diff kernels (reference and bitwise strategies)
//   - accum: per tile merge kernels (weighted, closest, min, add, replace)
//   - wire: the message format
//   - display: untiling and texture upload for viewers
//   - recording: capture of every delta mask of a session
//
// # Concurrency
//
// Tile operations fan out over a worker pool in blocks of consecutive
// tiles. A destination set must not be mutated by two operations at once;
// sources are read only. Named channels can be created from any goroutine.
package tilesync
