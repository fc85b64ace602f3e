package tilesync

import "errors"

// Errors returned by FrameBufferSet and Frame operations. Decode errors
// from the wire package are passed through wrapped.
var (
	// ErrSizeMismatch is returned when two sets or a set and a message
	// disagree on the image size.
	ErrSizeMismatch = errors.New("tilesync: size mismatch")

	// ErrChannelConflict is returned when a message entry cannot be
	// stored in the channel of the same name.
	ErrChannelConflict = errors.New("tilesync: channel conflict")
)
