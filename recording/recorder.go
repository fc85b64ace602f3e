// Package recording captures the delta masks of a sync session for
// offline analysis.
//
// A Recorder is an optional observer: a FrameBufferSet or Frame created
// with tilesync.WithRecorder passes the beauty delta mask of every
// snapshot to Record. Recorded sessions serialize to a compact stream
// that reuses the tile block layout of the wire format.
//
// # Basic Usage
//
//	rec := recording.NewRecorder()
//	rec.Start()
//	master := tilesync.NewFrameBufferSet(w, h, tilesync.WithRecorder(rec))
//	// ... snapshots ...
//	rec.Stop()
//	f, _ := os.Create("session.tsrec")
//	rec.Encode(f)
package recording

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gogpu/tilesync/tile"
	"github.com/gogpu/tilesync/wire"
)

// magic starts every encoded session.
const magic = "TSREC\x01"

// ErrBadStream is returned by Decode for data that is not a recorded
// session.
var ErrBadStream = errors.New("recording: not a recorded session")

// Frame is one recorded snapshot.
type Frame struct {
	// Seq is the position of the frame in the session, from 0.
	Seq int

	// Coarse reports whether the snapshot was a coarse pass.
	Coarse bool

	// Mask is a private copy of the delta mask.
	Mask *tile.Mask
}

// Recorder collects delta masks. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	recording bool
	frames    []Frame
}

// NewRecorder returns a stopped recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Start begins recording. Frames recorded before are kept.
func (r *Recorder) Start() {
	r.mu.Lock()
	r.recording = true
	r.mu.Unlock()
}

// Stop pauses recording.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.recording = false
	r.mu.Unlock()
}

// IsRecording reports whether Record currently keeps frames.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Reset drops every recorded frame.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

// Record appends a copy of mask. It does nothing while stopped.
func (r *Recorder) Record(mask *tile.Mask, coarse bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.frames = append(r.frames, Frame{Seq: len(r.frames), Coarse: coarse, Mask: mask.Clone()})
}

// Len returns the number of recorded frames.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Frames returns the recorded frames in order. The masks are shared with
// the recorder and must not be modified.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// ActivePixels returns the number of active pixels summed over all frames.
func (r *Recorder) ActivePixels() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.frames {
		n += f.Mask.ActivePixels()
	}
	return n
}

// Encode writes the recorded session to w.
//
// Layout: magic, VLUInt frame count, then per frame a coarse flag byte,
// a VLUInt length and the mask encoded by wire.AppendMask.
func (r *Recorder) Encode(w io.Writer) error {
	frames := r.Frames()

	buf := make([]byte, 0, 64)
	buf = append(buf, magic...)
	buf = binary.AppendUvarint(buf, uint64(len(frames)))

	var mask []byte
	for _, f := range frames {
		flag := byte(0)
		if f.Coarse {
			flag = 1
		}
		mask = wire.AppendMask(mask[:0], f.Mask, wire.Version2)
		buf = append(buf, flag)
		buf = binary.AppendUvarint(buf, uint64(len(mask)))
		buf = append(buf, mask...)
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("recording: write: %w", err)
	}
	return nil
}

// Decode reads a session written by Encode into a new, stopped recorder.
func Decode(rd io.Reader) (*Recorder, error) {
	br := bufio.NewReader(rd)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(br, head); err != nil || !bytes.Equal(head, []byte(magic)) {
		return nil, ErrBadStream
	}
	count, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("recording: frame count: %w", err)
	}

	rec := NewRecorder()
	var data []byte
	for i := uint64(0); i < count; i++ {
		flag, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("recording: frame %d: %w", i, err)
		}
		size, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, fmt.Errorf("recording: frame %d: %w", i, err)
		}
		if size > 1<<30 {
			return nil, fmt.Errorf("recording: frame %d: %w", i, ErrBadStream)
		}
		if uint64(cap(data)) < size {
			data = make([]byte, size)
		}
		data = data[:size]
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, fmt.Errorf("recording: frame %d: %w", i, err)
		}
		m, n, err := wire.ReadMask(data, wire.Version2)
		if err != nil {
			return nil, fmt.Errorf("recording: frame %d: %w", i, err)
		}
		if n != len(data) {
			return nil, fmt.Errorf("recording: frame %d: %w", i, ErrBadStream)
		}
		rec.frames = append(rec.frames, Frame{Seq: int(i), Coarse: flag != 0, Mask: m})
	}
	return rec, nil
}
