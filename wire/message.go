// Package wire encodes tiled buffers into compact, self-describing byte
// messages and decodes them back.
//
// A message is a fixed 20-byte hash slot, a version, an entry count and a
// sequence of named entries. Each entry is prefixed with its byte length,
// so a decoder skips entries whose data type it does not know instead of
// failing. Inside an entry only active tiles and active pixels are
// written, at F32, H16 or UC8 precision.
//
// The hash slot holds a SHA-1 of the rest of the message when the encoder
// is asked for one and zeros otherwise. Decode never checks it; use
// VerifyHash.
package wire

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// HashSize is the size of the integrity hash slot at the start of every
// message.
const HashSize = sha1.Size

// Errors returned by Decode and VerifyHash.
var (
	ErrTruncated          = errors.New("wire: truncated message")
	ErrCorrupt            = errors.New("wire: corrupt message")
	ErrUnsupportedVersion = errors.New("wire: unsupported version")
	ErrInvalidEntry       = errors.New("wire: invalid entry")
	ErrNoHash             = errors.New("wire: message carries no hash")
)

const maxNameLen = 1 << 10

// Message is a decoded message.
type Message struct {
	Version Version

	// Entries holds the decoded entries in stream order.
	Entries []*Entry

	// Skipped lists entries whose data type is unknown to this decoder.
	Skipped []Skipped
}

// Skipped describes an entry passed over by the decoder.
type Skipped struct {
	Name string
	Size int
}

// Entry returns the first entry with the given name, or nil.
func (m *Message) Entry(name string) *Entry {
	name = NormalizeName(name)
	for _, e := range m.Entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// EncoderOption configures an Encoder.
type EncoderOption func(*encoderOptions)

type encoderOptions struct {
	version Version
	hash    bool
	coarse  bool
	logger  *slog.Logger
}

// WithVersion selects the tile block layout. Defaults to CurrentVersion.
func WithVersion(v Version) EncoderOption {
	return func(o *encoderOptions) { o.version = v }
}

// WithHash fills the hash slot with a SHA-1 of the message.
func WithHash(enabled bool) EncoderOption {
	return func(o *encoderOptions) { o.hash = enabled }
}

// WithCoarsePass makes PrecisionRuntime entries use their coarse
// precision.
func WithCoarsePass(coarse bool) EncoderOption {
	return func(o *encoderOptions) { o.coarse = coarse }
}

// WithLogger sets the logger for encoder diagnostics.
func WithLogger(l *slog.Logger) EncoderOption {
	return func(o *encoderOptions) { o.logger = l }
}

// Encoder collects entries and writes them as one message.
//
// An Encoder borrows the entries it is given until Encode returns and
// keeps no state across Reset.
type Encoder struct {
	opts    encoderOptions
	entries []*Entry
}

// NewEncoder returns an encoder for one message.
func NewEncoder(opts ...EncoderOption) *Encoder {
	o := encoderOptions{version: CurrentVersion}
	for _, opt := range opts {
		opt(&o)
	}
	return &Encoder{opts: o}
}

// Add validates e and appends it to the message.
func (enc *Encoder) Add(e *Entry) error {
	if err := e.validate(); err != nil {
		return fmt.Errorf("wire: entry %q: %w", e.Name, err)
	}
	enc.entries = append(enc.entries, e)
	return nil
}

// Len returns the number of entries added so far.
func (enc *Encoder) Len() int { return len(enc.entries) }

// Reset drops all entries so the encoder can build another message.
func (enc *Encoder) Reset() { enc.entries = enc.entries[:0] }

// Encode appends the message to dst and returns the extended slice.
// The message size is len(result) - len(dst).
func (enc *Encoder) Encode(dst []byte) ([]byte, error) {
	if enc.opts.version != Version1 && enc.opts.version != Version2 {
		return dst, fmt.Errorf("%w %d", ErrUnsupportedVersion, enc.opts.version)
	}

	start := len(dst)
	w := writer{buf: dst}
	w.bytes(make([]byte, HashSize))
	w.uvarint(uint64(enc.opts.version))
	w.uvarint(uint64(len(enc.entries)))

	var body writer
	for _, e := range enc.entries {
		body.buf = body.buf[:0]
		body.putEntry(e, enc.opts.version, enc.opts.coarse)
		w.string(NormalizeName(e.Name))
		w.uvarint(uint64(len(body.buf)))
		w.bytes(body.buf)
	}

	if enc.opts.hash {
		sum := sha1.Sum(w.buf[start+HashSize:])
		copy(w.buf[start:], sum[:])
	}
	if l := enc.opts.logger; l != nil {
		l.Debug("wire: encoded message",
			"entries", len(enc.entries), "bytes", len(w.buf)-start,
			"version", enc.opts.version, "coarse", enc.opts.coarse)
	}
	return w.buf, nil
}

// DecodeOption configures Decode.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	logger *slog.Logger
}

// WithDecodeLogger sets the logger that reports skipped entries.
func WithDecodeLogger(l *slog.Logger) DecodeOption {
	return func(o *decodeOptions) { o.logger = l }
}

// Decode parses a message. It returns ErrTruncated when the data ends
// early, ErrCorrupt when a structural check fails, and
// ErrUnsupportedVersion for versions newer than Version2. Entries of
// unknown data type are skipped and listed in Message.Skipped.
func Decode(data []byte, opts ...DecodeOption) (*Message, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := newReader(data)
	r.take(HashSize)
	version := r.uvarint()
	if r.err != nil {
		return nil, r.err
	}
	if version != uint64(Version1) && version != uint64(Version2) {
		return nil, fmt.Errorf("%w %d", ErrUnsupportedVersion, version)
	}
	msg := &Message{Version: Version(version)}

	count := r.count(math.MaxInt32)
	for i := 0; i < count && r.err == nil; i++ {
		name := r.string(maxNameLen)
		size := r.count(math.MaxInt32)
		body := r.take(size)
		if r.err != nil {
			break
		}

		br := newReader(body)
		e, known := br.entry(name, msg.Version)
		if !known && br.err == nil {
			msg.Skipped = append(msg.Skipped, Skipped{Name: name, Size: size})
			if o.logger != nil {
				o.logger.Debug("wire: skipped entry of unknown type", "name", name, "bytes", size)
			}
			continue
		}
		if br.err == nil && br.remaining() != 0 {
			br.fail(ErrCorrupt)
		}
		if br.err != nil {
			return nil, fmt.Errorf("wire: entry %q: %w", name, br.err)
		}
		msg.Entries = append(msg.Entries, e)
	}
	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}

// VerifyHash reports whether the hash slot of a message matches its
// content. It returns ErrNoHash if the message was encoded without one.
func VerifyHash(data []byte) (bool, error) {
	if len(data) < HashSize {
		return false, ErrTruncated
	}
	slot := data[:HashSize]
	if bytes.Equal(slot, make([]byte, HashSize)) {
		return false, ErrNoHash
	}
	sum := sha1.Sum(data[HashSize:])
	return bytes.Equal(slot, sum[:]), nil
}
