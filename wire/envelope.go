package wire

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// envelopeMagic prefixes a zstd compressed message.
var envelopeMagic = []byte("TSZ1")

// ErrNotCompressed is returned by Decompress for data without the
// envelope prefix.
var ErrNotCompressed = errors.New("wire: not a compressed envelope")

// maxDecompressed bounds the size of a decompressed message.
const maxDecompressed = 1 << 30

func newZstdEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(
		nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithLowerEncoderMem(true),
	)
	if err != nil {
		panic(err)
	}
	return enc
}

func newZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(
		nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
		zstd.WithDecoderMaxMemory(maxDecompressed),
	)
	if err != nil {
		panic(err)
	}
	return dec
}

var zstdEncPool = sync.Pool{
	New: func() any { return newZstdEncoder() },
}

var zstdDecPool = sync.Pool{
	New: func() any { return newZstdDecoder() },
}

// Compress appends a zstd envelope holding msg to dst.
func Compress(dst, msg []byte) []byte {
	enc := zstdEncPool.Get().(*zstd.Encoder)
	defer zstdEncPool.Put(enc)

	dst = append(dst, envelopeMagic...)
	return enc.EncodeAll(msg, dst)
}

// Decompress returns the message held in a zstd envelope, appended to dst.
func Decompress(dst, data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return dst, ErrNotCompressed
	}
	dec := zstdDecPool.Get().(*zstd.Decoder)
	defer zstdDecPool.Put(dec)

	out, err := dec.DecodeAll(data[len(envelopeMagic):], dst)
	if err != nil {
		return dst, fmt.Errorf("wire: zstd decode: %w", err)
	}
	return out, nil
}

// IsCompressed reports whether data starts with the envelope prefix.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, envelopeMagic)
}
