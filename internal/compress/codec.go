package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ErrCorrupt reports a blob that does not decompress.
var ErrCorrupt = errors.New("corrupt compressed data")

// Codec compresses and decompresses hibernation blobs. The underlying
// zstd encoder and decoder are safe for concurrent use, so one Codec
// serves all buffers.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec creates a codec at the given level, 1 (fastest) through
// 4 (best compression). Out-of-range levels clamp.
func NewCodec(level int) (*Codec, error) {
	if level < 1 {
		level = 1
	}
	if level > 4 {
		level = 4
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(levelToZstd(level))))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Codec{enc: enc, dec: dec}, nil
}

// Zstd's native scale is 1..22; the four speed levels map onto it.
func levelToZstd(level int) int {
	switch level {
	case 1:
		return 1
	case 2:
		return 3
	case 3:
		return 7
	default:
		return 11
	}
}

// Compress returns the zstd frame for data.
func (c *Codec) Compress(data []byte) []byte {
	return c.enc.EncodeAll(data, nil)
}

// Decompress inverts Compress.
func (c *Codec) Decompress(blob []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
	}
	return out, nil
}

// Close releases the encoder. The codec must not be used afterward.
func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}
