package zarr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// codec compresses and decompresses one chunk independently of all others.
type codec interface {
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// newCodec builds the codec for a compressor config. A nil config means the
// chunk bytes are stored raw.
func newCodec(cfg *CompressorConfig) (codec, error) {
	if cfg == nil {
		return rawCodec{}, nil
	}
	switch cfg.ID {
	case "zstd":
		return newZstdCodec(cfg.Level)
	case "lz4":
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("zarr: unsupported compressor %q", cfg.ID)
	}
}

type rawCodec struct{}

func (rawCodec) Compress(src []byte) ([]byte, error)   { return src, nil }
func (rawCodec) Decompress(src []byte) ([]byte, error) { return src, nil }

// zstdCodec wraps shared klauspost encoder/decoder instances; both are safe
// for concurrent EncodeAll/DecodeAll use.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec(level int) (*zstdCodec, error) {
	if level == 0 {
		level = 3
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("zarr: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zarr: zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, nil), nil
}

func (c *zstdCodec) Decompress(src []byte) ([]byte, error) {
	return c.dec.DecodeAll(src, nil)
}

// lz4Codec uses the lz4 frame format so chunk files are self-describing.
type lz4Codec struct{}

func (lz4Codec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("zarr: lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zarr: lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(src []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
	if err != nil {
		return nil, fmt.Errorf("zarr: lz4 decompress: %w", err)
	}
	return out, nil
}
