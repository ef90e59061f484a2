package compressor

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const Zstd = "zstd"

type ZstdCompressor struct {
	level zstd.EncoderLevel
}

func NewZstd() *ZstdCompressor {
	return &ZstdCompressor{level: zstd.SpeedBetterCompression}
}

func (z *ZstdCompressor) Name() string { return Zstd }

func (z *ZstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	zstdWriter, err := zstd.NewWriter(w, zstd.WithEncoderLevel(z.level))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return zstdWriter, nil
}

func (z *ZstdCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	zstdReader, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return zstdReader.IOReadCloser(), nil
}
