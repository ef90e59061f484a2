package compressor

import (
	"fmt"
	"io"

	"github.com/klauspost/pgzip"
)

const Gzip = "gzip"

type GzipCompressor struct {
	level int
}

func NewGzip() *GzipCompressor {
	return &GzipCompressor{level: pgzip.BestCompression}
}

func (g *GzipCompressor) Name() string { return Gzip }

func (g *GzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	gzipWriter, err := pgzip.NewWriterLevel(w, g.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	return gzipWriter, nil
}

func (g *GzipCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	gzipReader, err := pgzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	return gzipReader, nil
}
