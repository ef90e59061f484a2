package compressor

import "io"

const None = "none"

// Identity passes data through unchanged.
type Identity struct{}

func NewIdentity() *Identity {
	return &Identity{}
}

func (Identity) Name() string { return None }

func (Identity) Compress(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (Identity) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
