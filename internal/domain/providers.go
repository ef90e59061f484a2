package domain

import (
	"hash"
	"io"
	"os"
)

// Compressor wraps streams with one compression algorithm.
type Compressor interface {
	Name() string
	Compress(w io.Writer) (io.WriteCloser, error)
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// Compression selects compressors per entity and by name.
type Compression interface {
	AlgorithmFor(path string) string
	Compressor(name string) (Compressor, error)
	Metadata() Compressor
}

// Secret is key material derived for one file part or one metadata crate.
type Secret struct {
	Key []byte
	IV  []byte
}

func (Secret) String() string {
	return "Secret(***)"
}

// Secrets derives file and metadata secrets from the device secret.
type Secrets interface {
	FileSecret(path string) Secret
	MetadataSecret(crate CrateID) Secret
}

type Encryptor interface {
	MaxPlaintextSize() int64
	EncryptFile(w io.Writer, secret Secret) (io.WriteCloser, error)
	DecryptFile(r io.Reader, secret Secret) (io.Reader, error)
	EncryptMetadata(w io.Writer, secret Secret) (io.WriteCloser, error)
	DecryptMetadata(r io.Reader, secret Secret) (io.Reader, error)
}

// Staging manages temporary files used while parts are prepared or reassembled.
type Staging interface {
	Temporary() (*os.File, error)
	Discard(path string) error
	Destage(from, to string) error
}

type Checksum interface {
	Name() string
	New() hash.Hash
	Calculate(path string) (string, error)
}
