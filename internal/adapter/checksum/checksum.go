package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
)

const (
	CRC32  = "crc32"
	MD5    = "md5"
	SHA1   = "sha1"
	SHA256 = "sha256"
)

// Hasher calculates hex-encoded content checksums with one algorithm.
type Hasher struct {
	name string
	new  func() hash.Hash
}

func New(name string) (*Hasher, error) {
	switch name {
	case CRC32:
		return &Hasher{name: name, new: func() hash.Hash { return crc32.NewIEEE() }}, nil
	case MD5:
		return &Hasher{name: name, new: md5.New}, nil
	case SHA1:
		return &Hasher{name: name, new: sha1.New}, nil
	case SHA256, "":
		return &Hasher{name: SHA256, new: sha256.New}, nil
	default:
		return nil, fmt.Errorf("unsupported checksum [%s]", name)
	}
}

func (h *Hasher) Name() string { return h.name }

func (h *Hasher) New() hash.Hash { return h.new() }

func (h *Hasher) Calculate(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	digest := h.new()
	if _, err := io.Copy(digest, file); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return Encode(digest), nil
}

func Encode(digest hash.Hash) string {
	return hex.EncodeToString(digest.Sum(nil))
}
