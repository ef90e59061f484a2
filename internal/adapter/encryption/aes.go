package encryption

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

const (
	segmentSize = 64 * 1024

	maxAESPlaintextSize int64 = 4 * 1024 * 1024 * 1024
)

var ErrDecryptionFailed = errors.New("failed to authenticate encrypted data")

// AES encrypts streams with AES-GCM in fixed-size segments. Every segment is
// sealed with a nonce derived from the secret IV and the segment counter; the
// last segment is marked so truncated streams fail to decrypt.
type AES struct{}

func NewAES() *AES {
	return &AES{}
}

func (AES) MaxPlaintextSize() int64 { return maxAESPlaintextSize }

func (e AES) EncryptFile(w io.Writer, secret domain.Secret) (io.WriteCloser, error) {
	return newSegmentWriter(w, secret)
}

func (e AES) DecryptFile(r io.Reader, secret domain.Secret) (io.Reader, error) {
	return newSegmentReader(r, secret)
}

func (e AES) EncryptMetadata(w io.Writer, secret domain.Secret) (io.WriteCloser, error) {
	return newSegmentWriter(w, secret)
}

func (e AES) DecryptMetadata(r io.Reader, secret domain.Secret) (io.Reader, error) {
	return newSegmentReader(r, secret)
}

func newAEAD(secret domain.Secret) (cipher.AEAD, error) {
	if len(secret.IV) != IVSize {
		return nil, fmt.Errorf("unexpected IV size [%d]", len(secret.IV))
	}

	block, err := aes.NewCipher(secret.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, nil
}

func segmentNonce(iv []byte, counter uint64) []byte {
	nonce := make([]byte, len(iv))
	copy(nonce, iv)

	var c [8]byte
	binary.BigEndian.PutUint64(c[:], counter)
	for i := range c {
		nonce[len(nonce)-8+i] ^= c[i]
	}

	return nonce
}

func segmentAAD(last bool) []byte {
	if last {
		return []byte{1}
	}
	return []byte{0}
}

type segmentWriter struct {
	w       io.Writer
	aead    cipher.AEAD
	iv      []byte
	buffer  []byte
	sealed  []byte
	counter uint64
	closed  bool
}

func newSegmentWriter(w io.Writer, secret domain.Secret) (*segmentWriter, error) {
	aead, err := newAEAD(secret)
	if err != nil {
		return nil, err
	}

	return &segmentWriter{
		w:      w,
		aead:   aead,
		iv:     secret.IV,
		buffer: make([]byte, 0, segmentSize),
		sealed: make([]byte, 0, segmentSize+aead.Overhead()),
	}, nil
}

func (s *segmentWriter) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errors.New("write to closed encryption stream")
	}

	written := 0
	for len(p) > 0 {
		// a full segment is only sealed once more data arrives, so that the
		// final segment is always sealed by Close
		if len(s.buffer) == segmentSize {
			if err := s.flush(false); err != nil {
				return written, err
			}
		}

		n := copy(s.buffer[len(s.buffer):segmentSize], p)
		s.buffer = s.buffer[:len(s.buffer)+n]
		p = p[n:]
		written += n
	}

	return written, nil
}

func (s *segmentWriter) flush(last bool) error {
	s.sealed = s.aead.Seal(s.sealed[:0], segmentNonce(s.iv, s.counter), s.buffer, segmentAAD(last))
	if _, err := s.w.Write(s.sealed); err != nil {
		return fmt.Errorf("failed to write encrypted segment: %w", err)
	}

	s.counter++
	s.buffer = s.buffer[:0]
	return nil
}

func (s *segmentWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.flush(true)
}

type segmentReader struct {
	r         *bufio.Reader
	aead      cipher.AEAD
	iv        []byte
	encrypted []byte
	plain     []byte
	counter   uint64
	done      bool
}

func newSegmentReader(r io.Reader, secret domain.Secret) (*segmentReader, error) {
	aead, err := newAEAD(secret)
	if err != nil {
		return nil, err
	}

	return &segmentReader{
		r:         bufio.NewReaderSize(r, segmentSize+aead.Overhead()+1),
		aead:      aead,
		iv:        secret.IV,
		encrypted: make([]byte, segmentSize+aead.Overhead()),
	}, nil
}

func (s *segmentReader) Read(p []byte) (int, error) {
	for len(s.plain) == 0 {
		if s.done {
			return 0, io.EOF
		}
		if err := s.next(); err != nil {
			return 0, err
		}
	}

	n := copy(p, s.plain)
	s.plain = s.plain[n:]
	return n, nil
}

func (s *segmentReader) next() error {
	n, err := io.ReadFull(s.r, s.encrypted)

	last := false
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		last = true
	case err != nil:
		return fmt.Errorf("failed to read encrypted segment: %w", err)
	default:
		if _, peekErr := s.r.Peek(1); errors.Is(peekErr, io.EOF) {
			last = true
		}
	}

	plain, err := s.aead.Open(nil, segmentNonce(s.iv, s.counter), s.encrypted[:n], segmentAAD(last))
	if err != nil {
		return ErrDecryptionFailed
	}

	s.counter++
	s.plain = plain
	s.done = last
	return nil
}
