package encryption

import (
	"crypto/sha512"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

const (
	KeySize = 32
	IVSize  = 12
)

// DeviceSecret derives per-file and per-metadata-crate secrets from the
// device secret using HKDF-SHA512, salted with the user and device ids.
type DeviceSecret struct {
	user   domain.UserID
	device domain.DeviceID
	secret []byte
}

func NewDeviceSecret(user domain.UserID, device domain.DeviceID, secret []byte) (*DeviceSecret, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("device secret cannot be empty")
	}
	return &DeviceSecret{user: user, device: device, secret: secret}, nil
}

// LoadDeviceSecret reads the raw device secret from a file.
func LoadDeviceSecret(user domain.UserID, device domain.DeviceID, path string) (*DeviceSecret, error) {
	secret, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device secret: %w", err)
	}
	return NewDeviceSecret(user, device, []byte(strings.TrimSpace(string(secret))))
}

func (s *DeviceSecret) FileSecret(path string) domain.Secret {
	if absolute, err := filepath.Abs(path); err == nil {
		path = absolute
	}

	salt := append(append(s.user[:], s.device[:]...), []byte(path)...)
	return s.derive(salt, fmt.Sprintf("%s-%s-%s", s.user, s.device, path))
}

func (s *DeviceSecret) MetadataSecret(crate domain.CrateID) domain.Secret {
	salt := append(append(s.user[:], s.device[:]...), crate[:]...)
	return s.derive(salt, fmt.Sprintf("%s-%s-%s", s.user, s.device, crate))
}

func (s *DeviceSecret) derive(salt []byte, info string) domain.Secret {
	prk := hkdf.Extract(sha512.New, s.secret, salt)

	return domain.Secret{
		Key: expand(prk, info+"-key", KeySize),
		IV:  expand(prk, info+"-iv", IVSize),
	}
}

func expand(prk []byte, info string, size int) []byte {
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.Expand(sha512.New, prk, []byte(info)), out); err != nil {
		// only fails when more than 255 hash lengths are requested
		panic(fmt.Sprintf("failed to expand secret: %v", err))
	}
	return out
}
