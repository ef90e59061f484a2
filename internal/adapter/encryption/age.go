package encryption

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"filippo.io/age"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

// Age encrypts crates for a set of age recipients. Derived secrets are not
// used; access is controlled by the age identities instead.
type Age struct {
	recipients []age.Recipient
	identities []age.Identity
}

func NewAge(recipients []age.Recipient, identities []age.Identity) (*Age, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("at least one age recipient is required")
	}
	return &Age{recipients: recipients, identities: identities}, nil
}

// LoadAge reads an age identity file; recipients are derived from X25519
// identities when none are provided.
func LoadAge(identityFile string, recipients []string) (*Age, error) {
	var identities []age.Identity
	if identityFile != "" {
		content, err := os.ReadFile(identityFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read age identity: %w", err)
		}

		identities, err = age.ParseIdentities(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse age identity: %w", err)
		}
	}

	var parsed []age.Recipient
	for _, recipient := range recipients {
		r, err := age.ParseX25519Recipient(recipient)
		if err != nil {
			return nil, fmt.Errorf("failed to parse age recipient: %w", err)
		}
		parsed = append(parsed, r)
	}

	if len(parsed) == 0 {
		for _, identity := range identities {
			if x25519, ok := identity.(*age.X25519Identity); ok {
				parsed = append(parsed, x25519.Recipient())
			}
		}
	}

	return NewAge(parsed, identities)
}

func (a *Age) MaxPlaintextSize() int64 { return math.MaxInt64 }

func (a *Age) EncryptFile(w io.Writer, _ domain.Secret) (io.WriteCloser, error) {
	return a.encrypt(w)
}

func (a *Age) DecryptFile(r io.Reader, _ domain.Secret) (io.Reader, error) {
	return a.decrypt(r)
}

func (a *Age) EncryptMetadata(w io.Writer, _ domain.Secret) (io.WriteCloser, error) {
	return a.encrypt(w)
}

func (a *Age) DecryptMetadata(r io.Reader, _ domain.Secret) (io.Reader, error) {
	return a.decrypt(r)
}

func (a *Age) encrypt(w io.Writer) (io.WriteCloser, error) {
	aw, err := age.Encrypt(w, a.recipients...)
	if err != nil {
		return nil, fmt.Errorf("failed to create age writer: %w", err)
	}
	return aw, nil
}

func (a *Age) decrypt(r io.Reader) (io.Reader, error) {
	if len(a.identities) == 0 {
		return nil, fmt.Errorf("no age identity available for decryption")
	}

	ar, err := age.Decrypt(r, a.identities...)
	if err != nil {
		return nil, fmt.Errorf("failed to create age reader: %w", err)
	}
	return ar, nil
}
