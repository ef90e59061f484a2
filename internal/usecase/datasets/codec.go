// Package datasets encodes dataset metadata crates and resolves entity
// metadata across the entries of a dataset definition.
package datasets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

// Codec turns dataset metadata into crate content and back: JSON, then the
// metadata compressor, then encryption with the crate's metadata secret.
type Codec struct {
	compression domain.Compression
	encryptor   domain.Encryptor
	secrets     domain.Secrets
}

func NewCodec(compression domain.Compression, encryptor domain.Encryptor, secrets domain.Secrets) *Codec {
	return &Codec{compression: compression, encryptor: encryptor, secrets: secrets}
}

func (c *Codec) Encode(metadata domain.DatasetMetadata, crate domain.CrateID) ([]byte, error) {
	var buf bytes.Buffer

	encrypted, err := c.encryptor.EncryptMetadata(&buf, c.secrets.MetadataSecret(crate))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt metadata: %w", err)
	}

	compressed, err := c.compression.Metadata().Compress(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to compress metadata: %w", err)
	}

	if err := json.NewEncoder(compressed).Encode(metadata); err != nil {
		return nil, fmt.Errorf("failed to serialize metadata: %w", err)
	}
	if err := compressed.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress metadata: %w", err)
	}
	if err := encrypted.Close(); err != nil {
		return nil, fmt.Errorf("failed to encrypt metadata: %w", err)
	}

	return buf.Bytes(), nil
}

func (c *Codec) Decode(content io.Reader, crate domain.CrateID) (domain.DatasetMetadata, error) {
	decrypted, err := c.encryptor.DecryptMetadata(content, c.secrets.MetadataSecret(crate))
	if err != nil {
		return domain.DatasetMetadata{}, fmt.Errorf("failed to decrypt metadata: %w", err)
	}

	decompressed, err := c.compression.Metadata().Decompress(decrypted)
	if err != nil {
		return domain.DatasetMetadata{}, fmt.Errorf("failed to decompress metadata: %w", err)
	}
	defer decompressed.Close()

	metadata := domain.EmptyDatasetMetadata()
	if err := json.NewDecoder(decompressed).Decode(&metadata); err != nil {
		return domain.DatasetMetadata{}, fmt.Errorf("failed to deserialize metadata: %w", err)
	}

	if metadata.ContentChanged == nil {
		metadata.ContentChanged = map[string]domain.EntityMetadata{}
	}
	if metadata.MetadataChanged == nil {
		metadata.MetadataChanged = map[string]domain.EntityMetadata{}
	}

	return metadata, nil
}
