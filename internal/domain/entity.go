package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type EntityKind string

const (
	KindFile      EntityKind = "file"
	KindDirectory EntityKind = "directory"
)

// CratePart is one stored part of a file, in the order the parts were cut.
type CratePart struct {
	Part   int     `json:"part"`
	Crate  CrateID `json:"crate"`
	Offset int64   `json:"offset"`
	Size   int64   `json:"size"`
}

// EntityMetadata describes a file or a directory. Size, Checksum, Crates and
// Compression are only meaningful for files.
type EntityMetadata struct {
	Kind        EntityKind  `json:"kind"`
	Path        string      `json:"path"`
	Link        string      `json:"link,omitempty"`
	IsHidden    bool        `json:"is_hidden"`
	Created     time.Time   `json:"created"`
	Updated     time.Time   `json:"updated"`
	Owner       string      `json:"owner"`
	Group       string      `json:"group"`
	Permissions string      `json:"permissions"`
	Size        int64       `json:"size,omitempty"`
	Checksum    string      `json:"checksum,omitempty"`
	Crates      []CratePart `json:"crates,omitempty"`
	Compression string      `json:"compression,omitempty"`
}

func (m EntityMetadata) IsFile() bool {
	return m.Kind == KindFile
}

func (m EntityMetadata) IsDirectory() bool {
	return m.Kind == KindDirectory
}

// RequireFile rejects directory metadata handed to logic that only works on files.
func (m EntityMetadata) RequireFile() error {
	if m.Kind != KindFile {
		return fmt.Errorf("%w: [%s]", ErrExpectedFileMetadata, m.Path)
	}
	return nil
}

// ContentDiffers reports whether the content-bearing attributes of the two
// entities are different.
func (m EntityMetadata) ContentDiffers(other EntityMetadata) bool {
	if m.Kind != other.Kind || m.Link != other.Link {
		return true
	}
	if m.Kind == KindFile {
		return m.Size != other.Size || m.Checksum != other.Checksum
	}
	return false
}

// AttributesDiffer reports whether any of the tracked non-content attributes differ.
func (m EntityMetadata) AttributesDiffer(other EntityMetadata) bool {
	return m.IsHidden != other.IsHidden ||
		!m.Created.Equal(other.Created) ||
		!m.Updated.Equal(other.Updated) ||
		m.Owner != other.Owner ||
		m.Group != other.Group ||
		m.Permissions != other.Permissions
}

func (m EntityMetadata) CrateIDs() []CrateID {
	ids := make([]CrateID, 0, len(m.Crates))
	for _, part := range m.Crates {
		ids = append(ids, part.Crate)
	}
	return ids
}

// SourceEntity is an entity considered for backup.
type SourceEntity struct {
	Path     string
	Existing *EntityMetadata
	Current  EntityMetadata
}

func (e SourceEntity) IsContentChanged() bool {
	return e.Existing == nil || e.Current.ContentDiffers(*e.Existing)
}

func (e SourceEntity) IsMetadataChanged() bool {
	return e.Existing != nil && !e.IsContentChanged() && e.Current.AttributesDiffer(*e.Existing)
}

func (e SourceEntity) IsChanged() bool {
	return e.IsContentChanged() || e.IsMetadataChanged()
}

// Destination controls where recovered entities are written. An empty Path
// restores entities to their original location.
type Destination struct {
	Path          string
	KeepStructure bool
}

func (d Destination) IsDefault() bool {
	return d.Path == ""
}

// TargetEntity is an entity considered for recovery.
type TargetEntity struct {
	Path        string
	Destination Destination
	Existing    EntityMetadata
	Current     *EntityMetadata
}

func (e TargetEntity) OriginalPath() string {
	return e.Path
}

func (e TargetEntity) DestinationPath() string {
	if e.Destination.IsDefault() {
		return e.Path
	}
	if e.Destination.KeepStructure {
		return filepath.Join(e.Destination.Path, strings.TrimPrefix(filepath.Clean(e.Path), string(filepath.Separator)))
	}
	return filepath.Join(e.Destination.Path, filepath.Base(e.Path))
}

func (e TargetEntity) HasContentChanged() bool {
	return e.Current == nil || e.Existing.ContentDiffers(*e.Current)
}

func (e TargetEntity) HasChanged() bool {
	return e.HasContentChanged() || e.Existing.AttributesDiffer(*e.Current)
}

// PartName identifies one stored part of a file; part secrets are derived from it.
func PartName(path string, part int) string {
	return fmt.Sprintf("%s__part=%d", path, part)
}
