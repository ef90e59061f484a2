package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

type EntityStateKind string

const (
	StateNew      EntityStateKind = "new"
	StateUpdated  EntityStateKind = "updated"
	StateExisting EntityStateKind = "existing"
)

// EntityState is the state of one path in an incremental filesystem ledger.
// Entry is only set for existing entities and points at the entry holding
// the entity's metadata.
type EntityState struct {
	Kind  EntityStateKind `json:"kind"`
	Entry *DatasetEntryID `json:"entry,omitempty"`
}

var (
	EntityNew     = EntityState{Kind: StateNew}
	EntityUpdated = EntityState{Kind: StateUpdated}
)

func EntityExisting(entry DatasetEntryID) EntityState {
	return EntityState{Kind: StateExisting, Entry: &entry}
}

// FilesystemMetadata is the change ledger of one dataset metadata snapshot.
// It is either a bootstrap list of changed paths (all implicitly new) or an
// incremental map of path states, never both.
type FilesystemMetadata struct {
	changes  []string
	entities map[string]EntityState
}

func BootstrapFilesystem(changes []string) FilesystemMetadata {
	sorted := slices.Clone(changes)
	slices.Sort(sorted)
	return FilesystemMetadata{changes: slices.Compact(sorted)}
}

func IncrementalFilesystem(entities map[string]EntityState) FilesystemMetadata {
	if entities == nil {
		entities = map[string]EntityState{}
	}
	return FilesystemMetadata{entities: maps.Clone(entities)}
}

// NewFilesystemMetadata builds the ledger for a new snapshot. Without a prior
// snapshot the bootstrap form is used; otherwise every changed path is marked
// as updated when the prior snapshot already knew it and as new when it did not.
func NewFilesystemMetadata(prior *DatasetMetadata, changed []string) FilesystemMetadata {
	if prior == nil {
		return BootstrapFilesystem(changed)
	}

	known := prior.KnownPaths()
	entities := make(map[string]EntityState, len(changed))
	for _, path := range changed {
		if _, ok := known[path]; ok {
			entities[path] = EntityUpdated
		} else {
			entities[path] = EntityNew
		}
	}

	return FilesystemMetadata{entities: entities}
}

func (f FilesystemMetadata) IsBootstrap() bool {
	return f.entities == nil
}

func (f FilesystemMetadata) Changes() []string {
	return slices.Clone(f.changes)
}

func (f FilesystemMetadata) Entities() map[string]EntityState {
	return maps.Clone(f.entities)
}

// ChangedPaths returns every path of the ledger, sorted.
func (f FilesystemMetadata) ChangedPaths() []string {
	if f.IsBootstrap() {
		return slices.Clone(f.changes)
	}
	return slices.Sorted(maps.Keys(f.entities))
}

// StateOf returns the state of a path; bootstrap ledgers report every known path as new.
func (f FilesystemMetadata) StateOf(path string) (EntityState, bool) {
	if f.IsBootstrap() {
		if _, found := slices.BinarySearch(f.changes, path); found {
			return EntityNew, true
		}
		return EntityState{}, false
	}
	state, ok := f.entities[path]
	return state, ok
}

type filesystemWire struct {
	Changes  []string               `json:"changes,omitempty"`
	Entities map[string]EntityState `json:"entities,omitempty"`
}

func (f FilesystemMetadata) MarshalJSON() ([]byte, error) {
	if f.IsBootstrap() {
		changes := f.changes
		if changes == nil {
			changes = []string{}
		}
		return json.Marshal(struct {
			Changes []string `json:"changes"`
		}{Changes: changes})
	}
	return json.Marshal(struct {
		Entities map[string]EntityState `json:"entities"`
	}{Entities: f.entities})
}

func (f *FilesystemMetadata) UnmarshalJSON(data []byte) error {
	var wire filesystemWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Changes != nil && wire.Entities != nil {
		return fmt.Errorf("filesystem metadata cannot contain both changes and entities")
	}
	if wire.Entities != nil {
		*f = IncrementalFilesystem(wire.Entities)
	} else {
		*f = BootstrapFilesystem(wire.Changes)
	}
	return nil
}

// DatasetMetadata is the full diff snapshot of one dataset entry.
type DatasetMetadata struct {
	ContentChanged  map[string]EntityMetadata `json:"content_changed"`
	MetadataChanged map[string]EntityMetadata `json:"metadata_changed"`
	Filesystem      FilesystemMetadata        `json:"filesystem"`
}

func EmptyDatasetMetadata() DatasetMetadata {
	return DatasetMetadata{
		ContentChanged:  map[string]EntityMetadata{},
		MetadataChanged: map[string]EntityMetadata{},
		Filesystem:      BootstrapFilesystem(nil),
	}
}

// Lookup returns the metadata recorded in this snapshot for the given path.
func (m DatasetMetadata) Lookup(path string) (EntityMetadata, bool) {
	if entity, ok := m.ContentChanged[path]; ok {
		return entity, true
	}
	entity, ok := m.MetadataChanged[path]
	return entity, ok
}

// KnownPaths is the union of the ledger's paths and both entity maps.
func (m DatasetMetadata) KnownPaths() map[string]struct{} {
	known := make(map[string]struct{})
	for _, path := range m.Filesystem.ChangedPaths() {
		known[path] = struct{}{}
	}
	for path := range m.ContentChanged {
		known[path] = struct{}{}
	}
	for path := range m.MetadataChanged {
		known[path] = struct{}{}
	}
	return known
}

// ContentCrates returns every crate referenced by content-changed files.
func (m DatasetMetadata) ContentCrates() []CrateID {
	seen := make(map[CrateID]struct{})
	var crates []CrateID
	for _, path := range slices.Sorted(maps.Keys(m.ContentChanged)) {
		for _, crate := range m.ContentChanged[path].CrateIDs() {
			if _, ok := seen[crate]; !ok {
				seen[crate] = struct{}{}
				crates = append(crates, crate)
			}
		}
	}
	return crates
}

// EntityResult is the outcome of processing one entity: either its content
// changed and new crates were stored, or only its metadata changed.
type EntityResult interface {
	Metadata() EntityMetadata
	isEntityResult()
}

type ContentChanged struct {
	Entity EntityMetadata
}

func (r ContentChanged) Metadata() EntityMetadata { return r.Entity }
func (ContentChanged) isEntityResult()            {}

type MetadataChanged struct {
	Entity EntityMetadata
}

func (r MetadataChanged) Metadata() EntityMetadata { return r.Entity }
func (MetadataChanged) isEntityResult()            {}
