// Package catalog stores dataset definitions, entries and schedules in SQLite
// and serves them through the API client interface.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

var _ domain.APIClient = (*Catalog)(nil)

type Catalog struct {
	db     *sql.DB
	path   string
	device domain.DeviceID
	now    func() time.Time
}

// Open opens (or creates) the catalog database at path for the given device.
func Open(path string, device domain.DeviceID) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	c := &Catalog{db: db, path: path, device: device, now: time.Now}
	if err := c.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to close catalog after schema init failure: %w", closeErr))
		}
		return nil, err
	}

	return c, nil
}

func (c *Catalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dataset_definitions (
		id TEXT PRIMARY KEY,
		info TEXT NOT NULL,
		device TEXT NOT NULL,
		redundant_copies INTEGER NOT NULL,
		existing_versions TEXT NOT NULL,
		removed_versions TEXT NOT NULL,
		created INTEGER NOT NULL,
		updated INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS dataset_entries (
		id TEXT PRIMARY KEY,
		definition TEXT NOT NULL REFERENCES dataset_definitions(id),
		device TEXT NOT NULL,
		data TEXT NOT NULL,
		metadata TEXT NOT NULL,
		created INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dataset_entries_definition ON dataset_entries(definition, created);
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		info TEXT NOT NULL,
		is_public INTEGER NOT NULL DEFAULT 0,
		start INTEGER NOT NULL,
		interval INTEGER NOT NULL
	);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to init catalog schema: %w", err)
	}
	return nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) Device() domain.DeviceID { return c.device }

func (c *Catalog) Server() string { return "catalog:" + c.path }

func (c *Catalog) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach catalog: %w", err)
	}
	return nil
}

const definitionColumns = `id, info, device, redundant_copies, existing_versions, removed_versions, created, updated`

func (c *Catalog) DatasetDefinitions(ctx context.Context) ([]domain.DatasetDefinition, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+definitionColumns+` FROM dataset_definitions ORDER BY created`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset definitions: %w", err)
	}
	defer rows.Close()

	var definitions []domain.DatasetDefinition
	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		definitions = append(definitions, definition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset definitions: %w", err)
	}

	return definitions, nil
}

func (c *Catalog) DatasetDefinition(ctx context.Context, id domain.DatasetDefinitionID) (domain.DatasetDefinition, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM dataset_definitions WHERE id = ?`, id.String())

	definition, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DatasetDefinition{}, fmt.Errorf("%w: [%s]", domain.ErrDefinitionNotFound, id)
	}

	return definition, err
}

func (c *Catalog) CreateDatasetDefinition(ctx context.Context, request domain.CreateDatasetDefinition) (domain.DatasetDefinitionID, error) {
	if err := request.ExistingVersions.Policy.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("invalid existing versions retention: %w", err)
	}
	if err := request.RemovedVersions.Policy.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("invalid removed versions retention: %w", err)
	}
	if request.RedundantCopies < 1 {
		return uuid.Nil, fmt.Errorf("redundant copies must be at least 1")
	}

	existing, err := json.Marshal(request.ExistingVersions)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode retention: %w", err)
	}
	removed, err := json.Marshal(request.RemovedVersions)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode retention: %w", err)
	}

	id := uuid.New()
	now := c.now().UTC().UnixNano()

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO dataset_definitions (`+definitionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), request.Info, request.Device.String(), request.RedundantCopies,
		string(existing), string(removed), now, now,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create dataset definition: %w", err)
	}

	return id, nil
}

const entryColumns = `id, definition, device, data, metadata, created`

func (c *Catalog) DatasetEntries(ctx context.Context, definition domain.DatasetDefinitionID) ([]domain.DatasetEntry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM dataset_entries WHERE definition = ? ORDER BY created`,
		definition.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.DatasetEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset entries: %w", err)
	}

	return entries, nil
}

func (c *Catalog) DatasetEntry(ctx context.Context, id domain.DatasetEntryID) (domain.DatasetEntry, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM dataset_entries WHERE id = ?`, id.String())

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DatasetEntry{}, fmt.Errorf("%w: [%s]", domain.ErrEntryNotFound, id)
	}

	return entry, err
}

// LatestEntry returns the most recent entry of the definition created no later
// than until (when set), or nil when there is none.
func (c *Catalog) LatestEntry(ctx context.Context, definition domain.DatasetDefinitionID, until *time.Time) (*domain.DatasetEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM dataset_entries WHERE definition = ?`
	args := []any{definition.String()}
	if until != nil {
		query += ` AND created <= ?`
		args = append(args, until.UTC().UnixNano())
	}
	query += ` ORDER BY created DESC LIMIT 1`

	entry, err := scanEntry(c.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (c *Catalog) CreateDatasetEntry(ctx context.Context, request domain.CreateDatasetEntry) (domain.DatasetEntryID, error) {
	if _, err := c.DatasetDefinition(ctx, request.Definition); err != nil {
		return uuid.Nil, err
	}

	data := request.Data
	if data == nil {
		data = []domain.CrateID{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode entry data: %w", err)
	}

	id := uuid.New()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO dataset_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), request.Definition.String(), request.Device.String(),
		string(encoded), request.Metadata.String(), c.now().UTC().UnixNano(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create dataset entry: %w", err)
	}

	return id, nil
}

func (c *Catalog) PublicSchedules(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, info, is_public, start, interval FROM schedules WHERE is_public = 1 ORDER BY start`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		var (
			id, info        string
			public          bool
			start, interval int64
		)
		if err := rows.Scan(&id, &info, &public, &start, &interval); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule id [%s]: %w", id, err)
		}

		schedules = append(schedules, domain.Schedule{
			ID:       parsed,
			Info:     info,
			IsPublic: public,
			Start:    time.Unix(0, start).UTC(),
			Interval: time.Duration(interval),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read schedules: %w", err)
	}

	return schedules, nil
}

// PutSchedule inserts or replaces a schedule.
func (c *Catalog) PutSchedule(ctx context.Context, schedule domain.Schedule) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO schedules (id, info, is_public, start, interval) VALUES (?, ?, ?, ?, ?)`,
		schedule.ID.String(), schedule.Info, schedule.IsPublic, schedule.Start.UTC().UnixNano(), int64(schedule.Interval),
	)
	if err != nil {
		return fmt.Errorf("failed to store schedule: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row scanner) (domain.DatasetDefinition, error) {
	var (
		id, info, device  string
		copies            int
		existing, removed string
		created, updated  int64
	)
	if err := row.Scan(&id, &info, &device, &copies, &existing, &removed, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DatasetDefinition{}, err
		}
		return domain.DatasetDefinition{}, fmt.Errorf("failed to scan dataset definition: %w", err)
	}

	definition := domain.DatasetDefinition{
		Info:            info,
		RedundantCopies: copies,
		Created:         time.Unix(0, created).UTC(),
		Updated:         time.Unix(0, updated).UTC(),
	}

	var err error
	if definition.ID, err = uuid.Parse(id); err != nil {
		return domain.DatasetDefinition{}, fmt.Errorf("invalid dataset definition id [%s]: %w", id, err)
	}
	if definition.Device, err = uuid.Parse(device); err != nil {
		return domain.DatasetDefinition{}, fmt.Errorf("invalid device id [%s]: %w", device, err)
	}
	if err := json.Unmarshal([]byte(existing), &definition.ExistingVersions); err != nil {
		return domain.DatasetDefinition{}, fmt.Errorf("failed to decode retention: %w", err)
	}
	if err := json.Unmarshal([]byte(removed), &definition.RemovedVersions); err != nil {
		return domain.DatasetDefinition{}, fmt.Errorf("failed to decode retention: %w", err)
	}

	return definition, nil
}

func scanEntry(row scanner) (domain.DatasetEntry, error) {
	var (
		id, definition, device, data, metadata string
		created                                int64
	)
	if err := row.Scan(&id, &definition, &device, &data, &metadata, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DatasetEntry{}, err
		}
		return domain.DatasetEntry{}, fmt.Errorf("failed to scan dataset entry: %w", err)
	}

	entry := domain.DatasetEntry{Created: time.Unix(0, created).UTC()}

	var err error
	if entry.ID, err = uuid.Parse(id); err != nil {
		return domain.DatasetEntry{}, fmt.Errorf("invalid dataset entry id [%s]: %w", id, err)
	}
	if entry.Definition, err = uuid.Parse(definition); err != nil {
		return domain.DatasetEntry{}, fmt.Errorf("invalid dataset definition id [%s]: %w", definition, err)
	}
	if entry.Device, err = uuid.Parse(device); err != nil {
		return domain.DatasetEntry{}, fmt.Errorf("invalid device id [%s]: %w", device, err)
	}
	if entry.Metadata, err = uuid.Parse(metadata); err != nil {
		return domain.DatasetEntry{}, fmt.Errorf("invalid metadata crate id [%s]: %w", metadata, err)
	}
	if err := json.Unmarshal([]byte(data), &entry.Data); err != nil {
		return domain.DatasetEntry{}, fmt.Errorf("failed to decode entry data: %w", err)
	}

	return entry, nil
}
