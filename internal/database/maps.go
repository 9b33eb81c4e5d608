package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/mapcore/server/internal/compression"
	"github.com/mapcore/server/internal/mapfile"
)

// MapStorage stores map documents in the catalog. Documents are kept as
// gzip-compressed YAML.
type MapStorage struct {
	db *sql.DB
}

// NewMapStorage creates a new map storage instance
func NewMapStorage(db *sql.DB) *MapStorage {
	return &MapStorage{db: db}
}

// StoredMap is the catalog row of a map, without its document
type StoredMap struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Projection   string    `json:"projection"`
	Origin       string    `json:"origin"`
	Tags         []string  `json:"tags"`
	DocumentSize int       `json:"document_size"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const mapsSchema = `
	CREATE TABLE IF NOT EXISTS maps (
		id            BIGSERIAL PRIMARY KEY,
		name          TEXT NOT NULL UNIQUE,
		projection    TEXT NOT NULL DEFAULT '',
		origin        TEXT NOT NULL DEFAULT '',
		tags          TEXT[] NOT NULL DEFAULT '{}',
		document      BYTEA NOT NULL,
		document_size INTEGER NOT NULL,
		version       INTEGER NOT NULL DEFAULT 1,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)
`

// EnsureSchema creates the catalog table if it does not exist
func (s *MapStorage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, mapsSchema); err != nil {
		return fmt.Errorf("failed to create maps table: %w", err)
	}
	return nil
}

// validateMapName rejects names that cannot appear in a db:// URL
func validateMapName(name string) error {
	if name == "" {
		return fmt.Errorf("map name is required")
	}
	if len(name) > 255 {
		return fmt.Errorf("map name too long: %d characters (max 255)", len(name))
	}
	if strings.ContainsAny(name, "/?#") {
		return fmt.Errorf("invalid map name %q", name)
	}
	return nil
}

// PutMap inserts a document or replaces the stored version, bumping its version
func (s *MapStorage) PutMap(ctx context.Context, doc *mapfile.Document, tags []string) (*StoredMap, error) {
	if doc == nil {
		return nil, fmt.Errorf("map document is nil")
	}
	if err := validateMapName(doc.Name); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	encoded, err := mapfile.Encode(doc)
	if err != nil {
		return nil, err
	}
	compressed, err := compression.CompressDocument(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to compress map document: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}

	stored := StoredMap{
		Name:         doc.Name,
		Projection:   doc.Projection,
		Origin:       doc.Origin,
		Tags:         tags,
		DocumentSize: len(encoded),
	}
	query := `
		INSERT INTO maps (name, projection, origin, tags, document, document_size)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name)
		DO UPDATE SET
			projection = EXCLUDED.projection,
			origin = EXCLUDED.origin,
			tags = EXCLUDED.tags,
			document = EXCLUDED.document,
			document_size = EXCLUDED.document_size,
			version = maps.version + 1,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, version, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		doc.Name, doc.Projection, doc.Origin, pq.Array(tags), compressed, len(encoded),
	).Scan(&stored.ID, &stored.Version, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store map %s: %w", doc.Name, err)
	}
	return &stored, nil
}

// GetMap loads and parses a stored document. It returns nil if the map
// does not exist.
func (s *MapStorage) GetMap(ctx context.Context, name string) (*mapfile.Document, error) {
	if err := validateMapName(name); err != nil {
		return nil, err
	}

	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM maps WHERE name = $1`, name).Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query map %s: %w", name, err)
	}

	raw, err := compression.DecompressDocument(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress map %s: %w", name, err)
	}
	doc, err := mapfile.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("stored map %s: %w", name, err)
	}
	return doc, nil
}

// GetMapInfo returns catalog metadata, or nil if the map does not exist
func (s *MapStorage) GetMapInfo(ctx context.Context, name string) (*StoredMap, error) {
	query := `
		SELECT id, name, projection, origin, tags, document_size, version, created_at, updated_at
		FROM maps
		WHERE name = $1
	`
	stored, err := scanStoredMap(s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query map info %s: %w", name, err)
	}
	return stored, nil
}

// ListMaps returns catalog metadata for every map ordered by name.
// A non-empty tag restricts the result to maps carrying it.
func (s *MapStorage) ListMaps(ctx context.Context, tag string) ([]StoredMap, error) {
	query := `
		SELECT id, name, projection, origin, tags, document_size, version, created_at, updated_at
		FROM maps
		WHERE $1 = '' OR $1 = ANY(tags)
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}
	defer rows.Close()

	maps := []StoredMap{}
	for rows.Next() {
		stored, err := scanStoredMap(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan map: %w", err)
		}
		maps = append(maps, *stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate maps: %w", err)
	}
	return maps, nil
}

// DeleteMap removes a map. It reports whether a row was deleted.
func (s *MapStorage) DeleteMap(ctx context.Context, name string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM maps WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete map %s: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStoredMap(row rowScanner) (*StoredMap, error) {
	var stored StoredMap
	err := row.Scan(
		&stored.ID,
		&stored.Name,
		&stored.Projection,
		&stored.Origin,
		pq.Array(&stored.Tags),
		&stored.DocumentSize,
		&stored.Version,
		&stored.CreatedAt,
		&stored.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}
