// Package maploader resolves map URLs into scene graphs.
//
// Supported URLs:
//   - file:///path/map.yaml or a bare path, read from disk
//   - http:// and https://, fetched through the map service client
//   - db://name, read from the map catalog
//
// Documents whose path ends in .gz are gzip compressed.
package maploader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/mapcore/server/internal/compression"
	"github.com/mapcore/server/internal/mapfile"
	"github.com/mapcore/server/internal/procedural"
	"github.com/mapcore/server/internal/scene"
)

var (
	// ErrUnsupportedScheme is returned for URLs no source can serve
	ErrUnsupportedScheme = errors.New("unsupported map url scheme")
	// ErrCatalogDisabled is returned for db:// URLs without a catalog
	ErrCatalogDisabled = errors.New("map catalog is disabled")
	// ErrMapNotFound is returned when the named map does not exist
	ErrMapNotFound = errors.New("map not found")
)

// DocumentStore reads documents from the map catalog
type DocumentStore interface {
	GetMap(ctx context.Context, name string) (*mapfile.Document, error)
}

// Loader loads map documents from files, map services and the catalog
type Loader struct {
	client  *procedural.MapClient
	catalog DocumentStore
}

// NewLoader creates a loader. client and catalog may be nil, in which
// case http(s) and db:// URLs respectively fail.
func NewLoader(client *procedural.MapClient, catalog DocumentStore) *Loader {
	return &Loader{
		client:  client,
		catalog: catalog,
	}
}

// LoadDocument reads and parses the document at rawURL
func (l *Loader) LoadDocument(ctx context.Context, rawURL string) (*mapfile.Document, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("map url is empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid map url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "", "file":
		path := rawURL
		if u.Scheme == "file" {
			path = u.Path
		}
		return l.loadFile(path)
	case "http", "https":
		if l.client == nil {
			return nil, fmt.Errorf("%w: %s (no map service client)", ErrUnsupportedScheme, u.Scheme)
		}
		doc, err := l.client.FetchDocument(ctx, rawURL)
		if errors.Is(err, procedural.ErrMapNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMapNotFound, rawURL)
		}
		return doc, err
	case "db":
		return l.loadCatalog(ctx, u)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}

func (l *Loader) loadFile(path string) (*mapfile.Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMapNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read map file: %w", err)
	}
	if strings.HasSuffix(path, ".gz") {
		data, err = compression.DecompressDocument(data)
		if err != nil {
			return nil, fmt.Errorf("failed to inflate map file %s: %w", path, err)
		}
	}
	doc, err := mapfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("map file %s: %w", path, err)
	}
	return doc, nil
}

func (l *Loader) loadCatalog(ctx context.Context, u *url.URL) (*mapfile.Document, error) {
	if l.catalog == nil {
		return nil, ErrCatalogDisabled
	}
	// db://name puts the map name in the host; db:///name in the path
	name := u.Host
	if name == "" {
		name = strings.TrimPrefix(u.Path, "/")
	}
	if name == "" {
		return nil, fmt.Errorf("db url %q has no map name", u.String())
	}

	doc, err := l.catalog.GetMap(ctx, name)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrMapNotFound, name)
	}
	return doc, nil
}

// Load builds the scene graph of a complete map, including its map.*
// metadata, ready to be made the active map
func (l *Loader) Load(ctx context.Context, rawURL string) (scene.Node, error) {
	doc, err := l.LoadDocument(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	root, err := doc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build map %s: %w", doc.Name, err)
	}
	log.Printf("[Loader] Loaded map %s from %s", doc.Name, rawURL)
	return root, nil
}

// Fetch builds the content of a dynamic node. Map metadata and authored
// regions in the fetched document are ignored.
func (l *Loader) Fetch(ctx context.Context, rawURL string) (scene.Node, error) {
	doc, err := l.LoadDocument(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if len(doc.Regions) > 0 {
		log.Printf("[Loader] Warning: dynamic content %s declares regions; only top-level nodes are attached", rawURL)
	}
	return doc.BuildNodes()
}
