package maploader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mapcore/server/internal/compression"
	"github.com/mapcore/server/internal/config"
	"github.com/mapcore/server/internal/mapctl"
	"github.com/mapcore/server/internal/mapfile"
	"github.com/mapcore/server/internal/procedural"
	"github.com/mapcore/server/internal/scene"
	"github.com/mapcore/server/internal/testutil"
)

type fakeCatalog struct {
	docs map[string]*mapfile.Document
	err  error
}

func (c *fakeCatalog) GetMap(ctx context.Context, name string) (*mapfile.Document, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.docs[name], nil
}

func encodeTestMap(t *testing.T, name string) []byte {
	t.Helper()
	doc := testutil.NewTestFixtures().NewTestMap(name, 25)
	data, err := mapfile.Encode(doc)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return data
}

func testClient() *procedural.MapClient {
	return procedural.NewMapClient(&config.Config{
		Map: config.MapConfig{FetchTimeout: 5 * time.Second},
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "rome.yaml")
	if err := os.WriteFile(plain, encodeTestMap(t, "rome"), 0o644); err != nil {
		t.Fatal(err)
	}

	compressed, err := compression.CompressDocument(encodeTestMap(t, "rome_gz"))
	if err != nil {
		t.Fatal(err)
	}
	packed := filepath.Join(dir, "rome.yaml.gz")
	if err := os.WriteFile(packed, compressed, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		url      string
		wantName string
	}{
		{"bare path", plain, "rome"},
		{"file url", "file://" + plain, "rome"},
		{"gzip file", packed, "rome_gz"},
	}

	loader := NewLoader(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := loader.Load(context.Background(), tt.url)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if name, _ := root.Attribute(mapctl.AttrName); name != tt.wantName {
				t.Errorf("map name = %q, want %q", name, tt.wantName)
			}
			if proj, _ := root.Attribute(mapctl.AttrProjection); proj != "UTM" {
				t.Errorf("projection = %q, want UTM", proj)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	loader := NewLoader(nil, nil)
	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrMapNotFound) {
		t.Errorf("error = %v, want ErrMapNotFound", err)
	}
}

func TestLoadHTTP(t *testing.T) {
	body := encodeTestMap(t, "remote")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/remote.yaml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(body)
	}))
	defer server.Close()

	loader := NewLoader(testClient(), nil)
	root, err := loader.Load(context.Background(), server.URL+"/maps/remote.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if root.Name() != "remote" {
		t.Errorf("root name = %q, want remote", root.Name())
	}

	_, err = loader.Load(context.Background(), server.URL+"/maps/other.yaml")
	if !errors.Is(err, ErrMapNotFound) {
		t.Errorf("error = %v, want ErrMapNotFound", err)
	}
}

func TestLoadHTTPWithoutClient(t *testing.T) {
	_, err := NewLoader(nil, nil).Load(context.Background(), "http://example.invalid/map.yaml")
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("error = %v, want ErrUnsupportedScheme", err)
	}
}

func TestLoadCatalog(t *testing.T) {
	catalog := &fakeCatalog{docs: map[string]*mapfile.Document{
		"rome": testutil.NewTestFixtures().NewTestMap("rome", 10),
	}}
	loader := NewLoader(nil, catalog)

	for _, url := range []string{"db://rome", "db:///rome"} {
		root, err := loader.Load(context.Background(), url)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", url, err)
		}
		if root.Name() != "rome" {
			t.Errorf("Load(%s) root = %q, want rome", url, root.Name())
		}
	}

	if _, err := loader.Load(context.Background(), "db://missing"); !errors.Is(err, ErrMapNotFound) {
		t.Errorf("missing map error = %v, want ErrMapNotFound", err)
	}
	if _, err := loader.Load(context.Background(), "db://"); err == nil {
		t.Error("expected error for db url without a name")
	}

	catalog.err = errors.New("connection refused")
	if _, err := loader.Load(context.Background(), "db://rome"); err == nil {
		t.Error("expected catalog error to propagate")
	}
}

func TestLoadCatalogDisabled(t *testing.T) {
	_, err := NewLoader(nil, nil).Load(context.Background(), "db://rome")
	if !errors.Is(err, ErrCatalogDisabled) {
		t.Errorf("error = %v, want ErrCatalogDisabled", err)
	}
}

func TestLoadUnsupported(t *testing.T) {
	loader := NewLoader(nil, nil)
	if _, err := loader.Load(context.Background(), "ftp://host/map.yaml"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("error = %v, want ErrUnsupportedScheme", err)
	}
	if _, err := loader.Load(context.Background(), ""); err == nil {
		t.Error("expected error for empty url")
	}
}

func TestFetchBuildsContentWithoutMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.yaml")
	if err := os.WriteFile(path, encodeTestMap(t, "tile"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, err := NewLoader(nil, nil).Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if _, ok := content.Attribute(mapctl.AttrProjection); ok {
		t.Error("dynamic content should not carry map metadata")
	}
	children := content.Children()
	if len(children) != 1 {
		t.Fatalf("children = %d, want 1", len(children))
	}
	if _, ok := children[0].(*scene.Terrain); !ok {
		t.Errorf("child is %T, want *scene.Terrain", children[0])
	}
}
