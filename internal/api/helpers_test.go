package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mapcore/server/internal/auth"
	"github.com/mapcore/server/internal/config"
	"github.com/mapcore/server/internal/database"
	"github.com/mapcore/server/internal/geo"
	"github.com/mapcore/server/internal/mapctl"
	"github.com/mapcore/server/internal/mapfile"
	"github.com/mapcore/server/internal/maploader"
	"github.com/mapcore/server/internal/scene"
	"github.com/mapcore/server/internal/testutil"
)

const (
	testSecret   = "test-secret-key-for-api-tests-0123456789"
	testPassword = "CorrectHorse42Battery"
	romeURL      = "file:///maps/rome.yaml"
)

// fakeLoader serves fixture documents by URL
type fakeLoader struct {
	docs map[string]*mapfile.Document
}

func (l *fakeLoader) Load(ctx context.Context, url string) (scene.Node, error) {
	doc, ok := l.docs[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", maploader.ErrMapNotFound, url)
	}
	return doc.Build()
}

// fakeCatalog is an in-memory Catalog
type fakeCatalog struct {
	mu   sync.Mutex
	maps map[string]database.StoredMap
	err  error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{maps: make(map[string]database.StoredMap)}
}

func (c *fakeCatalog) PutMap(ctx context.Context, doc *mapfile.Document, tags []string) (*database.StoredMap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	stored := c.maps[doc.Name]
	stored.Name = doc.Name
	stored.Projection = doc.Projection
	stored.Origin = doc.Origin
	stored.Tags = tags
	stored.Version++
	c.maps[doc.Name] = stored
	return &stored, nil
}

func (c *fakeCatalog) GetMapInfo(ctx context.Context, name string) (*database.StoredMap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	stored, ok := c.maps[name]
	if !ok {
		return nil, nil
	}
	return &stored, nil
}

func (c *fakeCatalog) ListMaps(ctx context.Context, tag string) ([]database.StoredMap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	var out []database.StoredMap
	for _, stored := range c.maps {
		if tag == "" || containsString(stored.Tags, tag) {
			out = append(out, stored)
		}
	}
	return out, nil
}

func (c *fakeCatalog) DeleteMap(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.maps[name]
	delete(c.maps, name)
	return ok, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// testServer is a fully wired router around a scene resolver
type testServer struct {
	resolver *mapctl.Resolver
	handler  http.Handler
	hub      *TrackHub
	jwt      *auth.JWTService
	helper   *testutil.HTTPTestHelper
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:         testSecret,
			JWTExpiration:     15 * time.Minute,
			AdminUsername:     "admin",
			AdminPasswordHash: string(hash),
			BCryptCost:        bcrypt.MinCost,
		},
		Map: config.MapConfig{
			LoadTimeout: 5 * time.Second,
			LODFactor:   1,
		},
	}
}

// newTestServer builds the router. catalog may be nil.
func newTestServer(t *testing.T, catalog Catalog) *testServer {
	t.Helper()
	cfg := testConfig(t)
	resolver := mapctl.NewResolver(scene.NewAccess(), geo.NewWGS84(), mapctl.IntersectorFactory(nil), mapctl.Options{})
	loader := &fakeLoader{docs: map[string]*mapfile.Document{
		romeURL: testutil.NewTestFixtures().NewTestMap("rome", 25),
	}}

	generous := RateLimitConfig{
		GlobalLimit: 10000, GlobalWindow: time.Minute,
		OperatorLimit: 10000, OperatorWindow: time.Minute,
		AuthLimit: 10000, AuthWindow: time.Minute,
		QueryLimit: 10000, QueryWindow: time.Minute,
	}
	handler, hub := NewRouter(Dependencies{
		Config:     cfg,
		Resolver:   resolver,
		Loader:     loader,
		Catalog:    catalog,
		RateLimits: generous,
	})
	return &testServer{
		resolver: resolver,
		handler:  handler,
		hub:      hub,
		jwt:      auth.NewJWTService(cfg),
		helper:   testutil.NewHTTPTestHelper(handler),
	}
}

// loadRome activates the flat 25m Rome fixture map
func (s *testServer) loadRome(t *testing.T) {
	t.Helper()
	root, err := testutil.NewTestFixtures().NewTestMap("rome", 25).Build()
	if err != nil {
		t.Fatalf("Failed to build fixture map: %v", err)
	}
	s.resolver.SetActiveMap(root)
}

func (s *testServer) adminHeaders(t *testing.T) map[string]string {
	t.Helper()
	token, _, err := s.jwt.GenerateToken("admin", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return testutil.BearerHeaders(token)
}

// romeSample is the geodetic position 100m east and 200m north of the
// Rome fixture origin
func romeSample(t *testing.T) geo.LatPos {
	t.Helper()
	pos, ok := geo.NewWGS84().UTMToGeodetic(geo.UTMPos{Zone: 33, North: true, Easting: 500100, Northing: 4649976})
	if !ok {
		t.Fatal("Failed to convert fixture sample")
	}
	return pos
}
