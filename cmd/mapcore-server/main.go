package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/api"
	"github.com/mapcore/server/internal/auth"
	"github.com/mapcore/server/internal/config"
	"github.com/mapcore/server/internal/database"
	"github.com/mapcore/server/internal/geo"
	"github.com/mapcore/server/internal/mapctl"
	"github.com/mapcore/server/internal/maploader"
	"github.com/mapcore/server/internal/performance"
	"github.com/mapcore/server/internal/procedural"
	"github.com/mapcore/server/internal/scene"
	"github.com/mapcore/server/internal/streaming"
)

// main starts the mapcore server. It loads the configured map, serves the
// HTTP and WebSocket API and streams dynamic map content around the
// camera until SIGINT or SIGTERM.
//
// With -hash-password it reads a password from stdin, prints its bcrypt
// hash for ADMIN_PASSWORD_HASH and exits.
func main() {
	hashOnly := flag.Bool("hash-password", false, "Read a password from stdin and print its bcrypt hash")
	flag.Parse()

	if *hashOnly {
		cost, err := strconv.Atoi(os.Getenv("BCRYPT_COST"))
		if err != nil {
			cost = 10
		}
		if err := hashPassword(os.Stdin, os.Stdout, cost); err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Logging.Level == "debug" {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
	if cfg.Logging.OutputPath != "" {
		f, err := os.OpenFile(cfg.Logging.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profiler := performance.NewProfiler(cfg.Profiling.Enabled)
	access := scene.NewAccess()

	var catalog *database.MapStorage
	if cfg.Database.Enabled {
		var db *sql.DB
		db, err = database.Open(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to map catalog: %v", err)
		}
		defer db.Close()
		catalog = database.NewMapStorage(db)
		if err := catalog.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare map catalog: %v", err)
		}
		log.Printf("Map catalog connected: %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	}

	deps := api.Dependencies{
		Config:         cfg,
		Profiler:       profiler,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	// A nil *MapStorage must not end up inside the interfaces
	var store maploader.DocumentStore
	if catalog != nil {
		store = catalog
		deps.Catalog = catalog
	}
	loader := maploader.NewLoader(procedural.NewMapClient(cfg), store)

	stream := streaming.NewManager(access, loader, profiler)
	resolver := mapctl.NewResolver(access, geo.NewWGS84(), mapctl.IntersectorFactory(stream), mapctl.Options{
		DynamicLoadURL: cfg.Map.DynamicLoadURL,
		Profiler:       profiler,
		LoadTimeout:    cfg.Map.LoadTimeout,
		LODFactor:      cfg.Map.LODFactor,
	})
	deps.Resolver = resolver
	deps.Loader = loader
	deps.Stream = stream

	if cfg.Map.URL != "" {
		loadCtx, cancel := context.WithTimeout(ctx, cfg.Map.FetchTimeout)
		root, err := loader.Load(loadCtx, cfg.Map.URL)
		cancel()
		if err != nil {
			log.Fatalf("Failed to load map %s: %v", cfg.Map.URL, err)
		}
		resolver.SetActiveMap(root)
	}

	handler, hub := api.NewRouter(deps)
	go hub.Run(ctx)
	go stream.Run(ctx, cfg.Map.StreamInterval, resolver, func() (mgl64.Vec3, bool) {
		cam := resolver.Camera()
		if cam == nil {
			return mgl64.Vec3{}, false
		}
		return cam.Position, true
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("mapcore server starting on %s (%s)", server.Addr, cfg.Server.Environment)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		log.Printf("Shutting down mapcore server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: graceful shutdown failed: %v", err)
	}
	if cfg.Profiling.Enabled {
		profiler.LogReport()
	}
	log.Printf("mapcore server stopped")
}

// hashPassword hashes the first line of in and writes the hash to out.
// It runs without a full configuration so no JWT secret is needed.
func hashPassword(in io.Reader, out io.Writer, cost int) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}

	service := auth.NewPasswordService(&config.Config{Auth: config.AuthConfig{BCryptCost: cost}})
	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
