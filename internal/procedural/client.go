// Package procedural fetches map documents from remote map services.
package procedural

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mapcore/server/internal/compression"
	"github.com/mapcore/server/internal/config"
	"github.com/mapcore/server/internal/mapfile"
)

// maxDocumentSize bounds a fetched map document
const maxDocumentSize = 64 << 20

// ErrMapNotFound is returned when the service answers 404
var ErrMapNotFound = errors.New("map not found")

// MapClient downloads map documents over HTTP
type MapClient struct {
	timeout    time.Duration
	retryCount int
	client     *http.Client
}

// NewMapClient creates a map service client
func NewMapClient(cfg *config.Config) *MapClient {
	return &MapClient{
		timeout:    cfg.Map.FetchTimeout,
		retryCount: cfg.Map.RetryCount,
		client: &http.Client{
			Timeout: cfg.Map.FetchTimeout,
		},
	}
}

// statusError is a non-200 answer; 5xx answers are retried
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("fetch failed with status %d: %s", e.status, e.body)
}

// FetchMap downloads the raw document at url. Gzip documents
// (Content-Type application/gzip or a .gz suffix) are inflated.
// Network errors and 5xx answers are retried with exponential backoff.
func (c *MapClient) FetchMap(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 100ms, 200ms, 400ms
			backoff := time.Duration(100*(1<<uint(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch of %s cancelled: %w", url, ctx.Err())
			case <-time.After(backoff):
			}
		}

		data, err := c.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var se *statusError
		if errors.Is(err, ErrMapNotFound) || (errors.As(err, &se) && se.status < 500) || ctx.Err() != nil {
			break
		}
		log.Printf("[Loader] Warning: fetch attempt %d for %s failed: %v", attempt+1, url, err)
	}

	return nil, fmt.Errorf("fetch of %s failed: %w", url, lastErr)
}

func (c *MapClient) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/yaml, application/json, application/gzip")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("Warning: failed to close map response body: %v", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxDocumentSize {
		return nil, fmt.Errorf("map document exceeds %d bytes", maxDocumentSize)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrMapNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if isGzip(url, resp.Header.Get("Content-Type")) {
		inflated, err := compression.DecompressDocument(body)
		if err != nil {
			return nil, fmt.Errorf("failed to inflate map document: %w", err)
		}
		return inflated, nil
	}
	return body, nil
}

// FetchDocument downloads and parses a map document
func (c *MapClient) FetchDocument(ctx context.Context, url string) (*mapfile.Document, error) {
	data, err := c.FetchMap(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := mapfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("map document at %s: %w", url, err)
	}
	return doc, nil
}

func isGzip(url, contentType string) bool {
	if strings.HasPrefix(contentType, "application/gzip") || strings.HasPrefix(contentType, "application/x-gzip") {
		return true
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return strings.HasSuffix(url, ".gz")
}
