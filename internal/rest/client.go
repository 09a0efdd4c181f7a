// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/patrolmap/internal/config"
	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/store"
)

// maxErrorBodySize limits how much of a failed response is kept for the error.
const maxErrorBodySize = 64 * 1024 // 64KB

// maxPayloadSize limits the size of a full-state response.
const maxPayloadSize = 32 << 20 // 32MB

// Fetcher performs one full-state fetch for a kind.
//
// Implemented by Client and BreakerClient; the refresh scheduler depends
// only on this interface.
type Fetcher interface {
	Fetch(ctx context.Context, kind models.Kind) (store.Batch, error)
}

// Client fetches entity collections from the backend REST API.
//
// Every kind is fetched with GET baseURL+path. Requests across all kinds
// share one token-bucket limiter so a burst of manual refreshes cannot
// flood the backend.
//
// Thread Safety: Fetch is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	paths   map[models.Kind]string
	client  *http.Client
	limiter *rate.Limiter
	log     *logging.SyncLogger
}

// NewClient creates a REST client from configuration.
func NewClient(cfg *config.RESTConfig) *Client {
	paths := make(map[models.Kind]string, len(models.AllKinds))
	for _, k := range models.AllKinds {
		paths[k] = cfg.PathFor(k.Slug())
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		paths:   paths,
		client: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
		log:     logging.NewSyncLogger("rest"),
	}
}

// URLFor returns the collection URL for a kind.
func (c *Client) URLFor(kind models.Kind) string {
	return c.baseURL + c.paths[kind]
}

// Fetch retrieves the full collection for kind and normalizes it into a
// batch. Malformed items are skipped; a malformed body, a transport failure
// or a non-200 status is returned as a *FetchError.
func (c *Client) Fetch(ctx context.Context, kind models.Kind) (store.Batch, error) {
	path, ok := c.paths[kind]
	if !ok || path == "" {
		return store.Batch{}, &FetchError{Kind: kind, Err: fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)}
	}
	reqURL := c.baseURL + path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return store.Batch{}, &FetchError{Kind: kind, URL: reqURL, Err: fmt.Errorf("%w: rate limit wait: %w", ErrTransport, err)}
		}
	}

	// Pushes stamped at or after this instant are newer than anything the
	// response can contain.
	startedAt := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return store.Batch{}, &FetchError{Kind: kind, URL: reqURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return store.Batch{}, &FetchError{Kind: kind, URL: reqURL, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return store.Batch{}, &FetchError{
			Kind:       kind,
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrTransport, strings.TrimSpace(string(body))),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
	if err != nil {
		return store.Batch{}, &FetchError{Kind: kind, URL: reqURL, Err: fmt.Errorf("%w: read body: %w", ErrTransport, err)}
	}

	batch, err := decodeBatch(kind, body, startedAt, c.log)
	if err != nil {
		return store.Batch{}, &FetchError{Kind: kind, URL: reqURL, Err: err}
	}
	return batch, nil
}

// readBodyForError reads the response body for error reporting (max 64KB)
// Returns the body content or a placeholder message if reading fails
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}
