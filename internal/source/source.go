// Package source fetches the static ranking resources: snapshot files and the
// metadata lookup. Fetchers return raw bytes; decoding happens in the store.
package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
)

// maxPayloadBytes bounds a single static resource.
const maxPayloadBytes = 64 << 20

// Fetcher reads a named static resource.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
	// Location describes where resources are read from, for logs and health.
	Location() string
}

// HTTPFetcher issues plain GET requests relative to a base URL.
type HTTPFetcher struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPFetcher builds a fetcher for baseURL. timeout bounds every request.
func NewHTTPFetcher(baseURL string, timeout time.Duration) (*HTTPFetcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return &HTTPFetcher{
		base:   u,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (f *HTTPFetcher) Location() string {
	return f.base.String()
}

func (f *HTTPFetcher) resolve(name string) (string, error) {
	ref, err := url.Parse(name)
	if err != nil || ref.IsAbs() || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: resource name %q", apperrors.ErrInvalidInput, name)
	}
	return f.base.ResolveReference(ref).String(), nil
}

// Fetch GETs name. Transport errors and non-2xx answers wrap ErrFetchFailed.
func (f *HTTPFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	target, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", name, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrFetchFailed, name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s: status %d", apperrors.ErrFetchFailed, name, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrFetchFailed, name, err)
	}
	if len(body) > maxPayloadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", apperrors.ErrFetchFailed, name, maxPayloadBytes)
	}
	return body, nil
}

// Check sends a HEAD request for name; used by readiness probes.
func (f *HTTPFetcher) Check(ctx context.Context, name string) error {
	target, err := f.resolve(name)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HEAD %s: status %d", name, resp.StatusCode)
	}
	return nil
}

// FSFetcher reads resources from a file system, typically os.DirFS.
type FSFetcher struct {
	fsys     fs.FS
	location string
}

// NewFSFetcher wraps fsys. location is only used for display.
func NewFSFetcher(fsys fs.FS, location string) *FSFetcher {
	return &FSFetcher{fsys: fsys, location: location}
}

func (f *FSFetcher) Location() string {
	return f.location
}

func (f *FSFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("%w: resource name %q", apperrors.ErrInvalidInput, name)
	}
	data, err := fs.ReadFile(f.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrFetchFailed, err)
	}
	return data, nil
}

// Check stats name; used by readiness probes.
func (f *FSFetcher) Check(ctx context.Context, name string) error {
	_, err := fs.Stat(f.fsys, name)
	return err
}
