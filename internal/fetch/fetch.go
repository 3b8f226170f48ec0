// Package fetch downloads source files referenced by a batch item.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// ErrStatus is wrapped by Fetch when the origin answers with a non-2xx code.
var ErrStatus = errors.New("unexpected status")

// ErrTooLarge is returned when a body exceeds the configured limit.
var ErrTooLarge = errors.New("source exceeds size limit")

// DefaultMaxBytes is used when Options.MaxBytes is zero.
const DefaultMaxBytes = 32 << 20

// Options configures a Fetcher.
type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	Client   *http.Client
}

// Fetcher retrieves raw bytes for an origin URL.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// New returns a Fetcher. A zero Timeout leaves the client without a deadline
// beyond the caller's context.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch returns the body at rawURL. http and https URLs are fetched over the
// network; file URLs are read from local disk.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL)
	case "file":
		return f.readFile(u.Path)
	default:
		return nil, fmt.Errorf("fetch: unsupported scheme %q in %q", u.Scheme, rawURL)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch: get %s: %w: %d", rawURL, ErrStatus, resp.StatusCode)
	}
	return f.readLimited(resp.Body)
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fetch: open %s: %w", path, err)
	}
	defer file.Close()
	return f.readLimited(file)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("fetch: %w (%d bytes)", ErrTooLarge, f.maxBytes)
	}
	return data, nil
}
