package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/moffa90/go-fwupdate/firmware"
)

// HTTP source defaults.
const (
	// DefaultBaseURL is the build server root
	DefaultBaseURL = "https://builds.tessel.io/"

	// IndexPath is the catalog-relative location of the build list
	IndexPath = "builds.json"

	// DefaultTimeout bounds a single catalog or image request
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize bounds the build list body
	MaxResponseSize int64 = 8 << 20

	// MaxDownloadSize bounds a downloaded image before decompression
	MaxDownloadSize = firmware.MaxEncodedSize

	// errorBodyLimit bounds how much of an error response is quoted
	errorBodyLimit int64 = 512
)

// HTTPSource fetches builds.json and images from a build server.
type HTTPSource struct {
	base   *url.URL
	client *http.Client
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the HTTP client (tests, proxies).
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if timeout > 0 {
			s.client = &http.Client{Timeout: timeout}
		}
	}
}

// NewHTTPSource creates a source rooted at baseURL. Catalog-relative
// paths resolve against it, so a trailing slash is added if missing.
func NewHTTPSource(baseURL string, opts ...HTTPOption) (*HTTPSource, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("catalog base URL must be http or https, got %q", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	s := &HTTPSource{
		base:   base,
		client: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Resolve turns a catalog-relative path into an absolute URL. Absolute
// inputs are returned unchanged.
func (s *HTTPSource) Resolve(rel string) string {
	ref, err := url.Parse(rel)
	if err != nil {
		return s.base.String() + strings.TrimPrefix(rel, "/")
	}
	return s.base.ResolveReference(ref).String()
}

// Builds downloads and decodes builds.json. The file may contain
// comments and trailing commas.
func (s *HTTPSource) Builds(ctx context.Context) ([]Build, error) {
	body, err := s.get(ctx, s.Resolve(IndexPath), MaxResponseSize)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}

	var builds []Build
	if err := json.Unmarshal(jsonc.ToJSON(body), &builds); err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("decode %s: %w", IndexPath, err)}
	}
	for i, b := range builds {
		if b.URL == "" {
			return nil, &UnavailableError{Err: fmt.Errorf("decode %s: entry %d has no url", IndexPath, i)}
		}
	}
	return builds, nil
}

// Download fetches an image. rawURL may be absolute or catalog-relative.
func (s *HTTPSource) Download(ctx context.Context, rawURL string) ([]byte, error) {
	data, err := s.get(ctx, s.Resolve(rawURL), MaxDownloadSize)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	return data, nil
}

func (s *HTTPSource) get(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, fmt.Errorf("GET %s: %s: %s", target, resp.Status, strings.TrimSpace(string(excerpt)))
	}

	// Read one byte past the limit so an oversized body is detected
	// rather than silently cut.
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("GET %s: body exceeds %d bytes", target, limit)
	}
	return data, nil
}
