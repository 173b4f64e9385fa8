// SPDX-License-Identifier: MPL-2.0

// Package dist talks to the runtime distribution mirror: the release index
// used for alias resolution, the per-release checksum manifests, and the
// platform archives themselves. Everything network-facing lives here so the
// installer can be tested against a fixed in-memory source.
package dist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nodeup/nodeup/internal/version"
)

const (
	// DefaultMirror is the canonical distribution mirror.
	DefaultMirror = "https://nodejs.org/dist"

	// maxIndexBytes bounds the release index response size (10 MB).
	maxIndexBytes = 10 << 20

	// maxChecksumBytes bounds a checksum manifest response (1 MB).
	maxChecksumBytes = 1 << 20
)

var (
	// ErrVersionNotFound indicates the mirror has no archive for the
	// requested version and platform.
	ErrVersionNotFound = errors.New("version not found on mirror")
)

type (
	// ReleaseEntry is one row of the mirror's release index.
	ReleaseEntry struct {
		Version version.Version
		LTS     string // LTS codename, empty for non-LTS releases
	}

	// indexEntry is the JSON wire form of a release index row. The lts
	// field is either false or a codename string.
	indexEntry struct {
		Version string     `json:"version"`
		LTS     ltsChannel `json:"lts"`
	}

	// ltsChannel decodes the union-typed lts field.
	ltsChannel string

	// Client fetches index, checksums, and archives from a mirror.
	Client struct {
		httpClient *http.Client
		mirror     string
		userAgent  string
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)
)

// UnmarshalJSON accepts either the boolean false or a codename string.
func (l *ltsChannel) UnmarshalJSON(b []byte) error {
	if string(b) == "false" {
		*l = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("lts field: %w", err)
	}
	*l = ltsChannel(s)
	return nil
}

// WithHTTPClient sets a custom HTTP client, useful for tests or proxies.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithMirror overrides the distribution mirror base URL.
func WithMirror(mirror string) ClientOption {
	return func(cl *Client) {
		if mirror != "" {
			cl.mirror = trimTrailingSlash(mirror)
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// NewClient creates a Client for the canonical mirror unless overridden.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		mirror:     DefaultMirror,
		userAgent:  "nodeup/dev",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Index fetches and parses the release index. Entries whose version does
// not parse are skipped — the mirror's history includes pre-semver tags
// that can never be installed anyway.
func (c *Client) Index(ctx context.Context) ([]ReleaseEntry, error) {
	resp, err := c.get(ctx, c.mirror+"/index.json")
	if err != nil {
		return nil, fmt.Errorf("fetching release index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching release index: unexpected status %d", resp.StatusCode)
	}

	var raw []indexEntry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIndexBytes)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding release index: %w", err)
	}

	entries := make([]ReleaseEntry, 0, len(raw))
	for _, e := range raw {
		v, err := version.Parse(e.Version)
		if err != nil {
			continue
		}
		entries = append(entries, ReleaseEntry{Version: v, LTS: string(e.LTS)})
	}
	return entries, nil
}

// Checksums fetches the per-release SHASUMS256.txt manifest and returns it
// parsed as filename → lowercase hex hash.
func (c *Client) Checksums(ctx context.Context, v version.Version) (map[string]string, error) {
	sumsURL := fmt.Sprintf("%s/%s/SHASUMS256.txt", c.mirror, v)

	resp, err := c.get(ctx, sumsURL)
	if err != nil {
		return nil, fmt.Errorf("fetching checksums for %s: %w", v, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("checksums for %s: %w", v, ErrVersionNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching checksums for %s: unexpected status %d", v, resp.StatusCode)
	}

	sums, err := ParseChecksums(io.LimitReader(resp.Body, maxChecksumBytes))
	if err != nil {
		return nil, fmt.Errorf("parsing checksums for %s: %w", v, err)
	}
	return sums, nil
}

// ArchiveName returns the platform archive filename for v, e.g.
// "node-v18.19.0-linux-x64.tar.gz".
func ArchiveName(v version.Version) string {
	return v.DistName() + ".tar.gz"
}

// DownloadArchive streams the platform archive for v. The caller owns the
// returned ReadCloser. A 404 maps to ErrVersionNotFound so the CLI can tell
// "no such release" apart from transport failures.
func (c *Client) DownloadArchive(ctx context.Context, v version.Version) (io.ReadCloser, error) {
	archiveURL := fmt.Sprintf("%s/%s/%s", c.mirror, v, ArchiveName(v))

	resp, err := c.get(ctx, archiveURL)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", redactURL(archiveURL), err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("archive %s: %w", ArchiveName(v), ErrVersionNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("downloading %s: unexpected status %d", redactURL(archiveURL), resp.StatusCode)
	}

	return resp.Body, nil
}

// get executes a GET with the client's common headers.
func (c *Client) get(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// redactURL strips query parameters and fragments from a URL for safe
// inclusion in error messages.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
