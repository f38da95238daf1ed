package ingest

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSite is returned for a target that is not an absolute http(s) URL.
var ErrInvalidSite = errors.New("invalid target site")

type siteFile struct {
	TargetSite string    `yaml:"target_site"`
	UpdatedAt  time.Time `yaml:"updated_at"`
}

// SiteStore keeps the crawl target in a small YAML file. Until one is set,
// Get returns the configured fallback.
type SiteStore struct {
	path     string
	fallback string
	mu       sync.RWMutex
}

func NewSiteStore(path, fallback string) *SiteStore {
	return &SiteStore{path: path, fallback: fallback}
}

// NormalizeSite validates raw and strips its fragment. The scheme and host
// are lowercased and an empty path becomes "/".
func NormalizeSite(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.WithHint(errors.Wrap(ErrInvalidSite, "empty url"), `send {"url": "https://example.com"}`)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "parse %q", raw), ErrInvalidSite)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.WithHint(errors.Wrapf(ErrInvalidSite, "%q", raw), "use an absolute http:// or https:// URL")
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Set normalizes and persists raw, returning the stored form.
func (s *SiteStore) Set(raw string) (string, error) {
	site, err := NormalizeSite(raw)
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(siteFile{TargetSite: site, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return "", errors.Wrap(err, "encode site")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return "", errors.Wrap(err, "create site directory")
	}
	if err := renameio.WriteFile(s.path, out, 0o644); err != nil {
		return "", errors.Wrap(err, "write site")
	}
	return site, nil
}

// Get returns the stored target, or the fallback when nothing usable is
// stored.
func (s *SiteStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return s.fallback
	}
	var f siteFile
	if err := yaml.Unmarshal(raw, &f); err != nil || f.TargetSite == "" {
		return s.fallback
	}
	return f.TargetSite
}
