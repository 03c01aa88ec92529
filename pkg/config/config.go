package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/samber/lo"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/aquasecurity/install-if-absent/pkg/remote"
)

const (
	appName = "install-if-absent"

	defaultLocalRepository = "~/.m2/repository"
	defaultRetryMax        = 3
)

// ErrInvalid is returned for settings that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the settings of install-if-absent.
type Config struct {
	LocalRepository string       `yaml:"localRepository"`
	Repositories    []Repository `yaml:"repositories"`
	Offline         bool         `yaml:"offline"`
	CacheDir        string       `yaml:"cacheDir"`
	HTTP            HTTPConfig   `yaml:"http"`
}

type Repository struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
	// Credentials may reference environment variables, e.g. ${REPO_PASSWORD}
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

type HTTPConfig struct {
	RetryMax     *int          `yaml:"retryMax,omitempty"`
	RetryWaitMin time.Duration `yaml:"retryWaitMin"`
	RetryWaitMax time.Duration `yaml:"retryWaitMax"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LocalRepository: defaultLocalRepository,
		Repositories: []Repository{
			{
				ID:  remote.CentralID,
				URL: remote.CentralURL,
			},
		},
		HTTP: HTTPConfig{
			RetryMax:     lo.ToPtr(defaultRetryMax),
			RetryWaitMin: time.Second,
			RetryWaitMax: 30 * time.Second,
			Timeout:      time.Minute,
		},
	}
}

// DefaultPath returns ~/.m2/install-if-absent.yaml
func DefaultPath() (string, error) {
	return homedir.Expand(filepath.Join("~", ".m2", appName+".yaml"))
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return Config{}, xerrors.Errorf("unable to expand %s: %w", path, err)
	}

	cfg := Default()
	contents, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, xerrors.Errorf("read config: %w", err)
		}
	} else {
		// a repositories list in the file replaces the default one
		if err = yaml.Unmarshal(contents, &cfg); err != nil {
			return Config{}, xerrors.Errorf("unmarshal config %s: %w", path, err)
		}
	}

	if err = cfg.ApplyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills in omitted settings, expands paths and validates the result.
func (c *Config) ApplyDefaults() error {
	defaults := Default()

	if c.LocalRepository == "" {
		c.LocalRepository = defaults.LocalRepository
	}
	localRepo, err := homedir.Expand(c.LocalRepository)
	if err != nil {
		return xerrors.Errorf("local repository: %w", err)
	}
	c.LocalRepository = localRepo

	if c.CacheDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return xerrors.Errorf("unable to get the cache dir: %w", err)
		}
		c.CacheDir = filepath.Join(cacheDir, appName)
	}
	if c.CacheDir, err = homedir.Expand(c.CacheDir); err != nil {
		return xerrors.Errorf("cache dir: %w", err)
	}

	if c.HTTP.RetryMax == nil {
		c.HTTP.RetryMax = defaults.HTTP.RetryMax
	}
	if c.HTTP.RetryWaitMin == 0 {
		c.HTTP.RetryWaitMin = defaults.HTTP.RetryWaitMin
	}
	if c.HTTP.RetryWaitMax == 0 {
		c.HTTP.RetryWaitMax = defaults.HTTP.RetryWaitMax
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = defaults.HTTP.Timeout
	}
	if *c.HTTP.RetryMax < 0 {
		return xerrors.Errorf("%w: http.retryMax must not be negative", ErrInvalid)
	}
	if c.HTTP.RetryWaitMin > c.HTTP.RetryWaitMax {
		return xerrors.Errorf("%w: http.retryWaitMin (%s) is greater than http.retryWaitMax (%s)", ErrInvalid,
			c.HTTP.RetryWaitMin, c.HTTP.RetryWaitMax)
	}

	return c.validateRepositories()
}

func (c *Config) validateRepositories() error {
	for i, r := range c.Repositories {
		if r.URL == "" {
			return xerrors.Errorf("%w: repository #%d has no url", ErrInvalid, i+1)
		}
		if _, err := parseURL(r.URL); err != nil {
			return xerrors.Errorf("%w: repository %q: %s", ErrInvalid, r.ID, err)
		}
		if r.ID == "" {
			c.Repositories[i].ID = defaultID(r.URL)
		}
		c.Repositories[i].Username = os.ExpandEnv(r.Username)
		c.Repositories[i].Password = os.ExpandEnv(r.Password)
	}

	dups := lo.FindDuplicates(lo.Map(c.Repositories, func(r Repository, _ int) string { return r.ID }))
	if len(dups) > 0 {
		return xerrors.Errorf("%w: duplicate repository ids %q", ErrInvalid, dups)
	}
	return nil
}

// ParseRepository parses "id::url" or a plain url. The id of a plain url is its host.
func ParseRepository(s string) (Repository, error) {
	id, rawURL, found := strings.Cut(s, "::")
	if !found {
		id, rawURL = "", s
	}
	if _, err := parseURL(rawURL); err != nil {
		return Repository{}, xerrors.Errorf("%w: remote repository %q: %s", ErrInvalid, s, err)
	}
	if id == "" {
		id = defaultID(rawURL)
	}
	return Repository{
		ID:  id,
		URL: rawURL,
	}, nil
}

// RemoteRepositories converts the configured repositories for the resolver.
func (c Config) RemoteRepositories() []remote.Repository {
	return lo.Map(c.Repositories, func(r Repository, _ int) remote.Repository {
		return remote.Repository{
			ID:       r.ID,
			URL:      r.URL,
			Username: r.Username,
			Password: r.Password,
		}
	})
}

// RemoteOption returns the resolver options for this configuration.
func (c Config) RemoteOption() remote.Option {
	return remote.Option{
		Repositories: c.RemoteRepositories(),
		RetryMax:     lo.FromPtr(c.HTTP.RetryMax),
		RetryWaitMin: c.HTTP.RetryWaitMin,
		RetryWaitMax: c.HTTP.RetryWaitMax,
		Timeout:      c.HTTP.Timeout,
	}
}

func parseURL(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, xerrors.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, xerrors.New("missing host")
	}
	return u, nil
}

func defaultID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
