package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/install-if-absent/pkg/config"
	"github.com/aquasecurity/install-if-absent/pkg/remote"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "install-if-absent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func init() {
	homedir.DisableCache = true
}

func TestLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("REPO_PASSWORD", "s3cret")

	tests := []struct {
		name      string
		content   string
		want      func(cfg config.Config)
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name:    "empty file uses defaults",
			content: "",
			want: func(cfg config.Config) {
				assert.Equal(t, filepath.Join(home, ".m2", "repository"), cfg.LocalRepository)
				assert.Equal(t, []config.Repository{{ID: remote.CentralID, URL: remote.CentralURL}}, cfg.Repositories)
				assert.Equal(t, 3, *cfg.HTTP.RetryMax)
				assert.Equal(t, time.Minute, cfg.HTTP.Timeout)
				assert.False(t, cfg.Offline)
				assert.NotEmpty(t, cfg.CacheDir)
			},
			assertErr: assert.NoError,
		},
		{
			name: "happy path",
			content: `
localRepository: ~/repo
offline: true
cacheDir: ~/cache
repositories:
  - id: internal
    url: https://nexus.example.com/repository/maven-public/
    username: deployer
    password: ${REPO_PASSWORD}
  - url: https://repo.example.org/maven2
http:
  retryMax: 0
  retryWaitMin: 100ms
  retryWaitMax: 2s
  timeout: 10s
`,
			want: func(cfg config.Config) {
				assert.Equal(t, filepath.Join(home, "repo"), cfg.LocalRepository)
				assert.Equal(t, filepath.Join(home, "cache"), cfg.CacheDir)
				assert.True(t, cfg.Offline)
				assert.Equal(t, []config.Repository{
					{
						ID:       "internal",
						URL:      "https://nexus.example.com/repository/maven-public/",
						Username: "deployer",
						Password: "s3cret",
					},
					{
						ID:  "repo.example.org",
						URL: "https://repo.example.org/maven2",
					},
				}, cfg.Repositories)
				assert.Equal(t, config.HTTPConfig{
					RetryMax:     lo.ToPtr(0),
					RetryWaitMin: 100 * time.Millisecond,
					RetryWaitMax: 2 * time.Second,
					Timeout:      10 * time.Second,
				}, cfg.HTTP)

				opt := cfg.RemoteOption()
				assert.Equal(t, 0, opt.RetryMax)
				assert.Len(t, opt.Repositories, 2)
				assert.Equal(t, "s3cret", opt.Repositories[0].Password)
			},
			assertErr: assert.NoError,
		},
		{
			name: "no repositories",
			content: `
repositories: []
`,
			want: func(cfg config.Config) {
				assert.Empty(t, cfg.Repositories)
			},
			assertErr: assert.NoError,
		},
		{
			name: "unsupported scheme",
			content: `
repositories:
  - id: local
    url: file:///srv/maven
`,
			assertErr: func(t assert.TestingT, err error, _ ...interface{}) bool {
				return assert.ErrorIs(t, err, config.ErrInvalid) && assert.ErrorContains(t, err, "unsupported scheme")
			},
		},
		{
			name: "duplicate ids",
			content: `
repositories:
  - id: central
    url: https://repo1.example.com
  - id: central
    url: https://repo2.example.com
`,
			assertErr: func(t assert.TestingT, err error, _ ...interface{}) bool {
				return assert.ErrorIs(t, err, config.ErrInvalid) && assert.ErrorContains(t, err, "duplicate repository ids")
			},
		},
		{
			name: "wait bounds",
			content: `
http:
  retryWaitMin: 1m
  retryWaitMax: 1s
`,
			assertErr: func(t assert.TestingT, err error, _ ...interface{}) bool {
				return assert.ErrorIs(t, err, config.ErrInvalid)
			},
		},
		{
			name:    "broken yaml",
			content: "repositories: [",
			assertErr: func(t assert.TestingT, err error, _ ...interface{}) bool {
				return assert.ErrorContains(t, err, "unmarshal config")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, tt.content))
			if !tt.assertErr(t, err) {
				return
			}
			if tt.want != nil {
				tt.want(cfg)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default().Repositories, cfg.Repositories)
}

func TestParseRepository(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    config.Repository
		wantErr string
	}{
		{
			name:  "id and url",
			input: "internal::https://nexus.example.com/maven",
			want:  config.Repository{ID: "internal", URL: "https://nexus.example.com/maven"},
		},
		{
			name:  "plain url",
			input: "https://repo.example.org/maven2/",
			want:  config.Repository{ID: "repo.example.org", URL: "https://repo.example.org/maven2/"},
		},
		{
			name:  "empty id",
			input: "::http://localhost:8081/repository",
			want:  config.Repository{ID: "localhost:8081", URL: "http://localhost:8081/repository"},
		},
		{
			name:    "not a url",
			input:   "internal::nexus",
			wantErr: "unsupported scheme",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := config.ParseRepository(tt.input)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, config.ErrInvalid)
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
