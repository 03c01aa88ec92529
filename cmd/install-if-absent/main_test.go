package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/install-if-absent/pkg/install"
)

func init() {
	color.NoColor = true
	homedir.DisableCache = true
}

type env struct {
	home     string
	repo     string
	cacheDir string
	srcDir   string
}

func newEnv(t *testing.T) env {
	e := env{
		home:     t.TempDir(),
		repo:     t.TempDir(),
		cacheDir: t.TempDir(),
		srcDir:   t.TempDir(),
	}
	t.Setenv("HOME", e.home)
	return e
}

func (e env) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.srcDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (e env) run(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	args = append([]string{"install-if-absent", "--local-repo", e.repo, "--cache-dir", e.cacheDir}, args...)
	err := execute(args, &stdout, &stderr)
	return stdout.String(), err
}

func TestInstall_Offline(t *testing.T) {
	e := newEnv(t)
	jar := e.file(t, "lib-1.0.jar", "jar content")
	args := []string{"install", "--offline", "--group-id", "com.acme", "--artifact-id", "lib", "--version", "1.0", "--file", jar}

	out, err := e.run(args...)
	require.NoError(t, err)
	assert.Contains(t, out, "installed com.acme:lib:jar:1.0")
	assert.FileExists(t, filepath.Join(e.repo, "com", "acme", "lib", "1.0", "lib-1.0.jar"))
	assert.FileExists(t, filepath.Join(e.repo, "com", "acme", "lib", "1.0", "lib-1.0.pom"))

	out, err = e.run(args...)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped com.acme:lib:jar:1.0 (found in local repository)")
}

func TestInstall_RemoteHit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/maven2/com/acme/lib/1.0/lib-1.0-sources.jar" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	e := newEnv(t)
	sources := e.file(t, "lib-1.0-sources.jar", "sources")
	metricsFile := filepath.Join(t.TempDir(), "install-if-absent.prom")

	out, err := e.run("install", "--remote-repo", "test::"+ts.URL+"/maven2", "--metrics-file", metricsFile,
		"--group-id", "com.acme", "--artifact-id", "lib", "--version", "1.0", "--packaging", "jar",
		"--classifier", "sources", "--file", sources)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped com.acme:lib:jar:sources:1.0 (found in remote repository)")
	assert.NoFileExists(t, filepath.Join(e.repo, "com", "acme", "lib", "1.0", "lib-1.0-sources.jar"))

	b, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), `install_if_absent_remote_request_total{repository="test",result="found"} 1`)
	assert.Contains(t, string(b), `install_if_absent_install_total{outcome="skipped"} 1`)
}

func TestInstall_Errors(t *testing.T) {
	e := newEnv(t)
	jar := e.file(t, "lib-1.0.jar", "jar")

	tests := []struct {
		name    string
		args    []string
		wantErr error
		wantMsg string
	}{
		{
			name:    "missing file",
			args:    []string{"install", "--offline", "--group-id", "com.acme", "--artifact-id", "lib", "--version", "1.0", "--file", filepath.Join(e.srcDir, "missing.jar")},
			wantErr: install.ErrPrecondition,
		},
		{
			name:    "invalid groupId",
			args:    []string{"install", "--offline", "--group-id", "com acme", "--artifact-id", "lib", "--version", "1.0", "--file", jar},
			wantErr: install.ErrDescriptor,
		},
		{
			name:    "required flag",
			args:    []string{"install", "--offline", "--artifact-id", "lib", "--version", "1.0", "--file", jar},
			wantMsg: `required flag(s) "group-id" not set`,
		},
		{
			name:    "invalid remote repository",
			args:    []string{"install", "--remote-repo", "ftp://example.com", "--group-id", "com.acme", "--artifact-id", "lib", "--version", "1.0", "--file", jar},
			wantMsg: "unsupported scheme",
		},
		{
			name:    "missing config file",
			args:    []string{"install", "--config", filepath.Join(e.srcDir, "missing.yaml"), "--group-id", "com.acme", "--artifact-id", "lib", "--version", "1.0", "--file", jar},
			wantMsg: "does not exist",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.run(tt.args...)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.ErrorContains(t, err, tt.wantMsg)
			}
		})
	}
}

func TestBatchAndHistory(t *testing.T) {
	e := newEnv(t)
	e.file(t, "lib-1.0.jar", "jar")
	e.file(t, "parent.pom", "<project/>")
	manifest := e.file(t, "artifacts.yaml", `
artifacts:
  - groupId: com.acme
    artifactId: lib
    version: "1.0"
    file: lib-1.0.jar
  - groupId: com.acme
    artifactId: parent
    version: "2"
    packaging: pom
    file: parent.pom
`)

	out, err := e.run("batch", "--offline", "--parallel", "2", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "installed com.acme:lib:jar:1.0")
	assert.Contains(t, out, "installed com.acme:parent:pom:2")
	assert.Contains(t, out, "2 installed, 0 skipped")

	out, err = e.run("history", "--json", "--group-id", "com.acme", "--artifact-id", "lib")
	require.NoError(t, err)
	var entries []historyEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "lib", entries[0].ArtifactID)
	assert.Equal(t, "jar", entries[0].Extension)
	assert.Equal(t, int64(3), entries[0].Size)
	assert.Len(t, entries[0].SHA1, 40)

	output := filepath.Join(t.TempDir(), "history.json")
	_, err = e.run("history", "--output", output)
	require.NoError(t, err)
	b, err := os.ReadFile(output)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &entries))
	assert.Len(t, entries, 2)

	out, err = e.run("history")
	require.NoError(t, err)
	assert.Contains(t, out, "com.acme:parent:pom:2")

	// sha1 of "jar"
	out, err = e.run("history", "--sha1", "f92e777f4341930bad9b2422283c4680d00dbc06")
	require.NoError(t, err)
	assert.Contains(t, out, "com.acme:lib:jar:1.0")
	assert.NotContains(t, out, "parent")

	out, err = e.run("history", "--sha1", "0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.NotContains(t, out, "com.acme")
}

func TestHistory_NoLedger(t *testing.T) {
	e := newEnv(t)
	jar := e.file(t, "lib-1.0.jar", "jar")

	_, err := e.run("install", "--offline", "--no-ledger", "--group-id", "com.acme", "--artifact-id", "lib", "--version", "1.0", "--file", jar)
	require.NoError(t, err)

	_, err = e.run("history")
	require.ErrorContains(t, err, "no install ledger")
}
