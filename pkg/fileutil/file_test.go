package fileutil_test

import (
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/install-if-absent/pkg/fileutil"
)

func TestExtension(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "jar",
			path: "lib-1.0.jar",
			want: "jar",
		},
		{
			name: "nested dirs",
			path: filepath.Join("some.dir", "lib-1.0.pom"),
			want: "pom",
		},
		{
			name: "last extension only",
			path: "dist.tar.gz",
			want: "gz",
		},
		{
			name: "no extension",
			path: filepath.Join("some.dir", "LICENSE"),
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fileutil.Extension(tt.path))
		})
	}
}

func TestIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.jar")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0644))

	assert.True(t, fileutil.IsFile(file))
	assert.False(t, fileutil.IsFile(dir))
	assert.False(t, fileutil.IsFile(filepath.Join(dir, "missing.jar")))
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jar")
	content := []byte("jar content")
	require.NoError(t, os.WriteFile(src, content, 0644))

	dst := filepath.Join(dir, "repo", "com", "acme", "lib", "1.0", "lib-1.0.jar")
	got, err := fileutil.Copy(src, dst)
	require.NoError(t, err)

	want := sha1.Sum(content)
	assert.Equal(t, want[:], got.SHA1)
	assert.Equal(t, int64(len(content)), got.Size)

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, b)

	// no temp files are left behind
	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCopyMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := fileutil.Copy(filepath.Join(dir, "missing.jar"), filepath.Join(dir, "out.jar"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "out.jar"))
}
