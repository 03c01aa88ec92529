package fileutil

import (
	"crypto/sha1"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
)

// Extension returns the file extension without the leading dot, e.g. "jar" for "lib-1.0.jar".
// Only the last extension is returned: "gz" for "dist.tar.gz".
func Extension(path string) string {
	return strings.TrimPrefix(filepath.Ext(filepath.Base(path)), ".")
}

// IsFile reports whether a regular file exists at the path.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// CopyResult describes a copied file.
type CopyResult struct {
	SHA1 []byte
	Size int64
}

// Copy copies src to dst atomically: the content is written to a temporary file in the
// destination directory and renamed into place. The SHA-1 digest is computed on the fly.
func Copy(src, dst string) (CopyResult, error) {
	in, err := os.Open(src)
	if err != nil {
		return CopyResult{}, xerrors.Errorf("unable to open %s: %w", src, err)
	}
	defer in.Close()

	if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return CopyResult{}, xerrors.Errorf("unable to create a directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return CopyResult{}, xerrors.Errorf("unable to create a temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	h := sha1.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), in)
	if err != nil {
		_ = tmp.Close()
		return CopyResult{}, xerrors.Errorf("unable to copy %s: %w", src, err)
	}
	if err = tmp.Close(); err != nil {
		return CopyResult{}, xerrors.Errorf("unable to close %s: %w", tmp.Name(), err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return CopyResult{}, xerrors.Errorf("chmod error: %w", err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return CopyResult{}, xerrors.Errorf("unable to rename into %s: %w", dst, err)
	}

	return CopyResult{
		SHA1: h.Sum(nil),
		Size: size,
	}, nil
}

// WriteFile writes data to path atomically.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return xerrors.Errorf("unable to create a directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return xerrors.Errorf("unable to create a temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return xerrors.Errorf("failed to save a file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return xerrors.Errorf("unable to close %s: %w", tmp.Name(), err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return xerrors.Errorf("chmod error: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return xerrors.Errorf("unable to rename into %s: %w", path, err)
	}
	return nil
}

func WriteJSON(filePath string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to marshal JSON: %w", err)
	}
	if err = WriteFile(filePath, b); err != nil {
		return xerrors.Errorf("json write error: %w", err)
	}
	return nil
}
