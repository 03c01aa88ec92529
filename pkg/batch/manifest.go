package batch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/aquasecurity/install-if-absent/pkg/fileutil"
	"github.com/aquasecurity/install-if-absent/pkg/hash"
	"github.com/aquasecurity/install-if-absent/pkg/install"
)

// Entry is one artifact of a manifest.
type Entry struct {
	GroupID    string `yaml:"groupId"`
	ArtifactID string `yaml:"artifactId"`
	Version    string `yaml:"version"`
	Packaging  string `yaml:"packaging,omitempty"`
	Classifier string `yaml:"classifier,omitempty"`
	File       string `yaml:"file"`
}

func (e Entry) Request() install.Request {
	return install.Request{
		GroupID:    e.GroupID,
		ArtifactID: e.ArtifactID,
		Version:    e.Version,
		Packaging:  e.Packaging,
		Classifier: e.Classifier,
		File:       e.File,
	}
}

func (e Entry) String() string {
	s := fmt.Sprintf("%s:%s:%s", e.GroupID, e.ArtifactID, e.Version)
	if e.Classifier != "" {
		s += ":" + e.Classifier
	}
	return s
}

// Manifest lists artifacts to install.
type Manifest struct {
	Artifacts []Entry `yaml:"artifacts"`
}

// LoadManifest reads a manifest. Relative files are resolved against the manifest directory.
// Two entries for the same artifact are a configuration error.
func LoadManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, xerrors.Errorf("unable to read the manifest: %w", err)
	}

	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(b))
	decoder.KnownFields(true)
	if err = decoder.Decode(&m); err != nil {
		return Manifest{}, &install.Error{
			Kind:    install.KindConfiguration,
			Message: fmt.Sprintf("invalid manifest %s", path),
			Err:     err,
		}
	}

	dir := filepath.Dir(path)
	for i, e := range m.Artifacts {
		if e.File != "" && !filepath.IsAbs(e.File) {
			m.Artifacts[i].File = filepath.Join(dir, e.File)
		}
	}

	if err = m.checkDuplicates(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (m Manifest) checkDuplicates() error {
	seen := make(map[uint64]int)
	for i, e := range m.Artifacts {
		ext := fileutil.Extension(e.File)
		if ext == "" || e.Packaging == "pom" {
			ext = e.Packaging
		}
		key := hash.GAVC(e.GroupID, e.ArtifactID, e.Version, e.Classifier, ext)
		if j, ok := seen[key]; ok {
			return &install.Error{
				Kind:    install.KindConfiguration,
				Message: fmt.Sprintf("artifacts #%d and #%d are both %s", j+1, i+1, e),
			}
		}
		seen[key] = i
	}
	return nil
}
