package repository

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/net/html/charset"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/install-if-absent/pkg/fileutil"
	"github.com/aquasecurity/install-if-absent/pkg/types"
)

const (
	// MetadataFile is published by remote repositories
	MetadataFile = "maven-metadata.xml"
	// LocalMetadataFile is maintained by local installs
	LocalMetadataFile = "maven-metadata-local.xml"

	// lastUpdated uses UTC yyyyMMddHHmmss
	timestampFormat = "20060102150405"
)

// Metadata contains repository information of an artifact.
// https://maven.apache.org/ref/3.9.3/maven-repository-metadata/repository-metadata.html
type Metadata struct {
	XMLName    xml.Name   `xml:"metadata"`
	GroupID    string     `xml:"groupId"`
	ArtifactID string     `xml:"artifactId"`
	Version    string     `xml:"version,omitempty"`
	Versioning Versioning `xml:"versioning"`
}

type Versioning struct {
	Latest           string            `xml:"latest,omitempty"`
	Release          string            `xml:"release,omitempty"`
	Snapshot         *Snapshot         `xml:"snapshot,omitempty"`
	Versions         []string          `xml:"versions>version,omitempty"`
	LastUpdated      string            `xml:"lastUpdated,omitempty"`
	SnapshotVersions []SnapshotVersion `xml:"snapshotVersions>snapshotVersion,omitempty"`
}

type Snapshot struct {
	Timestamp   string `xml:"timestamp,omitempty"`
	BuildNumber int    `xml:"buildNumber,omitempty"`
	LocalCopy   bool   `xml:"localCopy,omitempty"`
}

type SnapshotVersion struct {
	Classifier string `xml:"classifier,omitempty"`
	Extension  string `xml:"extension"`
	Value      string `xml:"value"`
	Updated    string `xml:"updated,omitempty"`
}

// SnapshotValue returns the timestamped version of the file matching classifier and extension.
func (m Metadata) SnapshotValue(classifier, extension string) (string, bool) {
	sv, ok := lo.Find(m.Versioning.SnapshotVersions, func(sv SnapshotVersion) bool {
		return sv.Classifier == classifier && sv.Extension == extension
	})
	if !ok || sv.Value == "" {
		return "", false
	}
	return sv.Value, true
}

// TimestampedVersion builds the timestamped version from the snapshot element, e.g. 1.0-20240102.030405-7.
// Older deployments publish only this element and no snapshotVersions.
func (m Metadata) TimestampedVersion(version string) (string, bool) {
	s := m.Versioning.Snapshot
	if s == nil || s.LocalCopy || s.Timestamp == "" || s.BuildNumber <= 0 {
		return "", false
	}
	return fmt.Sprintf("%s-%s-%d", strings.TrimSuffix(version, types.SnapshotSuffix), s.Timestamp, s.BuildNumber), true
}

// AddVersion merges a version into the metadata.
func (m *Metadata) AddVersion(version string, snapshot bool, updated string) {
	m.Versioning.Versions = lo.Uniq(append(m.Versioning.Versions, version))
	m.Versioning.Latest = version
	if !snapshot {
		m.Versioning.Release = version
	}
	m.Versioning.LastUpdated = updated
}

// DecodeMetadata decodes a metadata document.
func DecodeMetadata(r io.Reader) (Metadata, error) {
	var meta Metadata
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel
	if err := decoder.Decode(&meta); err != nil {
		return Metadata{}, xerrors.Errorf("metadata decode error: %w", err)
	}
	return meta, nil
}

func readMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Metadata{}, nil
	} else if err != nil {
		return Metadata{}, xerrors.Errorf("unable to open %s: %w", path, err)
	}
	defer f.Close()

	meta, err := DecodeMetadata(f)
	if err != nil {
		return Metadata{}, xerrors.Errorf("%s: %w", path, err)
	}
	return meta, nil
}

func writeMetadata(path string, meta Metadata) error {
	b, err := xml.MarshalIndent(meta, "", "  ")
	if err != nil {
		return xerrors.Errorf("unable to marshal metadata: %w", err)
	}
	b = append([]byte(xml.Header), append(b, '\n')...)
	if err = fileutil.WriteFile(path, b); err != nil {
		return xerrors.Errorf("unable to write metadata: %w", err)
	}
	return nil
}
