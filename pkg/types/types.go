package types

import (
	"fmt"
	"strings"
	"time"
)

const (
	// PomType is the packaging whose file is the project descriptor itself
	PomType = "pom"

	SnapshotSuffix = "-SNAPSHOT"
)

// Coordinate identifies an artifact within a repository.
type Coordinate struct {
	GroupID    string
	ArtifactID string
	Version    string
	Packaging  string
	Classifier string
}

func (c Coordinate) String() string {
	s := strings.Join([]string{c.GroupID, c.ArtifactID, c.Packaging}, ":")
	if c.Classifier != "" {
		s += ":" + c.Classifier
	}
	return s + ":" + c.Version
}

// IsSnapshot reports whether the version is a SNAPSHOT version.
func (c Coordinate) IsSnapshot() bool {
	return strings.HasSuffix(c.Version, SnapshotSuffix)
}

// Artifact is a coordinate bound to the file that carries its content.
type Artifact struct {
	Coordinate
	// Extension is used for the repository path. Falls back to Packaging when empty.
	Extension string
	File      string
}

func (a Artifact) Ext() string {
	if a.Extension != "" {
		return a.Extension
	}
	return a.Packaging
}

// FileName returns the base name of the artifact in the default repository layout
// for the given version, e.g. lib-1.0-sources.jar
func (a Artifact) FileName(version string) string {
	name := fmt.Sprintf("%s-%s", a.ArtifactID, version)
	if a.Classifier != "" {
		name += "-" + a.Classifier
	}
	if ext := a.Ext(); ext != "" {
		name += "." + ext
	}
	return name
}

type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeInstalled Outcome = "installed"
)

// InstallRecord is a ledger entry for an installed file.
type InstallRecord struct {
	GroupID     string
	ArtifactID  string
	Version     string
	Classifier  string
	Extension   string
	SHA1        []byte
	Size        int64
	Path        string
	InstalledAt time.Time
}
