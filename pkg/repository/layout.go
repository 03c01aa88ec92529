package repository

import (
	"path"
	"strings"

	"github.com/aquasecurity/install-if-absent/pkg/types"
)

// Layout implements the Maven default repository layout.
// e.g. com/acme/lib/1.0/lib-1.0-sources.jar
type Layout struct{}

// ArtifactPath returns the slash-separated path of the artifact relative to the repository root.
// fileVersion differs from the artifact version only for timestamped SNAPSHOT files
// (e.g. 1.0-20240102.030405-7 for 1.0-SNAPSHOT).
func (Layout) ArtifactPath(a types.Artifact, fileVersion string) string {
	if fileVersion == "" {
		fileVersion = a.Version
	}
	return path.Join(groupPath(a.GroupID), a.ArtifactID, a.Version, a.FileName(fileVersion))
}

// RelativePath returns the path of the artifact file relative to the repository root.
func (l Layout) RelativePath(a types.Artifact) string {
	return l.ArtifactPath(a, a.Version)
}

// POMPath returns the path of the POM that belongs to the artifact's GAV.
func (l Layout) POMPath(c types.Coordinate) string {
	return l.RelativePath(types.Artifact{
		Coordinate: types.Coordinate{
			GroupID:    c.GroupID,
			ArtifactID: c.ArtifactID,
			Version:    c.Version,
			Packaging:  types.PomType,
		},
	})
}

// MetadataPath returns the path of a metadata file. An empty version denotes the
// artifact level (where released versions are listed), otherwise the version level.
func (Layout) MetadataPath(groupID, artifactID, version, name string) string {
	if version == "" {
		return path.Join(groupPath(groupID), artifactID, name)
	}
	return path.Join(groupPath(groupID), artifactID, version, name)
}

func groupPath(groupID string) string {
	return strings.ReplaceAll(groupID, ".", "/")
}
