package project

import (
	"encoding/xml"

	"github.com/aquasecurity/install-if-absent/pkg/types"
)

const ModelVersion = "4.0.0"

// Model is the subset of a POM needed to install an artifact.
type Model struct {
	XMLName      xml.Name `xml:"project"`
	ModelVersion string   `xml:"modelVersion"`
	GroupID      string   `xml:"groupId"`
	ArtifactID   string   `xml:"artifactId"`
	Version      string   `xml:"version"`
	Packaging    string   `xml:"packaging"`
}

// Project is an in-memory project built from a Model. Its main artifact and attached
// artifacts are what an installer writes into a repository.
type Project struct {
	Model Model
	// File is the POM of the project, if any.
	File     string
	Artifact types.Artifact
	Attached []types.Artifact
}

func newProject(m Model) *Project {
	return &Project{
		Model: m,
		Artifact: types.Artifact{
			Coordinate: types.Coordinate{
				GroupID:    m.GroupID,
				ArtifactID: m.ArtifactID,
				Version:    m.Version,
				Packaging:  m.Packaging,
			},
			Extension: m.Packaging,
		},
	}
}

// Attach adds a secondary artifact sharing the project's GAV and returns it.
func (p *Project) Attach(packaging, classifier, extension, file string) types.Artifact {
	a := types.Artifact{
		Coordinate: types.Coordinate{
			GroupID:    p.Model.GroupID,
			ArtifactID: p.Model.ArtifactID,
			Version:    p.Model.Version,
			Packaging:  packaging,
			Classifier: classifier,
		},
		Extension: extension,
		File:      file,
	}
	p.Attached = append(p.Attached, a)
	return a
}

// Artifacts returns the artifacts of the project that carry a file.
func (p *Project) Artifacts() []types.Artifact {
	var artifacts []types.Artifact
	if p.Artifact.File != "" {
		artifacts = append(artifacts, p.Artifact)
	}
	return append(artifacts, p.Attached...)
}
