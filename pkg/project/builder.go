package project

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/xerrors"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)

const illegalVersionChars = `\/:"<>|?*`

// Source is a serialized project model.
type Source interface {
	Open() (io.ReadCloser, error)
	Location() string
}

type stringSource struct {
	content  string
	location string
}

func NewStringSource(content, location string) Source {
	return stringSource{
		content:  content,
		location: location,
	}
}

func (s stringSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.content)), nil
}

func (s stringSource) Location() string {
	return s.location
}

// Synthesize serializes a minimal model for the given coordinates.
func Synthesize(groupID, artifactID, version, packaging string) (Source, error) {
	m := Model{
		ModelVersion: ModelVersion,
		GroupID:      groupID,
		ArtifactID:   artifactID,
		Version:      version,
		Packaging:    packaging,
	}
	b, err := xml.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("unable to marshal the model: %w", err)
	}
	return NewStringSource(string(b), "(synthetic)"), nil
}

// ModelError reports problems found while building a model from its source.
type ModelError struct {
	Location string
	Problems []string
}

func (e *ModelError) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d problem(s) in %s:", len(e.Problems), e.Location)
	for _, p := range e.Problems {
		buf.WriteString("\n  - ")
		buf.WriteString(p)
	}
	return buf.String()
}

// Builder builds projects from model sources.
type Builder struct {
	logger *slog.Logger
}

func NewBuilder() *Builder {
	return &Builder{
		logger: slog.Default().With(slog.String("component", "builder")),
	}
}

// Build parses and validates the model. Invalid or unparseable models result in *ModelError.
func (b *Builder) Build(src Source) (*Project, error) {
	r, err := src.Open()
	if err != nil {
		return nil, xerrors.Errorf("unable to read %s: %w", src.Location(), err)
	}
	defer r.Close()

	var m Model
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel
	if err = decoder.Decode(&m); err != nil {
		return nil, &ModelError{
			Location: src.Location(),
			Problems: []string{fmt.Sprintf("non-parseable POM: %s", err)},
		}
	}

	if problems := validate(m); len(problems) > 0 {
		return nil, &ModelError{
			Location: src.Location(),
			Problems: problems,
		}
	}

	b.logger.Debug("Project built", slog.String("source", src.Location()),
		slog.String("gav", m.GroupID+":"+m.ArtifactID+":"+m.Version), slog.String("packaging", m.Packaging))
	return newProject(m), nil
}

func validate(m Model) []string {
	var problems []string
	if m.ModelVersion != ModelVersion {
		problems = append(problems, fmt.Sprintf("'modelVersion' must be %s but is '%s'", ModelVersion, m.ModelVersion))
	}
	for _, f := range []struct {
		name  string
		value string
	}{
		{"groupId", m.GroupID},
		{"artifactId", m.ArtifactID},
	} {
		switch {
		case f.value == "":
			problems = append(problems, fmt.Sprintf("'%s' is missing", f.name))
		case !idPattern.MatchString(f.value):
			problems = append(problems, fmt.Sprintf("'%s' with value '%s' does not match a valid id pattern", f.name, f.value))
		}
	}
	switch {
	case m.Version == "":
		problems = append(problems, "'version' is missing")
	case strings.ContainsAny(m.Version, illegalVersionChars):
		problems = append(problems, fmt.Sprintf("'version' must not contain any of these characters %s but found '%s'",
			illegalVersionChars, m.Version))
	}
	if strings.TrimSpace(m.Packaging) == "" {
		problems = append(problems, "'packaging' is missing")
	}
	return problems
}
