package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"k8s.io/utils/clock"

	"github.com/aquasecurity/install-if-absent/pkg/fileutil"
	"github.com/aquasecurity/install-if-absent/pkg/metrics"
	"github.com/aquasecurity/install-if-absent/pkg/project"
	"github.com/aquasecurity/install-if-absent/pkg/remote"
	"github.com/aquasecurity/install-if-absent/pkg/types"
)

// PathResolver maps an artifact to its path in the local repository.
type PathResolver interface {
	PathFor(a types.Artifact) string
}

// Resolver looks an artifact up in remote repositories.
// It returns remote.ErrNotFound (possibly wrapped) when no repository has the artifact.
type Resolver interface {
	Resolve(ctx context.Context, a types.Artifact) error
}

// Installer writes the artifacts of a project into the local repository.
type Installer interface {
	Install(ctx context.Context, p *project.Project) error
}

// ProjectBuilder builds a project from a model source.
type ProjectBuilder interface {
	Build(src project.Source) (*project.Project, error)
}

// Recorder records the outcome of every run.
type Recorder interface {
	RecordInstall(outcome string, duration time.Duration)
}

// OutcomeFailed is reported to the Recorder for runs ending with an error.
const OutcomeFailed = "failed"

type Option struct {
	Paths PathResolver
	// Remote is nil in offline mode
	Remote    Resolver
	Installer Installer
	Builder   ProjectBuilder
	Metrics   Recorder
	Clock     clock.PassiveClock
}

// Request holds the coordinates of the artifact and the file carrying it.
// Packaging is inferred from the file extension when empty.
type Request struct {
	GroupID    string
	ArtifactID string
	Version    string
	Packaging  string
	Classifier string
	File       string
}

type Result struct {
	Outcome types.Outcome
	// Artifact is the artifact that was checked, the attached one when a classifier was given.
	Artifact  types.Artifact
	LocalPath string
	// Remote is true when a remote repository already had the artifact.
	Remote bool
}

// ConditionalInstaller installs a file into the local repository unless
// the artifact already exists there or in a remote repository.
type ConditionalInstaller struct {
	paths     PathResolver
	remote    Resolver
	installer Installer
	builder   ProjectBuilder
	metrics   Recorder
	clock     clock.PassiveClock
	logger    *slog.Logger
}

func New(opt Option) *ConditionalInstaller {
	if opt.Builder == nil {
		opt.Builder = project.NewBuilder()
	}
	if opt.Metrics == nil {
		opt.Metrics = metrics.Nop{}
	}
	if opt.Clock == nil {
		opt.Clock = clock.RealClock{}
	}
	return &ConditionalInstaller{
		paths:     opt.Paths,
		remote:    opt.Remote,
		installer: opt.Installer,
		builder:   opt.Builder,
		metrics:   opt.Metrics,
		clock:     opt.Clock,
		logger:    slog.Default().With(slog.String("component", "installer")),
	}
}

// Run installs req.File unless the artifact already exists. Fatal failures are returned as *Error.
func (c *ConditionalInstaller) Run(ctx context.Context, req Request) (Result, error) {
	start := c.clock.Now()
	res, err := c.run(ctx, req)
	outcome := string(res.Outcome)
	if err != nil {
		outcome = OutcomeFailed
	}
	c.metrics.RecordInstall(outcome, c.clock.Since(start))
	return res, err
}

func (c *ConditionalInstaller) run(ctx context.Context, req Request) (Result, error) {
	info, err := os.Stat(req.File)
	if err != nil {
		return Result{}, newError(KindPrecondition, err, fmt.Sprintf("the specified file '%s' does not exist", req.File))
	} else if info.IsDir() {
		return Result{}, newError(KindPrecondition, nil, fmt.Sprintf("the specified file '%s' is a directory", req.File))
	}

	ext := fileutil.Extension(req.File)
	packaging := req.Packaging
	if packaging == "" {
		packaging = ext
	}
	if ext == "" {
		ext = packaging
	}

	if missing := missingFields(req.GroupID, req.ArtifactID, req.Version, packaging); len(missing) > 0 {
		return Result{}, newError(KindConfiguration, nil, fmt.Sprintf("the parameters %q are missing or invalid", missing))
	}

	// Only the attachment is installed when a classifier is given, the base coordinate stays untouched.
	modelPackaging := packaging
	if req.Classifier != "" {
		modelPackaging = types.PomType
	}
	p, err := c.buildProject(req.GroupID, req.ArtifactID, req.Version, modelPackaging)
	if err != nil {
		return Result{}, err
	}

	var a types.Artifact
	if req.Classifier == "" {
		if packaging == types.PomType {
			ext = types.PomType
			p.File = req.File
		}
		p.Artifact.Extension = ext
		p.Artifact.File = req.File
		a = p.Artifact
	} else {
		a = p.Attach(packaging, req.Classifier, ext, req.File)
	}

	res := Result{
		Artifact:  a,
		LocalPath: c.paths.PathFor(a),
	}

	exists, fromRemote := c.exists(ctx, a, res.LocalPath)
	if exists {
		c.logger.Info("Artifact already exists, skipping installation", slog.String("artifact", a.String()),
			slog.Bool("remote", fromRemote))
		res.Outcome = types.OutcomeSkipped
		res.Remote = fromRemote
		return res, nil
	}

	if err = c.installer.Install(ctx, p); err != nil {
		return res, newError(KindInstall, err, fmt.Sprintf("unable to install %s", a.Coordinate))
	}
	c.logger.Info("Artifact installed", slog.String("artifact", a.String()), slog.String("path", res.LocalPath))
	res.Outcome = types.OutcomeInstalled
	return res, nil
}

func (c *ConditionalInstaller) buildProject(groupID, artifactID, version, packaging string) (*project.Project, error) {
	src, err := project.Synthesize(groupID, artifactID, version, packaging)
	if err != nil {
		return nil, newError(KindDescriptor, err, "unable to create the project")
	}
	p, err := c.builder.Build(src)
	if err != nil {
		var modelErr *project.ModelError
		if errors.As(err, &modelErr) {
			return nil, newError(KindDescriptor, modelErr, "the project model is invalid")
		}
		return nil, newError(KindDescriptor, err, "unable to create the project")
	}
	return p, nil
}

// exists reports whether the artifact is in the local repository or, failing that, in a remote one.
// Remote failures never abort the run; the artifact is then considered absent.
func (c *ConditionalInstaller) exists(ctx context.Context, a types.Artifact, localPath string) (exists, fromRemote bool) {
	if fileutil.IsFile(localPath) {
		c.logger.Debug("Artifact found in the local repository", slog.String("path", localPath))
		return true, false
	}

	if c.remote == nil {
		c.logger.Debug("Offline, remote repositories are not checked", slog.String("artifact", a.String()))
		return false, false
	}

	err := c.remote.Resolve(ctx, a)
	switch {
	case err == nil:
		return true, true
	case errors.Is(err, remote.ErrNotFound):
		c.logger.Debug("Artifact not found in remote repositories", slog.String("artifact", a.String()))
	default:
		c.logger.Warn("Unable to check remote repositories, assuming the artifact is absent",
			slog.String("artifact", a.String()), slog.Any("error", err))
	}
	return false, false
}

func missingFields(groupID, artifactID, version, packaging string) []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"groupId", groupID},
		{"artifactId", artifactID},
		{"version", version},
		{"packaging", packaging},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}
