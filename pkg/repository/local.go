package repository

import (
	"context"
	"encoding/xml"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/aquasecurity/install-if-absent/pkg/fileutil"
	"github.com/aquasecurity/install-if-absent/pkg/hash"
	"github.com/aquasecurity/install-if-absent/pkg/project"
	"github.com/aquasecurity/install-if-absent/pkg/types"
)

const pomNamespace = "http://maven.apache.org/POM/4.0.0"

// Ledger records installed files.
type Ledger interface {
	InsertInstall(rec types.InstallRecord) error
}

type Options struct {
	// Ledger is optional
	Ledger Ledger
	Clock  clock.Clock
}

// Local is a local repository on disk using the default layout.
type Local struct {
	basedir string
	layout  Layout
	ledger  Ledger
	clock   clock.Clock
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex // per groupId:artifactId
}

func NewLocal(basedir string, opts Options) *Local {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Local{
		basedir: basedir,
		ledger:  opts.Ledger,
		clock:   opts.Clock,
		logger:  slog.Default().With(slog.String("component", "local-repository")),
		locks:   make(map[uint64]*sync.Mutex),
	}
}

// PathFor returns the absolute path of the artifact inside the repository.
// The returned path need not exist.
func (l *Local) PathFor(a types.Artifact) string {
	return filepath.Join(l.basedir, filepath.FromSlash(l.layout.RelativePath(a)))
}

// Install copies the project's artifacts into the repository and updates the local metadata.
func (l *Local) Install(ctx context.Context, p *project.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	artifacts := p.Artifacts()
	if len(artifacts) == 0 {
		return xerrors.Errorf("the packaging for project %s:%s:%s did not assign a file to the build artifact",
			p.Model.GroupID, p.Model.ArtifactID, p.Model.Version)
	}

	unlock := l.lock(p.Model.GroupID, p.Model.ArtifactID)
	defer unlock()

	var tx installTx
	if err := l.install(p, artifacts, &tx); err != nil {
		if rbErr := tx.rollback(); rbErr != nil {
			l.logger.Warn("Unable to roll back a failed install", slog.Any("error", rbErr))
		}
		return err
	}
	return nil
}

// install writes files first and ledger rows last. Everything written is tracked in tx.
func (l *Local) install(p *project.Project, artifacts []types.Artifact, tx *installTx) error {
	var records []types.InstallRecord
	for _, a := range artifacts {
		rec, err := l.installFile(a, tx)
		if err != nil {
			return xerrors.Errorf("failed to install artifact %s: %w", a.Coordinate, err)
		}
		records = append(records, rec)
	}

	if p.Artifact.File != "" && p.File == "" {
		if err := l.generatePOM(p.Model, tx); err != nil {
			return xerrors.Errorf("failed to generate pom: %w", err)
		}
	}

	if err := l.updateMetadata(p.Model, tx); err != nil {
		return xerrors.Errorf("failed to update metadata: %w", err)
	}

	if l.ledger == nil {
		return nil
	}
	for _, rec := range records {
		if err := l.ledger.InsertInstall(rec); err != nil {
			return xerrors.Errorf("ledger error: %w", err)
		}
	}
	return nil
}

func (l *Local) installFile(a types.Artifact, tx *installTx) (types.InstallRecord, error) {
	dst := l.PathFor(a)
	l.logger.Info("Installing", slog.String("file", a.File), slog.String("path", dst))

	existed := fileutil.IsFile(dst)
	res, err := fileutil.Copy(a.File, dst)
	if err != nil {
		return types.InstallRecord{}, xerrors.Errorf("copy error: %w", err)
	}
	if !existed {
		tx.created = append(tx.created, dst)
	}

	return types.InstallRecord{
		GroupID:     a.GroupID,
		ArtifactID:  a.ArtifactID,
		Version:     a.Version,
		Classifier:  a.Classifier,
		Extension:   a.Ext(),
		SHA1:        res.SHA1,
		Size:        res.Size,
		Path:        dst,
		InstalledAt: l.clock.Now().UTC(),
	}, nil
}

// installTx remembers what an install changed so that a failed install leaves nothing behind.
type installTx struct {
	created []string

	metadataPath string
	// nil when there was no metadata before the install
	metadataBackup []byte
}

func (tx *installTx) rollback() error {
	var errs []error
	for _, path := range tx.created {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	switch {
	case tx.metadataPath == "":
	case tx.metadataBackup == nil:
		if err := os.Remove(tx.metadataPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	default:
		if err := fileutil.WriteFile(tx.metadataPath, tx.metadataBackup); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type generatedPOM struct {
	XMLName      xml.Name `xml:"project"`
	Xmlns        string   `xml:"xmlns,attr"`
	ModelVersion string   `xml:"modelVersion"`
	GroupID      string   `xml:"groupId"`
	ArtifactID   string   `xml:"artifactId"`
	Version      string   `xml:"version"`
	Packaging    string   `xml:"packaging"`
	Description  string   `xml:"description"`
}

// generatePOM writes a minimal POM for the main artifact unless one is already installed.
func (l *Local) generatePOM(m project.Model, tx *installTx) error {
	pomPath := filepath.Join(l.basedir, filepath.FromSlash(l.layout.POMPath(types.Coordinate{
		GroupID:    m.GroupID,
		ArtifactID: m.ArtifactID,
		Version:    m.Version,
	})))
	if fileutil.IsFile(pomPath) {
		return nil
	}

	b, err := xml.MarshalIndent(generatedPOM{
		Xmlns:        pomNamespace,
		ModelVersion: project.ModelVersion,
		GroupID:      m.GroupID,
		ArtifactID:   m.ArtifactID,
		Version:      m.Version,
		Packaging:    m.Packaging,
		Description:  "POM was created by install-if-absent",
	}, "", "  ")
	if err != nil {
		return xerrors.Errorf("unable to marshal pom: %w", err)
	}
	b = append([]byte(xml.Header), append(b, '\n')...)

	l.logger.Debug("Generating pom", slog.String("path", pomPath))
	if err = fileutil.WriteFile(pomPath, b); err != nil {
		return err
	}
	tx.created = append(tx.created, pomPath)
	return nil
}

func (l *Local) updateMetadata(m project.Model, tx *installTx) error {
	metaPath := filepath.Join(l.basedir, filepath.FromSlash(l.layout.MetadataPath(m.GroupID, m.ArtifactID, "", LocalMetadataFile)))
	backup, err := os.ReadFile(metaPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return xerrors.Errorf("unable to read %s: %w", metaPath, err)
	}
	meta, err := readMetadata(metaPath)
	if err != nil {
		return err
	}
	meta.GroupID = m.GroupID
	meta.ArtifactID = m.ArtifactID

	c := types.Coordinate{Version: m.Version}
	meta.AddVersion(m.Version, c.IsSnapshot(), l.clock.Now().UTC().Format(timestampFormat))
	tx.metadataPath, tx.metadataBackup = metaPath, backup
	return writeMetadata(metaPath, meta)
}

func (l *Local) lock(groupID, artifactID string) func() {
	key := hash.GA(groupID, artifactID)
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
