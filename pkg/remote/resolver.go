package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/samber/lo"
	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/aquasecurity/install-if-absent/pkg/metrics"
	"github.com/aquasecurity/install-if-absent/pkg/repository"
	"github.com/aquasecurity/install-if-absent/pkg/types"
)

// ErrNotFound is returned when no remote repository has the artifact.
var ErrNotFound = errors.New("artifact not found")

const (
	CentralID  = "central"
	CentralURL = "https://repo.maven.apache.org/maven2/"
)

// Repository is a remote repository using the default layout.
type Repository struct {
	ID       string
	URL      string
	Username string
	Password string
}

// Recorder records remote probes.
type Recorder interface {
	RecordRemoteRequest(repository, result string, duration time.Duration)
}

type Option struct {
	Repositories []Repository
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	Metrics      Recorder
	Clock        clock.PassiveClock
}

// Resolver checks whether artifacts are available in remote repositories.
type Resolver struct {
	repos   []Repository
	http    *retryablehttp.Client
	layout  repository.Layout
	metrics Recorder
	clock   clock.PassiveClock
	logger  *slog.Logger
}

func NewResolver(opt Option) *Resolver {
	client := retryablehttp.NewClient()
	client.RetryMax = opt.RetryMax
	client.Logger = slog.Default()
	client.RetryWaitMin = lo.Ternary(opt.RetryWaitMin > 0, opt.RetryWaitMin, 1*time.Second)
	client.RetryWaitMax = lo.Ternary(opt.RetryWaitMax > 0, opt.RetryWaitMax, 30*time.Second)
	client.Backoff = retryablehttp.LinearJitterBackoff
	if opt.Timeout > 0 {
		client.HTTPClient.Timeout = opt.Timeout
	}
	client.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		// Missing artifacts are the expected answer for most probes.
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return
		}
		if resp.StatusCode != http.StatusOK {
			slog.Warn("Unexpected http response", slog.String("url", resp.Request.URL.String()), slog.String("status", resp.Status))
		}
	}
	client.ErrorHandler = func(resp *http.Response, err error, numTries int) (*http.Response, error) {
		logger := slog.Default()
		if resp != nil {
			logger = slog.With(slog.String("url", resp.Request.URL.String()), slog.Int("status_code", resp.StatusCode),
				slog.Int("num_tries", numTries))
			_ = resp.Body.Close()
		}

		if err != nil {
			logger = logger.With(slog.String("error", err.Error()))
		} else {
			err = xerrors.Errorf("unexpected status %d", resp.StatusCode)
		}
		logger.Error("HTTP request failed after retries")
		return nil, xerrors.Errorf("HTTP request failed after retries: %w", err)
	}

	return &Resolver{
		repos:   opt.Repositories,
		http:    client,
		metrics: lo.Ternary[Recorder](opt.Metrics != nil, opt.Metrics, metrics.Nop{}),
		clock:   lo.Ternary[clock.PassiveClock](opt.Clock != nil, opt.Clock, clock.RealClock{}),
		logger:  slog.Default().With(slog.String("component", "resolver")),
	}
}

// Resolve returns nil when the artifact exists in one of the repositories, ErrNotFound when
// none of them has it, or another error if a repository could not be queried and none had it.
func (r *Resolver) Resolve(ctx context.Context, a types.Artifact) error {
	_, err := r.Find(ctx, a)
	return err
}

// Find is like Resolve but also returns the repository the artifact was found in.
func (r *Resolver) Find(ctx context.Context, a types.Artifact) (Repository, error) {
	if len(r.repos) == 0 {
		return Repository{}, xerrors.Errorf("no remote repositories configured: %w", ErrNotFound)
	}

	var errs []error
	for _, repo := range r.repos {
		found, err := r.exists(ctx, repo, a)
		if err != nil {
			if ctx.Err() != nil {
				return Repository{}, ctx.Err()
			}
			r.logger.Debug("Repository lookup failed", slog.String("repository", repo.ID), slog.Any("error", err))
			errs = append(errs, xerrors.Errorf("%s: %w", repo.ID, err))
			continue
		}
		if found {
			r.logger.Debug("Artifact found", slog.String("repository", repo.ID), slog.String("artifact", a.String()))
			return repo, nil
		}
	}

	if len(errs) > 0 {
		return Repository{}, errors.Join(errs...)
	}
	return Repository{}, xerrors.Errorf("%s in %s: %w", a.Coordinate,
		strings.Join(lo.Map(r.repos, func(repo Repository, _ int) string { return repo.ID }), ", "), ErrNotFound)
}

func (r *Resolver) exists(ctx context.Context, repo Repository, a types.Artifact) (bool, error) {
	fileVersion := a.Version
	if a.IsSnapshot() {
		v, err := r.snapshotVersion(ctx, repo, a)
		if err != nil {
			return false, xerrors.Errorf("snapshot metadata error: %w", err)
		}
		if v != "" {
			fileVersion = v
		}
	}
	return r.probe(ctx, repo, r.layout.ArtifactPath(a, fileVersion))
}

// snapshotVersion resolves the timestamped version of a SNAPSHOT artifact.
// An empty string means the repository has no usable metadata.
func (r *Resolver) snapshotVersion(ctx context.Context, repo Repository, a types.Artifact) (string, error) {
	url := joinURL(repo.URL, r.layout.MetadataPath(a.GroupID, a.ArtifactID, a.Version, repository.MetadataFile))
	resp, err := r.do(ctx, repo, http.MethodGet, url)
	if err != nil {
		return "", xerrors.Errorf("http get error: %w", err)
	}
	defer resp.Body.Close()

	// Repositories with non-unique snapshots don't publish version level metadata
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	meta, err := repository.DecodeMetadata(resp.Body)
	if err != nil {
		return "", xerrors.Errorf("%s decode error: %w", url, err)
	}
	if v, ok := meta.SnapshotValue(a.Classifier, a.Ext()); ok {
		return v, nil
	}
	v, _ := meta.TimestampedVersion(a.Version)
	return v, nil
}

func (r *Resolver) probe(ctx context.Context, repo Repository, path string) (bool, error) {
	url := joinURL(repo.URL, path)
	start := r.clock.Now()

	resp, err := r.do(ctx, repo, http.MethodHead, url)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		// Some repository managers don't answer HEAD requests
		_ = resp.Body.Close()
		resp, err = r.do(ctx, repo, http.MethodGet, url)
	}
	if err != nil {
		r.metrics.RecordRemoteRequest(repo.ID, "error", r.clock.Since(start))
		return false, xerrors.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		r.metrics.RecordRemoteRequest(repo.ID, "found", r.clock.Since(start))
		return true, nil
	case http.StatusNotFound, http.StatusGone:
		r.metrics.RecordRemoteRequest(repo.ID, "not_found", r.clock.Since(start))
		return false, nil
	default:
		r.metrics.RecordRemoteRequest(repo.ID, "error", r.clock.Since(start))
		return false, xerrors.Errorf("unexpected status %s (%s)", resp.Status, url)
	}
}

func (r *Resolver) do(ctx context.Context, repo Repository, method, url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, xerrors.Errorf("unable to create a HTTP request: %w", err)
	}
	if repo.Username != "" || repo.Password != "" {
		req.SetBasicAuth(repo.Username, repo.Password)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("http error (%s): %w", url, err)
	}
	return resp, nil
}

func joinURL(base, path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(base, "/"), strings.TrimPrefix(path, "/"))
}
