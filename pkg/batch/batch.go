package batch

import (
	"context"
	"io"
	"log/slog"

	"github.com/cheggaaa/pb/v3"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/install-if-absent/pkg/install"
	"github.com/aquasecurity/install-if-absent/pkg/types"
)

// Runner runs a single conditional install.
type Runner interface {
	Run(ctx context.Context, req install.Request) (install.Result, error)
}

type Option struct {
	// Parallel is the number of concurrent installs, 1 when unset
	Parallel int
	// Progress receives the progress bar, nothing is drawn when nil
	Progress io.Writer
}

type Batch struct {
	runner   Runner
	parallel int
	progress io.Writer
	logger   *slog.Logger
}

func New(runner Runner, opt Option) *Batch {
	return &Batch{
		runner:   runner,
		parallel: lo.Ternary(opt.Parallel > 0, opt.Parallel, 1),
		progress: lo.Ternary(opt.Progress != nil, opt.Progress, io.Discard),
		logger:   slog.Default().With(slog.String("component", "batch")),
	}
}

// Run installs every artifact of the manifest and returns the results in manifest order.
// The first failure stops the remaining installs.
func (b *Batch) Run(ctx context.Context, m Manifest) ([]install.Result, error) {
	results := make([]install.Result, len(m.Artifacts))

	bar := pb.New(len(m.Artifacts))
	bar.SetWriter(b.progress)
	bar.Start()
	defer bar.Finish()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallel)
	for i, e := range m.Artifacts {
		i, e := i, e
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := b.runner.Run(ctx, e.Request())
			if err != nil {
				return xerrors.Errorf("artifact #%d (%s): %w", i+1, e, err)
			}
			results[i] = res
			bar.Increment()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	installed, skipped := Summarize(results)
	b.logger.Info("Batch completed", slog.Int("installed", installed), slog.Int("skipped", skipped))
	return results, nil
}

// Summarize counts installed and skipped results.
func Summarize(results []install.Result) (installed, skipped int) {
	installed = lo.CountBy(results, func(r install.Result) bool { return r.Outcome == types.OutcomeInstalled })
	skipped = lo.CountBy(results, func(r install.Result) bool { return r.Outcome == types.OutcomeSkipped })
	return installed, skipped
}
