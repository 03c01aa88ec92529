package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/install-if-absent/pkg/config"
	"github.com/aquasecurity/install-if-absent/pkg/db"
	"github.com/aquasecurity/install-if-absent/pkg/fileutil"
	"github.com/aquasecurity/install-if-absent/pkg/install"
	"github.com/aquasecurity/install-if-absent/pkg/metrics"
	"github.com/aquasecurity/install-if-absent/pkg/remote"
	"github.com/aquasecurity/install-if-absent/pkg/repository"
)

func main() {
	if err := execute(os.Args, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("%+v", err)
	}
}

// execute runs the CLI with the provided args and output writers.
func execute(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd()
	if len(args) > 1 {
		cmd.SetArgs(args[1:])
	} else {
		cmd.SetArgs([]string{})
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return cmd.ExecuteContext(ctx)
}

type globalOptions struct {
	configPath  string
	localRepo   string
	remoteRepos []string
	offline     bool
	cacheDir    string
	noLedger    bool
	metricsFile string
	debug       bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "install-if-absent",
		Short:         "Install a file into the local Maven repository unless the artifact already exists",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if opts.debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "settings file (default ~/.m2/install-if-absent.yaml)")
	f.StringVar(&opts.localRepo, "local-repo", "", "local repository (default ~/.m2/repository)")
	f.StringArrayVar(&opts.remoteRepos, "remote-repo", nil, "remote repository as id::url or url, replaces the configured ones (repeatable)")
	f.BoolVar(&opts.offline, "offline", false, "do not check remote repositories")
	f.StringVar(&opts.cacheDir, "cache-dir", "", "directory of the install ledger")
	f.BoolVar(&opts.noLedger, "no-ledger", false, "do not record installs in the ledger")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	f.BoolVar(&opts.debug, "debug", false, "debug logging")

	cmd.AddCommand(
		newInstallCmd(opts),
		newBatchCmd(opts),
		newHistoryCmd(opts),
	)
	return cmd
}

// loadConfig reads the settings file and applies the flag overrides.
func (o *globalOptions) loadConfig() (config.Config, error) {
	path := o.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return config.Config{}, xerrors.Errorf("config path error: %w", err)
		}
	} else if !fileutil.IsFile(path) {
		return config.Config{}, xerrors.Errorf("config file %s does not exist", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, xerrors.Errorf("config error: %w", err)
	}

	if o.localRepo != "" {
		cfg.LocalRepository = o.localRepo
	}
	if len(o.remoteRepos) > 0 {
		cfg.Repositories = nil
		for _, s := range o.remoteRepos {
			r, err := config.ParseRepository(s)
			if err != nil {
				return config.Config{}, err
			}
			cfg.Repositories = append(cfg.Repositories, r)
		}
	}
	if o.offline {
		cfg.Offline = true
	}
	if o.cacheDir != "" {
		cfg.CacheDir = o.cacheDir
	}
	if err = cfg.ApplyDefaults(); err != nil {
		return config.Config{}, xerrors.Errorf("config error: %w", err)
	}
	return cfg, nil
}

// app wires the conditional installer for the install and batch commands.
type app struct {
	installer *install.ConditionalInstaller
	metrics   *metrics.PrometheusRecorder
	ledger    *db.DB
}

func (o *globalOptions) newApp() (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{
		metrics: metrics.NewPrometheusRecorder(),
	}

	var ledger repository.Ledger
	if !o.noLedger {
		dbc, err := db.New(cfg.CacheDir)
		if err != nil {
			return nil, xerrors.Errorf("db error: %w", err)
		}
		if err = dbc.Init(); err != nil {
			_ = dbc.Close()
			return nil, xerrors.Errorf("db init error: %w", err)
		}
		a.ledger = &dbc
		ledger = a.ledger
	}

	local := repository.NewLocal(cfg.LocalRepository, repository.Options{
		Ledger: ledger,
	})
	opt := install.Option{
		Paths:     local,
		Installer: local,
		Metrics:   a.metrics,
	}
	if !cfg.Offline {
		ropt := cfg.RemoteOption()
		ropt.Metrics = a.metrics
		opt.Remote = remote.NewResolver(ropt)
	}
	a.installer = install.New(opt)

	slog.Debug("Configuration loaded", slog.String("local_repository", cfg.LocalRepository),
		slog.Int("remote_repositories", len(cfg.Repositories)), slog.Bool("offline", cfg.Offline))
	return a, nil
}

// close releases the ledger and writes the metrics file.
func (a *app) close(metricsFile string) error {
	var errs []error
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, xerrors.Errorf("db close error: %w", err))
		}
	}
	if metricsFile != "" {
		if err := a.metrics.WriteToTextfile(metricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
