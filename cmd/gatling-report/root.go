package main

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gatling-report/pkg/batch"
	"gatling-report/pkg/config"
	"gatling-report/pkg/logging"
	"gatling-report/pkg/metrics"
	"gatling-report/pkg/parser"
	"gatling-report/pkg/source"
)

// app is the state shared by every subcommand
type app struct {
	v          *viper.Viper
	configFile string

	cfg    *config.Config
	logger zerolog.Logger
	out    io.Writer

	exporter      *metrics.Exporter
	metricsServer *metrics.Server
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{
		v:      config.New(),
		out:    out,
		logger: zerolog.Nop(),
	}

	root := &cobra.Command{
		Use:   "gatling-report",
		Short: "Gatling simulation log statistics and diffs",
		Long: `gatling-report parses Gatling simulation logs (text 2.x to 3.10 and
binary 3.13, plain, gzip or zstd, local or s3://) into per-request
statistics and compares runs.

  gatling-report parse simulation.log            Print statistics
  gatling-report parse --store --json run/*.log  Store summaries, print JSON
  gatling-report diff ref.log challenger.log     Compare two runs
  gatling-report serve                           Serve stored summaries`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd, errOut)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "configuration file (yaml, json or toml)")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newParseCmd(a), newDiffCmd(a), newServeCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, errOut io.Writer) error {
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, errOut)
	if err != nil {
		return err
	}
	a.logger = logger.With().Str("command", cmd.Name()).Logger()

	a.exporter = metrics.NewExporter()
	if cfg.MetricsAddr != "" {
		a.metricsServer = metrics.NewServer(cfg.MetricsAddr, a.exporter, a.logger)
		a.metricsServer.Start()
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.metricsServer == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return a.metricsServer.Shutdown(ctx)
}

// opener builds a source opener. The S3 client is only created when a
// location needs it, or always when force is set.
func (a *app) opener(ctx context.Context, locations []string, force bool) *source.Opener {
	needed := force
	for _, l := range locations {
		if source.IsObjectURL(l) {
			needed = true
		}
	}
	if !needed {
		return source.NewOpener(nil, a.logger)
	}

	client, err := source.NewS3Client(ctx, a.cfg.ObjectStore())
	if err != nil {
		a.logger.Warn().Err(err).Msg("s3 locations disabled")
		return source.NewOpener(nil, a.logger)
	}
	return source.NewOpener(client, a.logger)
}

func (a *app) parseOptions() parser.Options {
	return parser.Options{
		ApdexThreshold: a.cfg.ApdexThreshold,
		Logger:         a.logger,
		Observer:       a.exporter,
	}
}

// manager returns a batch manager, persisting summaries when store is set
func (a *app) manager(ctx context.Context, locations []string, store, forceObjects bool) (*batch.Manager, error) {
	var s *batch.Store
	if store {
		var err error
		s, err = batch.NewStore(a.cfg.StoragePath)
		if err != nil {
			return nil, err
		}
	}

	return batch.NewManager(
		a.opener(ctx, locations, forceObjects),
		s,
		batch.Config{Workers: a.cfg.Workers, FileTimeout: a.cfg.FileTimeout},
		a.parseOptions(),
		a.logger,
	), nil
}
