// Package cmd holds the beaver command tree.
package cmd

import (
	"context"
	"os"

	"github.com/illmade-knight/beaver/internal/common"
	"github.com/illmade-knight/beaver/internal/config"
	"github.com/illmade-knight/beaver/internal/logging"
	"github.com/illmade-knight/beaver/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "beaver",
		Short:        "Streaming pipelines from Pub/Sub to logs and BigQuery",
		SilenceUsage: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newPassthroughCmd(),
		newIngestCmd(),
		newProvisionCmd(),
		newLoadgenCmd(),
	)
	return root
}

// tolerant marks a command as accepting flags it does not declare, so runner
// options meant for another system can be passed through unchanged.
func tolerant(c *cobra.Command) *cobra.Command {
	c.FParseErrWhitelist = cobra.FParseErrWhitelist{UnknownFlags: true}
	return c
}

// app is the configuration and logger of one command invocation.
type app struct {
	conf   *config.Config
	logger zerolog.Logger
}

func loadApp(cmd *cobra.Command) (*app, error) {
	conf, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewWithWriter(cmd.ErrOrStderr(), conf.LogLevel, conf.LogFormat)
	if err != nil {
		return nil, err
	}
	return &app{
		conf:   conf,
		logger: logger.With().Str("command", cmd.Name()).Logger(),
	}, nil
}

// tuneRuntime fits GOMAXPROCS and GOMEMLIMIT to the container. Failures only
// cost performance, so they are logged and ignored.
func (a *app) tuneRuntime() {
	if err := common.SetMaxProcs(a.logger); err != nil {
		a.logger.Warn().Err(err).Msg("failed to set max procs")
	}
	if err := common.SetMemLimit(a.logger); err != nil {
		a.logger.Debug().Err(err).Msg("failed to set mem limit")
	}
}

// credentialOptions are for clients that do not read the credentials file
// themselves. PUBSUB_EMULATOR_HOST is honoured by the Pub/Sub client directly.
func (a *app) credentialOptions() []option.ClientOption {
	if a.conf.CredentialsFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(a.conf.CredentialsFile)}
	}
	return nil
}

// bigqueryOptions point BigQuery clients at --bigquery_endpoint, e.g. an emulator.
func (a *app) bigqueryOptions() []option.ClientOption {
	if a.conf.BigQueryEndpoint == "" {
		return nil
	}
	return []option.ClientOption{
		option.WithEndpoint(a.conf.BigQueryEndpoint),
		option.WithoutAuthentication(),
	}
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

type runner interface {
	Run(ctx context.Context) error
}

// run drives the pipeline and, when a port is configured, the metrics server.
// Either one failing stops the other.
func (a *app) run(ctx context.Context, p runner, reg *prometheus.Registry) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	if a.conf.MetricsPort > 0 {
		srv := server.NewMetricsServer(a.conf.MetricsPort, reg)
		g.Go(func() error { return server.Run(gctx, srv, a.logger) })
	}
	return g.Wait()
}
