package cmd

import (
	"fmt"

	"github.com/illmade-knight/beaver/internal/common"
	"github.com/illmade-knight/beaver/pkg/ingest"
	"github.com/illmade-knight/beaver/pkg/messagepipeline"
	"github.com/illmade-knight/beaver/pkg/passthrough"
	"github.com/spf13/cobra"
)

func newPassthroughCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "passthrough",
		Short: "Read a subscription, log every element and drop it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			a.tuneRuntime()
			ctx := common.SetupSignalHandler(cmd.Context(), a.logger)

			reg := newRegistry()
			metrics, err := messagepipeline.NewPipelineMetrics(reg, passthrough.PipelineName)
			if err != nil {
				return err
			}
			p, err := passthrough.NewService(ctx, a.conf.Subscription, a.conf.Runtime(), nil, metrics, a.logger)
			if err != nil {
				return err
			}
			return a.run(ctx, p, reg)
		},
	}
	c.Flags().String("subscription", "", fmt.Sprintf("subscription to read (default %s)", passthrough.DefaultSubscription))
	return tolerant(c)
}

func newIngestCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "ingest",
		Short: "Parse JSON records from a topic and stream them into a BigQuery table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			// Checked before any client is created.
			opts, err := a.conf.IngestOptions()
			if err != nil {
				return err
			}
			a.tuneRuntime()
			ctx := common.SetupSignalHandler(cmd.Context(), a.logger)

			reg := newRegistry()
			metrics, err := messagepipeline.NewPipelineMetrics(reg, ingest.PipelineName)
			if err != nil {
				return err
			}
			clients := ingest.ClientOptions{BigQuery: a.bigqueryOptions()}
			p, err := ingest.NewService(ctx, opts, a.conf.Runtime(), clients, metrics, a.logger)
			if err != nil {
				return err
			}
			return a.run(ctx, p, reg)
		},
	}
	fs := c.Flags()
	fs.String("input_topic", "", "topic to read, projects/<p>/topics/<t> or a bare ID (required)")
	fs.String("output_table", "", "destination table, project:dataset.table or dataset.table (required)")
	fs.String("input_subscription", "", "existing subscription to read instead of an ephemeral one")
	fs.String("dead_letter_topic", "", "topic receiving payloads that fail to parse")
	fs.String("create_disposition", "CREATE_IF_NEEDED", "CREATE_IF_NEEDED or CREATE_NEVER")
	fs.String("write_disposition", "WRITE_APPEND", "WRITE_APPEND or WRITE_EMPTY")
	return tolerant(c)
}
