package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/illmade-knight/beaver/internal/common"
	"github.com/illmade-knight/beaver/pkg/helpers/loadgen"
	"github.com/illmade-knight/beaver/pkg/messagepipeline"
	"github.com/spf13/cobra"
)

func newLoadgenCmd() *cobra.Command {
	var (
		topic        string
		rate         float64
		duration     time.Duration
		publishers   int
		invalidEvery int64
	)

	c := &cobra.Command{
		Use:   "loadgen",
		Short: "Publish generated ingest records to a topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if publishers <= 0 {
				return errors.New("--publishers must be positive")
			}
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			target, err := messagepipeline.ParseTopicPath(topic, a.conf.ProjectID)
			if err != nil {
				return fmt.Errorf("invalid --topic: %w", err)
			}
			ctx := common.SetupSignalHandler(cmd.Context(), a.logger)

			gen := &loadgen.RecordPayloadGenerator{InvalidEvery: invalidEvery}
			pubs := make([]*loadgen.Publisher, publishers)
			for i := range pubs {
				pubs[i] = &loadgen.Publisher{
					ID:               fmt.Sprintf("publisher-%d", i),
					MessageRate:      rate,
					PayloadGenerator: gen,
				}
			}

			client := loadgen.NewPubsubClient(target.ProjectID, target.ID, a.credentialOptions(), a.logger)
			count, err := loadgen.NewLoadGenerator(client, pubs, a.logger).Run(ctx, duration)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s messages to %s\n", humanize.Comma(int64(count)), target.TopicPath())
			return nil
		},
	}
	fs := c.Flags()
	fs.StringVar(&topic, "topic", "", "topic to publish to, projects/<p>/topics/<t> or a bare ID (required)")
	fs.Float64Var(&rate, "rate", 10, "messages per second per publisher")
	fs.DurationVar(&duration, "duration", 10*time.Second, "how long to publish")
	fs.IntVar(&publishers, "publishers", 1, "number of concurrent publishers")
	fs.Int64Var(&invalidEvery, "invalid_every", 0, "make every Nth payload malformed, 0 never")
	_ = c.MarkFlagRequired("topic")
	return c
}
