package cmd

import (
	"fmt"

	"github.com/illmade-knight/beaver/internal/common"
	"github.com/illmade-knight/beaver/pkg/provision"
	"github.com/spf13/cobra"
)

func newProvisionCmd() *cobra.Command {
	var resources string
	var teardown, initFile bool

	c := &cobra.Command{
		Use:   "provision",
		Short: "Create (or with --teardown delete) the topics, subscriptions, datasets and tables of a resource file",
		Long:  "Create the resources listed in a resource file. --teardown deletes them instead and --init writes a sample file to start from.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			if initFile {
				if err := provision.WriteSampleConfig(resources, a.conf.ProjectID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote sample resource file %s\n", resources)
				return nil
			}
			rc, err := provision.LoadConfig(resources)
			if err != nil {
				return err
			}
			switch {
			case rc.ProjectID == "":
				rc.ProjectID = a.conf.ProjectID
			case a.conf.ProjectID != "" && a.conf.ProjectID != rc.ProjectID:
				return fmt.Errorf("--project %s conflicts with project_id %s in %s", a.conf.ProjectID, rc.ProjectID, resources)
			}

			ctx := common.SetupSignalHandler(cmd.Context(), a.logger)
			bqOpts := a.bigqueryOptions()
			if bqOpts == nil {
				bqOpts = a.credentialOptions()
			}
			m, err := provision.NewGoogleManager(ctx, rc, a.credentialOptions(), bqOpts, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := m.Close(); err != nil {
					a.logger.Warn().Err(err).Msg("failed to close clients")
				}
			}()

			if teardown {
				return m.Teardown(ctx)
			}
			return m.Setup(ctx)
		},
	}
	c.Flags().StringVar(&resources, "resources", "", "YAML resource file (required)")
	c.Flags().BoolVar(&teardown, "teardown", false, "delete the resources instead of creating them")
	c.Flags().BoolVar(&initFile, "init", false, "write a sample resource file to --resources and exit")
	c.MarkFlagsMutuallyExclusive("init", "teardown")
	_ = c.MarkFlagRequired("resources")
	return c
}
