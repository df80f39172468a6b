package provision

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// ErrTeardownProtected is returned by Teardown when the resource file sets
// teardown_protection.
var ErrTeardownProtected = errors.New("teardown protection enabled")

// Manager sets up and tears down the resources of one Config.
type Manager struct {
	cfg     *Config
	pubsub  *pubSubManager
	bq      *bigQueryManager
	closers []func() error
	logger  zerolog.Logger
}

// NewManager builds a manager over injected clients. A client may be nil when
// the config declares no resources of its kind.
func NewManager(cfg *Config, psClient *pubsub.Client, bqClient BQClient, logger zerolog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("provision config cannot be nil")
	}
	r := cfg.Resources
	if psClient == nil && len(r.Topics)+len(r.Subscriptions) > 0 {
		return nil, errors.New("pubsub client cannot be nil when topics or subscriptions are configured")
	}
	if bqClient == nil && len(r.Datasets)+len(r.Tables) > 0 {
		return nil, errors.New("bigquery client cannot be nil when datasets or tables are configured")
	}
	if bqClient != nil && cfg.ProjectID != "" && bqClient.Project() != cfg.ProjectID {
		return nil, fmt.Errorf("bigquery client is for project '%s', but resources target project '%s'", bqClient.Project(), cfg.ProjectID)
	}

	logger = logger.With().Str("component", "ProvisionManager").Str("project_id", cfg.ProjectID).Logger()
	m := &Manager{cfg: cfg, logger: logger}
	if psClient != nil {
		m.pubsub = &pubSubManager{client: psClient, logger: logger}
	}
	if bqClient != nil {
		m.bq = &bigQueryManager{client: bqClient, logger: logger}
	}
	return m, nil
}

// NewGoogleManager creates the Pub/Sub and BigQuery clients the config needs.
// The clients are released by Close.
func NewGoogleManager(ctx context.Context, cfg *Config, pubsubOpts, bigqueryOpts []option.ClientOption, logger zerolog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("provision config cannot be nil")
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("project_id is required, set it in the resource file or with --project")
	}

	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	var psClient *pubsub.Client
	if len(cfg.Resources.Topics)+len(cfg.Resources.Subscriptions) > 0 {
		c, err := pubsub.NewClient(ctx, cfg.ProjectID, pubsubOpts...)
		if err != nil {
			return nil, fmt.Errorf("pubsub.NewClient: %w", err)
		}
		psClient = c
		closers = append(closers, c.Close)
	}

	var bqClient BQClient
	if len(cfg.Resources.Datasets)+len(cfg.Resources.Tables) > 0 {
		c, err := bigquery.NewClient(ctx, cfg.ProjectID, bigqueryOpts...)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("bigquery.NewClient: %w", err)
		}
		bqClient = NewBigQueryClientAdapter(c)
		closers = append(closers, c.Close)
	}

	m, err := NewManager(cfg, psClient, bqClient, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	m.closers = closers
	return m, nil
}

// Setup creates whatever is missing: topics, then subscriptions, then datasets,
// then tables. Existing resources are left in place, so Setup can be rerun.
func (m *Manager) Setup(ctx context.Context) error {
	m.logger.Info().Msg("Starting resource setup")
	r := m.cfg.Resources
	if m.pubsub != nil {
		if err := m.pubsub.setupTopics(ctx, r.Topics); err != nil {
			return err
		}
		if err := m.pubsub.setupSubscriptions(ctx, r.Subscriptions); err != nil {
			return err
		}
	}
	if m.bq != nil {
		if err := m.bq.setupDatasets(ctx, m.cfg); err != nil {
			return err
		}
		if err := m.bq.setupTables(ctx, r.Tables); err != nil {
			return err
		}
	}
	m.logger.Info().Msg("Resource setup completed successfully")
	return nil
}

// Teardown deletes the configured resources in reverse dependency order.
// Missing resources are skipped; other failures are collected and returned
// together once every deletion has been attempted.
func (m *Manager) Teardown(ctx context.Context) error {
	if m.cfg.TeardownProtection {
		return fmt.Errorf("%w for project %s", ErrTeardownProtected, m.cfg.ProjectID)
	}
	m.logger.Info().Msg("Starting resource teardown")

	var errs []error
	r := m.cfg.Resources
	if m.bq != nil {
		errs = append(errs, m.bq.teardownTables(ctx, r.Tables))
		errs = append(errs, m.bq.teardownDatasets(ctx, r.Datasets))
	}
	if m.pubsub != nil {
		errs = append(errs, m.pubsub.teardownSubscriptions(ctx, r.Subscriptions))
		errs = append(errs, m.pubsub.teardownTopics(ctx, r.Topics))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("teardown incomplete: %w", err)
	}
	m.logger.Info().Msg("Resource teardown completed")
	return nil
}

// Close releases clients created by NewGoogleManager.
func (m *Manager) Close() error {
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
