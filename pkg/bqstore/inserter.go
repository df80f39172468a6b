package bqstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrTableNotFound is returned when the sink table is missing and the create
// disposition forbids creating it.
var ErrTableNotFound = errors.New("bigquery table not found")

// BigQuerySinkConfig describes the destination table and how it is opened.
type BigQuerySinkConfig struct {
	ProjectID         string
	DatasetID         string
	TableID           string
	CredentialsFile   string // Optional: For production if not using ADC
	Schema            bigquery.Schema
	CreateDisposition bigquery.TableCreateDisposition
	WriteDisposition  bigquery.TableWriteDisposition
}

// Table returns the destination as a TableSpec.
func (c *BigQuerySinkConfig) Table() TableSpec {
	return TableSpec{ProjectID: c.ProjectID, DatasetID: c.DatasetID, TableID: c.TableID}
}

// LoadBigQueryInserterConfigFromEnv loads BigQuery sink configuration from environment variables.
// The schema is read from BQ_TABLE_SCHEMA in name:TYPE,... form.
func LoadBigQueryInserterConfigFromEnv() (*BigQuerySinkConfig, error) {
	cfg := &BigQuerySinkConfig{
		ProjectID:         os.Getenv("GCP_PROJECT_ID"),
		DatasetID:         os.Getenv("BQ_DATASET_ID"),
		TableID:           os.Getenv("BQ_TABLE_ID"),
		CredentialsFile:   os.Getenv("GCP_BQ_CREDENTIALS_FILE"),
		CreateDisposition: bigquery.CreateIfNeeded,
		WriteDisposition:  bigquery.WriteAppend,
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("GCP_PROJECT_ID environment variable not set for BigQuery config")
	}
	if cfg.DatasetID == "" {
		return nil, fmt.Errorf("BQ_DATASET_ID environment variable not set for BigQuery config")
	}
	if cfg.TableID == "" {
		return nil, fmt.Errorf("BQ_TABLE_ID environment variable not set for BigQuery config")
	}
	if s := os.Getenv("BQ_TABLE_SCHEMA"); s != "" {
		schema, err := ParseSchema(s)
		if err != nil {
			return nil, fmt.Errorf("BQ_TABLE_SCHEMA: %w", err)
		}
		cfg.Schema = schema
	}
	return cfg, nil
}

// NewProductionBigQueryClient creates a BigQuery client suitable for production.
func NewProductionBigQueryClient(ctx context.Context, cfg *BigQuerySinkConfig, logger zerolog.Logger, opts ...option.ClientOption) (*bigquery.Client, error) {
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for BigQuery client")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for BigQuery client")
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		logger.Error().Err(err).Str("project_id", cfg.ProjectID).Msg("Failed to create BigQuery client")
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	logger.Info().Str("project_id", cfg.ProjectID).Msg("BigQuery client created successfully.")
	return client, nil
}

// BQTable is the subset of *bigquery.Table used to open a sink.
type BQTable interface {
	Metadata(ctx context.Context) (*bigquery.TableMetadata, error)
	Create(ctx context.Context, meta *bigquery.TableMetadata) error
}

// RowPutter is satisfied by *bigquery.Inserter.
type RowPutter interface {
	Put(ctx context.Context, src interface{}) error
}

type bqTableAdapter struct{ table *bigquery.Table }

func (a *bqTableAdapter) Metadata(ctx context.Context) (*bigquery.TableMetadata, error) {
	return a.table.Metadata(ctx)
}
func (a *bqTableAdapter) Create(ctx context.Context, meta *bigquery.TableMetadata) error {
	return a.table.Create(ctx, meta)
}

var _ BQTable = &bqTableAdapter{}
var _ RowPutter = &bigquery.Inserter{}

// BigQueryInserter implements messagepipeline.DataBatchInserter[T] with
// streaming inserts. If *T implements bigquery.ValueSaver its Save method
// decides the row contents and insert ID.
type BigQueryInserter[T any] struct {
	putter RowPutter
	table  TableSpec
	logger zerolog.Logger
}

// NewBigQueryInserter opens the configured table according to its create and
// write dispositions and returns an inserter for it.
func NewBigQueryInserter[T any](
	ctx context.Context,
	client *bigquery.Client,
	cfg *BigQuerySinkConfig,
	logger zerolog.Logger,
) (*BigQueryInserter[T], error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("BigQuerySinkConfig cannot be nil")
	}
	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = client.Project()
	}
	table := client.DatasetInProject(projectID, cfg.DatasetID).Table(cfg.TableID)
	return NewBigQueryInserterFromTable[T](ctx, &bqTableAdapter{table: table}, table.Inserter(), cfg, logger)
}

// NewBigQueryInserterFromTable is NewBigQueryInserter over injected table handles.
func NewBigQueryInserterFromTable[T any](
	ctx context.Context,
	table BQTable,
	putter RowPutter,
	cfg *BigQuerySinkConfig,
	logger zerolog.Logger,
) (*BigQueryInserter[T], error) {
	if table == nil || putter == nil {
		return nil, fmt.Errorf("table and row putter cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("BigQuerySinkConfig cannot be nil")
	}
	spec := cfg.Table()
	logger = logger.With().Str("component", "BigQueryInserter").Str("table", spec.String()).Logger()

	createDisposition := cfg.CreateDisposition
	if createDisposition == "" {
		createDisposition = bigquery.CreateIfNeeded
	}
	writeDisposition := cfg.WriteDisposition
	if writeDisposition == "" {
		writeDisposition = bigquery.WriteAppend
	}
	if writeDisposition == bigquery.WriteTruncate {
		return nil, fmt.Errorf("write disposition %s is not supported by streaming inserts", writeDisposition)
	}

	meta, err := table.Metadata(ctx)
	switch {
	case err == nil:
		logger.Info().Msg("Connected to existing BigQuery table.")
		if writeDisposition == bigquery.WriteEmpty && tableHasRows(meta) {
			return nil, fmt.Errorf("table %s is not empty and write disposition is %s", spec, writeDisposition)
		}
		warnOnSchemaDrift(logger, cfg.Schema, meta.Schema)

	case isNotFound(err):
		if createDisposition == bigquery.CreateNever {
			return nil, fmt.Errorf("%w: %s (create disposition %s)", ErrTableNotFound, spec, createDisposition)
		}
		if len(cfg.Schema) == 0 {
			return nil, fmt.Errorf("table %s does not exist and no schema was given to create it", spec)
		}
		logger.Warn().Msg("BigQuery table not found. Creating it with the configured schema.")
		if createErr := table.Create(ctx, &bigquery.TableMetadata{Schema: cfg.Schema}); createErr != nil {
			return nil, fmt.Errorf("failed to create BigQuery table %s: %w", spec, createErr)
		}
		logger.Info().Int("field_count", len(cfg.Schema)).Msg("BigQuery table created successfully.")

	default:
		return nil, fmt.Errorf("failed to get BigQuery table metadata for %s: %w", spec, err)
	}

	return &BigQueryInserter[T]{
		putter: putter,
		table:  spec,
		logger: logger,
	}, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	return strings.Contains(err.Error(), "notFound")
}

func tableHasRows(meta *bigquery.TableMetadata) bool {
	if meta == nil {
		return false
	}
	if meta.NumRows > 0 {
		return true
	}
	return meta.StreamingBuffer != nil && meta.StreamingBuffer.EstimatedRows > 0
}

// warnOnSchemaDrift logs fields whose type differs from, or are missing in, the live table.
func warnOnSchemaDrift(logger zerolog.Logger, want, have bigquery.Schema) {
	existing := make(map[string]bigquery.FieldType, len(have))
	for _, f := range have {
		existing[f.Name] = f.Type
	}
	for _, f := range want {
		got, ok := existing[f.Name]
		if !ok {
			logger.Warn().Str("field", f.Name).Msg("Configured field is missing from the existing table.")
		} else if got != f.Type {
			logger.Warn().Str("field", f.Name).Str("want", string(f.Type)).Str("have", string(got)).Msg("Configured field type differs from the existing table.")
		}
	}
}

// InsertBatch streams a batch of items to BigQuery, appending to the table.
func (i *BigQueryInserter[T]) InsertBatch(ctx context.Context, items []*T) error {
	if len(items) == 0 {
		return nil
	}

	err := i.putter.Put(ctx, items)
	if err != nil {
		i.logger.Error().Err(err).Int("batch_size", len(items)).Msg("Failed to insert rows into BigQuery")
		var multiErr bigquery.PutMultiError
		if errors.As(err, &multiErr) {
			for _, rowErr := range multiErr {
				i.logger.Error().
					Int("row_index", rowErr.RowIndex).
					Msgf("BigQuery insert error for row: %v", rowErr.Errors)
			}
		}
		return fmt.Errorf("bigquery Inserter.Put failed: %w", err)
	}

	i.logger.Debug().Int("batch_size", len(items)).Msg("Inserted batch into BigQuery")
	return nil
}

// Close is a no-op as the BigQuery client's lifecycle is managed externally.
func (i *BigQueryInserter[T]) Close() error {
	return nil
}
