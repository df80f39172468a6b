package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/beaver/pkg/bqstore"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// --- BigQuery client abstraction ---

type BQTable interface {
	Metadata(ctx context.Context) (*bigquery.TableMetadata, error)
	Create(ctx context.Context, meta *bigquery.TableMetadata) error
	Delete(ctx context.Context) error
}

type BQDataset interface {
	Metadata(ctx context.Context) (*bigquery.DatasetMetadata, error)
	Create(ctx context.Context, meta *bigquery.DatasetMetadata) error
	Update(ctx context.Context, metaToUpdate bigquery.DatasetMetadataToUpdate, etag string) (*bigquery.DatasetMetadata, error)
	Delete(ctx context.Context) error
	Table(tableID string) BQTable
}

type BQClient interface {
	Dataset(datasetID string) BQDataset
	Project() string
	Close() error
}

type bqTableAdapter struct{ table *bigquery.Table }

func (a *bqTableAdapter) Metadata(ctx context.Context) (*bigquery.TableMetadata, error) {
	return a.table.Metadata(ctx)
}
func (a *bqTableAdapter) Create(ctx context.Context, meta *bigquery.TableMetadata) error {
	return a.table.Create(ctx, meta)
}
func (a *bqTableAdapter) Delete(ctx context.Context) error { return a.table.Delete(ctx) }

type bqDatasetAdapter struct{ dataset *bigquery.Dataset }

func (a *bqDatasetAdapter) Metadata(ctx context.Context) (*bigquery.DatasetMetadata, error) {
	return a.dataset.Metadata(ctx)
}
func (a *bqDatasetAdapter) Create(ctx context.Context, meta *bigquery.DatasetMetadata) error {
	return a.dataset.Create(ctx, meta)
}
func (a *bqDatasetAdapter) Update(ctx context.Context, metaToUpdate bigquery.DatasetMetadataToUpdate, etag string) (*bigquery.DatasetMetadata, error) {
	return a.dataset.Update(ctx, metaToUpdate, etag)
}
func (a *bqDatasetAdapter) Delete(ctx context.Context) error { return a.dataset.Delete(ctx) }
func (a *bqDatasetAdapter) Table(tableID string) BQTable {
	return &bqTableAdapter{table: a.dataset.Table(tableID)}
}

type bqClientAdapter struct{ client *bigquery.Client }

func (a *bqClientAdapter) Dataset(datasetID string) BQDataset {
	return &bqDatasetAdapter{dataset: a.client.Dataset(datasetID)}
}
func (a *bqClientAdapter) Project() string { return a.client.Project() }
func (a *bqClientAdapter) Close() error    { return a.client.Close() }

// NewBigQueryClientAdapter wraps a real client.
func NewBigQueryClientAdapter(client *bigquery.Client) BQClient {
	if client == nil {
		return nil
	}
	return &bqClientAdapter{client: client}
}

var _ BQTable = &bqTableAdapter{}
var _ BQDataset = &bqDatasetAdapter{}
var _ BQClient = &bqClientAdapter{}

func isBigQueryNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// bigQueryManager creates and deletes datasets and tables.
type bigQueryManager struct {
	client BQClient
	logger zerolog.Logger
}

func (m *bigQueryManager) setupDatasets(ctx context.Context, cfg *Config) error {
	m.logger.Info().Int("count", len(cfg.Resources.Datasets)).Msg("Setting up BigQuery datasets...")
	for _, dsCfg := range cfg.Resources.Datasets {
		dataset := m.client.Dataset(dsCfg.Name)
		_, err := dataset.Metadata(ctx)
		if err == nil {
			m.logger.Info().Str("dataset_id", dsCfg.Name).Msg("Dataset already exists. Ensuring configuration...")
			update := bigquery.DatasetMetadataToUpdate{Description: dsCfg.Description}
			for k, v := range dsCfg.Labels {
				update.SetLabel(k, v)
			}
			if _, err := dataset.Update(ctx, update, ""); err != nil {
				m.logger.Warn().Err(err).Str("dataset_id", dsCfg.Name).Msg("Failed to update dataset metadata")
			}
			continue
		}
		if !isBigQueryNotFound(err) {
			return fmt.Errorf("failed to get metadata for dataset '%s': %w", dsCfg.Name, err)
		}

		meta := &bigquery.DatasetMetadata{
			Name:        dsCfg.Name,
			Description: dsCfg.Description,
			Labels:      dsCfg.Labels,
			Location:    cfg.datasetLocation(dsCfg),
		}
		if meta.Location == "" {
			m.logger.Warn().Str("dataset_id", dsCfg.Name).Msg("Dataset location not specified, relying on BigQuery defaults.")
		}
		if err := dataset.Create(ctx, meta); err != nil {
			return fmt.Errorf("failed to create dataset '%s': %w", dsCfg.Name, err)
		}
		m.logger.Info().Str("dataset_id", dsCfg.Name).Msg("Dataset created successfully")
	}
	return nil
}

func (m *bigQueryManager) setupTables(ctx context.Context, tables []TableConfig) error {
	m.logger.Info().Int("count", len(tables)).Msg("Setting up BigQuery tables...")
	for _, tableCfg := range tables {
		table := m.client.Dataset(tableCfg.Dataset).Table(tableCfg.Name)
		_, err := table.Metadata(ctx)
		if err == nil {
			m.logger.Info().Str("table_id", tableCfg.Name).Str("dataset_id", tableCfg.Dataset).Msg("Table already exists.")
			continue
		}
		if !isBigQueryNotFound(err) {
			return fmt.Errorf("get metadata for '%s.%s': %w", tableCfg.Dataset, tableCfg.Name, err)
		}

		meta, err := tableMetadata(tableCfg)
		if err != nil {
			return fmt.Errorf("table '%s.%s': %w", tableCfg.Dataset, tableCfg.Name, err)
		}
		if err := table.Create(ctx, meta); err != nil {
			return fmt.Errorf("create table '%s.%s': %w", tableCfg.Dataset, tableCfg.Name, err)
		}
		m.logger.Info().Str("table_id", tableCfg.Name).Str("dataset_id", tableCfg.Dataset).Int("field_count", len(meta.Schema)).Msg("Table created successfully")
	}
	return nil
}

func tableMetadata(tableCfg TableConfig) (*bigquery.TableMetadata, error) {
	schema, err := bqstore.ParseSchema(tableCfg.Schema)
	if err != nil {
		return nil, err
	}
	meta := &bigquery.TableMetadata{Name: tableCfg.Name, Description: tableCfg.Description, Schema: schema}
	if tableCfg.TimePartitioningField != "" {
		partType, err := partitioningType(tableCfg.TimePartitioningType)
		if err != nil {
			return nil, err
		}
		meta.TimePartitioning = &bigquery.TimePartitioning{Field: tableCfg.TimePartitioningField, Type: partType}
	}
	if len(tableCfg.ClusteringFields) > 0 {
		meta.Clustering = &bigquery.Clustering{Fields: tableCfg.ClusteringFields}
	}
	return meta, nil
}

// partitioningType maps HOUR, DAY, MONTH or YEAR; empty means DAY.
func partitioningType(s string) (bigquery.TimePartitioningType, error) {
	switch normalize(s) {
	case "", "DAY":
		return bigquery.DayPartitioningType, nil
	case "HOUR":
		return bigquery.HourPartitioningType, nil
	case "MONTH":
		return bigquery.MonthPartitioningType, nil
	case "YEAR":
		return bigquery.YearPartitioningType, nil
	default:
		return "", fmt.Errorf("unsupported time partitioning type %q", s)
	}
}

func (m *bigQueryManager) teardownTables(ctx context.Context, tables []TableConfig) error {
	m.logger.Info().Int("count", len(tables)).Msg("Tearing down BigQuery tables...")
	var errs []error
	for i := len(tables) - 1; i >= 0; i-- {
		tableCfg := tables[i]
		table := m.client.Dataset(tableCfg.Dataset).Table(tableCfg.Name)
		if err := table.Delete(ctx); err != nil {
			if isBigQueryNotFound(err) {
				m.logger.Info().Str("table_id", tableCfg.Name).Msg("Table not found, skipping.")
				continue
			}
			m.logger.Error().Err(err).Str("table_id", tableCfg.Name).Msg("Failed to delete table")
			errs = append(errs, fmt.Errorf("delete table '%s.%s': %w", tableCfg.Dataset, tableCfg.Name, err))
			continue
		}
		m.logger.Info().Str("table_id", tableCfg.Name).Msg("Table deleted.")
	}
	return errors.Join(errs...)
}

func (m *bigQueryManager) teardownDatasets(ctx context.Context, datasets []DatasetConfig) error {
	m.logger.Info().Int("count", len(datasets)).Msg("Tearing down BigQuery datasets...")
	var errs []error
	for i := len(datasets) - 1; i >= 0; i-- {
		dsCfg := datasets[i]
		if err := m.client.Dataset(dsCfg.Name).Delete(ctx); err != nil {
			if isBigQueryNotFound(err) {
				m.logger.Info().Str("dataset_id", dsCfg.Name).Msg("Dataset not found, skipping.")
				continue
			}
			m.logger.Error().Err(err).Str("dataset_id", dsCfg.Name).Msg("Failed to delete dataset")
			errs = append(errs, fmt.Errorf("delete dataset '%s': %w", dsCfg.Name, err))
			continue
		}
		m.logger.Info().Str("dataset_id", dsCfg.Name).Msg("Dataset deleted.")
	}
	return errors.Join(errs...)
}
