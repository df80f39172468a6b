package emulators

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/docker/go-connections/nat"
	"github.com/illmade-knight/beaver/pkg/provision"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
)

// BigQueryConfig lists datasets to create and, per dataset, one table.
// Schemas maps a table ID to its schema in name:TYPE,... form; a table with no
// schema is left for the code under test to create.
// Resources are created through provision.Manager.
type BigQueryConfig struct {
	GCImageContainer
	DatasetTables map[string]string
	Schemas       map[string]string
}

const (
	testBigQueryEmulatorImage = "ghcr.io/goccy/bigquery-emulator:0.6.6"
	testBigQueryGRPCPort      = "9060"
	testBigQueryRestPort      = "9050"
)

func GetDefaultBigQueryConfig(projectID string, datasetTables map[string]string, schemas map[string]string) BigQueryConfig {
	return BigQueryConfig{
		GCImageContainer: GCImageContainer{
			ImageContainer: ImageContainer{
				EmulatorImage:    testBigQueryEmulatorImage,
				EmulatorHTTPPort: testBigQueryRestPort,
				EmulatorGRPCPort: testBigQueryGRPCPort,
			},
			ProjectID:       projectID,
			SetEnvVariables: false,
		},
		DatasetTables: datasetTables,
		Schemas:       schemas,
	}
}

// SetupBigQueryEmulator starts the emulator, creates the configured datasets
// and tables and returns client options for it.
func SetupBigQueryEmulator(t *testing.T, ctx context.Context, cfg BigQueryConfig) (opts []option.ClientOption, cleanupFunc func()) {
	t.Helper()
	httpPort := nat.Port(fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort))
	grpcPort := nat.Port(fmt.Sprintf("%s/tcp", cfg.EmulatorGRPCPort))
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{string(httpPort), string(grpcPort)},
		Cmd: []string{
			"--project=" + cfg.ProjectID,
			"--port=" + cfg.EmulatorHTTPPort,
			"--grpc-port=" + cfg.EmulatorGRPCPort,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(httpPort).WithStartupTimeout(60*time.Second),
			wait.ForListeningPort(grpcPort).WithStartupTimeout(60*time.Second),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedGrpcPort, err := container.MappedPort(ctx, grpcPort)
	require.NoError(t, err)
	mappedRestPort, err := container.MappedPort(ctx, httpPort)
	require.NoError(t, err)

	endpoint := fmt.Sprintf("http://%s:%s", host, mappedRestPort.Port())
	opts = []option.ClientOption{option.WithEndpoint(endpoint), option.WithoutAuthentication(), option.WithHTTPClient(&http.Client{})}

	if cfg.SetEnvVariables {
		t.Setenv("BIGQUERY_EMULATOR_HOST", fmt.Sprintf("%s:%s", host, mappedGrpcPort.Port()))
		t.Setenv("BIGQUERY_API_ENDPOINT", endpoint)
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	require.NoError(t, err)
	defer client.Close()

	resources := &provision.Config{ProjectID: cfg.ProjectID}
	for datasetID, tableID := range cfg.DatasetTables {
		resources.Resources.Datasets = append(resources.Resources.Datasets, provision.DatasetConfig{Name: datasetID})
		if schema := cfg.Schemas[tableID]; schema != "" {
			resources.Resources.Tables = append(resources.Resources.Tables,
				provision.TableConfig{Name: tableID, Dataset: datasetID, Schema: schema})
		}
	}
	manager, err := provision.NewManager(resources, nil, provision.NewBigQueryClientAdapter(client), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, manager.Setup(ctx), "Failed to create BigQuery resources")

	return opts, func() { require.NoError(t, container.Terminate(ctx)) }
}
