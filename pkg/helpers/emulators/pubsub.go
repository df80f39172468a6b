package emulators

import (
	"context"
	"fmt"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/docker/go-connections/nat"
	"github.com/illmade-knight/beaver/pkg/provision"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
)

const (
	testPubsubEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	testPubsubEmulatorPort  = "8085"
)

// PubsubConfig lists topics and, per topic, an optional subscription to create.
type PubsubConfig struct {
	GCImageContainer
	TopicSubs map[string]string
}

func GetDefaultPubsubConfig(projectID string, topicSubs map[string]string) PubsubConfig {
	return PubsubConfig{
		GCImageContainer: GCImageContainer{
			ImageContainer: ImageContainer{
				EmulatorImage:    testPubsubEmulatorImage,
				EmulatorHTTPPort: testPubsubEmulatorPort,
			},
			ProjectID:       projectID,
			SetEnvVariables: true,
		},
		TopicSubs: topicSubs,
	}
}

// SetupPubsubEmulator starts the emulator, creates the configured topics and
// subscriptions and returns client options for it.
func SetupPubsubEmulator(t *testing.T, ctx context.Context, cfg PubsubConfig) (clientOptions []option.ClientOption, cleanupFunc func()) {
	t.Helper()
	port := nat.Port(fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort))
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{string(port)},
		Cmd:          []string{"gcloud", "beta", "emulators", "pubsub", "start", fmt.Sprintf("--project=%s", cfg.ProjectID), fmt.Sprintf("--host-port=0.0.0.0:%s", cfg.EmulatorHTTPPort)},
		WaitingFor:   wait.ForListeningPort(port),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)
	emulatorHost := fmt.Sprintf("%s:%s", host, mapped.Port())

	t.Logf("Pub/Sub emulator container started, listening on: %s", emulatorHost)
	// The client only dials without TLS when it sees this variable.
	if cfg.SetEnvVariables {
		t.Setenv("PUBSUB_EMULATOR_HOST", emulatorHost)
	}
	clientOptions = []option.ClientOption{option.WithEndpoint(emulatorHost), option.WithoutAuthentication()}

	adminClient, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOptions...)
	require.NoError(t, err)
	defer adminClient.Close()

	resources := &provision.Config{ProjectID: cfg.ProjectID}
	for topicID, subID := range cfg.TopicSubs {
		resources.Resources.Topics = append(resources.Resources.Topics, provision.TopicConfig{Name: topicID})
		if subID != "" {
			resources.Resources.Subscriptions = append(resources.Resources.Subscriptions,
				provision.SubscriptionConfig{Name: subID, Topic: topicID})
		}
	}
	manager, err := provision.NewManager(resources, adminClient, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, manager.Setup(ctx), "Failed to create Pub/Sub resources")

	return clientOptions, func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Pub/Sub emulator container: %v", err)
		}
	}
}
