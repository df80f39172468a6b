package provision

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/illmade-knight/beaver/pkg/ingest"
	"gopkg.in/yaml.v3"
)

// SampleConfig is a starting resource file for the ingest pipeline: an input
// topic with a subscription, a dead-letter topic and a table with the record
// schema.
func SampleConfig(projectID string) *Config {
	return &Config{
		ProjectID: projectID,
		Location:  "US",
		Resources: Resources{
			Topics: []TopicConfig{
				{Name: "beaver-input"},
				{Name: "beaver-dead-letter"},
			},
			Subscriptions: []SubscriptionConfig{{
				Name:               "beaver-input-sub",
				Topic:              "beaver-input",
				AckDeadlineSeconds: 60,
				MessageRetention:   Duration(24 * time.Hour),
			}},
			Datasets: []DatasetConfig{{
				Name:        "beaver",
				Description: "Records written by the ingest pipeline",
			}},
			Tables: []TableConfig{{
				Name:    "records",
				Dataset: "beaver",
				Schema:  ingest.DefaultSchema,
			}},
		},
	}
}

// WriteSampleConfig writes SampleConfig to path. An existing file is never
// overwritten.
func WriteSampleConfig(path, projectID string) error {
	if projectID == "" {
		projectID = "your-project"
	}
	data, err := yaml.Marshal(SampleConfig(projectID))
	if err != nil {
		return fmt.Errorf("failed to marshal sample resource file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("resource file '%s' already exists", path)
		}
		return fmt.Errorf("failed to create resource file '%s': %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write resource file '%s': %w", path, err)
	}
	return f.Close()
}
