// Package provision creates and removes the Pub/Sub and BigQuery resources the
// pipelines run against, driven by a YAML resource file.
package provision

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/illmade-knight/beaver/pkg/bqstore"
	"gopkg.in/yaml.v3"
)

// Config is the root of a resource file.
type Config struct {
	ProjectID          string    `yaml:"project_id"`
	Location           string    `yaml:"location,omitempty"`
	TeardownProtection bool      `yaml:"teardown_protection,omitempty"`
	Resources          Resources `yaml:"resources"`
}

// Resources lists everything Setup creates.
type Resources struct {
	Topics        []TopicConfig        `yaml:"topics"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Datasets      []DatasetConfig      `yaml:"bigquery_datasets"`
	Tables        []TableConfig        `yaml:"bigquery_tables"`
}

// TopicConfig defines a Pub/Sub topic.
type TopicConfig struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// SubscriptionConfig defines a Pub/Sub subscription on one of the topics.
type SubscriptionConfig struct {
	Name               string            `yaml:"name"`
	Topic              string            `yaml:"topic"`
	AckDeadlineSeconds int               `yaml:"ack_deadline_seconds,omitempty"`
	MessageRetention   Duration          `yaml:"message_retention_duration,omitempty"`
	Labels             map[string]string `yaml:"labels,omitempty"`
}

// DatasetConfig defines a BigQuery dataset.
type DatasetConfig struct {
	Name        string            `yaml:"name"`
	Location    string            `yaml:"location,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

// TableConfig defines a BigQuery table. Schema uses the name:TYPE,... form
// understood by bqstore.ParseSchema.
type TableConfig struct {
	Name                  string   `yaml:"name"`
	Dataset               string   `yaml:"dataset"`
	Description           string   `yaml:"description,omitempty"`
	Schema                string   `yaml:"schema"`
	TimePartitioningField string   `yaml:"time_partitioning_field,omitempty"`
	TimePartitioningType  string   `yaml:"time_partitioning_type,omitempty"`
	ClusteringFields      []string `yaml:"clustering_fields,omitempty"`
}

// Duration lets durations be written as "15s" or "24h" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// LoadConfig reads and validates a resource file. Unknown keys are rejected so
// that a misspelt option does not silently fall back to a default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource file '%s': %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("resource file '%s': %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and validates a resource document.
func ParseConfig(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks names, references and table schemas. The project is not
// checked here because the command line may still supply it.
func (c *Config) Validate() error {
	r := c.Resources
	if len(r.Topics)+len(r.Subscriptions)+len(r.Datasets)+len(r.Tables) == 0 {
		return errors.New("validation error: no resources defined")
	}

	var errs []error
	topics := make(map[string]bool)
	for i, t := range r.Topics {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("topics[%d] is missing a name", i))
			continue
		}
		if topics[t.Name] {
			errs = append(errs, fmt.Errorf("topics[%d]: duplicate topic %s", i, t.Name))
		}
		topics[t.Name] = true
	}

	subs := make(map[string]bool)
	for i, s := range r.Subscriptions {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("subscriptions[%d] is missing a name", i))
		case s.Topic == "":
			errs = append(errs, fmt.Errorf("subscription %s is missing a topic", s.Name))
		case subs[s.Name]:
			errs = append(errs, fmt.Errorf("subscriptions[%d]: duplicate subscription %s", i, s.Name))
		}
		subs[s.Name] = true
		if s.AckDeadlineSeconds != 0 && (s.AckDeadlineSeconds < 10 || s.AckDeadlineSeconds > 600) {
			errs = append(errs, fmt.Errorf("subscription %s: ack_deadline_seconds must be between 10 and 600", s.Name))
		}
	}

	datasets := make(map[string]bool)
	for i, d := range r.Datasets {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("bigquery_datasets[%d] is missing a name", i))
			continue
		}
		if datasets[d.Name] {
			errs = append(errs, fmt.Errorf("bigquery_datasets[%d]: duplicate dataset %s", i, d.Name))
		}
		datasets[d.Name] = true
	}

	for i, t := range r.Tables {
		if t.Name == "" || t.Dataset == "" {
			errs = append(errs, fmt.Errorf("bigquery_tables[%d] needs both a name and a dataset", i))
			continue
		}
		if _, err := bqstore.ParseSchema(t.Schema); err != nil {
			errs = append(errs, fmt.Errorf("table %s.%s: %w", t.Dataset, t.Name, err))
		}
		if _, err := partitioningType(t.TimePartitioningType); err != nil {
			errs = append(errs, fmt.Errorf("table %s.%s: %w", t.Dataset, t.Name, err))
		}
		if t.TimePartitioningType != "" && t.TimePartitioningField == "" {
			errs = append(errs, fmt.Errorf("table %s.%s: time_partitioning_type needs time_partitioning_field", t.Dataset, t.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation error: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) datasetLocation(d DatasetConfig) string {
	if d.Location != "" {
		return d.Location
	}
	return c.Location
}

func normalize(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
