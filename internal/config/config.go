// Package config merges defaults, an optional config file, BEAVER_* environment
// variables and command line flags into the settings of one beaver command.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/illmade-knight/beaver/internal/logging"
	"github.com/illmade-knight/beaver/pkg/bqstore"
	"github.com/illmade-knight/beaver/pkg/ingest"
	"github.com/illmade-knight/beaver/pkg/messagepipeline"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "BEAVER"

// Config holds every setting a command may read. Keys match flag names.
type Config struct {
	ProjectID        string `mapstructure:"project"`
	CredentialsFile  string `mapstructure:"credentials_file"`
	BigQueryEndpoint string `mapstructure:"bigquery_endpoint"`
	LogLevel         string `mapstructure:"log_level"`
	LogFormat        string `mapstructure:"log_format"`
	MetricsPort      int    `mapstructure:"metrics_port"`

	NumWorkers             int           `mapstructure:"num_workers"`
	MaxOutstandingMessages int           `mapstructure:"max_outstanding_messages"`
	NumGoroutines          int           `mapstructure:"num_goroutines"`
	BatchSize              int           `mapstructure:"batch_size"`
	FlushTimeout           time.Duration `mapstructure:"flush_timeout"`
	InsertTimeout          time.Duration `mapstructure:"insert_timeout"`

	// passthrough
	Subscription string `mapstructure:"subscription"`

	// ingest
	InputTopic        string `mapstructure:"input_topic"`
	OutputTable       string `mapstructure:"output_table"`
	InputSubscription string `mapstructure:"input_subscription"`
	DeadLetterTopic   string `mapstructure:"dead_letter_topic"`
	CreateDisposition string `mapstructure:"create_disposition"`
	WriteDisposition  string `mapstructure:"write_disposition"`
}

func setDefaults(v *viper.Viper) {
	rt := messagepipeline.DefaultRuntimeOptions()
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", logging.FormatConsole)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("num_workers", rt.NumWorkers)
	v.SetDefault("max_outstanding_messages", rt.MaxOutstandingMessages)
	v.SetDefault("num_goroutines", rt.NumGoroutines)
	v.SetDefault("batch_size", rt.Batch.BatchSize)
	v.SetDefault("flush_timeout", rt.Batch.FlushTimeout)
	v.SetDefault("insert_timeout", rt.Batch.InsertTimeout)
	v.SetDefault("create_disposition", "CREATE_IF_NEEDED")
	v.SetDefault("write_disposition", "WRITE_APPEND")
}

// RegisterFlags declares the settings shared by every command.
func RegisterFlags(fs *pflag.FlagSet) {
	rt := messagepipeline.DefaultRuntimeOptions()
	fs.String("config", "", "optional config file (yaml, json or toml)")
	fs.String("project", "", "default Google Cloud project for unqualified resource names")
	fs.String("credentials_file", "", "service account key file; Application Default Credentials when empty")
	fs.String("bigquery_endpoint", "", "BigQuery API endpoint, e.g. an emulator")
	fs.String("log_level", "info", "log level: trace, debug, info, warn, error")
	fs.String("log_format", logging.FormatConsole, "log format: console or json")
	fs.Int("metrics_port", 9090, "port for the /metrics endpoint, 0 disables it")
	fs.Int("num_workers", rt.NumWorkers, "processing workers")
	fs.Int("max_outstanding_messages", rt.MaxOutstandingMessages, "Pub/Sub flow control limit")
	fs.Int("num_goroutines", rt.NumGoroutines, "Pub/Sub receive goroutines")
	fs.Int("batch_size", rt.Batch.BatchSize, "items per sink batch")
	fs.Duration("flush_timeout", rt.Batch.FlushTimeout, "maximum time a partial batch waits")
	fs.Duration("insert_timeout", rt.Batch.InsertTimeout, "timeout for one sink write")
}

// Load reads the layered configuration. Flags set on the command line win over
// environment variables, which win over the config file, which wins over defaults.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if confFile := v.GetString("config"); confFile != "" {
		v.SetConfigFile(confFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %v: %w", confFile, err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks the shared settings.
func (c *Config) Validate() error {
	var errs []error
	if c.NumWorkers <= 0 {
		errs = append(errs, errors.New("--num_workers must be positive"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("--batch_size must be positive"))
	}
	if c.FlushTimeout <= 0 {
		errs = append(errs, errors.New("--flush_timeout must be positive"))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("--metrics_port %d out of range", c.MetricsPort))
	}
	switch strings.ToLower(c.LogFormat) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("--log_format must be %s or %s", logging.FormatConsole, logging.FormatJSON))
	}
	return errors.Join(errs...)
}

// Runtime returns the execution settings shared by the pipelines.
func (c *Config) Runtime() messagepipeline.RuntimeOptions {
	rt := messagepipeline.DefaultRuntimeOptions()
	rt.ProjectID = c.ProjectID
	rt.CredentialsFile = c.CredentialsFile
	rt.NumWorkers = c.NumWorkers
	rt.MaxOutstandingMessages = c.MaxOutstandingMessages
	rt.NumGoroutines = c.NumGoroutines
	rt.Batch.BatchSize = c.BatchSize
	rt.Batch.FlushTimeout = c.FlushTimeout
	if c.InsertTimeout > 0 {
		rt.Batch.InsertTimeout = c.InsertTimeout
	}
	return rt
}

// IngestOptions returns the validated options of the ingest pipeline.
func (c *Config) IngestOptions() (ingest.Options, error) {
	opts := ingest.Options{
		InputTopic:        c.InputTopic,
		OutputTable:       c.OutputTable,
		InputSubscription: c.InputSubscription,
		DeadLetterTopic:   c.DeadLetterTopic,
	}
	var errs []error
	if err := opts.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.CreateDisposition != "" {
		d, err := bqstore.ParseCreateDisposition(c.CreateDisposition)
		if err != nil {
			errs = append(errs, fmt.Errorf("--create_disposition: %w", err))
		}
		opts.CreateDisposition = d
	}
	if c.WriteDisposition != "" {
		d, err := bqstore.ParseWriteDisposition(c.WriteDisposition)
		if err != nil {
			errs = append(errs, fmt.Errorf("--write_disposition: %w", err))
		}
		opts.WriteDisposition = d
	}
	if err := errors.Join(errs...); err != nil {
		return ingest.Options{}, err
	}
	return opts, nil
}
