// Package config holds the application configuration: the structs, their defaults and validation.
package config

import (
	"strings"
	"unicode/utf8"

	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
)

// EmbeddedConfig is the raw YAML configuration compiled into the binary.
type EmbeddedConfig []byte

// Skip policy names accepted in batch.skip_policy.
const (
	SkipPolicyFailOnError     = "FAIL_ON_ERROR"
	SkipPolicySkipAndContinue = "SKIP_AND_CONTINUE"
)

// DefaultFieldNames is the ordered column layout of the customers CSV.
var DefaultFieldNames = []string{"id", "firstName", "lastName", "email", "gender", "contactNo", "country", "dob"}

// Config is the root of the configuration tree.
type Config struct {
	Batch         BatchConfig         `yaml:"batch"`
	System        SystemConfig        `yaml:"system"`
	Observability ObservabilityConfig `yaml:"observability"`
	// Database holds named database connection sections, decoded by the database adapter.
	Database map[string]interface{} `yaml:"database"`
	// Storage holds named storage connection sections, decoded by the storage adapters.
	Storage map[string]interface{} `yaml:"storage"`
}

// BatchConfig configures the job and its chunk-oriented step.
type BatchConfig struct {
	JobName   string `yaml:"job_name"`
	StepName  string `yaml:"step_name"`
	ChunkSize int    `yaml:"chunk_size"`
	// SkipPolicy is FAIL_ON_ERROR or SKIP_AND_CONTINUE.
	SkipPolicy string `yaml:"skip_policy"`
	// SkipLimit caps mapping skips under SKIP_AND_CONTINUE. 0 means unlimited.
	SkipLimit int `yaml:"skip_limit"`
	// ProcessingWorkers > 1 processes the items of one chunk concurrently.
	ProcessingWorkers int    `yaml:"processing_workers"`
	IsolationLevel    string `yaml:"isolation_level"`
	// TargetDBRef names the entry of the database section the writer upserts into.
	TargetDBRef string           `yaml:"target_db_ref"`
	Source      SourceConfig     `yaml:"source"`
	Mapper      MapperConfig     `yaml:"mapper"`
	Processor   ProcessorConfig  `yaml:"processor"`
	WriteRetry  WriteRetryConfig `yaml:"write_retry"`
	Rejects     RejectsConfig    `yaml:"rejects"`
}

// SourceConfig configures the delimited record source.
type SourceConfig struct {
	StorageRef      string   `yaml:"storage_ref"`
	Bucket          string   `yaml:"bucket"`
	Object          string   `yaml:"object"`
	Delimiter       string   `yaml:"delimiter"`
	SkipHeaderLines int      `yaml:"skip_header_lines"`
	FieldNames      []string `yaml:"field_names"`
	// ResumeOffset is the number of data records to skip, as reported by a previous run.
	ResumeOffset int `yaml:"resume_offset"`
}

// MapperConfig configures record to customer mapping.
type MapperConfig struct {
	// DobLayout, when set, is the time layout a non-empty dob must parse with.
	DobLayout string `yaml:"dob_layout"`
}

// ProcessorConfig configures the customer processor.
type ProcessorConfig struct {
	TrimSpace      bool `yaml:"trim_space"`
	RequireCountry bool `yaml:"require_country"`
}

// WriteRetryConfig configures the optional retry wrapper around the writer.
type WriteRetryConfig struct {
	MaxAttempts     int      `yaml:"max_attempts"`
	RetryableErrors []string `yaml:"retryable_errors"`
}

// RejectsConfig configures the export of records rejected by the mapper.
type RejectsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	StorageRef  string `yaml:"storage_ref"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression"`
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ObservabilityConfig selects the metrics and tracing backends.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig selects the metrics backend: "none", "prometheus" or "otlp".
type MetricsConfig struct {
	Exporter       string `yaml:"exporter"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	Endpoint       string `yaml:"endpoint"`
	// Protocol is "grpc" or "http" for the otlp exporter.
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
}

// TracingConfig selects the tracing backend: "none" or "otlp".
type TracingConfig struct {
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	Protocol    string `yaml:"protocol"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	fields := make([]string, len(DefaultFieldNames))
	copy(fields, DefaultFieldNames)
	return &Config{
		Batch: BatchConfig{
			JobName:           "myjob",
			StepName:          "customerStep",
			ChunkSize:         10,
			SkipPolicy:        SkipPolicyFailOnError,
			ProcessingWorkers: 1,
			TargetDBRef:       "default",
			Source: SourceConfig{
				StorageRef:      "local",
				Object:          "customers.csv",
				Delimiter:       ",",
				SkipHeaderLines: 1,
				FieldNames:      fields,
			},
			Rejects: RejectsConfig{
				StorageRef:  "local",
				Prefix:      "rejects",
				Compression: "SNAPPY",
			},
		},
		System: SystemConfig{
			Logging: LoggingConfig{Level: "INFO"},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Exporter: "none", Protocol: "grpc"},
			Tracing: TracingConfig{Exporter: "none", Protocol: "grpc", ServiceName: "customer-batch"},
		},
		Database: map[string]interface{}{},
		Storage:  map[string]interface{}{},
	}
}

// Validate checks the batch section. The first problem found is returned as a *exception.ConfigError.
func (c *Config) Validate() error {
	b := c.Batch
	if b.ChunkSize <= 0 {
		return exception.NewConfigError("batch.chunk_size", "must be a positive integer, got %d", b.ChunkSize)
	}
	if _, err := ParseSkipPolicy(b.SkipPolicy); err != nil {
		return err
	}
	if b.SkipLimit < 0 {
		return exception.NewConfigError("batch.skip_limit", "must not be negative, got %d", b.SkipLimit)
	}
	if b.ProcessingWorkers < 0 {
		return exception.NewConfigError("batch.processing_workers", "must not be negative, got %d", b.ProcessingWorkers)
	}
	if utf8.RuneCountInString(b.Source.Delimiter) != 1 {
		return exception.NewConfigError("batch.source.delimiter", "must be a single character, got %q", b.Source.Delimiter)
	}
	if b.Source.SkipHeaderLines < 0 || b.Source.ResumeOffset < 0 {
		return exception.NewConfigError("batch.source", "skip_header_lines and resume_offset must not be negative")
	}
	if len(b.Source.FieldNames) == 0 {
		return exception.NewConfigError("batch.source.field_names", "must name at least one field")
	}
	if b.WriteRetry.MaxAttempts < 0 {
		return exception.NewConfigError("batch.write_retry.max_attempts", "must not be negative, got %d", b.WriteRetry.MaxAttempts)
	}
	return nil
}

// ParseSkipPolicy normalises a skip policy name. An empty name means FAIL_ON_ERROR.
func ParseSkipPolicy(name string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", SkipPolicyFailOnError:
		return SkipPolicyFailOnError, nil
	case SkipPolicySkipAndContinue:
		return SkipPolicySkipAndContinue, nil
	default:
		return "", exception.NewConfigError("batch.skip_policy", "unknown policy %q (want %s or %s)",
			name, SkipPolicyFailOnError, SkipPolicySkipAndContinue)
	}
}
