package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sayantanonfire/era5-export/internal/dataset"
)

// CollapseRule configures one lead-step collapse: which variable and which
// aggregation. The aggregation is configuration, not a hardcoded sum, because
// the physically meaningful reduction differs per quantity.
type CollapseRule struct {
	Variable string
	Agg      dataset.AggFunc
}

// Config holds all exporter settings, populated from environment variables.
type Config struct {
	ArchivePath   string
	ArchiveFormat string // "extract" or "netcdf"
	StorePath     string

	Variables       []string // selectors to load, in merge order
	ExportVariables []string // selection to persist; empty = all
	Collapse        []CollapseRule

	ChunkSize  int // chunk length along base_time
	Codec      string
	CodecLevel int

	LoadConcurrency int

	HTTPEnabled bool
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	ShutdownTimeout time.Duration

	// Kafka export-notification configuration.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	chunkSize, err := envInt("CHUNK_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	codecLevel, err := envInt("CODEC_LEVEL", 3)
	if err != nil {
		return nil, err
	}
	concurrency, err := envInt("LOAD_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	variables := splitList(envOrDefault("VARIABLES", "t2m,tp"))
	collapse, err := parseCollapse(envOrDefault("COLLAPSE", "tp:sum"))
	if err != nil {
		return nil, err
	}

	kafkaBrokers := splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092"))
	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		ArchivePath:     os.Getenv("ARCHIVE_PATH"),
		ArchiveFormat:   envOrDefault("ARCHIVE_FORMAT", "extract"),
		StorePath:       os.Getenv("STORE_PATH"),
		Variables:       variables,
		ExportVariables: splitList(os.Getenv("EXPORT_VARIABLES")),
		Collapse:        collapse,
		ChunkSize:       chunkSize,
		Codec:           envOrDefault("CODEC", "zstd"),
		CodecLevel:      codecLevel,
		LoadConcurrency: concurrency,
		HTTPEnabled:     os.Getenv("HTTP_ENABLED") == "true",
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		KafkaEnabled:    kafkaEnabled,
		KafkaBrokers:    kafkaBrokers,
		KafkaTopic:      envOrDefault("KAFKA_TOPIC", "era5-export-events"),
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.ArchivePath == "" {
		return errors.New("ARCHIVE_PATH is required")
	}
	if c.StorePath == "" {
		return errors.New("STORE_PATH is required")
	}
	switch c.ArchiveFormat {
	case "extract", "netcdf":
	default:
		return fmt.Errorf("invalid ARCHIVE_FORMAT %q (want extract or netcdf)", c.ArchiveFormat)
	}
	switch c.Codec {
	case "zstd", "lz4", "none":
	default:
		return fmt.Errorf("invalid CODEC %q (want zstd, lz4, or none)", c.Codec)
	}
	if c.ChunkSize <= 0 {
		return errors.New("CHUNK_SIZE must be positive")
	}
	if c.LoadConcurrency <= 0 {
		return errors.New("LOAD_CONCURRENCY must be positive")
	}
	if len(c.Variables) == 0 {
		return errors.New("VARIABLES is required")
	}
	for _, selector := range c.Variables {
		if _, err := dataset.LookupVariable(selector); err != nil {
			return err
		}
	}
	loaded := make(map[string]bool, len(c.Variables))
	for _, selector := range c.Variables {
		loaded[selector] = true
	}
	for _, rule := range c.Collapse {
		if !loaded[rule.Variable] {
			return fmt.Errorf("COLLAPSE names %q, which is not in VARIABLES", rule.Variable)
		}
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	return nil
}

// parseCollapse parses "tp:sum,sf" style rules. A rule without an explicit
// aggregation uses the registry default for that variable; a variable with no
// registry default must name one.
func parseCollapse(s string) ([]CollapseRule, error) {
	entries := splitList(s)
	rules := make([]CollapseRule, 0, len(entries))
	for _, entry := range entries {
		name, aggName, explicit := strings.Cut(entry, ":")
		info, err := dataset.LookupVariable(name)
		if err != nil {
			return nil, fmt.Errorf("COLLAPSE: %w", err)
		}

		agg := info.Collapse
		if explicit {
			agg, err = dataset.ParseAggFunc(aggName)
			if err != nil {
				return nil, fmt.Errorf("COLLAPSE: %w", err)
			}
		}
		if agg == "" {
			return nil, fmt.Errorf("COLLAPSE: variable %q has no default aggregation; use %q", name, name+":sum")
		}
		rules = append(rules, CollapseRule{Variable: name, Agg: agg})
	}
	return rules, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
