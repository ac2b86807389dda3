package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	LedgerBackendFile     = "file"
	LedgerBackendPostgres = "postgres"
)

type Config struct {
	InputDir   string `yaml:"input_dir"`
	OutputDir  string `yaml:"output_dir"`
	ArchiveDir string `yaml:"archive_dir"`

	LedgerPath    string `yaml:"ledger_path"`
	LedgerBackend string `yaml:"ledger_backend"`
	PostgresDSN   string `yaml:"postgres_dsn"`

	DateDirs      bool   `yaml:"date_dirs"`
	ReceiptPrefix string `yaml:"receipt_prefix"`

	LogLevel           string `yaml:"log_level"`
	LogDir             string `yaml:"log_dir"`
	ReportPath         string `yaml:"report_path"`
	ProgressIntervalMS int    `yaml:"progress_interval_ms"`

	NATSURL           string `yaml:"nats_url"`
	NATSSubject       string `yaml:"nats_subject"`
	NATSEventsSubject string `yaml:"nats_events_subject"`

	WorkerMetricsPort string `yaml:"worker_metrics_port"`
}

func Default() Config {
	return Config{
		InputDir:           ".",
		OutputDir:          "receipt_library",
		ArchiveDir:         "archive",
		LedgerPath:         "processed.txt",
		LedgerBackend:      LedgerBackendFile,
		DateDirs:           true,
		ReceiptPrefix:      "RFAH7970",
		LogLevel:           "info",
		LogDir:             "logs",
		ProgressIntervalMS: 250,
		NATSSubject:        "receipts.split",
		NATSEventsSubject:  "receipts.progress",
		WorkerMetricsPort:  "9090",
	}
}

// Load resolves defaults, then the optional YAML file at path, then
// environment variables. An empty path falls back to SPLITTER_CONFIG.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("SPLITTER_CONFIG")
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.InputDir = mustEnv("INPUT_DIR", c.InputDir)
	c.OutputDir = mustEnv("OUTPUT_DIR", c.OutputDir)
	c.ArchiveDir = mustEnv("ARCHIVE_DIR", c.ArchiveDir)

	c.LedgerPath = mustEnv("LEDGER_PATH", c.LedgerPath)
	c.LedgerBackend = mustEnv("LEDGER_BACKEND", c.LedgerBackend)
	c.PostgresDSN = mustEnv("POSTGRES_DSN", c.PostgresDSN)

	c.DateDirs = mustEnvBool("DATE_DIRS", c.DateDirs)
	c.ReceiptPrefix = mustEnv("RECEIPT_PREFIX", c.ReceiptPrefix)

	c.LogLevel = mustEnv("LOG_LEVEL", c.LogLevel)
	c.LogDir = mustEnv("LOG_DIR", c.LogDir)
	c.ReportPath = mustEnv("REPORT_PATH", c.ReportPath)
	c.ProgressIntervalMS = mustEnvInt("PROGRESS_INTERVAL_MS", c.ProgressIntervalMS)

	c.NATSURL = mustEnv("NATS_URL", c.NATSURL)
	c.NATSSubject = mustEnv("NATS_SUBJECT", c.NATSSubject)
	c.NATSEventsSubject = mustEnv("NATS_EVENTS_SUBJECT", c.NATSEventsSubject)

	c.WorkerMetricsPort = mustEnv("WORKER_METRICS_PORT", c.WorkerMetricsPort)
}

func (c Config) Validate() error {
	var errs []error
	switch c.LedgerBackend {
	case LedgerBackendFile:
		if strings.TrimSpace(c.LedgerPath) == "" {
			errs = append(errs, errors.New("ledger_path is required for the file ledger"))
		}
	case LedgerBackendPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres_dsn is required for the postgres ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger_backend %q", c.LedgerBackend))
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	if strings.TrimSpace(c.ArchiveDir) == "" {
		errs = append(errs, errors.New("archive_dir is required"))
	}
	if c.ProgressIntervalMS < 0 {
		errs = append(errs, errors.New("progress_interval_ms must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMS) * time.Millisecond
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
