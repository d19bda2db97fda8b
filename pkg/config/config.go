// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < explicit file < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	rferrors "github.com/logflow/reportflow/pkg/errors"
)

// Config holds all reportflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Server     ServerConfig     `yaml:"server"`
	Source     SourceConfig     `yaml:"source"`
	Warehouse  WarehouseConfig  `yaml:"warehouse"`
	Tagging    TaggingConfig    `yaml:"tagging"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig for the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SourceConfig selects where report files are listed and downloaded from.
type SourceConfig struct {
	Kind            string        `yaml:"kind"` // local | s3 | gcs
	Root            string        `yaml:"root"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	// Latin1Fallback decodes payloads that are not UTF-8 as Latin-1
	// instead of rejecting them.
	Latin1Fallback bool `yaml:"latin1_fallback"`
}

// WarehouseConfig for the analytics warehouse.
type WarehouseConfig struct {
	Kind        string `yaml:"kind"` // duckdb
	Dir         string `yaml:"dir"`  // empty = in-memory
	MemoryLimit string `yaml:"memory_limit"`
	Threads     int    `yaml:"threads"` // 0 = auto
}

// TaggingConfig controls the columns added to every row.
type TaggingConfig struct {
	IncludeCategory *bool `yaml:"include_category"`
}

// Category reports whether the Category column is added.
func (t TaggingConfig) Category() bool {
	return t.IncludeCategory == nil || *t.IncludeCategory
}

// ArchiveConfig for the Parquet archive.
type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Kind        string `yaml:"kind"` // local | s3 | gcs
	Root        string `yaml:"root"`
	Bucket      string `yaml:"bucket"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression"` // snappy | zstd | gzip | none
}

// CheckpointConfig for the run journal.
type CheckpointConfig struct {
	Backend string      `yaml:"backend"` // none | file | redis
	Dir     string      `yaml:"dir"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig for the Redis journal backend.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Database int           `yaml:"database"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// TelemetryConfig for OTLP tracing.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	ServiceName   string  `yaml:"service_name"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
}

// LogConfig for structured logging.
type LogConfig struct {
	Level     string `yaml:"level"`  // debug | info | warn | error
	Format    string `yaml:"format"` // text | json
	Output    string `yaml:"output"` // stdout | stderr | file
	FilePath  string `yaml:"file_path"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	baseDir := filepath.Join(homeDir, ".reportflow")

	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		Source: SourceConfig{
			Kind:            "local",
			Root:            ".",
			DownloadTimeout: 5 * time.Minute,
		},
		Warehouse: WarehouseConfig{
			Kind: "duckdb",
			Dir:  filepath.Join(baseDir, "warehouse"),
		},
		Archive: ArchiveConfig{
			Enabled:     false,
			Kind:        "local",
			Root:        filepath.Join(baseDir, "archive"),
			Compression: "snappy",
		},
		Checkpoint: CheckpointConfig{
			Backend: "none",
			Dir:     filepath.Join(baseDir, "runs"),
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "reportflow:runs:",
				TTL:     7 * 24 * time.Hour,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			Endpoint:      "localhost:4317",
			ServiceName:   "reportflow",
			SamplingRatio: 1.0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

var (
	sourceKinds     = []string{"local", "s3", "gcs"}
	warehouseKinds  = []string{"duckdb", "memory"}
	checkpointKinds = []string{"none", "file", "redis"}
	compressions    = []string{"snappy", "zstd", "gzip", "none"}
	logLevels       = []string{"debug", "info", "warn", "warning", "error"}
	logFormats      = []string{"text", "json"}
	logOutputs      = []string{"stdout", "stderr", "file"}
)

type enumCheck struct {
	field string
	value string
	valid []string
}

// Validate rejects unknown kinds and out-of-range values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return rferrors.InvalidConfig("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return rferrors.InvalidConfig("server.max_body_bytes must be positive")
	}

	checks := []enumCheck{
		{"source.kind", c.Source.Kind, sourceKinds},
		{"warehouse.kind", c.Warehouse.Kind, warehouseKinds},
		{"checkpoint.backend", c.Checkpoint.Backend, checkpointKinds},
		{"log.level", strings.ToLower(c.Log.Level), logLevels},
		{"log.format", c.Log.Format, logFormats},
		{"log.output", c.Log.Output, logOutputs},
	}
	if c.Archive.Enabled {
		checks = append(checks,
			enumCheck{"archive.kind", c.Archive.Kind, sourceKinds},
			enumCheck{"archive.compression", c.Archive.Compression, compressions},
		)
	}
	for _, chk := range checks {
		if !contains(chk.valid, chk.value) {
			return rferrors.InvalidConfig("%s: unsupported value %q (want one of %s)",
				chk.field, chk.value, strings.Join(chk.valid, ", "))
		}
	}

	if c.Source.Kind != "local" && c.Source.Bucket == "" {
		return rferrors.InvalidConfig("source.bucket is required for %s", c.Source.Kind)
	}
	if c.Archive.Enabled && c.Archive.Kind != "local" && c.Archive.Bucket == "" {
		return rferrors.InvalidConfig("archive.bucket is required for %s", c.Archive.Kind)
	}
	if c.Log.Output == "file" && c.Log.FilePath == "" {
		return rferrors.InvalidConfig("log.file_path is required when log.output is file")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return rferrors.InvalidConfig("telemetry.sampling_ratio must be within [0, 1]")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
	file   string   // explicit --config file
}

// NewManager creates a new configuration manager. A non-empty file is
// loaded after the standard locations and must exist.
func NewManager(file string) *Manager {
	return &Manager{
		config: Default(),
		file:   file,
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()
	m.paths = nil

	// Load from paths in order (later overrides earlier)
	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but report errors for existing files
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	if m.file != "" {
		if err := m.loadFile(m.file); err != nil {
			return err
		}
		m.paths = append(m.paths, m.file)
	}

	// Override with environment variables
	return m.loadEnv()
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/reportflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".reportflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".reportflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return rferrors.Wrap(err, rferrors.CodeInvalidConfig, "failed to parse config file").
			WithContext("path", path)
	}

	// Merge non-zero values
	merge(m.config, &partial)
	return nil
}

// merge merges non-zero values from src into dst.
func merge(dst, src *Config) {
	// Server
	setString(&dst.Server.Host, src.Server.Host)
	setInt(&dst.Server.Port, src.Server.Port)
	setDuration(&dst.Server.ReadTimeout, src.Server.ReadTimeout)
	if src.Server.MaxBodyBytes != 0 {
		dst.Server.MaxBodyBytes = src.Server.MaxBodyBytes
	}

	// Source
	setString(&dst.Source.Kind, src.Source.Kind)
	setString(&dst.Source.Root, src.Source.Root)
	setString(&dst.Source.Bucket, src.Source.Bucket)
	setString(&dst.Source.Region, src.Source.Region)
	setString(&dst.Source.Endpoint, src.Source.Endpoint)
	if src.Source.UsePathStyle {
		dst.Source.UsePathStyle = true
	}
	setDuration(&dst.Source.DownloadTimeout, src.Source.DownloadTimeout)
	if src.Source.Latin1Fallback {
		dst.Source.Latin1Fallback = true
	}

	// Warehouse
	setString(&dst.Warehouse.Kind, src.Warehouse.Kind)
	setString(&dst.Warehouse.Dir, src.Warehouse.Dir)
	setString(&dst.Warehouse.MemoryLimit, src.Warehouse.MemoryLimit)
	setInt(&dst.Warehouse.Threads, src.Warehouse.Threads)

	// Tagging
	if src.Tagging.IncludeCategory != nil {
		v := *src.Tagging.IncludeCategory
		dst.Tagging.IncludeCategory = &v
	}

	// Archive
	if src.Archive.Enabled {
		dst.Archive.Enabled = true
	}
	setString(&dst.Archive.Kind, src.Archive.Kind)
	setString(&dst.Archive.Root, src.Archive.Root)
	setString(&dst.Archive.Bucket, src.Archive.Bucket)
	setString(&dst.Archive.Region, src.Archive.Region)
	setString(&dst.Archive.Endpoint, src.Archive.Endpoint)
	setString(&dst.Archive.Prefix, src.Archive.Prefix)
	setString(&dst.Archive.Compression, src.Archive.Compression)

	// Checkpoint
	setString(&dst.Checkpoint.Backend, src.Checkpoint.Backend)
	setString(&dst.Checkpoint.Dir, src.Checkpoint.Dir)
	setString(&dst.Checkpoint.Redis.Address, src.Checkpoint.Redis.Address)
	setString(&dst.Checkpoint.Redis.Password, src.Checkpoint.Redis.Password)
	setInt(&dst.Checkpoint.Redis.Database, src.Checkpoint.Redis.Database)
	setString(&dst.Checkpoint.Redis.Prefix, src.Checkpoint.Redis.Prefix)
	setDuration(&dst.Checkpoint.Redis.TTL, src.Checkpoint.Redis.TTL)

	// Telemetry
	if src.Telemetry.Enabled {
		dst.Telemetry.Enabled = true
	}
	setString(&dst.Telemetry.Endpoint, src.Telemetry.Endpoint)
	setString(&dst.Telemetry.ServiceName, src.Telemetry.ServiceName)
	if src.Telemetry.SamplingRatio != 0 {
		dst.Telemetry.SamplingRatio = src.Telemetry.SamplingRatio
	}

	// Log
	setString(&dst.Log.Level, src.Log.Level)
	setString(&dst.Log.Format, src.Log.Format)
	setString(&dst.Log.Output, src.Log.Output)
	setString(&dst.Log.FilePath, src.Log.FilePath)
	if src.Log.AddSource {
		dst.Log.AddSource = true
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// loadEnv loads configuration from REPORTFLOW_* environment variables.
func (m *Manager) loadEnv() error {
	c := m.config

	strs := map[string]*string{
		"REPORTFLOW_HOST":            &c.Server.Host,
		"REPORTFLOW_SOURCE_KIND":     &c.Source.Kind,
		"REPORTFLOW_SOURCE_ROOT":     &c.Source.Root,
		"REPORTFLOW_SOURCE_BUCKET":   &c.Source.Bucket,
		"REPORTFLOW_SOURCE_REGION":   &c.Source.Region,
		"REPORTFLOW_SOURCE_ENDPOINT": &c.Source.Endpoint,
		"REPORTFLOW_WAREHOUSE_DIR":   &c.Warehouse.Dir,
		"REPORTFLOW_ARCHIVE_BUCKET":  &c.Archive.Bucket,
		"REPORTFLOW_ARCHIVE_PREFIX":  &c.Archive.Prefix,
		"REPORTFLOW_CHECKPOINT":      &c.Checkpoint.Backend,
		"REPORTFLOW_REDIS_ADDR":      &c.Checkpoint.Redis.Address,
		"REPORTFLOW_REDIS_PASSWORD":  &c.Checkpoint.Redis.Password,
		"REPORTFLOW_OTLP_ENDPOINT":   &c.Telemetry.Endpoint,
		"REPORTFLOW_LOG_LEVEL":       &c.Log.Level,
		"REPORTFLOW_LOG_FORMAT":      &c.Log.Format,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("REPORTFLOW_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return rferrors.InvalidConfig("REPORTFLOW_PORT: %v", err)
		}
		c.Server.Port = port
	}

	bools := map[string]*bool{
		"REPORTFLOW_ARCHIVE_ENABLED":   &c.Archive.Enabled,
		"REPORTFLOW_TELEMETRY_ENABLED": &c.Telemetry.Enabled,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return rferrors.InvalidConfig("%s: %v", key, err)
			}
			*dst = b
		}
	}

	if v := os.Getenv("REPORTFLOW_INCLUDE_CATEGORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return rferrors.InvalidConfig("REPORTFLOW_INCLUDE_CATEGORY: %v", err)
		}
		c.Tagging.IncludeCategory = &b
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Marshal returns the current configuration as YAML.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return yaml.Marshal(m.config)
}
