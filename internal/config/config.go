package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Metrics  struct {
		Dir            string `json:"dir"`
		DefaultPeriod  string `json:"default_period"`
		SessionLimit   int    `json:"session_limit"`
		StartCacheSize int    `json:"start_cache_size"`
	} `json:"metrics"`
	Telemetry struct {
		OTLPEndpoint string `json:"otlp_endpoint"`
		Insecure     bool   `json:"insecure"`
		AuthToken    string `json:"auth_token"`
		ServiceName  string `json:"service_name"`
	} `json:"telemetry"`
}

// MetricsDir returns the directory holding the event log partitions:
// metrics.dir when set, else <data_dir>/metrics.
func (c *Config) MetricsDir() string {
	if c.Metrics.Dir != "" {
		return c.Metrics.Dir
	}
	return filepath.Join(c.DataDir, "metrics")
}

// DefaultPath returns ~/.agentmetrics/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".agentmetrics", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".agentmetrics"),
		LogLevel: "info",
	}
	cfg.Metrics.DefaultPeriod = "week"
	cfg.Metrics.SessionLimit = 10
	cfg.Metrics.StartCacheSize = 1024
	cfg.Telemetry.ServiceName = "agentmetrics"
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if dir := os.Getenv("AGENTMETRICS_DIR"); dir != "" {
		cfg.Metrics.Dir = dir
	}
	if level := os.Getenv("AGENTMETRICS_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.OTLPEndpoint = endpoint
	}
	if insecure := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); insecure != "" {
		if v, err := strconv.ParseBool(insecure); err == nil {
			cfg.Telemetry.Insecure = v
		}
	}
	if token := os.Getenv("AGENTMETRICS_OTLP_TOKEN"); token != "" {
		cfg.Telemetry.AuthToken = token
	}

	return cfg, nil
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into the nested map its JSON form decodes to.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns cfg as a flat map of dot-separated keys, with secrets
// masked when mask is true.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

// GetValue returns the value stored under a dot-separated key. The config
// file is created with defaults if it does not exist yet.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under a dot-separated key after ParseValue has
// typed and checked it. The config file must already exist.
func SetValue(path, key, value string) error {
	m, err := readRaw(path)
	if err != nil {
		return err
	}

	parsed, err := ParseValue(key, value)
	if err != nil {
		return err
	}

	flat := Flatten(m)
	flat[key] = parsed
	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}
