package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for the conversion service.
// Values come from an optional YAML file, overridden by environment
// variables. Storage locations are injected into the orchestrator at
// construction rather than read from ambient globals.
type Config struct {
	Port        string `yaml:"port"`
	UploadDir   string `yaml:"upload_dir"`
	OutputDir   string `yaml:"output_dir"`
	MetricsPort string `yaml:"metrics_port"`

	// Backend executables
	AudiverisPath string `yaml:"audiveris_path"`
	HomrPath      string `yaml:"homr_path"`
	PdftoppmPath  string `yaml:"pdftoppm_path"`

	// Certificate bundle forwarded to the homr subprocess for its own
	// outbound network calls
	CABundle string `yaml:"ca_bundle"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
	RasterDPI      int `yaml:"raster_dpi"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:           "8000",
		UploadDir:      "uploads",
		OutputDir:      "outputs",
		MetricsPort:    "9090",
		AudiverisPath:  "/opt/audiveris/bin/Audiveris",
		HomrPath:       "homr",
		PdftoppmPath:   "pdftoppm",
		TimeoutSeconds: 300,
		RasterDPI:      300,
		LogLevel:       "INFO",
	}
}

// Load reads configuration from an optional YAML file, then applies
// environment variable overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("AUDIVERIS_PATH"); v != "" {
		c.AudiverisPath = v
	}
	if v := os.Getenv("HOMR_PATH"); v != "" {
		c.HomrPath = v
	}
	if v := os.Getenv("CUBBY_UPLOAD_DIR"); v != "" {
		c.UploadDir = v
	}
	if v := os.Getenv("CUBBY_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("SSL_CERT_FILE"); v != "" {
		c.CABundle = v
	}
	if v := os.Getenv("CUBBY_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("CUBBY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the configuration for usable values
func (c *Config) Validate() error {
	if c.UploadDir == "" {
		return fmt.Errorf("upload_dir must not be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.RasterDPI <= 0 {
		return fmt.Errorf("raster_dpi must be positive, got %d", c.RasterDPI)
	}
	return nil
}
