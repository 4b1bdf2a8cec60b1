// Package config loads barcode-mcp settings from a YAML or JSON file and
// environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BARCODE_MCP_"

// Duration is a time.Duration that reads "30s" style strings from YAML and
// JSON.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalJSON encodes the duration as a string such as "30s".
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a nanosecond count.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if nerr := json.Unmarshal(b, &n); nerr != nil {
			return fmt.Errorf("duration must be a string like \"30s\": %w", err)
		}
		*d = Duration(n)
		return nil
	}
	return d.parse(s)
}

// MarshalYAML encodes the duration as a string such as "30s".
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts a scalar duration string and reports the line of a
// bad value.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if err := d.parse(node.Value); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the complete runtime configuration.
type Config struct {
	LogLevel string `yaml:"logLevel" json:"logLevel"`

	Detection struct {
		Strategies []string  `yaml:"strategies" json:"strategies"`
		Angles     []float64 `yaml:"angles" json:"angles"`
	} `yaml:"detection" json:"detection"`

	Morphology struct {
		KernelSize int `yaml:"kernelSize" json:"kernelSize"`
	} `yaml:"morphology" json:"morphology"`

	Image struct {
		MaxWidth         int      `yaml:"maxWidth" json:"maxWidth"`
		MaxHeight        int      `yaml:"maxHeight" json:"maxHeight"`
		SupportedFormats []string `yaml:"supportedFormats" json:"supportedFormats"`
	} `yaml:"image" json:"image"`

	OCR struct {
		Enabled        bool     `yaml:"enabled" json:"enabled"`
		Languages      []string `yaml:"languages" json:"languages"`
		TessdataPrefix string   `yaml:"tessdataPrefix" json:"tessdataPrefix"`
	} `yaml:"ocr" json:"ocr"`

	HTTP struct {
		Host               string   `yaml:"host" json:"host"`
		Port               int      `yaml:"port" json:"port"`
		RequestTimeout     Duration `yaml:"requestTimeout" json:"requestTimeout"`
		MaxRequestBodySize int64    `yaml:"maxRequestBodySize" json:"maxRequestBodySize"`
	} `yaml:"http" json:"http"`

	Fetch struct {
		Timeout Duration `yaml:"timeout" json:"timeout"`
	} `yaml:"fetch" json:"fetch"`

	Azure struct {
		AccountName string `yaml:"accountName" json:"accountName"`
		AccountKey  string `yaml:"accountKey" json:"accountKey"`
	} `yaml:"azure" json:"azure"`

	Batch struct {
		Workers int `yaml:"workers" json:"workers"`
	} `yaml:"batch" json:"batch"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{LogLevel: "info"}
	cfg.Detection.Strategies = []string{pipeline.IDDirect, pipeline.IDRegion, pipeline.IDFull}
	cfg.Detection.Angles = []float64{0, -15, 15, -30, 30, -45, 45}
	cfg.Morphology.KernelSize = 5
	cfg.Image.MaxWidth = 2000
	cfg.Image.MaxHeight = 2000
	cfg.Image.SupportedFormats = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tiff", ".tif", ".webp"}
	cfg.OCR.Enabled = true
	cfg.OCR.Languages = []string{"eng"}
	cfg.HTTP.Host = "0.0.0.0"
	cfg.HTTP.Port = 8080
	cfg.HTTP.RequestTimeout = Duration(60 * time.Second)
	cfg.HTTP.MaxRequestBodySize = 10 * 1024 * 1024 // 10MB
	cfg.Fetch.Timeout = Duration(15 * time.Second)
	cfg.Batch.Workers = 4
	return cfg
}

// Load builds the configuration: defaults, then the file at path (if
// non-empty), then environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays YAML or JSON from path onto cfg. Keys absent from the
// file keep their current values.
func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, c); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, c); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, c); err != nil {
			if jerr := json.Unmarshal(b, c); jerr != nil {
				return fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return nil
}

// ApplyEnv overrides fields from BARCODE_MCP_* variables looked up with
// getenv. Lists are comma separated.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	get := func(key string) string {
		return strings.TrimSpace(getenv(EnvPrefix + key))
	}

	if v := get("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := get("STRATEGIES"); v != "" {
		c.Detection.Strategies = splitList(v)
	}
	if v := get("ANGLES"); v != "" {
		angles, err := parseAngles(v)
		if err != nil {
			return fmt.Errorf("%sANGLES: %w", EnvPrefix, err)
		}
		c.Detection.Angles = angles
	}
	if v := get("KERNEL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sKERNEL_SIZE: %w", EnvPrefix, err)
		}
		c.Morphology.KernelSize = n
	}
	if v := get("MAX_WIDTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_WIDTH: %w", EnvPrefix, err)
		}
		c.Image.MaxWidth = n
	}
	if v := get("MAX_HEIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_HEIGHT: %w", EnvPrefix, err)
		}
		c.Image.MaxHeight = n
	}
	if v := get("OCR_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sOCR_ENABLED: %w", EnvPrefix, err)
		}
		c.OCR.Enabled = b
	}
	if v := get("OCR_LANGUAGES"); v != "" {
		c.OCR.Languages = splitList(v)
	}
	if v := get("TESSDATA_PREFIX"); v != "" {
		c.OCR.TessdataPrefix = v
	}
	if v := get("HOST"); v != "" {
		c.HTTP.Host = v
	}
	if v := get("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", EnvPrefix, err)
		}
		c.HTTP.Port = n
	}
	if v := get("REQUEST_TIMEOUT"); v != "" {
		if err := c.HTTP.RequestTimeout.parse(v); err != nil {
			return fmt.Errorf("%sREQUEST_TIMEOUT: %w", EnvPrefix, err)
		}
	}
	if v := get("MAX_REQUEST_BODY_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_REQUEST_BODY_SIZE: %w", EnvPrefix, err)
		}
		c.HTTP.MaxRequestBodySize = n
	}
	if v := get("FETCH_TIMEOUT"); v != "" {
		if err := c.Fetch.Timeout.parse(v); err != nil {
			return fmt.Errorf("%sFETCH_TIMEOUT: %w", EnvPrefix, err)
		}
	}
	if v := get("AZURE_ACCOUNT_NAME"); v != "" {
		c.Azure.AccountName = v
	}
	if v := get("AZURE_ACCOUNT_KEY"); v != "" {
		c.Azure.AccountKey = v
	}
	if v := get("BATCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBATCH_WORKERS: %w", EnvPrefix, err)
		}
		c.Batch.Workers = n
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true, "disabled": true,
}

// Validate checks the configuration for values the rest of the system cannot
// work with.
func (c *Config) Validate() error {
	var errs []error

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("config: unknown logLevel %q", c.LogLevel))
	}

	if len(c.Detection.Strategies) == 0 {
		errs = append(errs, errors.New("config: detection.strategies must not be empty"))
	} else if _, err := pipeline.StrategiesByID(c.Detection.Strategies, nil, nil, nil); err != nil {
		errs = append(errs, fmt.Errorf("config: detection.strategies: %w", err))
	}

	if len(c.Detection.Angles) == 0 || c.Detection.Angles[0] != 0 {
		errs = append(errs, errors.New("config: detection.angles must start with 0"))
	}
	for _, a := range c.Detection.Angles {
		if a < -180 || a > 180 {
			errs = append(errs, fmt.Errorf("config: detection angle %v outside [-180, 180]", a))
		}
	}

	if k := c.Morphology.KernelSize; k < 3 || k%2 == 0 {
		errs = append(errs, fmt.Errorf("config: morphology.kernelSize must be odd and >= 3 (got %d)", k))
	}
	if c.Image.MaxWidth < 0 || c.Image.MaxHeight < 0 {
		errs = append(errs, errors.New("config: image.maxWidth and image.maxHeight must not be negative"))
	}
	for _, ext := range c.Image.SupportedFormats {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("config: image.supportedFormats entry %q must start with a dot", ext))
		}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: invalid http.port %d", c.HTTP.Port))
	}
	if c.HTTP.RequestTimeout <= 0 || c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("config: timeouts must be > 0 (got request=%s, fetch=%s)",
			c.HTTP.RequestTimeout.D(), c.Fetch.Timeout.D()))
	}
	if c.HTTP.MaxRequestBodySize <= 0 {
		errs = append(errs, fmt.Errorf("config: http.maxRequestBodySize must be > 0 (got %d)", c.HTTP.MaxRequestBodySize))
	}
	if (c.Azure.AccountName == "") != (c.Azure.AccountKey == "") {
		errs = append(errs, errors.New("config: azure.accountName and azure.accountKey must be set together"))
	}
	if c.Batch.Workers < 1 {
		errs = append(errs, fmt.Errorf("config: batch.workers must be >= 1 (got %d)", c.Batch.Workers))
	}

	return errors.Join(errs...)
}

// ServerAddress returns host:port for the HTTP listener.
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(strings.TrimSpace(c.HTTP.Host), strconv.Itoa(c.HTTP.Port))
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAngles(s string) ([]float64, error) {
	parts := splitList(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		a, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid angle %q", p)
		}
		out = append(out, a)
	}
	return out, nil
}
