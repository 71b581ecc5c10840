package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by SetDefaults.
const (
	DefaultPort        = 8000
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultModel       = "llama3.1"
	DefaultServiceName = "chatrelay + Ollama"
)

// ServerConfig holds configuration for the relay server. It is built once at
// startup and treated as read-only afterwards.
type ServerConfig struct {
	Port               int           `yaml:"port"`
	MetricsAddr        string        `yaml:"metrics_port"` // empty serves metrics on Port
	OllamaURL          string        `yaml:"ollama_url"`
	DefaultModel       string        `yaml:"default_model"`
	ServiceName        string        `yaml:"service_name"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	DrainTimeout       time.Duration `yaml:"drain_timeout"`
	AllowedOrigins     []string      `yaml:"allowed_origins"`
	SkipMalformedLines bool          `yaml:"skip_malformed_lines"`
	MetricModels       []string      `yaml:"metric_models"` // model label values kept as-is; others report "other"
	ConfigFile         string        `yaml:"-"`
	LogLevel           string        `yaml:"log_level"`
	RedisAddr          string        `yaml:"redis_addr"`
}

// SetDefaults initializes unset fields of c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.OllamaURL == "" {
		c.OllamaURL = DefaultOllamaURL
	}
	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModel
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 30 * time.Second
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{"*"}
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("server.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ServerConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := GetEnv("METRICS_PORT", ""); v != "" {
		c.MetricsAddr = normalizeAddr(v)
	}
	if v := GetEnv("OLLAMA_URL", ""); v != "" {
		c.OllamaURL = v
	}
	if v := GetEnv("DEFAULT_MODEL", ""); v != "" {
		c.DefaultModel = v
	}
	if v := GetEnv("SERVICE_NAME", ""); v != "" {
		c.ServiceName = v
	}
	if v := GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := GetEnv("REQUEST_TIMEOUT", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RequestTimeout = time.Duration(f * float64(time.Second))
		}
	}
	if v := GetEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := parseSeconds(v); err == nil {
			c.DrainTimeout = d
		}
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("METRIC_MODELS", ""); v != "" {
		c.MetricModels = splitComma(v)
	}
	if v := GetEnv("SKIP_MALFORMED_LINES", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SkipMalformedLines = b
		}
	}
}

// BindFlagsFromCurrent binds command line flags on fs using the current
// config values as defaults.
func (c *ServerConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the public API")
	fs.Func("metrics-port", "Prometheus metrics listen address or port; defaults to the value of --port", func(v string) error {
		c.MetricsAddr = normalizeAddr(v)
		return nil
	})
	fs.StringVar(&c.OllamaURL, "ollama-url", c.OllamaURL, "base URL of the upstream Ollama server")
	fs.StringVar(&c.DefaultModel, "default-model", c.DefaultModel, "model used when a request does not name one")
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "service name reported by /health")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for server state")
	fs.Func("request-timeout", "upstream request timeout in seconds (0 disables)", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.RequestTimeout = time.Duration(f * float64(time.Second))
		return nil
	})
	fs.Func("drain-timeout", fmt.Sprintf("time to wait for in-flight streams on shutdown, as a duration or seconds (-1 to wait indefinitely, 0 to exit immediately; default %s)", c.DrainTimeout), func(v string) error {
		d, err := parseSeconds(v)
		if err != nil {
			return err
		}
		c.DrainTimeout = d
		return nil
	})
	fs.Func("metric-models", "comma separated model names reported as metric labels; the default model is always included", func(v string) error {
		c.MetricModels = splitComma(v)
		return nil
	})
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.BoolVar(&c.SkipMalformedLines, "skip-malformed-lines", c.SkipMalformedLines, "skip upstream lines that are not valid JSON instead of ending the stream")
}

// LoadFile populates the config from a YAML file. Fields absent from the file
// keep their current values.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if c.MetricsAddr != "" {
		c.MetricsAddr = normalizeAddr(c.MetricsAddr)
	}
	return nil
}

// SameListener reports whether metrics are served on the API port.
func (c ServerConfig) SameListener() bool {
	return c.MetricsAddr == "" || c.MetricsAddr == fmt.Sprintf(":%d", c.Port)
}

// parseSeconds accepts a Go duration ("90s", "-1s") or a bare number of seconds ("30", "-1").
func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

func normalizeAddr(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
