package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
	"github.com/aleksaelezovic/jsonld/pkg/loader"
	"github.com/aleksaelezovic/jsonld/pkg/server"
)

// Config is the complete configuration of the jsonld command
type Config struct {
	Processing ProcessingConfig `yaml:"processing"`
	Loader     LoaderConfig     `yaml:"loader"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ProcessingConfig holds the default algorithm options
type ProcessingConfig struct {
	// Base overrides the document URL for relative IRI resolution
	Base           string `yaml:"base"`
	Ordered        bool   `yaml:"ordered"`
	CompactArrays  bool   `yaml:"compactArrays"`
	ProcessingMode string `yaml:"processingMode"`
	// Embed is the default framing @embed (@always, @once, @never, @link)
	Embed string `yaml:"embed"`
	// RdfDirection is empty, i18n-datatype or compound-literal
	RdfDirection string `yaml:"rdfDirection"`
}

// LoaderConfig configures remote document loading
type LoaderConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxRedirects int           `yaml:"maxRedirects"`
	UserAgent    string        `yaml:"userAgent"`
	// CacheDir holds the persistent document cache; empty keeps it in memory
	CacheDir string `yaml:"cacheDir"`
	// CacheTTL applies to responses without explicit freshness
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// ServerConfig configures the HTTP endpoint
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

type LoggingConfig struct {
	// Level is a zap level name: debug, info, warn or error
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with the built-in defaults
func DefaultConfig() *Config {
	srv := server.DefaultConfig()
	return &Config{
		Processing: ProcessingConfig{
			CompactArrays:  true,
			ProcessingMode: jsonld.ProcessingMode11,
			Embed:          string(jsonld.EmbedOnce),
		},
		Loader: LoaderConfig{
			Timeout:      30 * time.Second,
			MaxRedirects: loader.DefaultMaxRedirects,
			UserAgent:    "jsonld-go",
			CacheTTL:     loader.DefaultTTL,
		},
		Server: ServerConfig{
			Addr:         srv.Addr,
			ReadTimeout:  srv.ReadTimeout,
			WriteTimeout: srv.WriteTimeout,
			IdleTimeout:  srv.IdleTimeout,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.Processing.ProcessingMode {
	case jsonld.ProcessingMode10, jsonld.ProcessingMode11:
	default:
		return fmt.Errorf("processing.processingMode must be %q or %q", jsonld.ProcessingMode10, jsonld.ProcessingMode11)
	}
	switch jsonld.Embed(c.Processing.Embed) {
	case jsonld.EmbedAlways, jsonld.EmbedOnce, jsonld.EmbedNever, jsonld.EmbedLink:
	default:
		return fmt.Errorf("processing.embed: unknown value %q", c.Processing.Embed)
	}
	switch c.Processing.RdfDirection {
	case "", jsonld.RdfDirectionI18NDatatype, jsonld.RdfDirectionCompoundLiteral:
	default:
		return fmt.Errorf("processing.rdfDirection: unknown value %q", c.Processing.RdfDirection)
	}
	if c.Processing.Base != "" && !jsonld.IsAbsoluteIRI(c.Processing.Base) {
		return fmt.Errorf("processing.base must be an absolute IRI")
	}
	if c.Loader.Timeout < 0 {
		return fmt.Errorf("loader.timeout must not be negative")
	}
	if c.Loader.MaxRedirects < 0 {
		return fmt.Errorf("loader.maxRedirects must not be negative")
	}
	if c.Loader.CacheTTL < 0 {
		return fmt.Errorf("loader.cacheTTL must not be negative")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// LoadFromFile overlays a YAML file on the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile writes the configuration as YAML
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Options builds the processing options. The caller sets the document
// loader and logger.
func (c *Config) Options() *jsonld.Options {
	opts := jsonld.NewOptions()
	opts.Base = c.Processing.Base
	opts.Ordered = c.Processing.Ordered
	opts.CompactArrays = c.Processing.CompactArrays
	opts.ProcessingMode = c.Processing.ProcessingMode
	opts.Embed = jsonld.Embed(c.Processing.Embed)
	opts.RdfDirection = c.Processing.RdfDirection
	return opts
}

// LoaderOptions returns the HTTP loader settings. The cache is chosen by the
// caller from CacheDir.
func (c *Config) LoaderOptions() []loader.Option {
	return []loader.Option{
		loader.WithMaxRedirects(c.Loader.MaxRedirects),
		loader.WithDefaultTTL(c.Loader.CacheTTL),
		loader.WithUserAgent(c.Loader.UserAgent),
		loader.WithTimeout(c.Loader.Timeout),
	}
}

// ServerConfig returns the HTTP listener settings
func (c *Config) ServerConfig() server.Config {
	return server.Config{
		Addr:         c.Server.Addr,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
		IdleTimeout:  c.Server.IdleTimeout,
	}
}

// Level returns the configured log level, info if it does not parse
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
