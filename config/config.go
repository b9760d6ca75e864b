package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox"`
	Logging   LoggingConfig       `mapstructure:"logging"`
	Results   ResultsConfig       `mapstructure:"results"`
	Languages map[string]Language `mapstructure:"languages"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport      string   `mapstructure:"transport"`
	HTTPPort       int      `mapstructure:"http_port"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	BodyLimitBytes int      `mapstructure:"body_limit_bytes"`
	MaxConcurrent  int      `mapstructure:"max_concurrent"`
	QueueTimeoutMS int      `mapstructure:"queue_timeout_ms"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	ScratchRoot      string `mapstructure:"scratch_root"`
	TimeoutSec       int    `mapstructure:"timeout_sec"`
	MaxTimeoutSec    int    `mapstructure:"max_timeout_sec"`
	OutputLimitBytes int    `mapstructure:"output_limit_bytes"`
	KillGraceMS      int    `mapstructure:"kill_grace_ms"`
	SweepIntervalSec int    `mapstructure:"sweep_interval_sec"`
	SweepMaxAgeSec   int    `mapstructure:"sweep_max_age_sec"`
	LanguagesFile    string `mapstructure:"languages_file"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// ResultsConfig holds configuration of the execution result history
type ResultsConfig struct {
	Backend       string `mapstructure:"backend"`
	TTLSec        int    `mapstructure:"ttl_sec"`
	MaxEntries    int    `mapstructure:"max_entries"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// Language is a build/run recipe supplied through configuration. Entries
// replace the built-in recipe with the same identifier.
type Language struct {
	Aliases     []string          `mapstructure:"aliases" yaml:"aliases"`
	Extension   string            `mapstructure:"extension" yaml:"extension"`
	SourceFile  string            `mapstructure:"source_file" yaml:"source_file"`
	Steps       []Step            `mapstructure:"steps" yaml:"steps"`
	Artifacts   []string          `mapstructure:"artifacts" yaml:"artifacts"`
	Environment []EnvVar          `mapstructure:"environment" yaml:"environment"`
}

// EnvVar is one extra environment variable of a Language recipe. It is a
// list entry rather than a map key so the variable name keeps its case.
type EnvVar struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Value string `mapstructure:"value" yaml:"value"`
}

// Env returns the recipe environment keyed by variable name.
func (l Language) Env() map[string]string {
	if len(l.Environment) == 0 {
		return nil
	}
	env := make(map[string]string, len(l.Environment))
	for _, e := range l.Environment {
		env[e.Name] = e.Value
	}
	return env
}

// Step is one program invocation of a Language recipe
type Step struct {
	Name              string   `mapstructure:"name" yaml:"name"`
	Program           string   `mapstructure:"program" yaml:"program"`
	Args              []string `mapstructure:"args" yaml:"args"`
	ContinueOnFailure bool     `mapstructure:"continue_on_failure" yaml:"continue_on_failure"`
	Capture           bool     `mapstructure:"capture" yaml:"capture"`
}

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. CODERUNNER_SANDBOX_TIMEOUT_SEC.
const EnvPrefix = "CODERUNNER"

// New loads and validates the application configuration
func New() (*Config, error) {
	return Load("")
}

// Load reads the configuration from path, or from config.yaml in the
// working directory or ./config when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Sandbox.LanguagesFile != "" {
		fileLangs, err := LoadLanguagesFile(config.Sandbox.LanguagesFile)
		if err != nil {
			return nil, err
		}
		if config.Languages == nil {
			config.Languages = make(map[string]Language, len(fileLangs))
		}
		for id, lang := range fileLangs {
			config.Languages[id] = lang
		}
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "http")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.body_limit_bytes", 1024*1024)
	v.SetDefault("server.max_concurrent", runtime.NumCPU())
	v.SetDefault("server.queue_timeout_ms", 2000)

	v.SetDefault("sandbox.scratch_root", "/tmp/coderunner")
	v.SetDefault("sandbox.timeout_sec", 5)
	v.SetDefault("sandbox.max_timeout_sec", 30)
	v.SetDefault("sandbox.output_limit_bytes", 1024*1024)
	v.SetDefault("sandbox.kill_grace_ms", 500)
	v.SetDefault("sandbox.sweep_interval_sec", 60)
	v.SetDefault("sandbox.sweep_max_age_sec", 600)
	v.SetDefault("sandbox.languages_file", "")

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("results.backend", "memory")
	v.SetDefault("results.ttl_sec", 600)
	v.SetDefault("results.max_entries", 1024)
	v.SetDefault("results.redis_addr", "localhost:6379")
	v.SetDefault("results.redis_password", "")
	v.SetDefault("results.redis_db", 0)
}

// validate ensures the configuration is valid
//
//nolint:gocyclo // flat list of independent checks
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport == "http" && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("server.max_concurrent must be positive, got: %d", c.Server.MaxConcurrent)
	}

	if c.Server.QueueTimeoutMS < 0 {
		return fmt.Errorf("server.queue_timeout_ms must not be negative, got: %d", c.Server.QueueTimeoutMS)
	}

	if c.Sandbox.ScratchRoot == "" {
		return errors.New("sandbox.scratch_root must not be empty")
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MaxTimeoutSec < c.Sandbox.TimeoutSec {
		return fmt.Errorf("sandbox.max_timeout_sec must be at least sandbox.timeout_sec (%d), got: %d",
			c.Sandbox.TimeoutSec, c.Sandbox.MaxTimeoutSec)
	}

	if c.Sandbox.OutputLimitBytes <= 0 {
		return fmt.Errorf("sandbox.output_limit_bytes must be positive, got: %d", c.Sandbox.OutputLimitBytes)
	}

	if c.Sandbox.KillGraceMS <= 0 {
		return fmt.Errorf("sandbox.kill_grace_ms must be positive, got: %d", c.Sandbox.KillGraceMS)
	}

	if c.Sandbox.SweepIntervalSec < 0 || c.Sandbox.SweepMaxAgeSec < 0 {
		return errors.New("sandbox.sweep_interval_sec and sandbox.sweep_max_age_sec must not be negative")
	}

	// The sweeper must never see a workspace that can still be running.
	if c.Sandbox.SweepMaxAgeSec > 0 && c.Sandbox.SweepMaxAgeSec <= c.Sandbox.MaxTimeoutSec {
		return fmt.Errorf("sandbox.sweep_max_age_sec must exceed sandbox.max_timeout_sec (%d), got: %d",
			c.Sandbox.MaxTimeoutSec, c.Sandbox.SweepMaxAgeSec)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
		"dpanic": true, "panic": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Results.Backend {
	case "none", "memory":
	case "redis":
		if c.Results.RedisAddr == "" {
			return errors.New("results.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported results.backend: %s", c.Results.Backend)
	}

	if c.Results.Backend != "none" && c.Results.TTLSec <= 0 {
		return fmt.Errorf("results.ttl_sec must be positive, got: %d", c.Results.TTLSec)
	}

	for id, lang := range c.Languages {
		if err := lang.validate(); err != nil {
			return fmt.Errorf("languages.%s: %w", id, err)
		}
	}

	return nil
}

func (l Language) validate() error {
	if l.Extension == "" && l.SourceFile == "" {
		return errors.New("extension or source_file is required")
	}
	if len(l.Steps) == 0 {
		return errors.New("at least one step is required")
	}
	for i, step := range l.Steps {
		if step.Program == "" {
			return fmt.Errorf("steps[%d].program is required", i)
		}
	}
	for i, e := range l.Environment {
		if e.Name == "" || strings.ContainsAny(e.Name, "=\x00") {
			return fmt.Errorf("environment[%d].name is invalid: %q", i, e.Name)
		}
	}
	return nil
}

// GetTimeout returns the default execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// GetMaxTimeout returns the upper bound for per-request timeouts
func (c *Config) GetMaxTimeout() time.Duration {
	return time.Duration(c.Sandbox.MaxTimeoutSec) * time.Second
}

// GetKillGrace returns how long to wait for output pipes after a kill
func (c *Config) GetKillGrace() time.Duration {
	return time.Duration(c.Sandbox.KillGraceMS) * time.Millisecond
}

// GetSweepInterval returns how often the scratch root is swept
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.Sandbox.SweepIntervalSec) * time.Second
}

// GetSweepMaxAge returns the age after which scratch entries are removed
func (c *Config) GetSweepMaxAge() time.Duration {
	return time.Duration(c.Sandbox.SweepMaxAgeSec) * time.Second
}

// GetQueueTimeout returns how long a request may wait for an execution slot
func (c *Config) GetQueueTimeout() time.Duration {
	return time.Duration(c.Server.QueueTimeoutMS) * time.Millisecond
}
