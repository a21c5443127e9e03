package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted in engine.routes
const (
	BackendRemote      = "remote"
	BackendInterpreter = "interpreter"
	BackendNative      = "native"
)

// EnvPrefix is the prefix for environment variable overrides (EXECBOX_REMOTE_ENDPOINT, ...)
const EnvPrefix = "EXECBOX"

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Remote      RemoteConfig      `mapstructure:"remote"`
	Interpreter InterpreterConfig `mapstructure:"interpreter"`
	Native      NativeConfig      `mapstructure:"native"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// MetricsConfig holds the prometheus listener configuration
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// EngineConfig maps each language to the backend that executes it
type EngineConfig struct {
	Routes map[string]string `mapstructure:"routes"`
}

// RemoteConfig holds the remote execution API settings
type RemoteConfig struct {
	Endpoint   string            `mapstructure:"endpoint"`
	TimeoutSec int               `mapstructure:"timeout_sec"`
	Versions   map[string]string `mapstructure:"versions"`
}

// InterpreterConfig holds the embedded interpreter settings
type InterpreterConfig struct {
	TimeoutSec     int      `mapstructure:"timeout_sec"`
	Workers        int      `mapstructure:"workers"`
	StatementLimit uint64   `mapstructure:"statement_limit"`
	CallStackLimit int      `mapstructure:"call_stack_limit"`
	MaxOutputKB    int      `mapstructure:"max_output_kb"`
	Grants         []string `mapstructure:"grants"`
}

// NativeConfig holds the compile-and-run settings
type NativeConfig struct {
	TimeoutSec        int    `mapstructure:"timeout_sec"`
	CompileTimeoutSec int    `mapstructure:"compile_timeout_sec"`
	TempDir           string `mapstructure:"temp_dir"`
	Compiler          string `mapstructure:"compiler"`
	Runtime           string `mapstructure:"runtime"`
	MaxOutputKB       int    `mapstructure:"max_output_kb"`
}

// DefaultRoutes is the language to backend table used when engine.routes is not configured
func DefaultRoutes() map[string]string {
	return map[string]string{
		"java":       BackendNative,
		"python":     BackendInterpreter,
		"javascript": BackendInterpreter,
		"c":          BackendRemote,
		"cpp":        BackendRemote,
		"go":         BackendRemote,
		"rust":       BackendRemote,
	}
}

// New loads and validates the application configuration from ./config.yaml or ./config/config.yaml
func New() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	return load(v)
}

// NewFromFile loads and validates the configuration from an explicit file path
func NewFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return load(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")

	v.SetDefault("engine.routes", DefaultRoutes())

	v.SetDefault("remote.endpoint", "https://emkc.org/api/v2/piston/execute")
	v.SetDefault("remote.timeout_sec", 30)
	v.SetDefault("remote.versions", map[string]string{})

	v.SetDefault("interpreter.timeout_sec", 15)
	v.SetDefault("interpreter.workers", 8)
	v.SetDefault("interpreter.statement_limit", 50000)
	v.SetDefault("interpreter.call_stack_limit", 1024)
	v.SetDefault("interpreter.max_output_kb", 1024)
	v.SetDefault("interpreter.grants", []string{})

	v.SetDefault("native.timeout_sec", 10)
	v.SetDefault("native.compile_timeout_sec", 30)
	v.SetDefault("native.temp_dir", "")
	v.SetDefault("native.compiler", "javac")
	v.SetDefault("native.runtime", "java")
	v.SetDefault("native.max_output_kb", 1024)

	return v
}

func load(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(config.Engine.Routes) == 0 {
		config.Engine.Routes = DefaultRoutes()
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
//
//nolint:gocyclo // flat list of independent checks
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "dpanic": true, "panic": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}

	supportedBackends := map[string]bool{
		BackendRemote:      true,
		BackendInterpreter: true,
		BackendNative:      true,
	}
	for _, lang := range sortedKeys(c.Engine.Routes) {
		if !supportedBackends[c.Engine.Routes[lang]] {
			return fmt.Errorf("unsupported backend %q in engine.routes.%s", c.Engine.Routes[lang], lang)
		}
	}

	if c.Remote.Endpoint == "" {
		return fmt.Errorf("remote.endpoint must not be empty")
	}

	if c.Remote.TimeoutSec <= 0 {
		return fmt.Errorf("remote.timeout_sec must be positive, got: %d", c.Remote.TimeoutSec)
	}

	if c.Interpreter.TimeoutSec <= 0 {
		return fmt.Errorf("interpreter.timeout_sec must be positive, got: %d", c.Interpreter.TimeoutSec)
	}

	if c.Interpreter.Workers <= 0 {
		return fmt.Errorf("interpreter.workers must be positive, got: %d", c.Interpreter.Workers)
	}

	if c.Interpreter.MaxOutputKB <= 0 {
		return fmt.Errorf("interpreter.max_output_kb must be positive, got: %d", c.Interpreter.MaxOutputKB)
	}

	validGrants := map[string]bool{"math": true, "json": true, "time": true}
	for _, grant := range c.Interpreter.Grants {
		if !validGrants[grant] {
			return fmt.Errorf("unsupported interpreter grant %q, must be one of 'math', 'json', 'time'", grant)
		}
	}

	if c.Native.TimeoutSec <= 0 {
		return fmt.Errorf("native.timeout_sec must be positive, got: %d", c.Native.TimeoutSec)
	}

	if c.Native.CompileTimeoutSec <= 0 {
		return fmt.Errorf("native.compile_timeout_sec must be positive, got: %d", c.Native.CompileTimeoutSec)
	}

	if c.Native.Compiler == "" || c.Native.Runtime == "" {
		return fmt.Errorf("native.compiler and native.runtime must not be empty")
	}

	if c.Native.MaxOutputKB <= 0 {
		return fmt.Errorf("native.max_output_kb must be positive, got: %d", c.Native.MaxOutputKB)
	}

	return nil
}

// RemoteTimeout returns the remote transport timeout as a duration
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSec) * time.Second
}

// InterpreterTimeout returns the interpreter wall-clock timeout as a duration
func (c *Config) InterpreterTimeout() time.Duration {
	return time.Duration(c.Interpreter.TimeoutSec) * time.Second
}

// NativeTimeout returns the native run timeout as a duration
func (c *Config) NativeTimeout() time.Duration {
	return time.Duration(c.Native.TimeoutSec) * time.Second
}

// NativeCompileTimeout returns the native compile timeout as a duration
func (c *Config) NativeCompileTimeout() time.Duration {
	return time.Duration(c.Native.CompileTimeoutSec) * time.Second
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
