package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/artpar/svcplan/internal/core/deployment"
	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/shell/manifest"
	"github.com/artpar/svcplan/internal/shell/probe"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Project  ProjectConfig            `mapstructure:"project"`
	Services map[string]ServiceConfig `mapstructure:"services"`
	Probe    ProbeConfig              `mapstructure:"probe"`
	Plan     PlanConfig               `mapstructure:"plan"`
	Store    StoreConfig              `mapstructure:"store"`
	Log      LogConfig                `mapstructure:"log"`
}

// ProjectConfig names the project being planned.
type ProjectConfig struct {
	Name string `mapstructure:"name"`
	Dir  string `mapstructure:"dir"`
}

// ServiceConfig is one entry under services.<name>.
// Enabled and PreferReuse default to true when omitted.
type ServiceConfig struct {
	Type         string `mapstructure:"type"`
	Enabled      *bool  `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Version      string `mapstructure:"version"`
	Mode         string `mapstructure:"mode"`
	PreferReuse  *bool  `mapstructure:"prefer_reuse"`
	InstanceName string `mapstructure:"instance_name"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
}

// ProbeConfig controls service detection.
type ProbeConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
	PortTimeout    time.Duration `mapstructure:"port_timeout"`
	Parallel       bool          `mapstructure:"parallel"`
	Retries        int           `mapstructure:"retries"`
	DockerHost     string        `mapstructure:"docker_host"`
	Compose        bool          `mapstructure:"compose"`
}

// PlanConfig controls plan evaluation.
type PlanConfig struct {
	AllowIncompatible bool   `mapstructure:"allow_incompatible"`
	Save              bool   `mapstructure:"save"`
	SDKPackage        string `mapstructure:"sdk_package"`
}

// StoreConfig holds plan history configuration.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var errConfigNotFound = errors.New("config file not found")

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment. An empty
// configPath looks for svcplan.yaml in the working directory and falls back
// to defaults when there is none.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("project.name", "")
	v.SetDefault("project.dir", ".")
	for _, t := range domain.PlannableTypes() {
		info := t.Info()
		key := "services." + info.DefaultName
		v.SetDefault(key+".type", string(t))
		v.SetDefault(key+".enabled", true)
		v.SetDefault(key+".host", deployment.DefaultHost)
		v.SetDefault(key+".port", info.DefaultPort)
		v.SetDefault(key+".version", "")
		v.SetDefault(key+".mode", string(deployment.ModeAuto))
		v.SetDefault(key+".prefer_reuse", true)
		v.SetDefault(key+".instance_name", "")
		v.SetDefault(key+".user", "")
		v.SetDefault(key+".password", "")
		v.SetDefault(key+".database", "")
	}
	v.SetDefault("probe.timeout", probe.DefaultTimeout.String())
	v.SetDefault("probe.process_timeout", probe.DefaultProcessTimeout.String())
	v.SetDefault("probe.port_timeout", probe.DefaultPortTimeout.String())
	v.SetDefault("probe.parallel", true)
	v.SetDefault("probe.retries", probe.DefaultRetries)
	v.SetDefault("probe.docker_host", "")
	v.SetDefault("probe.compose", true)
	v.SetDefault("plan.allow_incompatible", false)
	v.SetDefault("plan.save", false)
	v.SetDefault("plan.sdk_package", manifest.DefaultPackage)
	v.SetDefault("store.dsn", ".svcplan/history.db")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("%w: %s", errConfigNotFound, configPath)
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("svcplan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	v.SetEnvPrefix("SVCPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// =============================================================================
// Conversions
// =============================================================================

// ServiceConfigs converts the services section into planner input, sorted by
// name.
func (c *Config) ServiceConfigs() ([]deployment.ServiceConfig, error) {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]deployment.ServiceConfig, 0, len(names))
	for _, name := range names {
		s := c.Services[name]
		t, err := domain.ParseServiceType(s.Type)
		if err != nil {
			return nil, fmt.Errorf("services.%s.type: %w", name, err)
		}
		svc := deployment.ServiceConfig{
			Name:         name,
			Type:         t,
			Enabled:      boolOr(s.Enabled, true),
			Host:         s.Host,
			Port:         s.Port,
			Version:      s.Version,
			Mode:         deployment.Mode(strings.ToLower(s.Mode)),
			PreferReuse:  boolOr(s.PreferReuse, true),
			InstanceName: s.InstanceName,
			User:         s.User,
			Database:     s.Database,
		}
		if err := svc.Validate(); err != nil {
			return nil, fmt.Errorf("services.%s: %w", name, err)
		}
		out = append(out, svc)
	}
	return out, nil
}

// ProbeConfig builds the prober configuration for dir. Each plannable type is
// probed at the first enabled service of that type, by name.
func (c *Config) ProbeConfig(dir string) probe.Config {
	pc := probe.Config{
		ProjectDir:     dir,
		Timeout:        c.Probe.Timeout,
		ProcessTimeout: c.Probe.ProcessTimeout,
		PortTimeout:    c.Probe.PortTimeout,
		Parallel:       c.Probe.Parallel,
		Retries:        c.Probe.Retries,
		DockerHost:     c.Probe.DockerHost,
		Compose:        c.Probe.Compose,
		Targets:        make(map[domain.ServiceType]probe.Target),
	}

	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := c.Services[name]
		t, err := domain.ParseServiceType(s.Type)
		if err != nil || !boolOr(s.Enabled, true) {
			continue
		}
		if _, ok := pc.Targets[t]; ok {
			continue
		}
		pc.Targets[t] = probe.Target{
			Host:     s.Host,
			Port:     s.Port,
			User:     s.User,
			Password: s.Password,
			Database: s.Database,
		}
	}
	return pc
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format writing
// to w. Reports go to stdout, so the CLI passes stderr here.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
