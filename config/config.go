package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"deltadebate/internal/errs"
	"deltadebate/internal/phase"
)

// Policy is one casbin "p" rule: role may perform action on path.
type Policy struct {
	Role   string `yaml:"role"`
	Path   string `yaml:"path"`
	Action string `yaml:"action"`
}

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Database struct {
		// Driver is "mongo" or "memory".
		Driver string `yaml:"driver"`
		URI    string `yaml:"uri"`
	} `yaml:"database"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream"`
	} `yaml:"redis"`

	Phase struct {
		MaxPhase               int     `yaml:"maxPhase"`
		DeadlineExtensionHours float64 `yaml:"deadlineExtensionHours"`
		NumPromptsPerDay       int     `yaml:"numPromptsPerDay"`
	} `yaml:"phase"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	RBAC struct {
		Policies []Policy `yaml:"policies"`
	} `yaml:"rbac"`
}

// Default returns a configuration that runs without external services.
func Default() *Config {
	var cfg Config
	cfg.Server.Port = 1313
	cfg.Server.AllowedOrigins = []string{"http://localhost:5173"}
	cfg.Database.Driver = "memory"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.Stream = "phases:events"
	cfg.Phase.MaxPhase = 4
	cfg.Phase.DeadlineExtensionHours = 24
	cfg.Phase.NumPromptsPerDay = 2
	cfg.Logging.Level = "info"
	cfg.RBAC.Policies = []Policy{
		{Role: "admin", Path: "/admin/*", Action: "(GET)|(POST)|(PATCH)|(DELETE)"},
	}
	return &cfg
}

// LoadConfig reads the configuration file over the defaults, then applies
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (c *Config) applyEnv() error {
	if uri := getenv("DELTA_MONGO_URI", ""); uri != "" {
		c.Database.URI = uri
		c.Database.Driver = "mongo"
	}
	if addr := getenv("DELTA_REDIS_ADDR", ""); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}
	if port := getenv("DELTA_SERVER_PORT", ""); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid DELTA_SERVER_PORT %q: %w", port, err)
		}
		c.Server.Port = p
	}
	c.Logging.Level = getenv("DELTA_LOG_LEVEL", c.Logging.Level)
	return nil
}

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errs.InvalidInput("server.port %d is out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "mongo":
		if c.Database.URI == "" {
			return errs.InvalidInput("database.uri is required for the mongo driver")
		}
	default:
		return errs.InvalidInput("unknown database.driver %q", c.Database.Driver)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errs.InvalidInput("redis.addr is required when redis is enabled")
	}
	_, err := c.PhaseConfig()
	return err
}

// PhaseConfig converts the phase section for the scheduler.
func (c *Config) PhaseConfig() (phase.Config, error) {
	ext, err := phase.HoursToDuration(c.Phase.DeadlineExtensionHours)
	if err != nil {
		return phase.Config{}, err
	}
	cfg := phase.Config{
		MaxPhase:          c.Phase.MaxPhase,
		DeadlineExtension: ext,
		NumPromptsPerDay:  c.Phase.NumPromptsPerDay,
	}
	return cfg, cfg.Validate()
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
const ShutdownTimeout = 10 * time.Second
