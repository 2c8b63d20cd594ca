package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"chartline/internal/logging"
	"chartline/internal/tracing"
)

const FileName = "chartline.yml"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendMinio  = "minio"
)

// Config models chartline.yml.
type Config struct {
	Server struct {
		Addr            string `yaml:"addr"`
		BasePath        string `yaml:"base_path"`
		JWTSecret       string `yaml:"jwt_secret"`
		AllowDevHeaders bool   `yaml:"allow_dev_headers"`
	} `yaml:"server"`
	Storage struct {
		Backend   string `yaml:"backend"`
		Workspace string `yaml:"workspace"`
		Minio     Minio  `yaml:"minio"`
	} `yaml:"storage"`
	Roles struct {
		Elevated []string `yaml:"elevated"`
		Team     []string `yaml:"team"`
	} `yaml:"roles"`
	Catalog struct {
		FeaturedLimit int `yaml:"featured_limit"`
		PopularLimit  int `yaml:"popular_limit"`
		RecentLimit   int `yaml:"recent_limit"`
	} `yaml:"catalog"`
	Generation struct {
		Model string `yaml:"model"`
		Seed  uint64 `yaml:"seed"`
	} `yaml:"generation"`
	Cache struct {
		LibraryTTL time.Duration `yaml:"library_ttl"`
	} `yaml:"cache"`
	PreloadOrgs []string       `yaml:"preload_orgs"`
	Logging     logging.Config `yaml:"logging"`
	Tracing     tracing.Config `yaml:"tracing"`
}

type Minio struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Prefix    string `yaml:"prefix"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendMemory:
	case BackendMinio:
		if c.Storage.Minio.Endpoint == "" {
			return fmt.Errorf("config.storage.minio.endpoint is required for the minio backend")
		}
		if c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("config.storage.minio.bucket is required for the minio backend")
		}
	default:
		return fmt.Errorf("config.storage.backend must be one of sqlite, memory, minio")
	}
	if len(c.Roles.Elevated) == 0 {
		return fmt.Errorf("config.roles.elevated is required")
	}
	for _, r := range append(append([]string{}, c.Roles.Elevated...), c.Roles.Team...) {
		if r == "" {
			return fmt.Errorf("config.roles contains an empty role")
		}
	}
	if c.Catalog.FeaturedLimit < 0 || c.Catalog.PopularLimit < 0 || c.Catalog.RecentLimit < 0 {
		return fmt.Errorf("config.catalog limits must not be negative")
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("config.generation.model is required")
	}
	if c.Cache.LibraryTTL < 0 {
		return fmt.Errorf("config.cache.library_ttl must not be negative")
	}
	for _, org := range c.PreloadOrgs {
		if org == "" {
			return fmt.Errorf("config.preload_orgs contains an empty organization id")
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("config.tracing: %w", err)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with chartline init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""
  allow_dev_headers: false

storage:
  backend: sqlite
  workspace: .
  minio:
    endpoint: ""
    bucket: chartline
    secure: false
    prefix: libraries

roles:
  elevated: [admin, manager, team_lead]
  team: [team_member, team_lead, manager, admin]

catalog:
  featured_limit: 6
  popular_limit: 10
  recent_limit: 10

generation:
  model: heuristic-v1
  seed: 0

cache:
  library_ttl: 30s

preload_orgs: []

logging:
  level: info
  development: false

tracing:
  enabled: false
  exporter: stdout
  otlp_endpoint: localhost:4317
  sample_rate: 1.0
  service_name: chartline
`
