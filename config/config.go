package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Warehouse struct {
		// Backend is one of local, s3, memory.
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
		Bucket  string `yaml:"bucket"`
		Region  string `yaml:"region"`
	} `yaml:"warehouse"`

	Catalog struct {
		// Backend is one of memory, file, sql.
		Backend string `yaml:"backend"`
		Dir     string `yaml:"dir"`
		DSN     string `yaml:"dsn"`
	} `yaml:"catalog"`

	Commit struct {
		Retries     int      `yaml:"retries"`
		BackoffBase Duration `yaml:"backoff-base"`
		BackoffCap  Duration `yaml:"backoff-cap"`
	} `yaml:"commit"`

	Scan struct {
		Parallelism int `yaml:"parallelism"`
	} `yaml:"scan"`

	Proxy struct {
		Port int `yaml:"port"`
	} `yaml:"proxy"`

	Tables []string `yaml:"tables"`
}

// Duration decodes yaml strings like "100ms" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Warehouse.Backend == "" {
		c.Warehouse.Backend = "local"
	}
	if c.Catalog.Backend == "" {
		c.Catalog.Backend = "file"
	}
	if c.Catalog.Dir == "" {
		c.Catalog.Dir = c.Warehouse.Path
	}
	if c.Commit.Retries == 0 {
		c.Commit.Retries = 5
	}
	if c.Commit.BackoffBase == 0 {
		c.Commit.BackoffBase = Duration(100 * time.Millisecond)
	}
	if c.Commit.BackoffCap == 0 {
		c.Commit.BackoffCap = Duration(5 * time.Second)
	}
	if c.Scan.Parallelism == 0 {
		c.Scan.Parallelism = 4
	}
	if c.Proxy.Port == 0 {
		c.Proxy.Port = 5433
	}
}

func (c *Config) validate() error {
	switch c.Warehouse.Backend {
	case "local":
		if c.Warehouse.Path == "" {
			return fmt.Errorf("warehouse path is required for local backend")
		}
	case "s3":
		if c.Warehouse.Bucket == "" {
			return fmt.Errorf("warehouse bucket is required for s3 backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown warehouse backend %q", c.Warehouse.Backend)
	}

	switch c.Catalog.Backend {
	case "memory":
	case "file":
		if c.Catalog.Dir == "" {
			return fmt.Errorf("catalog dir is required for file backend")
		}
	case "sql":
		if c.Catalog.DSN == "" {
			return fmt.Errorf("catalog dsn is required for sql backend")
		}
	default:
		return fmt.Errorf("unknown catalog backend %q", c.Catalog.Backend)
	}
	return nil
}
