package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models fleetline.yml.
type Config struct {
	Fleet struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"fleet"`
	Vessels struct {
		Catalog map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"vessels"`
	Report ReportSettings `yaml:"report"`
	Defaults struct {
		Priority string `yaml:"priority"`
	} `yaml:"defaults"`
}

// ReportSettings controls page layout of generated mission reports.
type ReportSettings struct {
	PageSize         string  `yaml:"page_size"`
	MarginMM         float64 `yaml:"margin_mm"`
	ImageMaxHeightMM float64 `yaml:"image_max_height_mm"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if fleetline.yml does not exist.
func LoadOptional(workspace, fleetID string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(fleetID), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Fleet.ID == "" {
		return fmt.Errorf("config.fleet.id is required")
	}
	switch c.Defaults.Priority {
	case "", "high", "medium", "low":
	default:
		return fmt.Errorf("config.defaults.priority must be high, medium or low")
	}
	for id := range c.Vessels.Catalog {
		if id == "" {
			return fmt.Errorf("config.vessels.catalog contains empty vessel id")
		}
	}
	switch c.Report.PageSize {
	case "", "A4", "Letter", "Legal":
	default:
		return fmt.Errorf("config.report.page_size %s not supported", c.Report.PageSize)
	}
	if c.Report.MarginMM < 0 {
		return fmt.Errorf("config.report.margin_mm must not be negative")
	}
	if c.Report.ImageMaxHeightMM < 0 {
		return fmt.Errorf("config.report.image_max_height_mm must not be negative")
	}
	return nil
}

// KnownVessel reports whether the catalog allows the vessel. An empty
// catalog allows any vessel.
func (c *Config) KnownVessel(vessel string) bool {
	if len(c.Vessels.Catalog) == 0 {
		return true
	}
	_, ok := c.Vessels.Catalog[vessel]
	return ok
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fleetline.yml")
}

// Default returns the default Config struct for a fleet.
func Default(fleetID string) *Config {
	var cfg Config
	cfg.Fleet.ID = fleetID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, fleetID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `fleet:
  id: %s
  name: Demo Fleet

vessels:
  catalog:
    mv-aurora:
      description: "MV Aurora, general cargo"
    mv-petrel:
      description: "MV Petrel, offshore supply"
    mv-cormorant:
      description: "MV Cormorant, coastal tanker"

report:
  page_size: A4
  margin_mm: 15
  image_max_height_mm: 120

defaults:
  priority: medium
`
