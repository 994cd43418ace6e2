package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models curseward.yml.
type Config struct {
	Registry struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"registry"`
	Grades struct {
		Catalog map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"grades"`
	Missions struct {
		UrgencyLevels  []string `yaml:"urgency_levels"`
		DefaultUrgency string   `yaml:"default_urgency"`
	} `yaml:"missions"`
	Resources struct {
		Kinds []string `yaml:"kinds"`
	} `yaml:"resources"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with cw config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Registry.ID == "" {
		return fmt.Errorf("config.registry.id is required")
	}
	if c.Registry.Kind != "curse-registry" {
		return fmt.Errorf("config.registry.kind must be 'curse-registry'")
	}
	if len(c.Missions.UrgencyLevels) == 0 {
		return fmt.Errorf("config.missions.urgency_levels is required")
	}
	for _, level := range c.Missions.UrgencyLevels {
		if level == "" {
			return fmt.Errorf("config.missions.urgency_levels contains empty level")
		}
	}
	if c.Missions.DefaultUrgency != "" && !c.HasUrgency(c.Missions.DefaultUrgency) {
		return fmt.Errorf("default urgency %s not listed in urgency_levels", c.Missions.DefaultUrgency)
	}
	for grade := range c.Grades.Catalog {
		if grade == "" {
			return fmt.Errorf("config.grades.catalog contains empty grade id")
		}
	}
	for _, kind := range c.Resources.Kinds {
		if kind == "" {
			return fmt.Errorf("config.resources.kinds contains empty kind")
		}
	}
	return nil
}

// HasUrgency reports whether the level is a configured mission urgency.
func (c *Config) HasUrgency(level string) bool {
	for _, l := range c.Missions.UrgencyLevels {
		if l == level {
			return true
		}
	}
	return false
}

// HasGrade reports whether the grade exists in the catalog. An empty catalog
// accepts any grade.
func (c *Config) HasGrade(grade string) bool {
	if len(c.Grades.Catalog) == 0 {
		return true
	}
	_, ok := c.Grades.Catalog[grade]
	return ok
}

// HasResourceKind reports whether the kind is configured. An empty kinds list
// accepts any kind.
func (c *Config) HasResourceKind(kind string) bool {
	if len(c.Resources.Kinds) == 0 {
		return true
	}
	for _, k := range c.Resources.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "curseward.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(registryID string) string {
	return fmt.Sprintf(defaultTemplate, registryID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a registry.
func Default(registryID string) *Config {
	var cfg Config
	cfg.Registry.ID = registryID
	cfg.Registry.Kind = "curse-registry"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, registryID))).Decode(&cfg)
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

const defaultTemplate = `registry:
  id: %s
  kind: curse-registry

grades:
  catalog:
    four:
      description: "Grade 4: nuisance-level curse or novice sorcerer"
    three:
      description: "Grade 3: standard patrol target"
    two:
      description: "Grade 2: dangerous, team recommended"
    semi_one:
      description: "Semi-grade 1: borderline first-grade threat"
    one:
      description: "Grade 1: first-grade threat, senior sorcerers only"
    special:
      description: "Special grade: unclassifiable threat"

missions:
  urgency_levels: [planned, urgent, critical]
  default_urgency: planned

resources:
  kinds: [cursed_tool, talisman, vehicle, supply]
`
