package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("tokyo-registry")
	require.NoError(t, cfg.Validate())
	require.Equal(t, "tokyo-registry", cfg.Registry.ID)
	require.Equal(t, "curse-registry", cfg.Registry.Kind)
	require.Equal(t, "planned", cfg.Missions.DefaultUrgency)
	require.Contains(t, cfg.Grades.Catalog, "special")
	require.Contains(t, cfg.Resources.Kinds, "talisman")
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"missing registry id": func(c *Config) { c.Registry.ID = "" },
		"wrong kind":          func(c *Config) { c.Registry.Kind = "task-tracker" },
		"no urgency levels":   func(c *Config) { c.Missions.UrgencyLevels = nil },
		"empty urgency level": func(c *Config) { c.Missions.UrgencyLevels = []string{"urgent", ""} },
		"unlisted default":    func(c *Config) { c.Missions.DefaultUrgency = "relaxed" },
		"empty resource kind": func(c *Config) { c.Resources.Kinds = []string{""} },
	}
	for name, mutate := range cases {
		cfg := Default("tokyo-registry")
		mutate(cfg)
		require.Error(t, cfg.Validate(), name)
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("kyoto-registry")))
	require.NoError(t, err)
	require.Equal(t, "kyoto-registry", cfg.Registry.ID)

	_, err = FromYAML([]byte("registry: [not a map"))
	require.Error(t, err)

	_, err = FromYAML([]byte("registry:\n  id: x\n  kind: curse-registry\n"))
	require.Error(t, err, "urgency levels are required")
}

func TestFromFileAndLoadOptional(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "curseward.yml")
	require.NoError(t, os.WriteFile(path, []byte(GenerateDefault("tokyo-registry")), 0o644))

	cfg, err := FromFile(path)
	require.NoError(t, err)
	require.Equal(t, "tokyo-registry", cfg.Registry.ID)

	loaded, err := LoadOptional(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	missing, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestMembershipHelpers(t *testing.T) {
	cfg := Default("tokyo-registry")
	require.True(t, cfg.HasUrgency("urgent"))
	require.False(t, cfg.HasUrgency("relaxed"))
	require.True(t, cfg.HasGrade("semi_one"))
	require.False(t, cfg.HasGrade("hero"))
	require.True(t, cfg.HasResourceKind("vehicle"))
	require.False(t, cfg.HasResourceKind("stationery"))

	// empty catalogs accept anything
	var open Config
	require.True(t, open.HasGrade("anything"))
	require.True(t, open.HasResourceKind("anything"))
}
