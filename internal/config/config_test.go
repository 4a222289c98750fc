package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.jsonc"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadParsesJSONCOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronostore.conf")
	jsonc := `{
		// comment allowed: this is JSONC, not strict JSON
		"nworkers": 4,
		"durability": "MaxThroughput",
	}`
	require.NoError(t, os.WriteFile(path, []byte(jsonc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.NWorkers)
	require.Equal(t, MaxThroughput, cfg.Durability)
	require.Equal(t, Default().WindowSize, cfg.WindowSize, "unset fields keep their default value")
}

func TestLoadRejectsInvalidDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronostore.conf")
	require.NoError(t, os.WriteFile(path, []byte(`{"durability": "Nonsense"}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestApplyFlagsOverridesConfig(t *testing.T) {
	cfg, err := ApplyFlags(Default(), []string{"--nworkers", "8", "--durability", "MaxDurability"})
	require.NoError(t, err)
	require.Equal(t, 8, cfg.NWorkers)
	require.Equal(t, MaxDurability, cfg.Durability)
}

func TestApplyFlagsRejectsInvalidBackoffPolicy(t *testing.T) {
	_, err := ApplyFlags(Default(), []string{"--backoff-policy", "Nonsense"})
	require.Error(t, err)
}
