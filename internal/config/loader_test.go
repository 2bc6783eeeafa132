package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/mnemo.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/mnemo.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, 5000, cfg.Consistency.ToleranceMs)
		assert.Equal(t, "*/15 * * * *", cfg.Maintenance.Schedule)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "mnemo.json")

		testConfig := `{
			"store_path": "/srv/mnemo/memory",
			"categories": ["ops", "research"],
			"consistency": {
				"tolerance_ms": 2000
			},
			"logging": {
				"level": "debug"
			}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "/srv/mnemo/memory", cfg.StorePath)
		assert.Equal(t, []string{"ops", "research"}, cfg.Categories)
		assert.Equal(t, 2000, cfg.Consistency.ToleranceMs)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "mnemo.json")

		err := os.WriteFile(configPath, []byte(`{"data_dir": "`+tmpDir+`"}`), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpDir, "memory"), cfg.StorePath)
		assert.Equal(t, filepath.Join(tmpDir, "index.db"), cfg.IndexPath)
		assert.Equal(t, filepath.Join(tmpDir, "mnemo.log"), cfg.Logging.File)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")

		err := os.WriteFile(configPath, []byte("invalid json"), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()

		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config to file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "mnemo.json")

		cfg := DefaultConfig()
		cfg.StorePath = "/srv/mnemo/memory"
		cfg.Tags = []string{"release"}

		loader := NewLoader(configPath)
		err := loader.Save(cfg)

		require.NoError(t, err)

		_, err = os.Stat(configPath)
		assert.NoError(t, err)

		loadedCfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "/srv/mnemo/memory", loadedCfg.StorePath)
		assert.Equal(t, []string{"release"}, loadedCfg.Tags)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "mnemo.json")

		loader := NewLoader(configPath)
		err := loader.Save(DefaultConfig())

		require.NoError(t, err)

		_, err = os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}
