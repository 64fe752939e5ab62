package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Accessors(t *testing.T) {
	cfg := New(map[string]any{
		"name":     "svc",
		"enabled":  true,
		"count":    3,
		"ratio":    0.5,
		"interval": "250ms",
		"seconds":  5,
		"tags":     []any{"a", "b"},
		"nested":   map[string]any{"deep": "value"},
	})

	assert.Equal(t, "svc", cfg.String("name", ""))
	assert.Equal(t, "fallback", cfg.String("missing", "fallback"))
	assert.True(t, cfg.Bool("enabled", false))
	assert.Equal(t, 3, cfg.Int("count", 0))
	assert.Equal(t, 0.5, cfg.Float("ratio", 0))
	assert.Equal(t, 250*time.Millisecond, cfg.Duration("interval", 0))
	assert.Equal(t, 5*time.Second, cfg.Duration("seconds", 0))
	assert.Equal(t, []string{"a", "b"}, cfg.StringSlice("tags", nil))
	assert.Equal(t, "value", cfg.Sub("nested").String("deep", ""))
	assert.True(t, cfg.Has("name"))
	assert.False(t, cfg.Has("missing"))
}

func TestConfig_TypeMismatchFallsBack(t *testing.T) {
	cfg := New(map[string]any{"count": "not a number"})
	assert.Equal(t, 7, cfg.Int("count", 7))
	assert.Equal(t, "not a number", cfg.String("count", ""))
}

func TestConfig_YAMLFloatsAsInts(t *testing.T) {
	// YAML decoders hand back float64 for some numeric values.
	cfg := New(map[string]any{"whole": float64(4), "frac": 4.5})
	assert.Equal(t, 4, cfg.Int("whole", 0))
	assert.Equal(t, 9, cfg.Int("frac", 9))
}

func TestConfig_SubMissingIsEmpty(t *testing.T) {
	cfg := New(nil)
	sub := cfg.Sub("nothing").Sub("deeper")
	assert.Equal(t, 0, sub.Len())
	assert.Equal(t, "d", sub.String("x", "d"))
}

func TestLoadFile_EnvSubstitution(t *testing.T) {
	t.Setenv("HOTMOD_TEST_TOKEN", "sekrit")

	path := filepath.Join(t.TempDir(), "main.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
token: ${HOTMOD_TEST_TOKEN}
greeting: hello ${HOTMOD_TEST_TOKEN} bye
absent: ${HOTMOD_TEST_DOES_NOT_EXIST}
plain: untouched
`), 0o644))

	cfg, err := LoadFile(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "sekrit", cfg.String("token", ""))
	assert.Equal(t, "hello sekrit bye", cfg.String("greeting", ""))
	assert.Equal(t, "", cfg.String("absent", "unset"))
	assert.Equal(t, "untouched", cfg.String("plain", ""))
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("/nonexistent/main.yaml", nil)
	assert.Error(t, err)
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: [unclosed"), 0o644))

	_, err := LoadFile(path, nil)
	assert.Error(t, err)
}

func TestLoadFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	cfg, err := LoadFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Len())
}

func TestLoadDir_MergesLayout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.yaml"), []byte(`
hot_reload: true
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logging.yaml"), []byte(`
logging:
  level: debug
  format: json
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "modules.yaml"), []byte(`
modules:
  - name: producer
    path: ./modules/producer.lua
    config:
      interval: 2s
  - name: consumer
    path: ./modules/consumer.lua
    enabled: false
  - path: ./nameless.lua
`), 0o644))

	cfg, err := LoadDir(dir, nil)
	require.NoError(t, err)

	assert.True(t, cfg.Bool("hot_reload", false))
	assert.Equal(t, "debug", cfg.Sub("logging").String("level", ""))

	decls := cfg.Modules()
	require.Len(t, decls, 2, "declarations without a name are dropped")

	assert.Equal(t, "producer", decls[0].Name)
	assert.Equal(t, "./modules/producer.lua", decls[0].Path)
	assert.True(t, decls[0].Enabled)
	assert.Equal(t, 2*time.Second, decls[0].Config.Duration("interval", 0))

	assert.Equal(t, "consumer", decls[1].Name)
	assert.False(t, decls[1].Enabled)
}

func TestLoadDir_RequiresMain(t *testing.T) {
	_, err := LoadDir(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestLoadDir_OptionalFilesOptional(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.yaml"), []byte("x: 1"), 0o644))

	cfg, err := LoadDir(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Int("x", 0))
	assert.Nil(t, cfg.Modules())
}
