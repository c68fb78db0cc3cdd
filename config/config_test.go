package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/brettbedarf/memfs/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestNewConfig_WithNilOverride tests that NewConfig creates a config with all default values
// when no override is provided.
func TestNewConfig_WithNilOverride(t *testing.T) {
	t.Parallel()

	cfg := NewConfig(nil)

	require.NotNil(t, cfg)
	assert.Equal(t, createDefaultCfg(), cfg, "must use default values when no config provided")
}

// TestNewConfig_WithOverride tests that NewConfig properly applies overrides while
// preserving defaults for unset fields.
func TestNewConfig_WithAllOverride(t *testing.T) {
	t.Parallel()

	override := createOverride()
	// hack for bad log verbosity vs internal log level pattern
	override.LogLvl = util.Pointer(TraceVerbose)
	cfg := NewConfig(override)

	expCfg := &Config{
		MountOptions: MountOptions{
			FsName:     "test_fs",
			Name:       "test_name",
			Debug:      true,
			AllowOther: true,
		},
		LogLvl:           util.TraceLevel,
		LockPoolSize:     *override.LockPoolSize,
		InitFileCapacity: *override.InitFileCapacity,
		DirSize:          *override.DirSize,
		MaxFileSize:      *override.MaxFileSize,
		RootMode:         *override.RootMode,
		AttrTimeout:      *override.AttrTimeout,
		EntryTimeout:     *override.EntryTimeout,
	}
	require.NotNil(t, cfg)
	assert.Equal(t, expCfg, cfg, "must override all provided fields")
}

func TestConfig_Merge_LogLvlConversion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		verboseValue  int
		expectedLevel util.LogLevel
	}{
		{"verbose_1_error", 1, util.ErrorLevel},
		{"verbose_2_warn", 2, util.WarnLevel},
		{"verbose_3_info", 3, util.InfoLevel},
		{"verbose_4_debug", 4, util.DebugLevel},
		{"verbose_5_trace", 5, util.TraceLevel},
		{"verbose_0_clamped_to_1", 0, util.ErrorLevel},     // clamped to 1
		{"verbose_100_clamped_to_5", 100, util.TraceLevel}, // clamped to 5
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			override := &ConfigOverride{
				LogLvl: &tt.verboseValue,
			}

			cfg := NewConfig(override)

			assert.Equal(t, tt.expectedLevel, cfg.LogLvl,
				"CLI verbose %d should map to util.LogLevel %v", tt.verboseValue, tt.expectedLevel)
		})
	}
}

func TestConfig_Merge_NilOverrideVals(t *testing.T) {
	t.Parallel()

	override := &ConfigOverride{}

	cfg := NewConfig(override)

	require.NotNil(t, cfg)
	assert.Equal(t, createDefaultCfg(), cfg, "must use default values for nil override fields")
}

func TestConfig_Merge_PartialOverride(t *testing.T) {
	t.Parallel()

	override := &ConfigOverride{
		FsName:       util.Pointer("test_fs"),
		LockPoolSize: util.Pointer(DefaultLockPoolSize + 1),
	}
	cfg := NewConfig(override)

	expCfg := createDefaultCfg()
	expCfg.FsName = "test_fs"
	expCfg.LockPoolSize = DefaultLockPoolSize + 1

	require.NotNil(t, cfg)
	assert.Equal(t, expCfg, cfg, "must override all provided fields and leave rest default")
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"zero_lock_pool", func(c *Config) { c.LockPoolSize = 0 }, "lock pool size"},
		{"negative_capacity", func(c *Config) { c.InitFileCapacity = -1 }, "initial file capacity"},
		{"negative_max_size", func(c *Config) { c.MaxFileSize = -1 }, "max file size"},
		{"capacity_above_max", func(c *Config) { c.MaxFileSize = 4; c.InitFileCapacity = 8 }, "exceeds max file size"},
		{"unlimited_max_size", func(c *Config) { c.MaxFileSize = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigOverrideFile_Valid(t *testing.T) {
	t.Parallel()

	type tc struct {
		ext   string
		build func() (*ConfigOverride, []byte)
	}

	cases := []tc{
		{
			ext: ".yaml",
			build: func() (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := yaml.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
		{
			ext: ".yml",
			build: func() (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := yaml.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
		{
			ext: ".json",
			build: func() (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := json.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
	}

	for _, c := range cases {
		name := "valid" + c.ext
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			override, data := c.build()
			dir := t.TempDir()
			path := filepath.Join(dir, "override"+c.ext)
			require.NoError(t, os.WriteFile(path, data, 0o600))

			loaded, err := LoadConfigOverrideFile(path)

			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, *override, *loaded)
		})
	}
}

// TestLoadConfigOverrideFile_NonExistentFile tests error handling
// when trying to load a file that doesn't exist.
func TestLoadConfigOverrideFile_NonExistentFile(t *testing.T) {
	t.Parallel()

	// Setup: use path to non-existent file
	path := filepath.Join(t.TempDir(), "does_not_exist.yaml")

	// Execute
	_, err := LoadConfigOverrideFile(path)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err), "expected not exist error, got %v", err)
}

// TestLoadConfigOverrideFile_UnsupportedExtension tests error handling
// for file extensions that aren't supported (.txt, .xml, etc).
func TestLoadConfigOverrideFile_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	// Setup: create file with unsupported extension
	path := filepath.Join(t.TempDir(), "override.txt")
	require.NoError(t, os.WriteFile(path, []byte("lock_pool_size: 1"), 0o600))

	// Execute
	_, err := LoadConfigOverrideFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config file extension")
}

// TestNewConfigFromFile_FileError tests that file loading errors
// are properly propagated by the convenience function.
func TestNewConfigFromFile_FileError(t *testing.T) {
	t.Parallel()

	// Setup: use non-existent file path
	path := filepath.Join(t.TempDir(), "missing.json")

	// Execute
	_, err := NewConfigFromFile(path)
	require.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MEMFS_LOCK_POOL_SIZE", "32")
	t.Setenv("MEMFS_MAX_FILE_SIZE", "2048")
	t.Setenv("MEMFS_DEBUG", "true")
	t.Setenv("MEMFS_FS_NAME", "envfs")

	override, err := LoadEnvOverride()

	require.NoError(t, err)
	require.NotNil(t, override.LockPoolSize)
	assert.Equal(t, 32, *override.LockPoolSize)
	require.NotNil(t, override.MaxFileSize)
	assert.Equal(t, int64(2048), *override.MaxFileSize)
	require.NotNil(t, override.Debug)
	assert.True(t, *override.Debug)
	require.NotNil(t, override.FsName)
	assert.Equal(t, "envfs", *override.FsName)

	assert.Nil(t, override.Name, "unset variables must stay nil")
	assert.Nil(t, override.InitFileCapacity, "unset variables must stay nil")
	assert.Nil(t, override.LogLvl, "unset variables must stay nil")
}

func TestLoadEnvOverride_Invalid(t *testing.T) {
	t.Setenv("MEMFS_LOCK_POOL_SIZE", "many")

	_, err := LoadEnvOverride()
	require.Error(t, err)
}

func createDefaultCfg() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:           DefaultLogLvl,
		LockPoolSize:     DefaultLockPoolSize,
		InitFileCapacity: DefaultInitFileCapacity,
		DirSize:          DefaultDirSize,
		MaxFileSize:      DefaultMaxFileSize,
		RootMode:         DefaultRootMode,
		AttrTimeout:      DefaultAttrTimeout,
		EntryTimeout:     DefaultEntryTimeout,
	}
}

// createOverride makes a ConfigOverride with all non-default values
func createOverride() *ConfigOverride {
	testLogVerbose := TraceVerbose
	if DefaultLogLvl == util.TraceLevel {
		testLogVerbose = DebugVerbose
	}
	return &ConfigOverride{
		LockPoolSize:     util.Pointer(DefaultLockPoolSize + 1),
		InitFileCapacity: util.Pointer(DefaultInitFileCapacity + 1),
		DirSize:          util.Pointer(int64(DefaultDirSize + 1)),
		MaxFileSize:      util.Pointer(int64(DefaultMaxFileSize + 1)),
		RootMode:         util.Pointer(uint32(0o755)),
		AttrTimeout:      util.Pointer(float64(DefaultAttrTimeout + 1)),
		EntryTimeout:     util.Pointer(float64(DefaultEntryTimeout + 1)),
		LogLvl:           util.Pointer(testLogVerbose),
		FsName:           util.Pointer("test_fs"),
		Name:             util.Pointer("test_name"),
		Debug:            util.Pointer(true),
		AllowOther:       util.Pointer(true),
	}
}
