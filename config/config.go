package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/memfs/internal/util"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Bytes per MB
const MB = 1024 * 1024

// CLI verbosity values accepted by the LogLvl override
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	// DefaultLockPoolSize is the number of per-inode locks shared by all inodes
	DefaultLockPoolSize = 10

	// DefaultInitFileCapacity is the buffer capacity of a newly created file
	DefaultInitFileCapacity = 10

	// DefaultDirSize is the nominal size reported for directories
	DefaultDirSize = 4096

	// DefaultMaxFileSize caps buffer growth; larger writes fail with OutOfMemory
	DefaultMaxFileSize = 1024 * MB

	// DefaultRootMode is the permission mode of the root directory
	DefaultRootMode = 0o777

	DefaultLogLvl = util.InfoLevel

	DefaultFsName = "memfs"
	DefaultName   = "memfs"

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0
)

// Config contains runtime configuration values for the engine and its mount.
type Config struct {
	MountOptions

	LogLvl util.LogLevel

	LockPoolSize     int    // Number of pooled per-inode locks (Default 10)
	InitFileCapacity int    // Initial buffer capacity of new files in bytes (Default 10)
	DirSize          int64  // Nominal size reported for directories (Default 4096)
	MaxFileSize      int64  // Largest buffer a file may grow to; 0 leaves only the 1TB engine ceiling (Default 1GB)
	RootMode         uint32 // Permission bits of "/" (Default 0777)

	// NOTE: Low-level FUSE config:

	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	FsName     *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name       *string `yaml:"name,omitempty" json:"name,omitempty"`
	Debug      *bool   `yaml:"debug,omitempty" json:"debug,omitempty"`
	AllowOther *bool   `yaml:"allow_other,omitempty" json:"allow_other,omitempty"`

	// LogLvl is a CLI verbosity between 1 (error) and 5 (trace)
	LogLvl *int `yaml:"verbose,omitempty" json:"verbose,omitempty"`

	LockPoolSize     *int     `yaml:"lock_pool_size,omitempty" json:"lock_pool_size,omitempty"`
	InitFileCapacity *int     `yaml:"init_file_capacity,omitempty" json:"init_file_capacity,omitempty"`
	DirSize          *int64   `yaml:"dir_size,omitempty" json:"dir_size,omitempty"`
	MaxFileSize      *int64   `yaml:"max_file_size,omitempty" json:"max_file_size,omitempty"`
	RootMode         *uint32  `yaml:"root_mode,omitempty" json:"root_mode,omitempty"`
	AttrTimeout      *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout     *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
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

// NewConfig returns the defaults with override applied; override may be nil.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// VerboseToLogLevel clamps a CLI verbosity into 1..5 and converts it to a LogLevel
func VerboseToLogLevel(verbose int) util.LogLevel {
	verbose = max(ErrorVerbose, min(verbose, TraceVerbose))
	lvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return lvls[verbose-1]
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.AllowOther != nil {
		c.AllowOther = *override.AllowOther
	}
	if override.LogLvl != nil {
		c.LogLvl = VerboseToLogLevel(*override.LogLvl)
	}
	if override.LockPoolSize != nil {
		c.LockPoolSize = *override.LockPoolSize
	}
	if override.InitFileCapacity != nil {
		c.InitFileCapacity = *override.InitFileCapacity
	}
	if override.DirSize != nil {
		c.DirSize = *override.DirSize
	}
	if override.MaxFileSize != nil {
		c.MaxFileSize = *override.MaxFileSize
	}
	if override.RootMode != nil {
		c.RootMode = *override.RootMode
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	if c.LockPoolSize < 1 {
		return fmt.Errorf("lock pool size must be at least 1, got %d", c.LockPoolSize)
	}
	if c.InitFileCapacity < 0 {
		return fmt.Errorf("initial file capacity must not be negative, got %d", c.InitFileCapacity)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max file size must not be negative, got %d", c.MaxFileSize)
	}
	if c.MaxFileSize > 0 && int64(c.InitFileCapacity) > c.MaxFileSize {
		return fmt.Errorf("initial file capacity %d exceeds max file size %d", c.InitFileCapacity, c.MaxFileSize)
	}
	return nil
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// envConfig mirrors the env-settable fields of [ConfigOverride]
type envConfig struct {
	FsName           string  `env:"MEMFS_FS_NAME"`
	Name             string  `env:"MEMFS_NAME"`
	Debug            bool    `env:"MEMFS_DEBUG"`
	AllowOther       bool    `env:"MEMFS_ALLOW_OTHER"`
	LogLvl           int     `env:"MEMFS_VERBOSE"`
	LockPoolSize     int     `env:"MEMFS_LOCK_POOL_SIZE"`
	InitFileCapacity int     `env:"MEMFS_INIT_FILE_CAPACITY"`
	DirSize          int64   `env:"MEMFS_DIR_SIZE"`
	MaxFileSize      int64   `env:"MEMFS_MAX_FILE_SIZE"`
	RootMode         uint32  `env:"MEMFS_ROOT_MODE"`
	AttrTimeout      float64 `env:"MEMFS_ATTR_TIMEOUT"`
	EntryTimeout     float64 `env:"MEMFS_ENTRY_TIMEOUT"`
}

// LoadEnvOverride reads MEMFS_* environment variables into an override.
// Unset variables leave their fields nil.
func LoadEnvOverride() (*ConfigOverride, error) {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}

	var override ConfigOverride
	set := func(key string, apply func()) {
		if _, ok := os.LookupEnv(key); ok {
			apply()
		}
	}
	set("MEMFS_FS_NAME", func() { override.FsName = &env.FsName })
	set("MEMFS_NAME", func() { override.Name = &env.Name })
	set("MEMFS_DEBUG", func() { override.Debug = &env.Debug })
	set("MEMFS_ALLOW_OTHER", func() { override.AllowOther = &env.AllowOther })
	set("MEMFS_VERBOSE", func() { override.LogLvl = &env.LogLvl })
	set("MEMFS_LOCK_POOL_SIZE", func() { override.LockPoolSize = &env.LockPoolSize })
	set("MEMFS_INIT_FILE_CAPACITY", func() { override.InitFileCapacity = &env.InitFileCapacity })
	set("MEMFS_DIR_SIZE", func() { override.DirSize = &env.DirSize })
	set("MEMFS_MAX_FILE_SIZE", func() { override.MaxFileSize = &env.MaxFileSize })
	set("MEMFS_ROOT_MODE", func() { override.RootMode = &env.RootMode })
	set("MEMFS_ATTR_TIMEOUT", func() { override.AttrTimeout = &env.AttrTimeout })
	set("MEMFS_ENTRY_TIMEOUT", func() { override.EntryTimeout = &env.EntryTimeout })
	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
