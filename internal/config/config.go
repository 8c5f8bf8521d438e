package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Bitrates accepted by the upstream url endpoint
var Bitrates = []string{"128", "192", "320", "740", "999"}

// Sources known to the upstream aggregation API
var Sources = []string{
	"netease", "tencent", "tidal", "spotify", "ytmusic", "qobuz", "joox",
	"deezer", "migu", "kugou", "kuwo", "ximalaya", "apple",
}

// Config represents the application configuration
type Config struct {
	API      APIConfig      `json:"api" mapstructure:"api"`
	Download DownloadConfig `json:"download" mapstructure:"download"`
	Storage  StorageConfig  `json:"storage" mapstructure:"storage"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
}

// APIConfig contains upstream API settings
type APIConfig struct {
	BaseURL       string  `json:"base_url" mapstructure:"base_url"`
	DefaultSource string  `json:"default_source" mapstructure:"default_source"`
	SearchCount   int     `json:"search_count" mapstructure:"search_count"`
	RateLimit     float64 `json:"rate_limit" mapstructure:"rate_limit"`
	RateBurst     int     `json:"rate_burst" mapstructure:"rate_burst"`
}

// DownloadConfig contains the settings a download batch is captured from
type DownloadConfig struct {
	Bitrate       string        `json:"bitrate" mapstructure:"bitrate"`
	CoverSize     int           `json:"cover_size" mapstructure:"cover_size"`
	LyricMode     LyricMode     `json:"lyric_mode" mapstructure:"lyric_mode"`
	NumberingMode NumberingMode `json:"numbering_mode" mapstructure:"numbering_mode"`
	MaxConcurrent int           `json:"max_concurrent" mapstructure:"max_concurrent"`
	MusicDir      string        `json:"music_dir" mapstructure:"music_dir"`
	LyricDir      string        `json:"lyric_dir" mapstructure:"lyric_dir"`
}

// StorageConfig contains local persistence settings
type StorageConfig struct {
	DBPath string `json:"db_path" mapstructure:"db_path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	Output     string `json:"output" mapstructure:"output"`
	FilePath   string `json:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// MetricsConfig contains the optional prometheus endpoint
type MetricsConfig struct {
	ListenAddr string `json:"listen_addr" mapstructure:"listen_addr"`
}

// Load loads configuration from file or creates default
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath == "" {
		configPath = GetConfigPath()
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := ensureConfigDir(configPath); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("OBLIVIONIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url cannot be empty")
	}

	if c.API.SearchCount < 1 || c.API.SearchCount > 100 {
		return fmt.Errorf("search count must be between 1 and 100")
	}

	if c.API.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}

	if err := c.Download.Validate(); err != nil {
		return err
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	validOutputs := map[string]bool{"file": true, "console": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s (must be file, console, or both)", c.Logging.Output)
	}

	if c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("log max size must be at least 1 MB")
	}

	return nil
}

// Validate validates the download settings
func (d *DownloadConfig) Validate() error {
	if !isValidBitrate(d.Bitrate) {
		return fmt.Errorf("invalid bitrate: %s (must be one of %v)", d.Bitrate, Bitrates)
	}

	if d.CoverSize < 100 || d.CoverSize > 3000 {
		return fmt.Errorf("cover size must be between 100 and 3000 pixels")
	}

	if !d.LyricMode.Valid() {
		return fmt.Errorf("invalid lyric mode: %s", d.LyricMode)
	}

	if !d.NumberingMode.Valid() {
		return fmt.Errorf("invalid numbering mode: %s", d.NumberingMode)
	}

	if d.MaxConcurrent < 1 || d.MaxConcurrent > 8 {
		return fmt.Errorf("max concurrent downloads must be between 1 and 8")
	}

	if d.MusicDir == "" {
		return fmt.Errorf("music directory cannot be empty")
	}

	if d.LyricMode.File() && d.LyricDir == "" {
		return fmt.Errorf("lyric directory cannot be empty when lyric files are enabled")
	}

	return nil
}

// Snapshot returns a copy of the download settings that later edits to c
// cannot reach.
func (d DownloadConfig) Snapshot() DownloadConfig {
	return d
}

// Save saves the configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.Set("api", c.API)
	v.Set("download", c.Download)
	v.Set("storage", c.Storage)
	v.Set("logging", c.Logging)
	v.Set("metrics", c.Metrics)

	return v.WriteConfigAs(path)
}

func isValidBitrate(br string) bool {
	for _, b := range Bitrates {
		if b == br {
			return true
		}
	}
	return false
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://music-api.gdstudio.xyz/api.php")
	v.SetDefault("api.default_source", "netease")
	v.SetDefault("api.search_count", 20)
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.rate_burst", 10)

	v.SetDefault("download.bitrate", "320")
	v.SetDefault("download.cover_size", 500)
	v.SetDefault("download.lyric_mode", string(LyricModeEmbedAndFile))
	v.SetDefault("download.numbering_mode", string(NumberingNone))
	v.SetDefault("download.max_concurrent", 3)
	v.SetDefault("download.music_dir", filepath.Join(GetDataDir(), "music"))
	v.SetDefault("download.lyric_dir", filepath.Join(GetDataDir(), "lyrics"))

	v.SetDefault("storage.db_path", filepath.Join(GetDataDir(), "data", "oblivionis.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "file")
	v.SetDefault("logging.file_path", filepath.Join(GetDataDir(), "logs", "app.log"))
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("metrics.listen_addr", "")
}

// ensureConfigDir ensures the configuration directory exists
func ensureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

// GetDataDir returns the application data directory
func GetDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "Oblivionis")
	}
	home := os.Getenv("HOME")
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".oblivionis")
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(GetDataDir(), "settings.json")
}
