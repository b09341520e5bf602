// Package config loads viewer settings from flags, QUICKVIEW_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"clip-quickview/internal/logger"
	"clip-quickview/internal/sources"
)

const (
	EnvPrefix = "QUICKVIEW"

	defaultDisplayWorkers = 2
	defaultCacheMinimum   = 10
	defaultCacheFrequency = 5
	defaultCaptures       = 3
	defaultLogLevel       = "info"
	defaultAPIAddr        = "127.0.0.1:3030"
	defaultWindowWidth    = 1280
	defaultWindowHeight   = 720
)

type Config struct {
	DisplayWorkers         int      `mapstructure:"display-workers"`
	CacheMinimumSize       int      `mapstructure:"cache-minimum-size"`
	CacheCleaningFrequency int      `mapstructure:"cache-cleaning-frequency"`
	CapturesPerClip        int      `mapstructure:"captures-per-clip"`
	LogLevel               string   `mapstructure:"log-level"`
	JSONLogs               bool     `mapstructure:"json-logs"`
	APIEnabled             bool     `mapstructure:"api-enabled"`
	APIAddr                string   `mapstructure:"api-addr"`
	Scale                  float64  `mapstructure:"scale"`
	Force8Bit              bool     `mapstructure:"force-8bit"`
	WindowWidth            int      `mapstructure:"window-width"`
	WindowHeight           int      `mapstructure:"window-height"`
	Names                  []string `mapstructure:"names"`
	Kind                   string   `mapstructure:"kind"`

	Clips      []string `mapstructure:"-"`
	ConfigPath string   `mapstructure:"-"`
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("clip-quickview", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.String("config", "", "YAML config file")
	fs.Int("display-workers", defaultDisplayWorkers, "decode workers serving the display")
	fs.Int("cache-minimum-size", defaultCacheMinimum, "frames kept per clip after a cleaning pass")
	fs.Int("cache-cleaning-frequency", defaultCacheFrequency, "insertions between cleaning passes")
	fs.Int("captures-per-clip", defaultCaptures, "idle video captures kept open per clip")
	fs.String("log-level", defaultLogLevel, "debug, info, warning or error")
	fs.Bool("json-logs", false, "log JSON instead of console output")
	fs.Bool("api-enabled", false, "serve the HTTP control API")
	fs.String("api-addr", defaultAPIAddr, "HTTP control API listen address")
	fs.Float64("scale", 0, "UI scale factor, 0 keeps the toolkit default")
	fs.Bool("force-8bit", false, "read image sequences at 8 bits per sample, keeping gray sequences gray")
	fs.Int("window-width", defaultWindowWidth, "initial window width")
	fs.Int("window-height", defaultWindowHeight, "initial window height")
	fs.StringArray("names", nil, "display name for each positional clip, in order")
	fs.String("kind", "", "clip kind for positional clips: video, sequence or empty to detect")
	return fs
}

// Load parses args (without the program name). Positional arguments are clip
// paths registered into slots 0 and up. pflag.ErrHelp is returned as is.
func Load(args []string) (Config, error) {
	var cfg Config

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return cfg, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	cfg.Clips = fs.Args()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Usage returns the flag help text.
func Usage() string {
	return newFlagSet().FlagUsages()
}

func (c Config) Validate() error {
	var errs []error

	positive := map[string]int{
		"display-workers":          c.DisplayWorkers,
		"cache-minimum-size":       c.CacheMinimumSize,
		"cache-cleaning-frequency": c.CacheCleaningFrequency,
		"captures-per-clip":        c.CapturesPerClip,
		"window-width":             c.WindowWidth,
		"window-height":            c.WindowHeight,
	}
	for _, key := range []string{
		"display-workers", "cache-minimum-size",
		"cache-cleaning-frequency", "captures-per-clip", "window-width", "window-height",
	} {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s: %d", key, positive[key]))
		}
	}

	if math.IsNaN(c.Scale) || math.IsInf(c.Scale, 0) || c.Scale < 0 {
		errs = append(errs, fmt.Errorf("invalid scale: %v", c.Scale))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.APIEnabled && c.APIAddr == "" {
		errs = append(errs, errors.New("api-addr is required when api-enabled is set"))
	}
	if len(c.Clips) > sources.SlotCount {
		errs = append(errs, fmt.Errorf("too many clips: %d, at most %d slots", len(c.Clips), sources.SlotCount))
	}

	return errors.Join(errs...)
}

// ClipName returns the configured display name for the i-th positional clip.
func (c Config) ClipName(i int) string {
	if i >= 0 && i < len(c.Names) {
		return c.Names[i]
	}
	return ""
}
