package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Concurrency bounds how many clips are analyzed at once
	Concurrency int `yaml:"concurrency"`

	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Motion     MotionConfig     `yaml:"motion"`
	Tempo      TempoConfig      `yaml:"tempo"`
	Color      ColorConfig      `yaml:"color"`
	Compat     CompatConfig     `yaml:"compat"`
	Categorize CategorizeConfig `yaml:"categorize"`
	Store      StoreConfig      `yaml:"store"`
	Cache      CacheConfig      `yaml:"cache"`
	Caption    CaptionConfig    `yaml:"caption"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type FFmpegConfig struct {
	Threads int `yaml:"threads"`
}

type MotionConfig struct {
	SampleFrames     int     `yaml:"sample_frames"`
	SceneThreshold   float64 `yaml:"scene_threshold"`
	HeatmapMaxFrames int     `yaml:"heatmap_max_frames"`
}

type TempoConfig struct {
	SampleRate  int           `yaml:"sample_rate"`
	MaxDuration time.Duration `yaml:"max_duration"`
}

type ColorConfig struct {
	Clusters     int   `yaml:"clusters"`
	PerFrame     int   `yaml:"per_frame"`
	SampleFrames int   `yaml:"sample_frames"`
	Attempts     int   `yaml:"attempts"`
	Seed         int64 `yaml:"seed"`
}

type CompatConfig struct {
	// ScanLimit bounds the MP4 box walk, in bytes
	ScanLimit   int64   `yaml:"scan_limit"`
	LargeFileMB float64 `yaml:"large_file_mb"`
}

type CategorizeConfig struct {
	TaxonomyPath   string  `yaml:"taxonomy_path"`
	UseCasesPath   string  `yaml:"use_cases_path"`
	MinSuitability float64 `yaml:"min_suitability"`
}

type StoreConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

type CaptionConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type PipelineConfig struct {
	KeyFrameDistance int           `yaml:"key_frame_distance"`
	WatchDebounce    time.Duration `yaml:"watch_debounce"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the analyzers cannot work with
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Motion.SampleFrames < 2 {
		return fmt.Errorf("motion.sample_frames must be at least 2, got %d", c.Motion.SampleFrames)
	}
	if c.Color.Clusters < 1 || c.Color.PerFrame < 1 {
		return fmt.Errorf("color.clusters and color.per_frame must be positive")
	}
	if c.Tempo.SampleRate <= 0 {
		return fmt.Errorf("tempo.sample_rate must be positive, got %d", c.Tempo.SampleRate)
	}
	if c.Compat.ScanLimit <= 0 {
		return fmt.Errorf("compat.scan_limit must be positive, got %d", c.Compat.ScanLimit)
	}
	return nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return renameio.WriteFile(path, data, 0644)
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Concurrency: 4,
		FFmpeg: FFmpegConfig{
			Threads: 0,
		},
		Motion: MotionConfig{
			SampleFrames:     30,
			SceneThreshold:   30,
			HeatmapMaxFrames: 100,
		},
		Tempo: TempoConfig{
			SampleRate:  22050,
			MaxDuration: 60 * time.Second,
		},
		Color: ColorConfig{
			Clusters:     5,
			PerFrame:     3,
			SampleFrames: 3,
			Attempts:     10,
			Seed:         1,
		},
		Compat: CompatConfig{
			ScanLimit:   1 << 20,
			LargeFileMB: 50,
		},
		Categorize: CategorizeConfig{
			MinSuitability: 30,
		},
		Store: StoreConfig{
			Path:        "./clipsignal.db",
			BusyTimeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 10 * time.Minute,
		},
		Caption: CaptionConfig{
			Timeout: 120 * time.Second,
		},
		Pipeline: PipelineConfig{
			KeyFrameDistance: 10,
			WatchDebounce:    2 * time.Second,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".clipsignal", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
