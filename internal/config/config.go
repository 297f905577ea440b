// Package config loads the retrieval CLI configuration from a YAML file
// and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/capture"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/catalog"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/dispatch"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/schedule"
)

// Config is the complete CLI configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Capture CaptureConfig `yaml:"capture"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
	TempDir string        `yaml:"temp_dir"`
}

type APIConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	PageSize int           `yaml:"page_size"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type CaptureConfig struct {
	InputFormat string        `yaml:"input_format"`
	InputDevice string        `yaml:"input_device"`
	SampleRate  int           `yaml:"sample_rate"`
	Countdown   time.Duration `yaml:"countdown"`
	Segment     time.Duration `yaml:"segment"`
	Settle      time.Duration `yaml:"settle"`
	LockFile    string        `yaml:"lock_file"`

	// MinLevelDBFS enables the silence gate when non-zero.
	MinLevelDBFS float64 `yaml:"min_level_dbfs"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	sched := schedule.DefaultConfig()
	return &Config{
		API: APIConfig{
			BaseURL:  dispatch.DefaultBaseURL,
			Timeout:  dispatch.DefaultTimeout,
			PageSize: catalog.DefaultPageSize,
			CacheTTL: catalog.DefaultCacheTTL,
		},
		Capture: CaptureConfig{
			SampleRate: capture.DefaultSampleRate,
			Countdown:  sched.Countdown,
			Segment:    sched.Segment,
			Settle:     sched.Settle,
			LockFile:   filepath.Join(os.TempDir(), "retrieval-microphone.lock"),
		},
		Log:     LogConfig{Level: "info"},
		TempDir: os.TempDir(),
	}
}

// DefaultPath is ~/.config/retrieval/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "retrieval", "config.yaml")
}

// Load reads defaults, then path (if it exists), then environment
// overrides, and validates the result. An explicit path that does not
// exist is an error; the default path is optional.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	// Decoding over the defaults keeps every key the file leaves out.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RETRIEVAL_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("RETRIEVAL_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.API.PageSize = n
		}
	}
	if v := os.Getenv("RETRIEVAL_TEMP_DIR"); v != "" {
		c.TempDir = v
	}
	if v := os.Getenv("RETRIEVAL_HISTORY_DB"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("RETRIEVAL_INPUT_FORMAT"); v != "" {
		c.Capture.InputFormat = v
	}
	if v := os.Getenv("RETRIEVAL_INPUT_DEVICE"); v != "" {
		c.Capture.InputDevice = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) Validate() error {
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.PageSize < 1 || c.API.PageSize > catalog.MaxPageSize {
		return fmt.Errorf("api.page_size must be between 1 and %d, got %d", catalog.MaxPageSize, c.API.PageSize)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.API.CacheTTL < 0 {
		return fmt.Errorf("api.cache_ttl must not be negative, got %s", c.API.CacheTTL)
	}
	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("capture.sample_rate must be positive, got %d", c.Capture.SampleRate)
	}
	if c.Capture.MinLevelDBFS > 0 {
		return fmt.Errorf("capture.min_level_dbfs must be at most 0, got %.1f", c.Capture.MinLevelDBFS)
	}
	for _, mode := range []schedule.Mode{schedule.SingleShot, schedule.Continuous} {
		if err := c.Schedule(mode).Validate(); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
	}
	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// Schedule returns the capture timing for mode.
func (c *Config) Schedule(mode schedule.Mode) schedule.Config {
	return schedule.Config{
		Mode:      mode,
		Countdown: c.Capture.Countdown,
		Segment:   c.Capture.Segment,
		Settle:    c.Capture.Settle,
	}
}

// Options maps the configuration onto service options.
func (c *Config) Options() []retrieval.Option {
	opts := []retrieval.Option{
		retrieval.WithAPIBaseURL(c.API.BaseURL),
		retrieval.WithPageSize(c.API.PageSize),
		retrieval.WithRequestTimeout(c.API.Timeout),
		retrieval.WithCacheTTL(c.API.CacheTTL),
		retrieval.WithTempDir(c.TempDir),
		retrieval.WithCapture(c.Schedule(schedule.Continuous)),
		retrieval.WithInput(c.Capture.InputFormat, c.Capture.InputDevice),
		retrieval.WithSampleRate(c.Capture.SampleRate),
	}
	if c.Capture.LockFile != "" {
		opts = append(opts, retrieval.WithLockPath(c.Capture.LockFile))
	}
	if c.Capture.MinLevelDBFS < 0 {
		opts = append(opts, retrieval.WithSilenceGate(c.Capture.MinLevelDBFS))
	}
	if c.History.Path != "" {
		opts = append(opts, retrieval.WithHistoryPath(c.History.Path))
	}
	return opts
}
