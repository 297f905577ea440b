package retrieval

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/capture"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/catalog"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/dispatch"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/media"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/schedule"
)

type Config struct {
	APIBaseURL     string
	PageSize       int
	TempDir        string
	RequestTimeout time.Duration
	CacheTTL       time.Duration

	Capture     schedule.Config
	Microphone  capture.Microphone
	InputFormat string
	InputDevice string
	SampleRate  int
	LockPath    string
	Clock       clockwork.Clock

	// SilenceGate skips recorded chunks quieter than MinLevelDBFS.
	SilenceGate  bool
	MinLevelDBFS float64

	HistoryPath string
	History     HistoryStore

	// Prober inspects query files before upload. Files it can read but
	// that lack the stream the query kind needs are rejected.
	Prober Prober

	Logger     *logger.Logger
	HTTPClient *http.Client
}

type Option func(*Config)

// Prober reads stream information from a local media file.
type Prober func(ctx context.Context, path string) (*media.Metadata, error)

func WithAPIBaseURL(url string) Option {
	return func(c *Config) {
		c.APIBaseURL = url
	}
}

func WithPageSize(n int) Option {
	return func(c *Config) {
		c.PageSize = n
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithCacheTTL sets how long browse pages are cached. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Config) {
		c.CacheTTL = d
	}
}

func WithCapture(cfg schedule.Config) Option {
	return func(c *Config) {
		c.Capture = cfg
	}
}

// WithMicrophone replaces the default ffmpeg microphone.
func WithMicrophone(mic capture.Microphone) Option {
	return func(c *Config) {
		c.Microphone = mic
	}
}

// WithInput selects the ffmpeg input format and device.
func WithInput(format, device string) Option {
	return func(c *Config) {
		c.InputFormat = format
		c.InputDevice = device
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithLockPath makes listening hold an exclusive lock file on the
// microphone.
func WithLockPath(path string) Option {
	return func(c *Config) {
		c.LockPath = path
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

func WithSilenceGate(minDBFS float64) Option {
	return func(c *Config) {
		c.SilenceGate = true
		c.MinLevelDBFS = minDBFS
	}
}

// WithHistoryPath enables the SQLite search journal at path.
func WithHistoryPath(path string) Option {
	return func(c *Config) {
		c.HistoryPath = path
	}
}

func WithHistory(store HistoryStore) Option {
	return func(c *Config) {
		c.History = store
	}
}

func WithProber(p Prober) Option {
	return func(c *Config) {
		c.Prober = p
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

func defaultConfig() *Config {
	return &Config{
		APIBaseURL:     dispatch.DefaultBaseURL,
		PageSize:       catalog.DefaultPageSize,
		TempDir:        os.TempDir(),
		RequestTimeout: dispatch.DefaultTimeout,
		CacheTTL:       catalog.DefaultCacheTTL,
		Capture:        schedule.DefaultConfig(),
		SampleRate:     capture.DefaultSampleRate,
		MinLevelDBFS:   -50,
		Prober:         media.Probe,
	}
}
