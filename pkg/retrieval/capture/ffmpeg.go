package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/errs"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/utils"
)

type FFmpegConfig struct {
	Binary      string // defaults to "ffmpeg"
	InputFormat string // ffmpeg -f, e.g. "pulse", "alsa", "avfoundation", "dshow"
	InputDevice string // ffmpeg -i
	SampleRate  int
	Channels    int
	TempDir     string
	Logger      *logger.Logger

	// ProbeTimeout bounds the trial capture Open runs against the device.
	ProbeTimeout time.Duration
}

const defaultProbeTimeout = 5 * time.Second

// DefaultInput returns the ffmpeg input format and device for the platform's
// default microphone.
func DefaultInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

// FFmpegMicrophone records each chunk with its own ffmpeg process writing a
// mono 16-bit WAV into TempDir.
type FFmpegMicrophone struct {
	cfg FFmpegConfig
}

func NewFFmpegMicrophone(cfg FFmpegConfig) *FFmpegMicrophone {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.InputFormat == "" || cfg.InputDevice == "" {
		format, device := DefaultInput()
		if cfg.InputFormat == "" {
			cfg.InputFormat = format
		}
		if cfg.InputDevice == "" {
			cfg.InputDevice = device
		}
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().Named("ffmpeg")
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	return &FFmpegMicrophone{cfg: cfg}
}

func (m *FFmpegMicrophone) Open(ctx context.Context) (Stream, error) {
	bin, err := exec.LookPath(m.cfg.Binary)
	if err != nil {
		return nil, errs.New(errs.CodeDeviceUnavailable, "ffmpeg not found in PATH", err)
	}
	if err := utils.MakeDir(m.cfg.TempDir); err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	if err := m.probe(ctx, bin); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cfg.Logger.Debugf("opened %s input %q", m.cfg.InputFormat, m.cfg.InputDevice)
	return &ffmpegStream{cfg: m.cfg, bin: bin, ctx: ctx, cancel: cancel}, nil
}

// probe records a tenth of a second into the null muxer so a refused or
// missing device fails Open instead of the first chunk.
func (m *FFmpegMicrophone) probe(ctx context.Context, bin string) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", m.cfg.InputFormat,
		"-i", m.cfg.InputDevice,
		"-t", "0.1",
		"-f", "null", "-",
	)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errs.New(errs.CodeDeviceUnavailable,
				fmt.Sprintf("%s input %q did not respond within %s", m.cfg.InputFormat, m.cfg.InputDevice, m.cfg.ProbeTimeout), ctx.Err())
		}
		return classifyFFmpegError(stderr.String(), err)
	}
	return nil
}

type ffmpegRecording struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *bytes.Buffer
	path    string
	started time.Time
}

type ffmpegStream struct {
	cfg    FFmpegConfig
	bin    string
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	cur    *ffmpegRecording
	closed bool
}

func (s *ffmpegStream) args(outPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-f", s.cfg.InputFormat,
		"-i", s.cfg.InputDevice,
		"-ac", strconv.Itoa(s.cfg.Channels),
		"-ar", strconv.Itoa(s.cfg.SampleRate),
		"-c:a", "pcm_s16le",
		"-y",
		outPath,
	}
}

func (s *ffmpegStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.ErrSessionClosed
	}
	if s.cur != nil {
		return errs.ErrAlreadyRecording
	}

	outPath := filepath.Join(s.cfg.TempDir, fmt.Sprintf("chunk-%s.wav", uuid.NewString()))
	cmd := exec.CommandContext(s.ctx, s.bin, s.args(outPath)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return classifyFFmpegError(stderr.String(), err)
	}
	s.cur = &ffmpegRecording{cmd: cmd, stdin: stdin, stderr: &stderr, path: outPath, started: time.Now()}
	return nil
}

// Stop asks ffmpeg to finish ("q" on stdin), waits for it to write the WAV
// trailer and exit, then yields the file.
func (s *ffmpegStream) Stop() <-chan Result {
	out := make(chan Result, 1)

	s.mu.Lock()
	rec := s.cur
	s.cur = nil
	s.mu.Unlock()

	if rec == nil {
		out <- Result{Err: errs.ErrNotRecording}
		return out
	}

	go func() {
		defer os.Remove(rec.path)

		io.WriteString(rec.stdin, "q")
		rec.stdin.Close()
		waitErr := rec.cmd.Wait()
		elapsed := time.Since(rec.started)

		data, readErr := os.ReadFile(rec.path)
		if len(data) == 0 {
			cause := waitErr
			if cause == nil {
				cause = readErr
			}
			if cause == nil {
				cause = fmt.Errorf("ffmpeg produced an empty recording")
			}
			out <- Result{Err: classifyFFmpegError(rec.stderr.String(), cause)}
			return
		}
		if waitErr != nil {
			s.cfg.Logger.Debugf("ffmpeg exited with %v after writing %d bytes", waitErr, len(data))
		}
		out <- Result{Chunk: models.Chunk{
			Blob:     models.Blob{Data: data, Filename: chunkFilename, ContentType: chunkContentType},
			Duration: elapsed,
		}}
	}()
	return out
}

func (s *ffmpegStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return nil
}

// classifyFFmpegError maps ffmpeg's stderr to the capture error taxonomy.
func classifyFFmpegError(stderr string, cause error) error {
	msg := lastLine(stderr)
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "operation not permitted"),
		strings.Contains(lower, "not authorized"):
		if msg == "" {
			msg = "microphone permission denied"
		}
		return errs.New(errs.CodePermissionDenied, msg, cause)
	default:
		if msg == "" {
			msg = "audio input device unavailable"
		}
		return errs.New(errs.CodeDeviceUnavailable, msg, cause)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
