package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/errs"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateFlushing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type sessionConfig struct {
	lockPath string
	log      *logger.Logger
}

type SessionOption func(*sessionConfig)

// WithLockFile makes the session hold an exclusive lock on path from Open to
// Close, so two processes cannot record from the microphone at once.
func WithLockFile(path string) SessionOption {
	return func(c *sessionConfig) {
		c.lockPath = path
	}
}

func WithLogger(log *logger.Logger) SessionOption {
	return func(c *sessionConfig) {
		c.log = log
	}
}

// Session is one opened microphone plus its recorder.
type Session struct {
	id     string
	stream Stream
	lock   *flock.Flock
	log    *logger.Logger

	mu    sync.Mutex
	state State
	seq   int
}

// Open requests the microphone and returns an idle session.
func Open(ctx context.Context, mic Microphone, opts ...SessionOption) (*Session, error) {
	cfg := sessionConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.GetLogger().Named("capture")
	}

	var fl *flock.Flock
	if cfg.lockPath != "" {
		fl = flock.New(cfg.lockPath)
		locked, err := fl.TryLock()
		if err != nil {
			return nil, errs.New(errs.CodeDeviceUnavailable, "acquiring microphone lock", err)
		}
		if !locked {
			return nil, errs.New(errs.CodeDeviceUnavailable, "microphone is held by another session", nil)
		}
	}

	stream, err := mic.Open(ctx)
	if err != nil {
		if fl != nil {
			fl.Unlock()
		}
		var e *errs.Error
		if !errors.As(err, &e) {
			err = errs.New(errs.CodeDeviceUnavailable, "opening microphone", err)
		}
		return nil, err
	}

	s := &Session{
		id:     uuid.NewString(),
		stream: stream,
		lock:   fl,
		log:    cfg.log,
		state:  StateIdle,
	}
	s.log.Debugf("session %s opened", s.id)
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BeginChunk starts recording a new chunk. Only valid from idle.
func (s *Session) BeginChunk() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRecording:
		return errs.ErrAlreadyRecording
	case StateFlushing:
		return errs.ErrFlushing
	case StateClosed:
		return errs.ErrSessionClosed
	}

	if err := s.stream.Start(); err != nil {
		return err
	}
	s.seq++
	s.state = StateRecording
	s.log.Debugf("session %s: chunk %d started", s.id, s.seq)
	return nil
}

// EndChunk stops the current chunk. The session is flushing until the
// returned channel yields the chunk, then idle again.
func (s *Session) EndChunk() (<-chan Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		return nil, errs.ErrNotRecording
	case StateFlushing:
		return nil, errs.ErrFlushing
	case StateClosed:
		return nil, errs.ErrSessionClosed
	}

	src := s.stream.Stop()
	s.state = StateFlushing
	seq := s.seq

	out := make(chan Result, 1)
	go func() {
		res, ok := <-src
		if !ok {
			res = Result{Err: errs.New(errs.CodeDeviceUnavailable, "recorder stopped without data", nil)}
		}
		res.Chunk.SessionID = s.id
		res.Chunk.Seq = seq

		s.mu.Lock()
		if s.state == StateFlushing {
			s.state = StateIdle
		}
		s.mu.Unlock()

		if res.Err != nil {
			s.log.Warnf("session %s: chunk %d failed: %v", s.id, seq, res.Err)
		} else {
			s.log.Debugf("session %s: chunk %d flushed (%d bytes)", s.id, seq, len(res.Chunk.Data))
		}
		out <- res
	}()
	return out, nil
}

// Close stops any in-progress chunk and releases the device. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	recording := s.state == StateRecording
	s.state = StateClosed
	s.mu.Unlock()

	if recording {
		// The in-progress chunk is abandoned.
		go func(ch <-chan Result) { <-ch }(s.stream.Stop())
	}
	err := s.stream.Close()
	if s.lock != nil {
		if uerr := s.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}
	s.log.Debugf("session %s closed", s.id)
	return err
}
