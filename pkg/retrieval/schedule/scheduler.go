// Package schedule turns an open-ended microphone into bounded chunks,
// either once after a countdown or continuously with a settle gap between
// segments.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/capture"
)

type Mode int

const (
	SingleShot Mode = iota
	Continuous
)

func (m Mode) String() string {
	switch m {
	case SingleShot:
		return "single-shot"
	case Continuous:
		return "continuous"
	default:
		return "unknown"
	}
}

type State int

const (
	Stopped State = iota
	Armed
	Capturing
	Cooling
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Armed:
		return "armed"
	case Capturing:
		return "capturing"
	case Cooling:
		return "cooling"
	default:
		return "unknown"
	}
}

type Config struct {
	Mode      Mode
	Countdown time.Duration // single-shot recording length, ticked once per second
	Segment   time.Duration // continuous segment length
	Settle    time.Duration // continuous gap before the next segment
}

func DefaultConfig() Config {
	return Config{
		Mode:      Continuous,
		Countdown: 5 * time.Second,
		Segment:   5 * time.Second,
		Settle:    time.Second,
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case SingleShot:
		if c.Countdown < time.Second {
			return fmt.Errorf("countdown must be at least 1s, got %s", c.Countdown)
		}
	case Continuous:
		if c.Segment <= 0 {
			return fmt.Errorf("segment must be positive, got %s", c.Segment)
		}
		if c.Settle < 0 {
			return fmt.Errorf("settle must not be negative, got %s", c.Settle)
		}
	default:
		return fmt.Errorf("unknown mode %d", c.Mode)
	}
	return nil
}

// Handler receives every completed chunk. It runs on the scheduler's flush
// goroutine and must not block.
type Handler func(models.Chunk)

type Option func(*Scheduler)

func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Scheduler) {
		s.log = log
	}
}

// WithSessionOptions is passed to capture.Open for every session.
func WithSessionOptions(opts ...capture.SessionOption) Option {
	return func(s *Scheduler) {
		s.sessOpts = append(s.sessOpts, opts...)
	}
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(s *Scheduler) {
		s.events = make(chan Event, n)
	}
}

// Scheduler owns at most one capture session. Every timer and flush
// callback carries the cycle token it was created under and does nothing
// once that token is no longer current.
type Scheduler struct {
	mic      capture.Microphone
	handler  Handler
	clock    clockwork.Clock
	log      *logger.Logger
	sessOpts []capture.SessionOption
	events   chan Event

	// startMu serializes Start and Stop.
	startMu sync.Mutex
	// handling is read-held while the handler runs; Stop write-locks it.
	handling sync.RWMutex

	mu        sync.Mutex
	cfg       Config
	state     State
	active    bool
	token     uint64
	remaining int
	session   *capture.Session
	timer     clockwork.Timer
}

func New(mic capture.Microphone, handler Handler, opts ...Option) *Scheduler {
	s := &Scheduler{
		mic:     mic,
		handler: handler,
		cfg:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.log == nil {
		s.log = logger.GetLogger().Named("scheduler")
	}
	s.sessOpts = append([]capture.SessionOption{capture.WithLogger(s.log)}, s.sessOpts...)
	if s.events == nil {
		s.events = make(chan Event, 64)
	}
	if s.handler == nil {
		s.handler = func(models.Chunk) {}
	}
	return s
}

// Events delivers state changes, countdown ticks, chunks and failures.
// Events are dropped when the channel is full.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

type Status struct {
	State     State
	Mode      Mode
	Remaining int
	Active    bool
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{State: s.state, Mode: s.cfg.Mode, Remaining: s.remaining, Active: s.active}
}

// Start opens a capture session and begins the first chunk. A session that
// is already open is closed first.
func (s *Scheduler) Start(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	prev := s.teardownLocked()
	s.cfg = cfg
	s.active = true
	s.token++
	tok := s.token
	s.setStateLocked(Armed)
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			s.log.Warnf("closing previous session: %v", err)
		}
	}

	sess, err := capture.Open(ctx, s.mic, s.sessOpts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(tok) {
		if sess != nil {
			sess.Close()
		}
		return nil
	}
	if err != nil {
		s.failLocked(err)
		return err
	}
	s.session = sess
	s.log.Infof("listening (%s)", cfg.Mode)
	return s.beginCycleLocked()
}

// Stop cancels any pending timer, abandons the chunk in progress and
// releases the microphone. Once it returns the handler is not running and
// will not be called for any chunk recorded so far. Safe to call in any
// state.
func (s *Scheduler) Stop() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	sess := s.teardownLocked()
	s.mu.Unlock()

	s.handling.Lock()
	s.handling.Unlock()

	if sess == nil {
		return nil
	}
	s.log.Infof("stopped listening")
	return sess.Close()
}

func (s *Scheduler) currentLocked(tok uint64) bool {
	return s.active && s.token == tok
}

// teardownLocked invalidates every outstanding callback and hands back the
// session for the caller to close.
func (s *Scheduler) teardownLocked() *capture.Session {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	sess := s.session
	s.session = nil
	s.active = false
	s.remaining = 0
	s.token++
	s.setStateLocked(Stopped)
	return sess
}

func (s *Scheduler) failLocked(err error) {
	s.log.Errorf("capture failed: %v", err)
	s.emitLocked(Event{Type: EventError, State: s.state, Err: err})
	if sess := s.teardownLocked(); sess != nil {
		sess.Close()
	}
}

func (s *Scheduler) beginCycleLocked() error {
	s.token++
	tok := s.token

	if err := s.session.BeginChunk(); err != nil {
		s.failLocked(err)
		return err
	}
	s.setStateLocked(Capturing)

	if s.cfg.Mode == SingleShot {
		s.remaining = int((s.cfg.Countdown + time.Second - 1) / time.Second)
		s.emitLocked(Event{Type: EventCountdown, State: s.state, Remaining: s.remaining})
		s.timer = s.clock.AfterFunc(time.Second, func() { s.tick(tok) })
		return nil
	}
	s.timer = s.clock.AfterFunc(s.cfg.Segment, func() { s.endCycle(tok) })
	return nil
}

func (s *Scheduler) tick(tok uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(tok) {
		return
	}

	s.remaining--
	s.emitLocked(Event{Type: EventCountdown, State: s.state, Remaining: s.remaining})
	if s.remaining > 0 {
		s.timer = s.clock.AfterFunc(time.Second, func() { s.tick(tok) })
		return
	}
	s.endCycleLocked(tok)
}

func (s *Scheduler) endCycle(tok uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(tok) {
		return
	}
	s.endCycleLocked(tok)
}

func (s *Scheduler) endCycleLocked(tok uint64) {
	s.timer = nil
	ch, err := s.session.EndChunk()
	if err != nil {
		s.failLocked(err)
		return
	}
	go s.awaitFlush(tok, ch)
}

func (s *Scheduler) awaitFlush(tok uint64, ch <-chan capture.Result) {
	res := <-ch

	s.mu.Lock()
	if !s.currentLocked(tok) {
		s.mu.Unlock()
		s.log.Debugf("dropping chunk %d from a cancelled cycle", res.Chunk.Seq)
		return
	}
	if res.Err != nil {
		s.failLocked(res.Err)
		s.mu.Unlock()
		return
	}

	var done *capture.Session
	single := s.cfg.Mode == SingleShot
	if single {
		done = s.teardownLocked()
	}
	s.emitLocked(Event{Type: EventChunk, State: s.state, Seq: res.Chunk.Seq})
	s.handling.RLock()
	s.mu.Unlock()

	if done != nil {
		done.Close()
	}
	s.log.Debugf("dispatching chunk %d (%d bytes)", res.Chunk.Seq, len(res.Chunk.Data))
	s.handler(res.Chunk)
	s.handling.RUnlock()
	if single {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(tok) {
		return
	}
	s.setStateLocked(Cooling)
	s.timer = s.clock.AfterFunc(s.cfg.Settle, func() { s.restart(tok) })
}

func (s *Scheduler) restart(tok uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(tok) {
		return
	}
	s.timer = nil
	s.beginCycleLocked()
}

func (s *Scheduler) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	s.emitLocked(Event{Type: EventState, State: st})
}

func (s *Scheduler) emitLocked(ev Event) {
	ev.Mode = s.cfg.Mode
	select {
	case s.events <- ev:
	default:
	}
}
