// Package capturetest provides an in-memory microphone for tests.
package capturetest

import (
	"context"
	"sync"
	"time"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/capture"
)

// Microphone records nothing; every chunk carries Payload. With Hold set,
// flushes stay pending until Release is called.
type Microphone struct {
	OpenErr  error
	StartErr error
	FlushErr error
	Payload  []byte
	Hold     bool

	mu      sync.Mutex
	opens   int
	closes  int
	begins  int
	ends    int
	open    int
	maxOpen int
	pending []chan capture.Result
}

func (m *Microphone) Open(ctx context.Context) (capture.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.opens++
	m.open++
	if m.open > m.maxOpen {
		m.maxOpen = m.open
	}
	return &stream{mic: m}, nil
}

// Release delivers every held flush.
func (m *Microphone) Release() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, ch := range pending {
		ch <- m.result()
	}
}

func (m *Microphone) result() capture.Result {
	if m.FlushErr != nil {
		return capture.Result{Err: m.FlushErr}
	}
	payload := m.Payload
	if payload == nil {
		payload = []byte("RIFF....WAVEfake")
	}
	return capture.Result{Chunk: models.Chunk{
		Blob:     models.Blob{Data: payload, Filename: "audio.wav", ContentType: "audio/wav"},
		Duration: 5 * time.Second,
	}}
}

func (m *Microphone) Opens() int  { return m.get(&m.opens) }
func (m *Microphone) Closes() int { return m.get(&m.closes) }
func (m *Microphone) Begins() int { return m.get(&m.begins) }
func (m *Microphone) Ends() int   { return m.get(&m.ends) }

// OpenStreams is the number of streams opened and not yet closed.
func (m *Microphone) OpenStreams() int { return m.get(&m.open) }

// MaxOpen is the highest OpenStreams ever observed.
func (m *Microphone) MaxOpen() int { return m.get(&m.maxOpen) }

func (m *Microphone) get(p *int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *p
}

type stream struct {
	mic    *Microphone
	closed bool
}

func (s *stream) Start() error {
	s.mic.mu.Lock()
	defer s.mic.mu.Unlock()
	if s.mic.StartErr != nil {
		return s.mic.StartErr
	}
	s.mic.begins++
	return nil
}

func (s *stream) Stop() <-chan capture.Result {
	ch := make(chan capture.Result, 1)

	s.mic.mu.Lock()
	s.mic.ends++
	if s.mic.Hold {
		s.mic.pending = append(s.mic.pending, ch)
		s.mic.mu.Unlock()
		return ch
	}
	s.mic.mu.Unlock()

	ch <- s.mic.result()
	return ch
}

func (s *stream) Close() error {
	s.mic.mu.Lock()
	defer s.mic.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.mic.closes++
	s.mic.open--
	return nil
}
