package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/errs"
)

// ReaderMicrophone turns a raw signed 16-bit little-endian PCM stream (for
// example `arecord -f S16_LE -r 16000 -c 1 -t raw` piped to stdin) into a
// microphone. Samples arriving while no chunk is recording are discarded.
type ReaderMicrophone struct {
	r          io.Reader
	sampleRate int
	channels   int
	tempDir    string

	mu     sync.Mutex
	opened bool
}

func NewReaderMicrophone(r io.Reader, sampleRate, channels int, tempDir string) *ReaderMicrophone {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	return &ReaderMicrophone{r: r, sampleRate: sampleRate, channels: channels, tempDir: tempDir}
}

// Open starts consuming the reader. A reader can back only one stream.
func (m *ReaderMicrophone) Open(ctx context.Context) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opened {
		return nil, errs.New(errs.CodeDeviceUnavailable, "pcm input already consumed by another session", nil)
	}
	m.opened = true

	s := &readerStream{mic: m}
	go s.pump(bufio.NewReaderSize(m.r, 8192))
	return s, nil
}

type readerStream struct {
	mic *ReaderMicrophone

	mu        sync.Mutex
	recording bool
	samples   []int
	started   time.Time
	readErr   error
	closed    bool
}

func (s *readerStream) pump(r *bufio.Reader) {
	var frame [2]byte
	for {
		if _, err := io.ReadFull(r, frame[:]); err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
		sample := int(int16(binary.LittleEndian.Uint16(frame[:])))

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if s.recording {
			s.samples = append(s.samples, sample)
		}
		s.mu.Unlock()
	}
}

func (s *readerStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.ErrSessionClosed
	}
	if s.recording {
		return errs.ErrAlreadyRecording
	}
	if s.readErr != nil {
		return errs.New(errs.CodeDeviceUnavailable, "pcm input ended", s.readErr)
	}
	s.recording = true
	s.samples = make([]int, 0, s.mic.sampleRate*s.mic.channels*5)
	s.started = time.Now()
	return nil
}

func (s *readerStream) Stop() <-chan Result {
	out := make(chan Result, 1)

	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		out <- Result{Err: errs.ErrNotRecording}
		return out
	}
	s.recording = false
	samples := s.samples
	s.samples = nil
	readErr := s.readErr
	elapsed := time.Since(s.started)
	s.mu.Unlock()

	go func() {
		if len(samples) == 0 && readErr != nil {
			out <- Result{Err: errs.New(errs.CodeDeviceUnavailable, "pcm input ended", readErr)}
			return
		}
		data, err := EncodeWAV(samples, s.mic.sampleRate, s.mic.channels, s.mic.tempDir)
		if err != nil {
			out <- Result{Err: err}
			return
		}
		frames := len(samples) / s.mic.channels
		duration := time.Duration(frames) * time.Second / time.Duration(s.mic.sampleRate)
		if frames == 0 {
			duration = elapsed
		}
		out <- Result{Chunk: models.Chunk{
			Blob:     models.Blob{Data: data, Filename: chunkFilename, ContentType: chunkContentType},
			Duration: duration,
		}}
	}()
	return out
}

func (s *readerStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.recording = false
	if c, ok := s.mic.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
