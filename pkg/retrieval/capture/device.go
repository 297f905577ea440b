// Package capture owns the microphone: a Session holds one exclusively
// opened input stream and records it one bounded chunk at a time.
package capture

import (
	"context"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
)

// Result is delivered once per chunk, after the encoder has flushed.
type Result struct {
	Chunk models.Chunk
	Err   error
}

// Microphone grants access to an input device.
type Microphone interface {
	// Open acquires the device. Errors are errs.ErrPermissionDenied or
	// errs.ErrDeviceUnavailable.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an opened device bound to a single recorder.
type Stream interface {
	// Start begins encoding a new chunk.
	Start() error
	// Stop ends the current chunk. The returned channel yields exactly one
	// Result once the encoder has flushed.
	Stop() <-chan Result
	// Close releases the device. Safe to call while a Stop is flushing.
	Close() error
}

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1

	chunkFilename    = "audio.wav"
	chunkContentType = "audio/wav"
)
