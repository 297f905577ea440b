package capture

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV encodes 16-bit PCM samples (interleaved if channels > 1) as a
// WAV file and returns its bytes. The encoder needs a seekable writer, so the
// file goes through tempDir.
func EncodeWAV(samples []int, sampleRate, channels int, tempDir string) ([]byte, error) {
	if channels <= 0 {
		channels = DefaultChannels
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	f, err := os.CreateTemp(tempDir, "chunk-*.wav")
	if err != nil {
		return nil, fmt.Errorf("creating temp wav: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return nil, fmt.Errorf("finalizing wav: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing temp wav: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading temp wav: %w", err)
	}
	return data, nil
}
