// Package analysis measures recorded chunks: loudness for the level meter
// and the silence gate, and how much of the energy sits in the humming band.
package analysis

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-audio/wav"
)

const (
	// MinDBFS is reported for digital silence.
	MinDBFS = -96.0

	HumLowHz  = 80.0
	HumHighHz = 1100.0
)

type Level struct {
	Duration   time.Duration
	SampleRate int
	RMS        float64 // normalized to [0,1]
	Peak       float64 // normalized to [0,1]
	DBFS       float64
	HumRatio   float64 // share of spectral energy between HumLowHz and HumHighHz
}

// Silent reports whether the chunk is quieter than thresholdDBFS.
func (l *Level) Silent(thresholdDBFS float64) bool {
	return l.DBFS < thresholdDBFS
}

// Analyze decodes a WAV chunk and measures it.
func Analyze(data []byte) (*Level, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, errors.New("wav has no sample rate")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	samples := toMonoFloat(buf.Data, buf.Format.NumChannels, bitDepth)
	return measure(samples, buf.Format.SampleRate), nil
}

func toMonoFloat(data []int, channels, bitDepth int) []float64 {
	if channels <= 0 {
		channels = 1
	}
	scale := float64(int64(1) << uint(bitDepth-1))
	out := make([]float64, len(data)/channels)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(data[i*channels+c])
		}
		out[i] = sum / float64(channels) / scale
	}
	return out
}

func measure(samples []float64, sampleRate int) *Level {
	l := &Level{
		SampleRate: sampleRate,
		Duration:   time.Duration(len(samples)) * time.Second / time.Duration(sampleRate),
		DBFS:       MinDBFS,
	}
	if len(samples) == 0 {
		return l
	}

	var sumSq float64
	for _, s := range samples {
		sumSq += s * s
		if a := math.Abs(s); a > l.Peak {
			l.Peak = a
		}
	}
	l.RMS = math.Sqrt(sumSq / float64(len(samples)))
	if l.RMS > 0 {
		l.DBFS = math.Max(MinDBFS, 20*math.Log10(l.RMS))
	}

	l.HumRatio = humRatio(samples, sampleRate)
	return l
}

func humRatio(samples []float64, sampleRate int) float64 {
	frames, err := STFT(samples, WindowSize, HopSize, Hamming(WindowSize))
	if err != nil {
		return 0
	}
	binHz := float64(sampleRate) / float64(WindowSize)

	var band, total float64
	for _, mag := range frames {
		for k, m := range mag {
			e := m * m
			total += e
			if f := float64(k) * binHz; f >= HumLowHz && f <= HumHighHz {
				band += e
			}
		}
	}
	if total == 0 {
		return 0
	}
	return band / total
}
