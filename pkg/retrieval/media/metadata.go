// Package media inspects and prepares query files with the ffmpeg and
// yt-dlp tool chain.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
)

type Metadata struct {
	Filename   string
	Title      string
	Artist     string
	Duration   time.Duration
	SampleRate int
	Channels   int
	BitDepth   int
	Format     string

	// Image queries.
	Width  int
	Height int

	HasAudio bool
	HasImage bool
}

// Supports reports whether the file carries the stream a query of kind is
// matched on: an audio stream for audio, a picture for image.
func (m *Metadata) Supports(kind models.Kind) bool {
	if kind == models.KindImage {
		return m.HasImage
	}
	return m.HasAudio
}

// Describe is a short human summary, e.g. "wav, 4.99s, 16000 Hz" or
// "png_pipe, 640x480".
func (m *Metadata) Describe() string {
	parts := []string{m.Format}
	if m.HasImage && !m.HasAudio {
		parts = append(parts, fmt.Sprintf("%dx%d", m.Width, m.Height))
	} else {
		if m.Duration > 0 {
			parts = append(parts, fmt.Sprintf("%.2fs", m.Duration.Seconds()))
		}
		if m.SampleRate > 0 {
			parts = append(parts, fmt.Sprintf("%d Hz", m.SampleRate))
		}
	}
	return strings.Join(parts, ", ")
}

type ffprobeOutput struct {
	Format struct {
		Filename string            `json:"filename"`
		Duration string            `json:"duration"`
		Format   string            `json:"format_name"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType     string `json:"codec_type"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	BitsPerSample int    `json:"bits_per_sample"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
}

func (p *ffprobeOutput) firstStream(codecType string) *ffprobeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == codecType {
			return &p.Streams[i]
		}
	}
	return nil
}

// Probe reads container and stream information with ffprobe. Images are
// reported as a single video stream.
func Probe(ctx context.Context, path string) (*Metadata, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(
		ctx,
		"ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return parseProbe(path, out)
}

func parseProbe(path string, out []byte) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, err
	}

	meta := &Metadata{
		Filename: filepath.Base(path),
		Format:   probe.Format.Format,
	}
	if secs, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		meta.Duration = time.Duration(math.Round(secs * float64(time.Second)))
	}

	audio := probe.firstStream("audio")
	video := probe.firstStream("video")
	if audio == nil && video == nil {
		return nil, errors.New("no audio or image stream found")
	}
	meta.HasAudio = audio != nil
	meta.HasImage = video != nil
	if audio != nil {
		meta.SampleRate, _ = strconv.Atoi(audio.SampleRate)
		meta.Channels = audio.Channels
		meta.BitDepth = audio.BitsPerSample
	}
	if video != nil {
		meta.Width = video.Width
		meta.Height = video.Height
	}

	if probe.Format.Tags != nil {
		meta.Title = probe.Format.Tags["title"]
		meta.Artist = probe.Format.Tags["artist"]
	}
	return meta, nil
}
