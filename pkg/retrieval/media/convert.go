package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/utils"
)

type ClipConfig struct {
	SampleRate  int           // defaults to 16000
	MaxDuration time.Duration // 0 keeps the whole input
}

// ConvertClip re-encodes any ffmpeg-readable input as a mono 16-bit WAV in
// outputDir, optionally cut to MaxDuration.
func ConvertClip(ctx context.Context, inputPath, outputDir string, cfg ClipConfig) (string, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, base+".query.wav")
	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	args := []string{"-y", "-v", "quiet", "-i", inputPath}
	if cfg.MaxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(cfg.MaxDuration.Seconds(), 'f', 3, 64))
	}
	args = append(args,
		"-ac", "1",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}
