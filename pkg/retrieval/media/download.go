package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/utils"
)

// DownloadClip fetches the audio track of a remote video with yt-dlp and
// returns the path of the downloaded WAV. YouTube downloads are named after
// the video ID.
func DownloadClip(ctx context.Context, rawURL, outputDir string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Minute)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	u, err := utils.ParseClipURL(rawURL)
	if err != nil {
		return "", err
	}
	name := utils.ClipName(u, uuid.NewString())

	dl := ytdlp.New().
		NoPlaylist().
		NoWarnings().
		ExtractAudio().
		AudioFormat("wav").
		Output(filepath.Join(outputDir, name+".%(ext)s"))

	if _, err := dl.Run(ctx, u.String()); err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w", err)
	}

	path := filepath.Join(outputDir, name+".wav")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("yt-dlp output not found: %w", err)
	}
	return path, nil
}
