package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/internal/config"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/media"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/results"
)

type matchOptions struct {
	url         string
	normalize   bool
	concurrency int
	jsonOutput  bool
}

func newMatchCmd(flags *globalFlags) *cobra.Command {
	opts := &matchOptions{}

	cmd := &cobra.Command{
		Use:   "match [files...]",
		Short: "Find songs that sound like the given audio files",
		Long: `Find songs that sound like the given audio files.

Files are matched concurrently and reported in the order given. With --url
a clip is downloaded first (yt-dlp must be installed).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.url == "" && len(args) == 0 {
				return errors.New("give at least one file or --url")
			}
			svc, cfg, err := flags.newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			if opts.url != "" {
				v, err := svc.SearchURL(cmd.Context(), opts.url)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), v, opts.jsonOutput)
			}
			return matchFiles(cmd, svc, cfg, args, models.KindAudio, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "", "Download and match a clip from this URL")
	cmd.Flags().BoolVar(&opts.normalize, "normalize", false, "Convert files to mono WAV with ffmpeg before matching")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", 4, "Files matched at once")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newMatchImageCmd(flags *globalFlags) *cobra.Command {
	opts := &matchOptions{}

	cmd := &cobra.Command{
		Use:   "match-image <files...>",
		Short: "Find albums whose cover looks like the given pictures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := flags.newService()
			if err != nil {
				return err
			}
			defer svc.Close()
			return matchFiles(cmd, svc, cfg, args, models.KindImage, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", 4, "Files matched at once")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type fileResult struct {
	path string
	size int64
	view results.View
	err  error
}

func matchFiles(cmd *cobra.Command, svc retrieval.Service, cfg *config.Config, paths []string, kind models.Kind, opts *matchOptions) error {
	ctx := cmd.Context()
	out := make([]fileResult, len(paths))

	var workDir string
	if opts.normalize {
		dir, err := os.MkdirTemp(cfg.TempDir, "match-*")
		if err != nil {
			return fmt.Errorf("creating work dir: %w", err)
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.concurrency))
	for i, path := range paths {
		g.Go(func() error {
			res := fileResult{path: path}
			defer func() { out[i] = res }()

			info, err := os.Stat(path)
			if err != nil {
				res.err = err
				return nil
			}
			res.size = info.Size()

			query := path
			if workDir != "" {
				clip, err := media.ConvertClip(gctx, path, filepath.Join(workDir, fmt.Sprint(i)), media.ClipConfig{
					SampleRate:  cfg.Capture.SampleRate,
					MaxDuration: cfg.Capture.Segment,
				})
				if err != nil {
					res.err = err
					return nil
				}
				query = clip
			}

			resp, err := svc.MatchFile(gctx, query, kind)
			if err != nil {
				res.err = err
				return nil
			}
			res.view = viewOf(resp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	var failed []error
	for _, r := range out {
		if !opts.jsonOutput {
			fmt.Fprintf(w, "== %s (%s)\n", r.path, humanize.Bytes(uint64(r.size)))
		}
		if r.err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", r.path, r.err))
			if !opts.jsonOutput {
				fmt.Fprintf(w, "failed: %v\n\n", r.err)
			}
			continue
		}
		if err := render(w, r.view, opts.jsonOutput); err != nil {
			return err
		}
		if !opts.jsonOutput {
			fmt.Fprintln(w)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d files failed: %w", len(failed), len(paths), errors.Join(failed...))
	}
	return nil
}

// viewOf renders a standalone response the same way the coordinator would.
func viewOf(resp *models.MatchResponse) results.View {
	return results.View{
		Mode:      results.ModeFor(resp.Kind),
		Items:     resp.Items,
		Elapsed:   resp.Elapsed,
		NoResults: len(resp.Items) == 0,
	}
}

func render(w io.Writer, v results.View, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(w, v)
	}
	if v.Err != nil {
		return v.Err
	}
	return printView(w, v)
}
