package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/capture"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/results"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/schedule"
)

type listenOptions struct {
	once       bool
	stdin      bool
	rate       int
	segment    time.Duration
	jsonOutput bool
}

func newListenCmd(flags *globalFlags) *cobra.Command {
	opts := &listenOptions{}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Record from the microphone and match what it hears",
		Long: `Record from the microphone and match what it hears.

By default the microphone records back-to-back segments and matches each
one until Ctrl+C. With --once it records a single countdown clip and exits
after its result. With --stdin raw signed 16-bit little-endian mono PCM is
read from standard input instead, e.g.

  arecord -f S16_LE -r 16000 -c 1 -t raw | retrieval listen --stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			var extra []retrieval.Option
			if opts.rate > 0 {
				cfg.Capture.SampleRate = opts.rate
			}
			if opts.segment > 0 {
				cfg.Capture.Segment = opts.segment
				cfg.Capture.Countdown = opts.segment
			}
			if opts.stdin {
				extra = append(extra, retrieval.WithMicrophone(
					capture.NewReaderMicrophone(cmd.InOrStdin(), cfg.Capture.SampleRate, 1, cfg.TempDir)))
			}

			svc, _, err := flags.newServiceFrom(cfg, extra...)
			if err != nil {
				return err
			}
			defer svc.Close()

			mode := schedule.Continuous
			if opts.once {
				mode = schedule.SingleShot
			}
			return listen(cmd, svc, mode, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.once, "once", false, "Record one clip and exit after its result")
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "Read raw s16le mono PCM from standard input")
	cmd.Flags().IntVar(&opts.rate, "rate", 0, "Sample rate (default from config)")
	cmd.Flags().DurationVar(&opts.segment, "segment", 0, "Clip length (default from config)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func listen(cmd *cobra.Command, svc retrieval.Service, mode schedule.Mode, opts *listenOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	status := cmd.ErrOrStderr()

	if err := svc.StartListening(ctx, mode); err != nil {
		return err
	}
	fmt.Fprintf(status, "listening (%s), Ctrl+C to stop\n", mode)

	waiting := false
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(status, "stopping")
			return svc.StopListening()

		case u := <-svc.Updates():
			switch u.Type {
			case retrieval.UpdateCapture:
				done, err := reportCapture(status, u.Capture, &waiting)
				if err != nil || done {
					return err
				}

			case retrieval.UpdateLevel:
				if u.Level != nil {
					fmt.Fprintf(status, "level %.0f dBFS\n", u.Level.DBFS)
				}
				if u.Skipped {
					fmt.Fprintln(status, "too quiet, not searched")
					waiting = false
					if opts.once {
						return nil
					}
				}

			case retrieval.UpdateView:
				if !waiting || u.View.Mode == results.ModeBrowse {
					continue
				}
				waiting = false
				if u.View.Err != nil {
					fmt.Fprintf(status, "search failed: %v\n", u.View.Err)
				} else if err := render(out, u.View, opts.jsonOutput); err != nil {
					return err
				}
				if opts.once {
					return nil
				}
			}
		}
	}
}

// reportCapture prints a scheduler event. It returns done when listening
// ended on its own.
func reportCapture(w io.Writer, ev schedule.Event, waiting *bool) (bool, error) {
	switch ev.Type {
	case schedule.EventCountdown:
		fmt.Fprintf(w, "recording... %ds\n", ev.Remaining)
	case schedule.EventChunk:
		fmt.Fprintf(w, "clip %d recorded, searching\n", ev.Seq)
		*waiting = true
	case schedule.EventError:
		return true, ev.Err
	case schedule.EventState:
		if ev.State == schedule.Capturing {
			fmt.Fprintln(w, "recording")
		}
	}
	return false, nil
}
