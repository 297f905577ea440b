package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/results"
)

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var (
		limit int
		kind  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent searches",
		Long: `Show recent searches from the history journal.

The journal is only kept when a history file is configured (--history,
history.path in the config file, or RETRIEVAL_HISTORY_DB).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cfg.History.Path == "" {
				return errors.New("no history file configured; pass --history or set history.path")
			}
			svc, _, err := flags.newServiceFrom(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			entries, err := svc.History(limit, kind)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No searches yet.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tKIND\tSOURCE\tQUERY\tOUTCOME\tTOP MATCH")
			for _, e := range entries {
				top := e.TopName
				if e.TopScore != nil {
					top += " (" + results.FormatSimilarity(e.TopScore) + ")"
				}
				if e.Error != "" {
					top = e.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					humanize.Time(e.CreatedAt), e.Kind, e.Source, e.Query, e.Outcome, top)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries")
	cmd.Flags().StringVar(&kind, "kind", "", "Only audio or image searches")
	return cmd
}
