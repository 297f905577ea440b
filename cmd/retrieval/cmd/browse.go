package cmd

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/internal/tui/app"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
)

func newBrowseCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Open the interactive catalog browser",
		Long: `Open the interactive catalog browser.

Page through songs and albums, search by name, upload a clip or cover to
match, or record from the microphone (r once, c continuously).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isatty.IsTerminal(os.Stdout.Fd()) {
				return errors.New("browse needs a terminal; use songs, albums or match instead")
			}

			svc, _, err := flags.newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			// Log lines would tear the alternate screen.
			logger.SetLevel(logger.ERROR)

			ctx := cmd.Context()
			p := tea.NewProgram(app.New(ctx, svc), tea.WithAltScreen(), tea.WithContext(ctx))
			final, err := p.Run()
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			if m, ok := final.(app.Model); ok && m.Err() != nil {
				return fmt.Errorf("releasing microphone: %w", m.Err())
			}
			return nil
		},
	}
}
