package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/internal/tui/ui"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/analysis"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/results"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/schedule"
)

const levelMeterWidth = 20

// View renders the TUI.
func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	divider := ui.DividerStyle.Render(strings.Repeat("─", width))

	sections := []string{
		m.renderHeader(),
		m.renderStatusBar(),
		divider,
	}
	if banner := m.renderBanner(); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections, m.renderResults(), divider)
	if m.inputMode != inputNone {
		sections = append(sections, m.input.View())
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("RETRIEVAL")

	tabs := make([]string, 0, 2)
	for _, c := range []models.Catalog{models.CatalogSongs, models.CatalogAlbums} {
		label := strings.ToUpper(string(c))
		if c == m.catalog && m.view.Mode == results.ModeBrowse {
			tabs = append(tabs, ui.TabActiveStyle.Render(label))
		} else {
			tabs = append(tabs, ui.TabStyle.Render(label))
		}
	}

	header := title + "  " + lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	if m.search != "" {
		header += ui.DimStyle.Render(fmt.Sprintf("  search: %q", m.search))
	}
	return header
}

func (m Model) renderStatusBar() string {
	var parts []string

	switch {
	case !m.listening:
		parts = append(parts, ui.IdleDotStyle.Render("○ IDLE"))
	case m.mode == schedule.SingleShot && m.remaining > 0:
		parts = append(parts, ui.RecordingDotStyle.Render("● REC")+" "+
			ui.CountdownStyle.Render(fmt.Sprintf("%ds", m.remaining)))
	case m.capture == schedule.Cooling:
		parts = append(parts, ui.RecordingDotStyle.Render("● LISTEN")+ui.DimStyle.Render(" (next segment)"))
	default:
		parts = append(parts, ui.RecordingDotStyle.Render("● "+strings.ToUpper(m.mode.String())))
	}

	if m.hasLevel {
		meter := renderLevelMeter(m.levelDBFS)
		if m.skipped {
			meter += ui.DimStyle.Render(" too quiet, skipped")
		}
		parts = append(parts, meter)
	}

	if m.pending > 0 || m.matching {
		parts = append(parts, m.spinner.View()+ui.DimStyle.Render(" searching"))
	}

	return strings.Join(parts, "  ")
}

// renderLevelMeter draws the last chunk's level from -60 dBFS to 0.
func renderLevelMeter(dbfs float64) string {
	filled := int((dbfs + 60) / 60 * levelMeterWidth)
	filled = max(0, min(levelMeterWidth, filled))

	var b strings.Builder
	for i := 0; i < levelMeterWidth; i++ {
		switch {
		case i >= filled:
			b.WriteString(ui.LevelGrayStyle.Render("░"))
		case i >= levelMeterWidth*3/4:
			b.WriteString(ui.LevelYellowStyle.Render("█"))
		default:
			b.WriteString(ui.LevelGreenStyle.Render("█"))
		}
	}
	label := fmt.Sprintf(" %.0f dBFS", dbfs)
	if dbfs <= analysis.MinDBFS {
		label = " silent"
	}
	return "MIC " + b.String() + ui.DimStyle.Render(label)
}

func (m Model) renderBanner() string {
	if m.view.Err != nil {
		return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.view.Err.Error())
	}
	if m.notice != "" {
		if m.noticeError {
			return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.notice)
		}
		return ui.NoticeStyle.Render(m.notice)
	}
	return ""
}

func (m Model) renderResults() string {
	var lines []string

	if m.view.Mode != results.ModeBrowse {
		title := "AUDIO MATCHES"
		if m.view.Mode == results.ModeImageMatch {
			title = "IMAGE MATCHES"
		}
		if m.view.Elapsed > 0 {
			title += ui.DimStyle.Render(" · search took " + m.view.Elapsed.Round(time.Millisecond).String())
		}
		lines = append(lines, ui.TitleStyle.Render(title))
	}

	if m.view.NoResults {
		lines = append(lines, ui.DimStyle.Render("  No similar items found."))
		lines = append(lines, ui.DimStyle.Render("  Press Esc to go back."))
		return strings.Join(lines, "\n")
	}
	if len(m.view.Items) == 0 {
		if m.view.Mode == results.ModeBrowse && m.search != "" {
			lines = append(lines, ui.DimStyle.Render("  Nothing matches that name."))
		} else {
			lines = append(lines, ui.DimStyle.Render("  Nothing to show yet."))
		}
		return strings.Join(lines, "\n")
	}

	for i, item := range m.view.Items {
		name := ui.ItemStyle.Render(item.Name)
		marker := "  "
		if i == m.selected {
			name = ui.SelectedStyle.Render(item.Name)
			marker = ui.SelectedStyle.Render("> ")
		}
		line := marker + name
		if score := m.view.Annotation(i); score != "" {
			line += " " + ui.ScoreStyle.Render(score)
		}
		if item.FilePath != "" {
			line += "  " + ui.PathStyle.Render(item.FilePath)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	var parts []string

	if m.view.Mode == results.ModeBrowse {
		parts = append(parts, ui.DimStyle.Render(fmt.Sprintf("Page %d/%d · %s items",
			m.view.Page, max(1, m.view.TotalPages), humanize.Comma(int64(m.view.TotalItems)))))
		parts = append(parts, ui.FooterKeyStyle.Render("←→")+ui.FooterDescStyle.Render(" Page"))
		parts = append(parts, ui.FooterKeyStyle.Render("Tab")+ui.FooterDescStyle.Render(" Catalog"))
		parts = append(parts, ui.FooterKeyStyle.Render("/")+ui.FooterDescStyle.Render(" Search"))
	} else {
		parts = append(parts, ui.FooterKeyStyle.Render("Esc")+ui.FooterDescStyle.Render(" Back"))
	}

	parts = append(parts, ui.FooterKeyStyle.Render("u")+ui.FooterDescStyle.Render(" Upload"))
	if m.listening {
		parts = append(parts, ui.FooterKeyStyle.Render("s")+ui.FooterDescStyle.Render(" Stop"))
	} else {
		parts = append(parts, ui.FooterKeyStyle.Render("r")+ui.FooterDescStyle.Render(" Record"))
		parts = append(parts, ui.FooterKeyStyle.Render("c")+ui.FooterDescStyle.Render(" Listen"))
	}
	parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}
