package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/dustin/go-humanize"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/internal/tui/ui"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/results"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/schedule"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/utils"

	tea "github.com/charmbracelet/bubbletea"
)

// SearchDebounce is how long typing must pause before a catalog search.
const SearchDebounce = time.Second

type inputMode int

const (
	inputNone inputMode = iota
	inputSearch
	inputUpload
)

// Model is the root bubbletea model for the retrieval TUI.
type Model struct {
	svc retrieval.Service
	ctx context.Context

	// Results
	view     results.View
	selected int

	// Browse position
	catalog   models.Catalog
	page      int
	search    string
	searchSeq int

	// Input line
	input     textinput.Model
	inputMode inputMode

	// Requests in flight
	spinner  spinner.Model
	pending  int
	matching bool // a recorded chunk is being searched

	// Capture
	listening bool
	capture   schedule.State
	mode      schedule.Mode
	remaining int
	levelDBFS float64
	hasLevel  bool
	skipped   bool

	// Notices
	notice      string
	noticeError bool
	noticeSeq   int

	// exitErr is set when the microphone could not be released on quit.
	exitErr error

	width  int
	height int
}

// Err reports a failure that happened while quitting.
func (m Model) Err() error {
	return m.exitErr
}

// New creates a Model showing the first songs page.
func New(ctx context.Context, svc retrieval.Service) Model {
	in := textinput.New()
	in.CharLimit = 256

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(ui.SpinnerStyle),
	)

	return Model{
		svc:     svc,
		ctx:     ctx,
		catalog: models.CatalogSongs,
		page:    1,
		input:   in,
		spinner: sp,
	}
}

// Init loads the first page and starts listening for service updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		browseCmd(m.ctx, m.svc, m.catalog, m.page, m.search),
		waitForUpdateCmd(m.svc.Updates()),
		m.spinner.Tick,
	)
}

func waitForUpdateCmd(ch <-chan retrieval.Update) tea.Cmd {
	return func() tea.Msg {
		return UpdateMsg{Update: <-ch}
	}
}

func browseCmd(ctx context.Context, svc retrieval.Service, catalog models.Catalog, page int, search string) tea.Cmd {
	return func() tea.Msg {
		v, err := svc.Browse(ctx, catalog, page, search)
		return ViewMsg{View: v, Err: err}
	}
}

func searchFileCmd(ctx context.Context, svc retrieval.Service, path string, kind models.Kind) tea.Cmd {
	return func() tea.Msg {
		v, err := svc.SearchFile(ctx, path, kind)
		return ViewMsg{View: v, Err: err}
	}
}

func listenCmd(ctx context.Context, svc retrieval.Service, mode schedule.Mode) tea.Cmd {
	return func() tea.Msg {
		if err := svc.StartListening(ctx, mode); err != nil {
			return ListenErrorMsg{Err: err}
		}
		return nil
	}
}

func stopListeningCmd(svc retrieval.Service) tea.Cmd {
	return func() tea.Msg {
		if err := svc.StopListening(); err != nil {
			return ListenErrorMsg{Err: err}
		}
		return nil
	}
}

// quitCmd releases the microphone, then ends the program.
func quitCmd(svc retrieval.Service) tea.Cmd {
	return func() tea.Msg {
		if err := svc.StopListening(); err != nil {
			return ListenErrorMsg{Err: err, Quit: true}
		}
		return tea.Quit()
	}
}

func debounceCmd(seq int) tea.Cmd {
	return tea.Tick(SearchDebounce, func(time.Time) tea.Msg {
		return SearchDebounceMsg{Seq: seq}
	})
}

func clearNoticeCmd(seq int) tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearNoticeMsg{Seq: seq}
	})
}

func (m Model) busy() bool {
	return m.pending > 0 || m.matching || m.listening
}

// request counts a request in flight and restarts the spinner if it was idle.
func (m *Model) request(cmd tea.Cmd) tea.Cmd {
	m.pending++
	if m.pending == 1 {
		return tea.Batch(cmd, m.spinner.Tick)
	}
	return cmd
}

func (m *Model) setNotice(text string, isError bool) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	m.noticeError = isError
	return clearNoticeCmd(m.noticeSeq)
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if m.inputMode != inputNone {
			return m.handleInputKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case UpdateMsg:
		cmd := m.handleUpdate(msg.Update)
		return m, tea.Batch(cmd, waitForUpdateCmd(m.svc.Updates()))

	case ViewMsg:
		if m.pending > 0 {
			m.pending--
		}
		m.applyView(msg.View)
		if msg.Err != nil && msg.View.Err == nil {
			return m, m.setNotice(msg.Err.Error(), true)
		}
		return m, nil

	case SearchDebounceMsg:
		if msg.Seq != m.searchSeq {
			return m, nil
		}
		m.page = 1
		return m, m.request(browseCmd(m.ctx, m.svc, m.catalog, m.page, m.search))

	case UploadMsg:
		return m, m.setNotice(fmt.Sprintf("Searching %s (%s)...", msg.Name, humanize.Bytes(uint64(msg.Size))), false)

	case ListenErrorMsg:
		m.listening = false
		if msg.Quit {
			m.exitErr = msg.Err
			return m, tea.Quit
		}
		return m, m.setNotice(msg.Err.Error(), true)

	case ClearNoticeMsg:
		if msg.Seq == m.noticeSeq {
			m.notice = ""
			m.noticeError = false
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// applyView shows v unless a newer view is already on screen.
func (m *Model) applyView(v results.View) {
	if v.Epoch < m.view.Epoch {
		return
	}
	m.view = v
	if v.Mode == results.ModeBrowse && v.Catalog != "" {
		m.catalog = v.Catalog
		m.page = v.Page
		m.search = v.Search
	}
	if m.selected >= len(v.Items) {
		m.selected = max(0, len(v.Items)-1)
	}
}

func (m *Model) handleUpdate(u retrieval.Update) tea.Cmd {
	switch u.Type {
	case retrieval.UpdateView:
		m.applyView(u.View)
		if u.View.Mode == results.ModeAudioMatch || u.View.Err != nil {
			m.matching = false
		}

	case retrieval.UpdateLevel:
		if u.Level != nil {
			m.levelDBFS = u.Level.DBFS
			m.hasLevel = true
		}
		m.skipped = u.Skipped

	case retrieval.UpdateCapture:
		ev := u.Capture
		switch ev.Type {
		case schedule.EventState:
			m.capture = ev.State
			m.listening = ev.State != schedule.Stopped
			if !m.listening {
				m.remaining = 0
			}
		case schedule.EventCountdown:
			m.remaining = ev.Remaining
		case schedule.EventChunk:
			m.matching = true
			return m.spinner.Tick
		case schedule.EventError:
			m.listening = false
			if ev.Err != nil {
				return m.setNotice(ev.Err.Error(), true)
			}
		}
	}
	return nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyCtrlC:
		if m.listening {
			return m, quitCmd(m.svc)
		}
		return m, tea.Quit

	case KeyTab:
		if m.catalog == models.CatalogSongs {
			m.catalog = models.CatalogAlbums
		} else {
			m.catalog = models.CatalogSongs
		}
		m.page = 1
		m.search = ""
		m.selected = 0
		return m, m.request(browseCmd(m.ctx, m.svc, m.catalog, m.page, m.search))

	case KeyPrevPage, KeyPrevPageH:
		if m.view.Mode != results.ModeBrowse || m.page <= 1 {
			return m, nil
		}
		m.page--
		m.selected = 0
		return m, m.request(browseCmd(m.ctx, m.svc, m.catalog, m.page, m.search))

	case KeyNextPage, KeyNextPageL:
		if m.view.Mode != results.ModeBrowse || m.page >= m.view.TotalPages {
			return m, nil
		}
		m.page++
		m.selected = 0
		return m, m.request(browseCmd(m.ctx, m.svc, m.catalog, m.page, m.search))

	case KeyUp, KeyK:
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case KeyDown, KeyJ:
		if m.selected < len(m.view.Items)-1 {
			m.selected++
		}
		return m, nil

	case KeySearch:
		m.inputMode = inputSearch
		m.input.Prompt = "search: "
		m.input.Placeholder = "name"
		m.input.SetValue(m.search)
		m.input.CursorEnd()
		return m, m.input.Focus()

	case KeyUpload:
		m.inputMode = inputUpload
		m.input.Prompt = "file: "
		m.input.Placeholder = "path to an audio clip or image"
		m.input.SetValue("")
		return m, m.input.Focus()

	case KeyRecordOnce:
		if m.listening {
			return m, nil
		}
		m.mode = schedule.SingleShot
		m.listening = true
		return m, tea.Batch(listenCmd(m.ctx, m.svc, schedule.SingleShot), m.spinner.Tick)

	case KeyContinuous:
		if m.listening {
			return m, stopListeningCmd(m.svc)
		}
		m.mode = schedule.Continuous
		m.listening = true
		return m, tea.Batch(listenCmd(m.ctx, m.svc, schedule.Continuous), m.spinner.Tick)

	case KeyStop:
		if !m.listening {
			return m, nil
		}
		return m, stopListeningCmd(m.svc)

	case KeyReset:
		m.applyView(m.svc.Reset())
		m.selected = 0
		return m, nil
	}

	return m, nil
}

// handleInputKey processes key presses while the input line is focused.
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyCtrlC:
		return m, tea.Quit

	case KeyReset:
		m.inputMode = inputNone
		m.input.Blur()
		return m, nil

	case KeyEnter:
		mode := m.inputMode
		value := m.input.Value()
		m.inputMode = inputNone
		m.input.Blur()

		if mode == inputSearch {
			m.searchSeq++
			m.search = value
			m.page = 1
			return m, m.request(browseCmd(m.ctx, m.svc, m.catalog, m.page, m.search))
		}
		return m.upload(value)
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.inputMode == inputSearch && m.input.Value() != before {
		m.searchSeq++
		m.search = m.input.Value()
		return m, tea.Batch(cmd, debounceCmd(m.searchSeq))
	}
	return m, cmd
}

func (m Model) upload(path string) (tea.Model, tea.Cmd) {
	if path == "" {
		return m, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return m, m.setNotice(fmt.Sprintf("cannot read %s: %v", path, err), true)
	}

	kind := models.KindImage
	if utils.IsAudioFile(path) {
		kind = models.KindAudio
	}
	name := filepath.Base(path)
	notice := func() tea.Msg { return UploadMsg{Name: name, Size: info.Size()} }
	return m, tea.Batch(notice, m.request(searchFileCmd(m.ctx, m.svc, path, kind)))
}
