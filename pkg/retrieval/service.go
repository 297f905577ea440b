package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/analysis"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/capture"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/catalog"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/dispatch"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/errs"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/history"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/media"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/results"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/schedule"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/utils"
)

// retrievalService is the default implementation of the Service interface.
type retrievalService struct {
	config     *Config
	log        *logger.Logger
	dispatcher *dispatch.Dispatcher
	catalog    *catalog.Client
	coord      *results.Coordinator
	scheduler  *schedule.Scheduler
	history    HistoryStore

	updates chan Update
	unsub   func()
	ctx     context.Context
	cancel  context.CancelFunc
	closing sync.Once

	// mu guards closed so no request starts once Close waits on inflight.
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if err := cfg.Capture.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture config: %w", err)
	}
	if err := utils.MakeDir(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	hist := cfg.History
	if hist == nil && cfg.HistoryPath != "" {
		db, err := history.NewDBClientWithPath(cfg.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		hist = db
	}

	mic := cfg.Microphone
	if mic == nil {
		mic = capture.NewFFmpegMicrophone(capture.FFmpegConfig{
			InputFormat: cfg.InputFormat,
			InputDevice: cfg.InputDevice,
			SampleRate:  cfg.SampleRate,
			TempDir:     cfg.TempDir,
			Logger:      cfg.Logger.Named("ffmpeg"),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &retrievalService{
		config:  cfg,
		log:     cfg.Logger,
		coord:   results.New(),
		history: hist,
		updates: make(chan Update, 64),
		ctx:     ctx,
		cancel:  cancel,
	}

	dispatchOpts := []dispatch.Option{dispatch.WithLogger(cfg.Logger.Named("dispatch"))}
	catalogOpts := []catalog.Option{
		catalog.WithLogger(cfg.Logger.Named("catalog")),
		catalog.WithCacheTTL(cfg.CacheTTL),
	}
	if cfg.HTTPClient != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithHTTPClient(cfg.HTTPClient))
		catalogOpts = append(catalogOpts, catalog.WithHTTPClient(cfg.HTTPClient))
	}
	s.dispatcher = dispatch.New(cfg.APIBaseURL, dispatchOpts...)
	s.catalog = catalog.New(cfg.APIBaseURL, catalogOpts...)

	schedOpts := []schedule.Option{schedule.WithLogger(cfg.Logger.Named("scheduler"))}
	if cfg.Clock != nil {
		schedOpts = append(schedOpts, schedule.WithClock(cfg.Clock))
	}
	if cfg.LockPath != "" {
		schedOpts = append(schedOpts, schedule.WithSessionOptions(capture.WithLockFile(cfg.LockPath)))
	}
	s.scheduler = schedule.New(mic, s.handleChunk, schedOpts...)

	views, unsub := s.coord.Subscribe(16)
	s.unsub = unsub
	go s.forward(views, s.scheduler.Events())

	return s, nil
}

// forward merges coordinator views and scheduler events into Updates.
func (s *retrievalService) forward(views <-chan results.View, events <-chan schedule.Event) {
	for {
		select {
		case v, ok := <-views:
			if !ok {
				return
			}
			s.publish(Update{Type: UpdateView, View: v})
		case ev := <-events:
			s.publish(Update{Type: UpdateCapture, Capture: ev})
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *retrievalService) publish(u Update) {
	select {
	case s.updates <- u:
	default:
		s.log.Debugf("update dropped (type %d): consumer is behind", u.Type)
	}
}

func (s *retrievalService) Updates() <-chan Update {
	return s.updates
}

func (s *retrievalService) View() results.View {
	return s.coord.View()
}

func (s *retrievalService) Reset() results.View {
	return s.coord.Reset()
}

func (s *retrievalService) Browse(ctx context.Context, cat models.Catalog, page int, search string) (results.View, error) {
	epoch := s.coord.Issue()
	p, err := s.catalog.List(ctx, cat, catalog.Request{Page: page, PageSize: s.config.PageSize, Search: search})
	if err != nil {
		s.log.Warnf("browse %s page %d failed: %v", cat, page, err)
		s.coord.SetBrowseFailure(epoch, err)
		return s.coord.View(), err
	}
	if !s.coord.SetBrowseResults(epoch, p) {
		s.log.Debugf("browse %s page %d superseded", cat, page)
	}
	return s.coord.View(), nil
}

func (s *retrievalService) SearchFile(ctx context.Context, path string, kind models.Kind) (results.View, error) {
	blob, err := s.readQuery(ctx, path, kind)
	if err != nil {
		return s.coord.View(), err
	}
	return s.SearchBlob(ctx, blob, kind, history.SourceFile)
}

func (s *retrievalService) MatchFile(ctx context.Context, path string, kind models.Kind) (*models.MatchResponse, error) {
	blob, err := s.readQuery(ctx, path, kind)
	if err != nil {
		return nil, err
	}
	resp, err := s.dispatcher.Submit(ctx, blob, kind)
	s.record(newEntry(kind, history.SourceFile, blob.Filename, 0, resp, err))
	return resp, err
}

func (s *retrievalService) readQuery(ctx context.Context, path string, kind models.Kind) (models.Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Blob{}, errs.New(errs.CodeInvalidInput, "reading query file", err)
	}
	if len(data) == 0 {
		return models.Blob{}, errs.New(errs.CodeInvalidInput, fmt.Sprintf("query file %s is empty", path), nil)
	}
	if err := s.checkStreams(ctx, path, kind); err != nil {
		return models.Blob{}, err
	}
	return models.Blob{
		Data:        data,
		Filename:    filepath.Base(path),
		ContentType: utils.ContentType(path, data),
	}, nil
}

// checkStreams rejects files ffprobe can read that carry no stream of the
// query's kind. Files it cannot read go to the server unchecked.
func (s *retrievalService) checkStreams(ctx context.Context, path string, kind models.Kind) error {
	if s.config.Prober == nil {
		return nil
	}
	meta, err := s.config.Prober(ctx, path)
	if err != nil {
		s.log.Debugf("not probing %s: %v", filepath.Base(path), err)
		return nil
	}
	if !meta.Supports(kind) {
		return errs.New(errs.CodeInvalidInput,
			fmt.Sprintf("%s has no %s stream (%s)", filepath.Base(path), kind, meta.Describe()), nil)
	}
	s.log.Debugf("query %s: %s", filepath.Base(path), meta.Describe())
	return nil
}

func (s *retrievalService) SearchURL(ctx context.Context, rawURL string) (results.View, error) {
	u, err := utils.ParseClipURL(rawURL)
	if err != nil {
		return s.coord.View(), errs.New(errs.CodeInvalidInput, "bad clip URL", err)
	}

	dir, err := os.MkdirTemp(s.config.TempDir, "clip-*")
	if err != nil {
		return s.coord.View(), fmt.Errorf("creating download dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path, err := media.DownloadClip(ctx, u.String(), dir)
	if err != nil {
		return s.coord.View(), errs.New(errs.CodeInvalidInput, "downloading clip", err)
	}
	clip, err := media.ConvertClip(ctx, path, dir, media.ClipConfig{
		SampleRate:  s.config.SampleRate,
		MaxDuration: s.config.Capture.Segment,
	})
	if err != nil {
		return s.coord.View(), errs.New(errs.CodeInvalidInput, "converting clip", err)
	}

	data, err := os.ReadFile(clip)
	if err != nil {
		return s.coord.View(), fmt.Errorf("reading clip: %w", err)
	}
	blob := models.Blob{Data: data, Filename: utils.ClipName(u, "clip") + ".wav", ContentType: "audio/wav"}
	return s.SearchBlob(ctx, blob, models.KindAudio, history.SourceURL)
}

// SearchBlob submits a query and waits for it. The returned view is the
// current one, which may belong to a newer request if this one lost.
func (s *retrievalService) SearchBlob(ctx context.Context, blob models.Blob, kind models.Kind, source string) (results.View, error) {
	epoch := s.coord.Issue()
	resp, err := s.dispatcher.Submit(ctx, blob, kind)
	s.apply(epoch, kind, source, blob.Filename, resp, err)
	return s.coord.View(), err
}

// handleChunk receives recorded chunks from the scheduler. It must not
// block, so the request runs in its own goroutine.
func (s *retrievalService) handleChunk(chunk models.Chunk) {
	if lvl, err := analysis.Analyze(chunk.Data); err == nil {
		skip := s.config.SilenceGate && lvl.Silent(s.config.MinLevelDBFS)
		s.publish(Update{Type: UpdateLevel, Level: lvl, Skipped: skip})
		if skip {
			s.log.Debugf("chunk %d below %.0f dBFS, not submitted", chunk.Seq, s.config.MinLevelDBFS)
			return
		}
	} else {
		s.log.Debugf("chunk %d not analyzed: %v", chunk.Seq, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debugf("chunk %d arrived after close, not submitted", chunk.Seq)
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	epoch := s.coord.Issue()
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.config.RequestTimeout)
		defer cancel()

		resp, err := s.dispatcher.Submit(ctx, chunk.Blob, models.KindAudio)
		s.apply(epoch, models.KindAudio, history.SourceMicrophone, fmt.Sprintf("chunk %d", chunk.Seq), resp, err)
	}()
}

func (s *retrievalService) apply(epoch uint64, kind models.Kind, source, query string, resp *models.MatchResponse, err error) {
	if err != nil && errors.Is(err, context.Canceled) && s.ctx.Err() != nil {
		return
	}

	var applied bool
	if err != nil {
		s.log.Warnf("%s search failed: %v", kind, err)
		applied = s.coord.SetMatchFailure(epoch, err)
	} else {
		s.log.Infof("%s search: %s, %d items in %s", kind, resp.Outcome, len(resp.Items), resp.Elapsed)
		applied = s.coord.SetMatchResults(epoch, resp)
	}

	entry := newEntry(kind, source, query, epoch, resp, err)
	if !applied {
		s.log.Debugf("%s result for epoch %d is stale, discarded", kind, epoch)
		entry.Outcome = history.OutcomeStale
	}
	s.record(entry)
}

func newEntry(kind models.Kind, source, query string, epoch uint64, resp *models.MatchResponse, err error) *history.Entry {
	entry := &history.Entry{Kind: kind.String(), Source: source, Query: query, Epoch: epoch}
	if err != nil {
		entry.Outcome = history.OutcomeFailed
		entry.Error = err.Error()
		return entry
	}
	entry.Outcome = resp.Outcome.String()
	entry.Items = len(resp.Items)
	entry.ElapsedMs = resp.Elapsed.Milliseconds()
	if len(resp.Items) > 0 {
		entry.TopName = resp.Items[0].Name
		entry.TopScore = resp.Items[0].Similarity
	}
	return entry
}

func (s *retrievalService) record(entry *history.Entry) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(entry); err != nil {
		s.log.Warnf("recording history: %v", err)
	}
}

func (s *retrievalService) StartListening(ctx context.Context, mode schedule.Mode) error {
	cfg := s.config.Capture
	cfg.Mode = mode
	return s.scheduler.Start(ctx, cfg)
}

// StopListening releases the microphone. Searches already sent for its
// chunks still complete but are never shown.
func (s *retrievalService) StopListening() error {
	err := s.scheduler.Stop()
	s.coord.Invalidate()
	return err
}

func (s *retrievalService) ListeningStatus() schedule.Status {
	return s.scheduler.Status()
}

func (s *retrievalService) History(limit int, kind string) ([]history.Entry, error) {
	if s.history == nil {
		return nil, errors.New("history is disabled")
	}
	return s.history.Recent(limit, kind)
}

// Close stops listening, waits for in-flight chunk requests and releases
// the history database.
func (s *retrievalService) Close() error {
	var err error
	s.closing.Do(func() {
		err = s.scheduler.Stop()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.inflight.Wait()
		s.cancel()
		s.unsub()
		if s.history != nil {
			if herr := s.history.Close(); herr != nil && err == nil {
				err = herr
			}
		}
	})
	return err
}
