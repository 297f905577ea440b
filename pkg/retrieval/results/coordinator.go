// Package results holds the one result list shared by catalog browsing and
// both kinds of similarity search, and decides which asynchronous response
// is allowed to replace it.
package results

import (
	"sync"
	"time"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
)

type Mode int

const (
	ModeBrowse Mode = iota
	ModeAudioMatch
	ModeImageMatch
)

func (m Mode) String() string {
	switch m {
	case ModeBrowse:
		return "browse"
	case ModeAudioMatch:
		return "audio-match"
	case ModeImageMatch:
		return "image-match"
	default:
		return "unknown"
	}
}

// ModeFor maps a query kind to the mode its results are shown in.
func ModeFor(kind models.Kind) Mode {
	if kind == models.KindImage {
		return ModeImageMatch
	}
	return ModeAudioMatch
}

// View is an immutable snapshot of the result list.
type View struct {
	Mode  Mode
	Items []models.Item
	Epoch uint64

	// Browse mode.
	Catalog    models.Catalog
	Page       int
	TotalPages int
	TotalItems int
	Search     string

	// Match modes.
	Elapsed   time.Duration
	NoResults bool

	// Err is the banner for the latest failed request. Items are kept.
	Err error
}

// Coordinator serializes view replacement. Every request takes an epoch
// from Issue; a match response is applied only if its epoch is at least
// the highest epoch already applied, in any mode. A catalog page always
// replaces the view and makes every outstanding match stale.
type Coordinator struct {
	mu          sync.Mutex
	issued      uint64
	applied     uint64
	browseEpoch uint64
	view        View
	lastBrowse  *View
	subs        map[int]chan View
	nextSub     int
}

func New() *Coordinator {
	return &Coordinator{
		view: View{Mode: ModeBrowse, Page: 1, TotalPages: 1},
		subs: make(map[int]chan View),
	}
}

// Issue mints the epoch for a new request.
func (c *Coordinator) Issue() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	return c.issued
}

func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// SetBrowseResults shows a catalog page. Similarity values are dropped.
// The page wins over any match result, applied or still in flight; it is
// refused only when a page requested after it is already shown.
func (c *Coordinator) SetBrowseResults(epoch uint64, page models.Page) bool {
	items := make([]models.Item, len(page.Items))
	for i, it := range page.Items {
		it.Similarity = nil
		items[i] = it
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch < c.browseEpoch {
		return false
	}
	c.browseEpoch = epoch
	c.issued++
	v := View{
		Mode:       ModeBrowse,
		Items:      items,
		Epoch:      c.issued,
		Catalog:    page.Catalog,
		Page:       page.Page,
		TotalPages: page.TotalPages(),
		TotalItems: page.TotalItems,
		Search:     page.Search,
	}
	c.lastBrowse = &v
	c.applyLocked(v)
	return true
}

// SetMatchResults shows a similarity result. A NoMatch response yields an
// empty list with NoResults set and no error.
func (c *Coordinator) SetMatchResults(epoch uint64, resp *models.MatchResponse) bool {
	items := make([]models.Item, len(resp.Items))
	copy(items, resp.Items)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch < c.applied {
		return false
	}
	c.applyLocked(View{
		Mode:       ModeFor(resp.Kind),
		Items:      items,
		Epoch:      epoch,
		Page:       1,
		TotalPages: 1,
		TotalItems: len(items),
		Elapsed:    resp.Elapsed,
		NoResults:  len(items) == 0,
	})
	return true
}

// SetMatchFailure raises the error banner without touching the items. A
// failure counts as applied, so older responses still in flight lose.
func (c *Coordinator) SetMatchFailure(epoch uint64, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch < c.applied {
		return false
	}
	v := c.view
	v.Err = err
	v.Epoch = epoch
	c.applyLocked(v)
	return true
}

// SetBrowseFailure raises the banner for a failed catalog request unless a
// page requested after it is already shown. Like a page, it makes every
// outstanding match stale.
func (c *Coordinator) SetBrowseFailure(epoch uint64, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch < c.browseEpoch {
		return false
	}
	c.browseEpoch = epoch
	c.issued++
	v := c.view
	v.Err = err
	v.Epoch = c.issued
	c.applyLocked(v)
	return true
}

// Reset returns to the last browse page (or an empty first page) and makes
// every outstanding request stale.
func (c *Coordinator) Reset() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	v := View{Mode: ModeBrowse, Page: 1, TotalPages: 1}
	if c.lastBrowse != nil {
		v = *c.lastBrowse
	}
	v.Epoch = c.issued
	c.applyLocked(v)
	return v
}

// Invalidate makes every request issued so far stale without changing the
// view.
func (c *Coordinator) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	c.applied = c.issued
}

// LastBrowse returns the most recent browse view, if any.
func (c *Coordinator) LastBrowse() (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastBrowse == nil {
		return View{}, false
	}
	return *c.lastBrowse, true
}

// Subscribe delivers every applied view. Slow subscribers miss views
// rather than block the coordinator; View always has the latest.
func (c *Coordinator) Subscribe(buffer int) (<-chan View, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan View, buffer)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Coordinator) applyLocked(v View) {
	c.view = v
	if v.Epoch > c.applied {
		c.applied = v.Epoch
	}
	for _, ch := range c.subs {
		select {
		case ch <- v:
		default:
		}
	}
}
