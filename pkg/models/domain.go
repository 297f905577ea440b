package models

import (
	"time"
)

// Kind selects which similarity endpoint a query goes to.
type Kind int

const (
	KindAudio Kind = iota
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Catalog is a browsable collection on the server.
type Catalog string

const (
	CatalogSongs  Catalog = "songs"
	CatalogAlbums Catalog = "albums"
)

// Item is one entry of a result list: a song for audio queries and song
// browsing, an album for image queries and album browsing.
type Item struct {
	ID       uint   // Server-side ID
	Name     string // Song or album name
	FilePath string // Audio file path for songs, cover path for albums
	AlbumID  uint   // Owning album, songs only

	// Similarity in [0,1]. Nil when the item did not come from a match.
	Similarity *float64
}

// Blob is an opaque audio or image payload submitted for matching.
type Blob struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Chunk is one recorded audio segment.
type Chunk struct {
	Blob
	SessionID string
	Seq       int // 1-based within the capture session
	Duration  time.Duration
}

// Outcome classifies a successful match call.
type Outcome int

const (
	OutcomeMatched Outcome = iota
	OutcomeEmpty           // 2xx with zero items
	OutcomeNotFound        // 404
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeEmpty:
		return "empty"
	case OutcomeNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// MatchResponse is the normalized result of a similarity query.
type MatchResponse struct {
	Kind    Kind
	Outcome Outcome
	Items   []Item        // Relevance order as returned by the server
	Elapsed time.Duration // Server-reported search time, 0 if absent
}

// NoMatch reports whether the server found nothing. This is a valid result,
// not an error.
func (r *MatchResponse) NoMatch() bool {
	return r.Outcome != OutcomeMatched
}

// Page is one page of a catalog listing.
type Page struct {
	Catalog    Catalog
	Items      []Item
	Page       int
	PageSize   int
	TotalItems int
	Search     string
}

// TotalPages is ceil(TotalItems / PageSize), at least 1.
func (p Page) TotalPages() int {
	if p.PageSize <= 0 || p.TotalItems <= 0 {
		return 1
	}
	return (p.TotalItems + p.PageSize - 1) / p.PageSize
}
