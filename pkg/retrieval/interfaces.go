package retrieval

import (
	"context"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/history"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/results"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/schedule"
)

type Service interface {
	// Browse shows one catalog page.
	Browse(ctx context.Context, catalog models.Catalog, page int, search string) (results.View, error)
	// SearchFile submits an audio or image file and waits for its result.
	SearchFile(ctx context.Context, path string, kind models.Kind) (results.View, error)
	SearchBlob(ctx context.Context, blob models.Blob, kind models.Kind, source string) (results.View, error)
	// MatchFile submits a file and returns its own response without
	// touching the shown results. Safe to call concurrently.
	MatchFile(ctx context.Context, path string, kind models.Kind) (*models.MatchResponse, error)
	// SearchURL downloads a remote clip and submits it as an audio query.
	SearchURL(ctx context.Context, rawURL string) (results.View, error)

	// StartListening opens the microphone; ctx bounds the capture session.
	StartListening(ctx context.Context, mode schedule.Mode) error
	StopListening() error
	ListeningStatus() schedule.Status

	// Reset leaves search results and returns to the last browse page.
	Reset() results.View
	View() results.View
	Updates() <-chan Update

	History(limit int, kind string) ([]history.Entry, error)
	Close() error
}

type HistoryStore interface {
	Record(e *history.Entry) error
	Recent(limit int, kind string) ([]history.Entry, error)
	Close() error
}
