package dispatch

import (
	"math"
	"time"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
)

// ErrorResponse is the error body the server sends with non-2xx statuses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// matchResponse is the search-by-audio / search-by-image body. Field
// matching in encoding/json is case-insensitive, so "ID" and "PicFilePath"
// from the server land here as well.
type matchResponse struct {
	Data    []wireItem `json:"data"`
	Time    *float64   `json:"time"`
	Message string     `json:"message"`
}

type wireItem struct {
	ID              uint     `json:"id"`
	Name            string   `json:"name"`
	AudioFilePath   string   `json:"audioFilePath"`
	PicFilePath     string   `json:"picFilePath"`
	AlbumID         uint     `json:"albumId"`
	SimilarityScore *float64 `json:"similarityScore"`
	Similarity      *float64 `json:"similarity"`
}

func (w wireItem) toItem() models.Item {
	item := models.Item{
		ID:         w.ID,
		Name:       w.Name,
		FilePath:   w.AudioFilePath,
		AlbumID:    w.AlbumID,
		Similarity: w.SimilarityScore,
	}
	if item.FilePath == "" {
		item.FilePath = w.PicFilePath
	}
	if item.Similarity == nil {
		item.Similarity = w.Similarity
	}
	return item
}

// toItems converts wire items, preserving order.
func toItems(in []wireItem) []models.Item {
	out := make([]models.Item, len(in))
	for i, w := range in {
		out[i] = w.toItem()
	}
	return out
}

// elapsed normalizes the server's "time" field: the audio endpoint reports
// milliseconds, the image endpoint seconds.
func elapsed(kind models.Kind, t *float64) time.Duration {
	if t == nil || *t < 0 {
		return 0
	}
	if kind == models.KindImage {
		return time.Duration(math.Round(*t * float64(time.Second)))
	}
	return time.Duration(math.Round(*t * float64(time.Millisecond)))
}
