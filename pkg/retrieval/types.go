package retrieval

import (
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/analysis"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/results"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/schedule"
)

type UpdateType int

const (
	UpdateView UpdateType = iota
	UpdateCapture
	UpdateLevel
)

// Update is pushed to Updates whenever something the user sees changes.
type Update struct {
	Type    UpdateType
	View    results.View    // UpdateView
	Capture schedule.Event  // UpdateCapture
	Level   *analysis.Level // UpdateLevel
	Skipped bool            // UpdateLevel: chunk was below the silence gate
}
