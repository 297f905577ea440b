package app

import (
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/results"
)

// UpdateMsg carries one service update into the event loop.
type UpdateMsg struct {
	Update retrieval.Update
}

// ViewMsg is the result of a browse or search command. View is the
// coordinator's view after the request settled.
type ViewMsg struct {
	View results.View
	Err  error
}

// ListenErrorMsg reports that the microphone could not be started or
// stopped. Quit is set when the failure happened on the way out.
type ListenErrorMsg struct {
	Err  error
	Quit bool
}

// UploadMsg reports an upload that is about to be searched.
type UploadMsg struct {
	Name string
	Size int64
}

// SearchDebounceMsg fires after typing pauses. Only the latest Seq counts.
type SearchDebounceMsg struct {
	Seq int
}

// ClearNoticeMsg clears a transient notice.
type ClearNoticeMsg struct {
	Seq int
}
