package workflow

import "github.com/alkime/ebooks/internal/ebook"

// Status is the primary lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// state is the tagged union held by the Machine. Each variant carries only
// the data valid for it, so an error state with an ebook cannot be built.
type state interface {
	status() Status
}

type idleState struct{}

type loadingState struct {
	request ebook.GenerationRequest
}

type successState struct {
	book  ebook.Ebook
	style ebook.Style

	continuing bool
	// continueErr is the dismissible continuation failure shown with the ebook.
	continueErr string
}

type errorState struct {
	message string
}

func (idleState) status() Status    { return StatusIdle }
func (loadingState) status() Status { return StatusLoading }
func (successState) status() Status { return StatusSuccess }
func (errorState) status() Status   { return StatusError }

// Snapshot is an immutable view of the machine for presentation layers.
type Snapshot struct {
	Status Status `json:"status"`
	// Ebook is non-nil exactly when Status is StatusSuccess.
	Ebook *ebook.Ebook `json:"ebook,omitempty"`
	Style ebook.Style  `json:"style,omitempty"`
	// Error is the primary failure in StatusError, or the continuation
	// failure shown alongside the ebook in StatusSuccess.
	Error      string `json:"error,omitempty"`
	Continuing bool   `json:"continuing"`
	// Topic is the topic being generated while loading.
	Topic string `json:"topic,omitempty"`
	// Version increases with every transition.
	Version uint64 `json:"version"`
}

// CanContinue reports whether a continuation may be started from this snapshot.
func (s Snapshot) CanContinue() bool {
	return s.Status == StatusSuccess && !s.Continuing
}

func snapshotOf(st state, version uint64) Snapshot {
	snap := Snapshot{Status: st.status(), Version: version}

	switch s := st.(type) {
	case loadingState:
		snap.Topic = s.request.Topic
		snap.Style = s.request.Style
	case successState:
		book := s.book
		snap.Ebook = &book
		snap.Style = s.style
		snap.Continuing = s.continuing
		snap.Error = s.continueErr
	case errorState:
		snap.Error = s.message
	}

	return snap
}
