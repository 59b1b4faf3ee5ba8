package ebook

import (
	"errors"
	"fmt"
)

// Failure kinds, matched with errors.Is against a *Failure.
var (
	ErrGeneration      = errors.New("ebook generation failed")
	ErrCoverGeneration = errors.New("cover generation failed")
	ErrContinuation    = errors.New("ebook continuation failed")
)

// User-facing messages for each failure kind.
const (
	MsgGeneration = "Failed to generate the ebook content. The AI may have returned an unexpected format. " +
		"Check the API configuration and try again."
	MsgCoverGeneration = "Failed to generate the ebook cover. The image service may be unavailable."
	MsgContinuation    = "Failed to add new content to the ebook."
	MsgUnknown         = "An unknown error occurred."
)

// Failure is a provider failure reduced to a user-presentable message.
// Err keeps the underlying cause for logging.
type Failure struct {
	Kind    error
	Message string
	Err     error
}

// NewGenerationFailure wraps a text generation error.
func NewGenerationFailure(err error) *Failure {
	return &Failure{Kind: ErrGeneration, Message: MsgGeneration, Err: err}
}

// NewCoverFailure wraps a cover generation error.
func NewCoverFailure(err error) *Failure {
	return &Failure{Kind: ErrCoverGeneration, Message: MsgCoverGeneration, Err: err}
}

// NewContinuationFailure wraps a continuation error.
func NewContinuationFailure(err error) *Failure {
	return &Failure{Kind: ErrContinuation, Message: MsgContinuation, Err: err}
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%v: %v", f.Kind, f.Err)
	}

	return f.Kind.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches the failure kind sentinel.
func (f *Failure) Is(target error) bool {
	return f.Kind == target
}

// UserMessage reduces any error to a human-readable message, falling back to
// a generic one when the error carries nothing presentable.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var failure *Failure
	if errors.As(err, &failure) && failure.Message != "" {
		return failure.Message
	}

	if msg := err.Error(); msg != "" {
		return msg
	}

	return MsgUnknown
}
