// Package workflow drives an ebook through its lifecycle: idle, loading,
// success or error, with continuation as a sub-state of success.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/pkg/channels"
)

// Generator is the provider capability the machine depends on.
type Generator interface {
	GenerateEbook(ctx context.Context, topic string, chapters int) (*ebook.GenerationResult, error)
	GenerateCover(ctx context.Context, prompt string) (string, error)
	ContinueEbook(ctx context.Context, existing string) (string, error)
}

// Operation names a provider call.
type Operation string

const (
	OpGenerate Operation = "generate"
	OpCover    Operation = "cover"
	OpContinue Operation = "continue"
)

// Observer receives the duration and outcome of every provider call.
type Observer interface {
	ObserveOperation(op Operation, elapsed time.Duration, err error)
}

var (
	// ErrBusy is returned when a provider call is already running.
	ErrBusy = errors.New("a generation is already in progress")
	// ErrInvalidTransition is returned for actions the current state does not allow.
	ErrInvalidTransition = errors.New("action not allowed in the current state")
	// ErrContinuationInProgress rejects a second concurrent continuation.
	ErrContinuationInProgress = errors.New("a continuation is already in progress")
)

// continuePrefix is prepended to continuation failure messages.
const continuePrefix = "Failed to continue: "

const snapshotBuffer = 8

// Machine owns one ebook session. All methods are safe for concurrent use.
// Provider calls run without holding the lock; while one is in flight the
// machine refuses every transition except the one that settles it.
type Machine struct {
	gen      Generator
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	hub      *channels.Hub[Snapshot]

	// wg tracks calls started with Start and StartContinue.
	wg sync.WaitGroup

	mu         sync.Mutex
	st         state
	version    uint64
	lastActive time.Time
}

// Option customizes a Machine.
type Option func(*Machine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithObserver reports provider call timings, e.g. to metrics.
func WithObserver(observer Observer) Option {
	return func(m *Machine) {
		m.observer = observer
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// New creates an idle Machine.
func New(gen Generator, opts ...Option) *Machine {
	m := &Machine{
		gen:    gen,
		logger: slog.Default(),
		now:    time.Now,
		hub:    channels.NewHub[Snapshot](snapshotBuffer),
		st:     idleState{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastActive = m.now()

	return m
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return snapshotOf(m.st, m.version)
}

// Subscribe streams a Snapshot after every transition until cancel is called.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	return m.hub.Subscribe()
}

// Busy reports whether a provider call is in flight.
func (m *Machine) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch s := m.st.(type) {
	case loadingState:
		return true
	case successState:
		return s.continuing
	default:
		return false
	}
}

// LastActive returns the time of the last transition.
func (m *Machine) LastActive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastActive
}

// Wait blocks until background calls started by Start and StartContinue
// have settled.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Close ends all subscriptions.
func (m *Machine) Close() {
	m.hub.Close()
}

// setLocked installs a new state and notifies subscribers. Caller holds mu.
func (m *Machine) setLocked(st state) {
	m.st = st
	m.version++
	m.lastActive = m.now()
	m.hub.Publish(snapshotOf(st, m.version))
}

// Submit runs a full generation: text first, then the cover derived from it.
// It blocks until both calls settle. Only allowed from idle.
func (m *Machine) Submit(ctx context.Context, req ebook.GenerationRequest) error {
	if err := m.beginSubmit(req); err != nil {
		return err
	}

	return m.finishSubmit(ctx, req)
}

// Start is Submit without waiting: the transition to loading happens before
// it returns and the provider calls run in the background.
func (m *Machine) Start(ctx context.Context, req ebook.GenerationRequest) error {
	if err := m.beginSubmit(req); err != nil {
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.finishSubmit(ctx, req)
	}()

	return nil
}

func (m *Machine) beginSubmit(req ebook.GenerationRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.st.(type) {
	case idleState:
	case loadingState:
		return ErrBusy
	default:
		return fmt.Errorf("%w: cannot submit while %s", ErrInvalidTransition, m.st.status())
	}
	m.setLocked(loadingState{request: req})

	return nil
}

func (m *Machine) finishSubmit(ctx context.Context, req ebook.GenerationRequest) error {
	m.logger.Info("Generating ebook", "topic", req.Topic, "chapters", req.Chapters, "style", req.Style)

	book, err := m.generate(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.logger.Error("Ebook generation failed", "error", err, "topic", req.Topic)
		m.setLocked(errorState{message: ebook.UserMessage(err)})

		return err
	}

	m.logger.Info("Ebook generated", "title", book.Title, "bytes", len(book.Markdown))
	m.setLocked(successState{book: book, style: req.Style})

	return nil
}

func (m *Machine) generate(ctx context.Context, req ebook.GenerationRequest) (ebook.Ebook, error) {
	var result *ebook.GenerationResult
	err := m.call(OpGenerate, func() error {
		var err error
		result, err = m.gen.GenerateEbook(ctx, req.Topic, req.Chapters)
		return err
	})
	if err != nil {
		return ebook.Ebook{}, err
	}

	// substitute generators are held to the same shape contract as the client
	if err := result.Validate(); err != nil {
		return ebook.Ebook{}, ebook.NewGenerationFailure(err)
	}

	var cover string
	err = m.call(OpCover, func() error {
		var err error
		cover, err = m.gen.GenerateCover(ctx, result.CoverPrompt)
		return err
	})
	if err != nil {
		return ebook.Ebook{}, err
	}
	if cover == "" {
		return ebook.Ebook{}, ebook.NewCoverFailure(errors.New("image API returned no image"))
	}

	return ebook.Ebook{
		Title:         strings.TrimSpace(result.Title),
		Markdown:      result.Content,
		CoverImageURL: ebook.DataURI(ebook.CoverMimeType, cover),
	}, nil
}

// Continue appends one generated chapter to the current ebook. At most one
// continuation runs at a time; on failure the ebook is left untouched and
// the message is attached to the success state.
func (m *Machine) Continue(ctx context.Context) error {
	base, err := m.beginContinue()
	if err != nil {
		return err
	}

	return m.finishContinue(ctx, base)
}

// StartContinue is Continue without waiting. The continuing flag is set
// before it returns.
func (m *Machine) StartContinue(ctx context.Context) error {
	base, err := m.beginContinue()
	if err != nil {
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.finishContinue(ctx, base)
	}()

	return nil
}

func (m *Machine) beginContinue() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.st.(successState)
	if !ok {
		return "", fmt.Errorf("%w: cannot continue while %s", ErrInvalidTransition, m.st.status())
	}
	if current.continuing {
		return "", ErrContinuationInProgress
	}
	current.continuing = true
	current.continueErr = ""
	m.setLocked(current)

	m.logger.Info("Continuing ebook", "title", current.book.Title, "bytes", len(current.book.Markdown))

	return current.book.Markdown, nil
}

func (m *Machine) finishContinue(ctx context.Context, base string) error {
	var chapter string
	err := m.call(OpContinue, func() error {
		var err error
		chapter, err = m.gen.ContinueEbook(ctx, base)
		return err
	})
	chapter = strings.TrimSpace(chapter)
	if err == nil && chapter == "" {
		err = ebook.NewContinuationFailure(errors.New("empty chapter"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// the continuing flag pins the state, so it is still the success we left
	latest, ok := m.st.(successState)
	if !ok {
		return fmt.Errorf("%w: continuation settled while %s", ErrInvalidTransition, m.st.status())
	}
	latest.continuing = false

	if err != nil {
		m.logger.Error("Ebook continuation failed", "error", err)
		latest.continueErr = continuePrefix + ebook.UserMessage(err)
		m.setLocked(latest)

		return err
	}

	latest.book = latest.book.WithChapter(chapter)
	m.setLocked(latest)
	m.logger.Info("Ebook continued", "added_bytes", len(chapter), "bytes", len(latest.book.Markdown))

	return nil
}

// DismissError clears a continuation error shown with the ebook.
func (m *Machine) DismissError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.st.(successState); ok && s.continueErr != "" {
		s.continueErr = ""
		m.setLocked(s)
	}
}

// Reset discards any ebook or error and returns to idle. A call in flight
// cannot be abandoned: Reset fails with ErrBusy while loading or continuing.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch s := m.st.(type) {
	case loadingState:
		return fmt.Errorf("%w: cannot reset while loading", ErrBusy)
	case successState:
		if s.continuing {
			return fmt.Errorf("%w: cannot reset while a chapter is being written", ErrBusy)
		}
	}
	m.setLocked(idleState{})
	m.logger.Debug("Workflow reset")

	return nil
}

// call runs one provider operation, converting a panic into an error and
// reporting the outcome to the observer.
func (m *Machine) call(op Operation, fn func() error) (err error) {
	start := m.now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected %s failure: %v", op, r)
		}
		if m.observer != nil {
			m.observer.ObserveOperation(op, m.now().Sub(start), err)
		}
	}()

	return fn()
}
