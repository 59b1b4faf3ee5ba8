// Package tui is the terminal front-end: a topic form, a spinner while the
// ebook is written and a scrollable reader for the result.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/export"
	"github.com/alkime/ebooks/internal/tui/components/labeledspinner"
	"github.com/alkime/ebooks/internal/tui/style"
	"github.com/alkime/ebooks/internal/workdir"
	"github.com/alkime/ebooks/internal/workflow"
)

const (
	headerHeight = 3
	footerHeight = 4
	minViewport  = 5
)

// snapshotMsg carries a workflow transition into the update loop.
type snapshotMsg workflow.Snapshot

// exportedMsg reports the outcome of a save.
type exportedMsg struct {
	format export.Format
	path   string
	err    error
}

// Model is the root bubbletea model. It drives a workflow.Machine and
// redraws from the snapshots the machine publishes.
type Model struct {
	ctx         context.Context
	machine     *workflow.Machine
	updates     <-chan workflow.Snapshot
	unsubscribe func()
	exportDir   string
	keys        KeyMap

	topic    textinput.Model
	chapters int
	style    ebook.Style
	spinner  labeledspinner.Model
	viewport viewport.Model

	snap   workflow.Snapshot
	width  int
	height int

	notice    string
	noticeErr bool
}

// New creates the model. Provider calls run with ctx; exports are written
// to exportDir, created on first save.
func New(ctx context.Context, machine *workflow.Machine, exportDir string) Model {
	ti := textinput.New()
	ti.Placeholder = "e.g. Beginner's guide to sourdough"
	ti.CharLimit = 200
	ti.Width = 60
	ti.Focus()

	updates, unsubscribe := machine.Subscribe()

	return Model{
		ctx:         ctx,
		machine:     machine,
		updates:     updates,
		unsubscribe: unsubscribe,
		exportDir:   exportDir,
		keys:        DefaultKeyMap(),
		topic:       ti,
		chapters:    slices.Index(ebook.ChapterCounts(), ebook.DefaultChapters),
		style:       ebook.DefaultStyle,
		spinner:     labeledspinner.New(spinner.Dot, "Writing your ebook", "", ""),
		viewport:    viewport.New(76, minViewport),
		snap:        machine.Snapshot(),
		width:       80,
		height:      24,
	}
}

// Init starts listening for transitions.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Init(), waitForSnapshot(m.updates))
}

// waitForSnapshot blocks on the next transition. It returns nil once the
// subscription is closed, which ends the listening loop.
func waitForSnapshot(updates <-chan workflow.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

// Update handles messages for every screen.
func (m Model) Update(teaMsg tea.Msg) (tea.Model, tea.Cmd) {
	switch teaMsg := teaMsg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = teaMsg.Width, teaMsg.Height
		m.resize()
		return m, nil

	case snapshotMsg:
		m.apply(workflow.Snapshot(teaMsg))
		return m, waitForSnapshot(m.updates)

	case exportedMsg:
		if teaMsg.err != nil {
			m.notice = fmt.Sprintf("Export to .%s failed: %v", teaMsg.format, teaMsg.err)
			m.noticeErr = true
		} else {
			m.notice = "Saved: " + teaMsg.path
			m.noticeErr = false
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(teaMsg)
		return m, cmd

	case tea.KeyMsg:
		switch m.snap.Status {
		case workflow.StatusIdle:
			return m.updateForm(teaMsg)
		case workflow.StatusLoading:
			return m.updateLoading(teaMsg)
		case workflow.StatusSuccess:
			return m.updateReader(teaMsg)
		case workflow.StatusError:
			return m.updateError(teaMsg)
		}
	}

	if m.snap.Status == workflow.StatusIdle {
		var cmd tea.Cmd
		m.topic, cmd = m.topic.Update(teaMsg)
		return m, cmd
	}

	return m, nil
}

func (m Model) updateForm(keyMsg tea.KeyMsg) (tea.Model, tea.Cmd) {
	counts := ebook.ChapterCounts()
	styles := ebook.Styles()

	switch {
	case key.Matches(keyMsg, m.keys.ForceQuit):
		return m.quit()
	case key.Matches(keyMsg, m.keys.MoreChapters):
		m.chapters = min(m.chapters+1, len(counts)-1)
		return m, nil
	case key.Matches(keyMsg, m.keys.FewerChapters):
		m.chapters = max(m.chapters-1, 0)
		return m, nil
	case key.Matches(keyMsg, m.keys.NextStyle):
		m.style = styles[(slices.Index(styles, m.style)+1)%len(styles)]
		return m, nil
	case key.Matches(keyMsg, m.keys.Submit):
		if strings.TrimSpace(m.topic.Value()) == "" {
			return m, nil
		}
		req, err := ebook.NewGenerationRequest(m.topic.Value(), counts[m.chapters], m.style)
		if err == nil {
			err = m.machine.Start(m.ctx, req)
		}
		if err != nil {
			m.notice, m.noticeErr = err.Error(), true
			return m, nil
		}
		m.notice = ""
		m.topic.Blur()
		m.apply(m.machine.Snapshot())
		return m, nil
	}

	var cmd tea.Cmd
	m.topic, cmd = m.topic.Update(keyMsg)

	return m, cmd
}

// updateLoading only offers quitting: a running generation cannot be
// abandoned.
func (m Model) updateLoading(keyMsg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(keyMsg, m.keys.Quit) {
		return m.quit()
	}

	return m, nil
}

func (m Model) updateReader(keyMsg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		return m.quit()
	case key.Matches(keyMsg, m.keys.Continue):
		if m.snap.Continuing {
			return m, nil
		}
		if err := m.machine.StartContinue(m.ctx); err != nil {
			m.notice, m.noticeErr = err.Error(), true
			return m, nil
		}
		m.notice = ""
		m.apply(m.machine.Snapshot())
		return m, nil
	case key.Matches(keyMsg, m.keys.ExportMD):
		return m, m.save(export.FormatMarkdown)
	case key.Matches(keyMsg, m.keys.ExportTXT):
		return m, m.save(export.FormatText)
	case key.Matches(keyMsg, m.keys.ExportPDF):
		return m, m.save(export.FormatPDF)
	case m.snap.Error != "" && key.Matches(keyMsg, m.keys.Dismiss):
		m.machine.DismissError()
		m.apply(m.machine.Snapshot())
		return m, nil
	case key.Matches(keyMsg, m.keys.New):
		if m.snap.Continuing {
			return m, nil
		}
		return m.reset()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(keyMsg)

	return m, cmd
}

func (m Model) updateError(keyMsg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		return m.quit()
	case key.Matches(keyMsg, m.keys.Retry):
		return m.reset()
	}

	return m, nil
}

// reset returns to the form, keeping the previous topic for editing.
func (m Model) reset() (tea.Model, tea.Cmd) {
	if err := m.machine.Reset(); err != nil {
		m.notice, m.noticeErr = err.Error(), true
		return m, nil
	}
	m.notice = ""
	m.apply(m.machine.Snapshot())

	return m, textinput.Blink
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.unsubscribe()
	return m, tea.Quit
}

// save writes the current ebook in format to the export directory.
func (m Model) save(format export.Format) tea.Cmd {
	if m.snap.Ebook == nil {
		return nil
	}
	book, st, dir := *m.snap.Ebook, m.snap.Style, m.exportDir

	return func() tea.Msg {
		if err := workdir.Prep(dir); err != nil {
			return exportedMsg{format: format, err: err}
		}
		path, err := export.Save(dir, book, st, format)
		return exportedMsg{format: format, path: path, err: err}
	}
}

// apply installs snap unless a newer one was already seen.
func (m *Model) apply(snap workflow.Snapshot) {
	if snap.Version < m.snap.Version {
		return
	}
	prev := m.snap
	m.snap = snap

	switch snap.Status {
	case workflow.StatusLoading:
		m.spinner.Subtitle = fmt.Sprintf("%q, %s", snap.Topic, ebook.ChapterLabel(m.selectedChapters()))
	case workflow.StatusSuccess:
		if prev.Ebook == nil || prev.Ebook.Markdown != snap.Ebook.Markdown || prev.Style != snap.Style {
			m.viewport.SetContent(renderEbook(snap.Ebook.Markdown, snap.Style, m.viewport.Width))
		}
	case workflow.StatusIdle:
		m.topic.Focus()
	}
}

func (m *Model) resize() {
	m.viewport.Width = max(m.width-4, 20)
	m.viewport.Height = max(m.height-headerHeight-footerHeight, minViewport)
	if m.snap.Ebook != nil {
		m.viewport.SetContent(renderEbook(m.snap.Ebook.Markdown, m.snap.Style, m.viewport.Width))
	}
}

func (m Model) selectedChapters() int {
	return ebook.ChapterCounts()[m.chapters]
}

// View renders the current screen.
func (m Model) View() string {
	switch m.snap.Status {
	case workflow.StatusLoading:
		return m.spinner.ViewWithHelp(renderHints(m.keys.Quit))
	case workflow.StatusSuccess:
		return m.viewReader()
	case workflow.StatusError:
		return m.viewError()
	default:
		return m.viewForm()
	}
}

func (m Model) viewForm() string {
	var sb strings.Builder

	sb.WriteString(style.Title.Render("=== New Ebook ==="))
	sb.WriteString("\n\n")

	sb.WriteString(style.Label.Render("Topic"))
	sb.WriteString("\n")
	sb.WriteString(style.Input.Render(m.topic.View()))
	sb.WriteString("\n\n")

	sb.WriteString(style.Label.Render("Chapters "))
	for i, n := range ebook.ChapterCounts() {
		if i == m.chapters {
			sb.WriteString(style.Selected.Render(fmt.Sprintf("[%d]", n)))
		} else {
			sb.WriteString(style.Muted.Render(fmt.Sprintf(" %d ", n)))
		}
	}
	sb.WriteString("  ")
	sb.WriteString(style.Subtitle.Render(ebook.ChapterLabel(m.selectedChapters())))
	sb.WriteString("\n")

	sb.WriteString(style.Label.Render("Style    "))
	for _, st := range ebook.Styles() {
		if st == m.style {
			sb.WriteString(style.Selected.Render("[" + st.Label() + "]"))
		} else {
			sb.WriteString(style.Muted.Render(" " + st.Label() + " "))
		}
	}
	sb.WriteString("\n\n")

	if m.notice != "" {
		sb.WriteString(m.renderNotice())
		sb.WriteString("\n\n")
	}

	sb.WriteString(renderHints(m.keys.FormHelp()...))

	return sb.String()
}

func (m Model) viewReader() string {
	var sb strings.Builder

	sb.WriteString(style.Title.Render("=== " + m.snap.Ebook.Title + " ==="))
	sb.WriteString("\n")
	sb.WriteString(style.Subtitle.Render(fmt.Sprintf("%s style, %d%% read", m.snap.Style.Label(), int(m.viewport.ScrollPercent()*100))))
	sb.WriteString("\n")

	sb.WriteString(style.Viewport.Render(m.viewport.View()))
	sb.WriteString("\n")

	switch {
	case m.snap.Continuing:
		sb.WriteString(m.spinner.Spinner.View())
		sb.WriteString(" ")
		sb.WriteString(style.Progress.Render("Writing another chapter..."))
	case m.snap.Error != "":
		sb.WriteString(style.Error.Render(m.snap.Error))
		sb.WriteString("  ")
		sb.WriteString(renderHints(m.keys.Dismiss))
	case m.notice != "":
		sb.WriteString(m.renderNotice())
	}
	sb.WriteString("\n")

	sb.WriteString(renderHints(m.keys.ReaderHelp(m.snap.Continuing)...))

	return sb.String()
}

func (m Model) viewError() string {
	var sb strings.Builder

	sb.WriteString(style.Title.Render("=== Something went wrong ==="))
	sb.WriteString("\n\n")
	sb.WriteString(style.Error.Render(m.snap.Error))
	sb.WriteString("\n\n")
	sb.WriteString(renderHints(m.keys.Retry, m.keys.Quit))

	return sb.String()
}

func (m Model) renderNotice() string {
	if m.noticeErr {
		return style.Error.Render(m.notice)
	}
	if path, ok := strings.CutPrefix(m.notice, "Saved: "); ok {
		return style.Success.Render("Saved: ") + style.Muted.Render(path)
	}

	return style.Warning.Render(m.notice)
}

// Snapshot returns the workflow state the model last rendered.
func (m Model) Snapshot() workflow.Snapshot {
	return m.snap
}
