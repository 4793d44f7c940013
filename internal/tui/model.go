package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/phillip-england/caresuite/internal/attendance"
	"github.com/phillip-england/caresuite/internal/overrides"
)

type loadedMsg struct{ err error }

type savedMsg struct {
	id  string
	err error
}

type approvedMsg struct {
	id  string
	err error
}

type cellKey struct {
	id    string
	field overrides.Field
}

// Model is the terminal attendance editor. Every keystroke in a time cell
// goes through the editor, so the terminal and the web page share one set of
// normalizing and validation rules.
type Model struct {
	ctx    context.Context
	editor *attendance.Editor
	keys   keyMap
	help   help.Model
	input  textinput.Model
	styles styleMap

	records []attendance.Record
	cursor  int
	field   overrides.Field
	notes   map[cellKey]string
	status  string
	failed  bool
	busy    bool
}

func New(ctx context.Context, editor *attendance.Editor) Model {
	ti := textinput.New()
	ti.Placeholder = "HH:MM"
	ti.Prompt = ""
	ti.CharLimit = 8
	ti.Width = 6
	ti.Focus()

	return Model{
		ctx:    ctx,
		editor: editor,
		keys:   defaultKeyMap(),
		help:   help.New(),
		input:  ti,
		styles: defaultStyles(),
		field:  overrides.ClockIn,
		notes:  map[cellKey]string{},
	}
}

// Run starts the editor full screen and blocks until the user quits.
func Run(ctx context.Context, editor *attendance.Editor) error {
	p := tea.NewProgram(New(ctx, editor), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), textinput.Blink)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case loadedMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(fmt.Sprintf("Unable to load attendance: %v", msg.err))
		}
		m.refresh()
		return m, nil

	case savedMsg:
		m.busy = false
		if msg.err != nil {
			m.reportSaveError(msg.id, msg.err)
		} else {
			m.clearNotes(msg.id)
			m.setStatus("Attendance saved")
		}
		m.refresh()
		return m, nil

	case approvedMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(errorText(msg.err))
		} else {
			m.setStatus("Attendance approved")
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.blur()
		if m.cursor > 0 {
			m.cursor--
		}
		m.syncInput()
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.blur()
		if m.cursor < len(m.records)-1 {
			m.cursor++
		}
		m.syncInput()
		return m, nil

	case key.Matches(msg, m.keys.NextField), key.Matches(msg, m.keys.PrevField):
		m.blur()
		m.field = otherField(m.field)
		m.syncInput()
		return m, nil

	case key.Matches(msg, m.keys.Save):
		rec, ok := m.current()
		if !ok || m.busy {
			return m, nil
		}
		m.blur()
		if !m.editor.Dirty(rec.ID) {
			m.setStatus("No changes to save")
			return m, nil
		}
		m.busy = true
		m.setStatus("Saving...")
		return m, m.save(rec.ID)

	case key.Matches(msg, m.keys.Discard):
		rec, ok := m.current()
		if !ok {
			return m, nil
		}
		m.editor.Discard(rec.ID)
		m.clearNotes(rec.ID)
		m.syncInput()
		m.setStatus("Changes discarded")
		return m, nil

	case key.Matches(msg, m.keys.Approve):
		rec, ok := m.current()
		if !ok || m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.approve(rec.ID)

	case key.Matches(msg, m.keys.Reload):
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.setStatus("Reloading...")
		return m, m.load()
	}

	return m.edit(msg)
}

// edit forwards a keystroke to the focused cell and replaces the raw text
// with the editor's normalized fragment.
func (m Model) edit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rec, ok := m.current()
	if !ok {
		return m, nil
	}
	if rec.Approved() {
		m.setError("Approved records are read-only")
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	raw := m.input.Value()
	if raw == before {
		return m, cmd
	}

	fragment := m.editor.Input(rec.ID, m.field, raw)
	if fragment != raw {
		m.input.SetValue(fragment)
		m.input.CursorEnd()
	}
	delete(m.notes, cellKey{id: rec.ID, field: m.field})
	return m, cmd
}

func (m *Model) blur() {
	rec, ok := m.current()
	if !ok {
		return
	}
	k := cellKey{id: rec.ID, field: m.field}
	if message := m.editor.Blur(rec.ID, m.field).Message(); message != "" {
		m.notes[k] = message
		return
	}
	delete(m.notes, k)
}

func (m *Model) refresh() {
	m.records = m.editor.Records()
	if m.cursor >= len(m.records) {
		m.cursor = len(m.records) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.syncInput()
}

func (m *Model) syncInput() {
	rec, ok := m.current()
	if !ok {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.editor.Value(rec.ID, m.field))
	m.input.CursorEnd()
}

func (m Model) current() (attendance.Record, bool) {
	if m.cursor < 0 || m.cursor >= len(m.records) {
		return attendance.Record{}, false
	}
	return m.records[m.cursor], true
}

func (m *Model) reportSaveError(id string, err error) {
	var fieldErr *attendance.FieldError
	if errors.As(err, &fieldErr) {
		m.notes[cellKey{id: id, field: fieldErr.Field}] = fieldErr.Result.Message()
	}
	var saveErr *attendance.SaveError
	if errors.As(err, &saveErr) && saveErr.Retryable() {
		m.setError(fmt.Sprintf("Save failed, edits kept: %v", saveErr.Err))
		return
	}
	m.setError(errorText(err))
}

func (m *Model) clearNotes(id string) {
	for k := range m.notes {
		if k.id == id {
			delete(m.notes, k)
		}
	}
}

func (m *Model) setStatus(status string) {
	m.status = status
	m.failed = false
}

func (m *Model) setError(status string) {
	m.status = status
	m.failed = true
}

func (m Model) load() tea.Cmd {
	ctx, editor := m.ctx, m.editor
	return func() tea.Msg {
		return loadedMsg{err: editor.Load(ctx)}
	}
}

func (m Model) save(id string) tea.Cmd {
	ctx, editor := m.ctx, m.editor
	return func() tea.Msg {
		return savedMsg{id: id, err: editor.Save(ctx, id)}
	}
}

func (m Model) approve(id string) tea.Cmd {
	ctx, editor := m.ctx, m.editor
	return func() tea.Msg {
		return approvedMsg{id: id, err: editor.Approve(ctx, id)}
	}
}

func otherField(field overrides.Field) overrides.Field {
	if field == overrides.ClockIn {
		return overrides.ClockOut
	}
	return overrides.ClockIn
}

func errorText(err error) string {
	message := err.Error()
	if message == "" {
		return "Something went wrong"
	}
	return capitalize(message)
}
