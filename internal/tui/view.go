package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/phillip-england/caresuite/internal/attendance"
	"github.com/phillip-england/caresuite/internal/overrides"
)

func (m Model) View() string {
	var b strings.Builder

	filter := m.editor.Filter()
	title := "Attendance"
	if filter.Date != "" {
		title += " for " + filter.Date
	}
	if filter.Status != "" {
		title += " (" + filter.Status + ")"
	}
	b.WriteString(m.styles.title.Render(title))
	b.WriteString("\n\n")

	if len(m.records) == 0 {
		b.WriteString(m.styles.status.Render("No attendance records."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.styles.header.Render(fmt.Sprintf("  %-20s %-10s %-8s %-8s %6s  %s", "Staff", "Date", "In", "Out", "Hours", "Status")))
		b.WriteString("\n")
		for i, rec := range m.records {
			b.WriteString(m.renderRow(i, rec))
			b.WriteString("\n")
		}
	}

	if rec, ok := m.current(); ok {
		for _, field := range []overrides.Field{overrides.ClockIn, overrides.ClockOut} {
			if note := m.notes[cellKey{id: rec.ID, field: field}]; note != "" {
				b.WriteString("\n")
				b.WriteString(m.styles.invalid.Render(attendance.FieldLabel(field) + ": " + note))
			}
		}
	}

	if m.status != "" {
		b.WriteString("\n")
		if m.failed {
			b.WriteString(m.styles.invalid.Render(m.status))
		} else {
			b.WriteString(m.styles.status.Render(m.status))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderRow(i int, rec attendance.Record) string {
	selected := i == m.cursor
	marker := "  "
	if selected {
		marker = "> "
	}

	staff := truncate(rec.StaffName, 20)
	if m.editor.Dirty(rec.ID) {
		staff = truncate(rec.StaffName, 19) + "*"
	}
	date := ""
	if !rec.ShiftDate.IsZero() {
		date = rec.ShiftDate.Format(attendance.DateLayout)
	}
	hours := ""
	if d := rec.Duration(); d > 0 {
		hours = fmt.Sprintf("%.2f", d.Hours())
	}

	status := "pending"
	statusStyle := m.styles.status
	if rec.Approved() {
		status = "approved"
		statusStyle = m.styles.approved
	}

	line := lipgloss.JoinHorizontal(lipgloss.Top,
		marker,
		fmt.Sprintf("%-20s ", staff),
		fmt.Sprintf("%-10s ", date),
		m.renderCell(rec, overrides.ClockIn, selected),
		" ",
		m.renderCell(rec, overrides.ClockOut, selected),
		fmt.Sprintf(" %6s  ", hours),
		statusStyle.Render(status),
	)
	if selected {
		return m.styles.cursor.Render(line)
	}
	return line
}

func (m Model) renderCell(rec attendance.Record, field overrides.Field, selected bool) string {
	if selected && field == m.field && !rec.Approved() {
		return m.styles.cell.Render(m.input.View())
	}
	value := m.editor.Value(rec.ID, field)
	style := m.styles.cell
	switch {
	case m.notes[cellKey{id: rec.ID, field: field}] != "":
		style = style.Inherit(m.styles.invalid)
	case m.editor.Dirty(rec.ID):
		style = style.Inherit(m.styles.dirty)
	}
	if value == "" {
		value = "--:--"
	}
	return style.Render(value)
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}

func capitalize(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
