package tui

import "github.com/charmbracelet/lipgloss"

type styleMap struct {
	title    lipgloss.Style
	header   lipgloss.Style
	cursor   lipgloss.Style
	approved lipgloss.Style
	dirty    lipgloss.Style
	invalid  lipgloss.Style
	status   lipgloss.Style
	cell     lipgloss.Style
}

func defaultStyles() styleMap {
	return styleMap{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("36")),
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")),
		cursor:   lipgloss.NewStyle().Background(lipgloss.Color("236")),
		approved: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		dirty:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		invalid:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		status:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true),
		cell:     lipgloss.NewStyle().Width(8),
	}
}
