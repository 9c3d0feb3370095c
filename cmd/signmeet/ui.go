package main

import "github.com/charmbracelet/lipgloss"

var (
	primary   = lipgloss.Color("#22d3ee")
	secondary = lipgloss.Color("#7C3AED")
	success   = lipgloss.Color("#10B981")
	warning   = lipgloss.Color("#F59E0B")
	failure   = lipgloss.Color("#EF4444")
	muted     = lipgloss.Color("#6B7280")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primary)
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(success)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(failure)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	authorStyle  = lipgloss.NewStyle().Bold(true).Foreground(secondary)
	captionStyle = lipgloss.NewStyle().Italic(true).Foreground(primary)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primary).Align(lipgloss.Center)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(1, 2)
)
