package ui

import "github.com/charmbracelet/lipgloss"

var (
	purple = lipgloss.Color("#7D56F4")
	muted  = lipgloss.Color("#8A8A8A")
	red    = lipgloss.Color("#E06C75")
	green  = lipgloss.Color("#98C379")

	userLabelStyle = lipgloss.NewStyle().Foreground(purple).Bold(true)
	botLabelStyle  = lipgloss.NewStyle().Foreground(green).Bold(true)
	timeStyle      = lipgloss.NewStyle().Foreground(muted)
	bodyStyle      = lipgloss.NewStyle().PaddingLeft(2)

	optionKeyStyle = lipgloss.NewStyle().Foreground(purple).Bold(true)
	optionStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().Foreground(muted).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(red).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(muted)
	bannerStyle = lipgloss.NewStyle().Foreground(red)
)
