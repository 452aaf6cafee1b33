package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RunStaging runs the staging view until the user quits.
func RunStaging(load Loader, staleAfter time.Duration) error {
	p := tea.NewProgram(NewStagingModel(load, staleAfter), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
