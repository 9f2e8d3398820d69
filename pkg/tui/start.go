package tui

import (
	"fmt"
	"os"

	"tokentrackr/pkg/actions"
	"tokentrackr/pkg/config"
	"tokentrackr/pkg/reconcile"
	"tokentrackr/pkg/session"
	"tokentrackr/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

func Start(sessions *session.Manager, reconciler *reconcile.Reconciler, coordinator *actions.Coordinator, w *watcher.Watcher, settings config.ChainSettings, version string) {
	Version = version
	p := tea.NewProgram(
		initialModel(sessions, reconciler, coordinator, w, settings),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
