package tui

import (
	"context"

	"tokentrackr/pkg/actions"
	"tokentrackr/pkg/reconcile"
	"tokentrackr/pkg/session"
	"tokentrackr/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

func connectEmbeddedCmd(m *session.Manager, passphrase string) tea.Cmd {
	return func() tea.Msg {
		sess, err := m.ConnectEmbedded(context.Background(), passphrase)
		return sessionResultMsg{sess: sess, err: err}
	}
}

func connectExtensionCmd(m *session.Manager) tea.Cmd {
	return func() tea.Msg {
		sess, err := m.ConnectExtension(context.Background())
		return sessionResultMsg{sess: sess, err: err}
	}
}

func connectReadOnlyCmd(m *session.Manager, address string) tea.Cmd {
	return func() tea.Msg {
		sess, err := m.ConnectReadOnly(context.Background(), address)
		return sessionResultMsg{sess: sess, err: err}
	}
}

func disconnectCmd(m *session.Manager) tea.Cmd {
	return func() tea.Msg {
		_ = m.Disconnect()
		return disconnectedMsg{}
	}
}

func addTokenCmd(r *reconcile.Reconciler, address string) tea.Cmd {
	return func() tea.Msg {
		desc, err := r.AddToken(context.Background(), address)
		return tokenAddedMsg{desc: desc, err: err}
	}
}

func refreshWatchlistCmd(r *reconcile.Reconciler) tea.Cmd {
	return func() tea.Msg {
		entries, err := r.RefreshWatchlist(context.Background())
		return watchlistMsg{entries: entries, err: err}
	}
}

func seriesCmd(r *reconcile.Reconciler, token, start, end string) tea.Cmd {
	return func() tea.Msg {
		points, err := r.ComputeHistoricalSeries(context.Background(), token, start, end)
		return seriesMsg{points: points, err: err}
	}
}

func checkAllowanceCmd(c *actions.Coordinator, token, spender string) tea.Cmd {
	return func() tea.Msg {
		record, err := c.CheckAllowance(context.Background(), token, spender)
		return allowanceMsg{record: record, err: err}
	}
}

func approveCmd(c *actions.Coordinator, token, spender, amount string) tea.Cmd {
	return func() tea.Msg {
		receipt, err := c.Approve(context.Background(), token, spender, amount)
		return actionResultMsg{receipt: receipt, err: err}
	}
}

func transferCmd(c *actions.Coordinator, token, to, amount string) tea.Cmd {
	return func() tea.Msg {
		receipt, err := c.Transfer(context.Background(), token, to, amount)
		return actionResultMsg{receipt: receipt, err: err}
	}
}
