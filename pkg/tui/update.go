package tui

import (
	"fmt"
	"time"

	"tokentrackr/pkg/models"
	"tokentrackr/pkg/utils"
	"tokentrackr/pkg/watcher"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case clearStatusMsg:
		m.statusMessage = ""
		return m, nil

	case watcher.Event:
		m = m.handleWatcherEvent(msg)
		return m, listenForWatcher(m.sub)

	case sessionResultMsg:
		m.busy = false
		if msg.err != nil {
			m.errMessage = errorLine(msg.err)
			return m, nil
		}
		m.errMessage = ""
		m.passphraseInput.SetValue("")
		m.screen = screenWatchlist
		m = m.focusScreen()
		m.statusMessage = fmt.Sprintf("Connected as %s (%s)", utils.ShortAddress(msg.sess.Address), msg.sess.Mode)
		return m, tea.Batch(refreshWatchlistCmd(m.reconciler), clearStatusAfter(3*time.Second))

	case disconnectedMsg:
		m.busy = false
		m.screen = screenLogin
		m = m.focusLogin()
		m.errMessage = ""
		m.statusMessage = "Disconnected"
		m.entries = m.reconciler.Watchlist()
		m.points = nil
		m.allowance = nil
		m.receipt = nil
		m.nativeBalance = ""
		return m, clearStatusAfter(2*time.Second)

	case tokenAddedMsg:
		m.busy = false
		if msg.err != nil {
			m.errMessage = errorLine(msg.err)
			return m, nil
		}
		m.errMessage = ""
		m.tokenInput.SetValue("")
		m.statusMessage = fmt.Sprintf("Added %s to watchlist", msg.desc.Symbol)
		return m, tea.Batch(refreshWatchlistCmd(m.reconciler), clearStatusAfter(3*time.Second))

	case watchlistMsg:
		m.busy = false
		if msg.err != nil {
			m.errMessage = errorLine(msg.err)
			return m, nil
		}
		m.entries = msg.entries
		return m, nil

	case seriesMsg:
		m.busy = false
		if msg.err != nil {
			m.errMessage = errorLine(msg.err)
			return m, nil
		}
		m.errMessage = ""
		m.points = msg.points
		return m, nil

	case allowanceMsg:
		m.busy = false
		if msg.err != nil {
			m.errMessage = errorLine(msg.err)
			return m, nil
		}
		m.errMessage = ""
		record := msg.record
		m.allowance = &record
		return m, nil

	case actionResultMsg:
		m.busy = false
		if msg.err != nil {
			m.errMessage = errorLine(msg.err)
			return m, nil
		}
		m.errMessage = ""
		m.receipt = msg.receipt
		if msg.receipt != nil {
			m.statusMessage = fmt.Sprintf("Confirmed in block %d", msg.receipt.BlockNumber)
		}
		return m, tea.Batch(refreshWatchlistCmd(m.reconciler), clearStatusAfter(5*time.Second))

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m model) handleWatcherEvent(ev watcher.Event) model {
	switch ev.Type {
	case watcher.EventSessionChanged:
		if !m.sessions.Current().Connected() {
			m.screen = screenLogin
		}
	case watcher.EventWatchlistUpdate:
		if entries, ok := ev.Data.([]models.WatchEntry); ok {
			m.entries = entries
		}
	case watcher.EventNativeBalance:
		if bal, ok := ev.Data.(string); ok {
			m.nativeBalance = bal
		}
	case watcher.EventGasPriceUpdated:
		if gas, ok := ev.Data.(models.GasPriceData); ok {
			m.gasPriceWei = gas.Wei
		}
	case watcher.EventPriceUpdated:
		if data, ok := ev.Data.(models.PriceData); ok {
			m.price = data.Price
		}
	}
	return m
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.errMessage = ""
		m.statusMessage = ""
		return m, nil
	}

	if m.screen == screenLogin {
		return m.handleLoginKey(msg)
	}

	switch msg.Type {
	case tea.KeyCtrlD:
		m.busy = true
		return m, disconnectCmd(m.sessions)
	case tea.KeyCtrlN:
		m.screen = nextScreen(m.screen)
		return m.focusScreen(), nil
	case tea.KeyCtrlP:
		m.screen = prevScreen(m.screen)
		return m.focusScreen(), nil
	case tea.KeyCtrlR:
		m.busy = true
		return m, refreshWatchlistCmd(m.reconciler)
	case tea.KeyCtrlY:
		sess := m.sessions.Current()
		if sess.Connected() {
			if err := clipboard.WriteAll(sess.Address); err == nil {
				m.statusMessage = "Address copied to clipboard"
				return m, clearStatusAfter(2 * time.Second)
			}
		}
		return m, nil
	}

	switch m.screen {
	case screenWatchlist:
		return m.handleWatchlistKey(msg)
	case screenHistory:
		return m.handleHistoryKey(msg)
	case screenAllowance:
		return m.handleAllowanceKey(msg)
	case screenTransfer:
		return m.handleTransferKey(msg)
	}
	return m, nil
}

func (m model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyUp, tea.KeyShiftTab:
		m.loginChoice = (m.loginChoice + 2) % 3
		return m.focusLogin(), nil
	case tea.KeyDown, tea.KeyTab:
		m.loginChoice = (m.loginChoice + 1) % 3
		return m.focusLogin(), nil
	case tea.KeyEnter:
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.errMessage = ""
		switch m.loginChoice {
		case 0:
			return m, connectEmbeddedCmd(m.sessions, m.passphraseInput.Value())
		case 1:
			return m, connectExtensionCmd(m.sessions)
		default:
			return m, connectReadOnlyCmd(m.sessions, m.addressInput.Value())
		}
	}

	var cmd tea.Cmd
	switch m.loginChoice {
	case 0:
		m.passphraseInput, cmd = m.passphraseInput.Update(msg)
	case 2:
		m.addressInput, cmd = m.addressInput.Update(msg)
	}
	return m, cmd
}

func (m model) handleWatchlistKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyUp:
		if len(m.promoted) > 0 {
			m.promoIdx = (m.promoIdx + len(m.promoted) - 1) % len(m.promoted)
		}
		return m, nil
	case tea.KeyDown:
		if len(m.promoted) > 0 {
			m.promoIdx = (m.promoIdx + 1) % len(m.promoted)
		}
		return m, nil
	case tea.KeyEnter:
		if m.busy {
			return m, nil
		}
		// A typed address wins; an empty input adds the selected popular
		// token instead.
		addr := m.tokenInput.Value()
		if addr == "" {
			if len(m.promoted) == 0 {
				return m, nil
			}
			addr = m.promoted[m.promoIdx].Address
		}
		m.busy = true
		return m, addTokenCmd(m.reconciler, addr)
	case tea.KeyCtrlX:
		if addr := m.tokenInput.Value(); addr != "" {
			if err := m.reconciler.RemoveToken(addr); err != nil {
				m.errMessage = errorLine(err)
			} else {
				m.tokenInput.SetValue("")
				m.entries = m.reconciler.Watchlist()
				m.statusMessage = "Token removed"
				return m, clearStatusAfter(2 * time.Second)
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.tokenInput, cmd = m.tokenInput.Update(msg)
	return m, cmd
}

func (m model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab:
		m.histFocus = (m.histFocus + 1) % len(m.histInputs)
		return m.focusScreen(), nil
	case tea.KeyShiftTab:
		m.histFocus = (m.histFocus + len(m.histInputs) - 1) % len(m.histInputs)
		return m.focusScreen(), nil
	case tea.KeyEnter:
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.errMessage = ""
		return m, seriesCmd(m.reconciler, m.histInputs[0].Value(), m.histInputs[1].Value(), m.histInputs[2].Value())
	}

	var cmd tea.Cmd
	m.histInputs[m.histFocus], cmd = m.histInputs[m.histFocus].Update(msg)
	return m, cmd
}

func (m model) handleAllowanceKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab:
		m.allowFocus = (m.allowFocus + 1) % len(m.allowInputs)
		return m.focusScreen(), nil
	case tea.KeyShiftTab:
		m.allowFocus = (m.allowFocus + len(m.allowInputs) - 1) % len(m.allowInputs)
		return m.focusScreen(), nil
	case tea.KeyCtrlO:
		m.allowMode = 1 - m.allowMode
		return m, nil
	case tea.KeyEnter:
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.errMessage = ""
		token, spender := m.allowInputs[0].Value(), m.allowInputs[1].Value()
		if m.allowMode == 0 {
			return m, checkAllowanceCmd(m.coordinator, token, spender)
		}
		return m, approveCmd(m.coordinator, token, spender, m.allowInputs[2].Value())
	}

	var cmd tea.Cmd
	m.allowInputs[m.allowFocus], cmd = m.allowInputs[m.allowFocus].Update(msg)
	return m, cmd
}

func (m model) handleTransferKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab:
		m.xferFocus = (m.xferFocus + 1) % len(m.xferInputs)
		return m.focusScreen(), nil
	case tea.KeyShiftTab:
		m.xferFocus = (m.xferFocus + len(m.xferInputs) - 1) % len(m.xferInputs)
		return m.focusScreen(), nil
	case tea.KeyEnter:
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.errMessage = ""
		return m, transferCmd(m.coordinator, m.xferInputs[0].Value(), m.xferInputs[1].Value(), m.xferInputs[2].Value())
	}

	var cmd tea.Cmd
	m.xferInputs[m.xferFocus], cmd = m.xferInputs[m.xferFocus].Update(msg)
	return m, cmd
}

func nextScreen(s screen) screen {
	switch s {
	case screenWatchlist:
		return screenHistory
	case screenHistory:
		return screenAllowance
	case screenAllowance:
		return screenTransfer
	default:
		return screenWatchlist
	}
}

func prevScreen(s screen) screen {
	switch s {
	case screenWatchlist:
		return screenTransfer
	case screenTransfer:
		return screenAllowance
	case screenAllowance:
		return screenHistory
	default:
		return screenWatchlist
	}
}

func (m model) focusLogin() model {
	m.addressInput.Blur()
	m.passphraseInput.Blur()
	switch m.loginChoice {
	case 0:
		m.passphraseInput.Focus()
	case 2:
		m.addressInput.Focus()
	}
	return m
}

// focusScreen moves textinput focus to match the active screen and field.
func (m model) focusScreen() model {
	blurAll := func(inputs []textinput.Model) {
		for i := range inputs {
			inputs[i].Blur()
		}
	}
	m.tokenInput.Blur()
	blurAll(m.histInputs)
	blurAll(m.allowInputs)
	blurAll(m.xferInputs)

	switch m.screen {
	case screenWatchlist:
		m.tokenInput.Focus()
	case screenHistory:
		m.histInputs[m.histFocus].Focus()
	case screenAllowance:
		m.allowInputs[m.allowFocus].Focus()
	case screenTransfer:
		m.xferInputs[m.xferFocus].Focus()
	}
	return m
}

func errorLine(err error) string {
	if err == nil {
		return ""
	}
	kind := models.ErrorKind(err)
	if kind == "" {
		return err.Error()
	}
	return fmt.Sprintf("[%s] %v", kind, err)
}
