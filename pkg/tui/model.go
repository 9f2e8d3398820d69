package tui

import (
	"tokentrackr/pkg/actions"
	"tokentrackr/pkg/config"
	"tokentrackr/pkg/models"
	"tokentrackr/pkg/reconcile"
	"tokentrackr/pkg/registry"
	"tokentrackr/pkg/session"
	"tokentrackr/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

type screen int

const (
	screenLogin screen = iota
	screenWatchlist
	screenHistory
	screenAllowance
	screenTransfer
)

// --- Messages ---

type clearStatusMsg struct{}

type sessionResultMsg struct {
	sess session.Session
	err  error
}

type disconnectedMsg struct{}

type tokenAddedMsg struct {
	desc models.TokenDescriptor
	err  error
}

type watchlistMsg struct {
	entries []models.WatchEntry
	err     error
}

type seriesMsg struct {
	points []models.HistoricalPoint
	err    error
}

type allowanceMsg struct {
	record models.AllowanceRecord
	err    error
}

type actionResultMsg struct {
	receipt *models.TransferReceipt
	err     error
}

// --- Model ---

type model struct {
	sessions    *session.Manager
	reconciler  *reconcile.Reconciler
	coordinator *actions.Coordinator
	watch       *watcher.Watcher
	sub         watcher.Subscriber
	settings    config.ChainSettings

	screen      screen
	loginChoice int // 0: embedded, 1: extension, 2: read-only address

	addressInput    textinput.Model
	passphraseInput textinput.Model

	tokenInput textinput.Model
	promoted   []models.TokenDescriptor
	promoIdx   int

	histInputs []textinput.Model // token, start date, end date
	histFocus  int

	allowInputs []textinput.Model // token, spender, amount
	allowFocus  int
	allowMode   int // 0: check, 1: approve
	allowance   *models.AllowanceRecord

	xferInputs []textinput.Model // token (optional), recipient, amount
	xferFocus  int
	receipt    *models.TransferReceipt

	entries       []models.WatchEntry
	points        []models.HistoricalPoint
	nativeBalance string
	gasPriceWei   string
	price         float64

	spinner       spinner.Model
	busy          bool
	statusMessage string
	errMessage    string
	width         int
	height        int
}

func initialModel(sessions *session.Manager, reconciler *reconcile.Reconciler, coordinator *actions.Coordinator, w *watcher.Watcher, settings config.ChainSettings) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	addr := textinput.New()
	addr.Placeholder = "0x..."
	addr.Width = 46

	pass := textinput.New()
	pass.Placeholder = "Keystore passphrase"
	pass.EchoMode = textinput.EchoPassword
	pass.Width = 46

	token := textinput.New()
	token.Placeholder = "Token address (0x...)"
	token.Width = 46

	his := make([]textinput.Model, 3)
	for i := range his {
		his[i] = textinput.New()
		his[i].Width = 46
	}
	his[0].Placeholder = "Token address (empty for ETH)"
	his[1].Placeholder = "Start date (YYYY-MM-DD)"
	his[2].Placeholder = "End date (YYYY-MM-DD)"

	alw := make([]textinput.Model, 3)
	for i := range alw {
		alw[i] = textinput.New()
		alw[i].Width = 46
	}
	alw[0].Placeholder = "Token address (0x...)"
	alw[1].Placeholder = "Spender contract (0x...)"
	alw[2].Placeholder = "Amount to approve"

	xfr := make([]textinput.Model, 3)
	for i := range xfr {
		xfr[i] = textinput.New()
		xfr[i].Width = 46
	}
	xfr[0].Placeholder = "Token address (empty for ETH)"
	xfr[1].Placeholder = "Recipient address (0x...)"
	xfr[2].Placeholder = "Amount"

	m := model{
		sessions:        sessions,
		reconciler:      reconciler,
		coordinator:     coordinator,
		watch:           w,
		sub:             w.Subscribe(),
		settings:        settings,
		screen:          screenLogin,
		addressInput:    addr,
		passphraseInput: pass,
		tokenInput:      token,
		promoted:        registry.ListPromoted(),
		histInputs:      his,
		allowInputs:     alw,
		xferInputs:      xfr,
		spinner:         s,
		entries:         reconciler.Watchlist(),
	}
	if sessions.Current().Connected() {
		m.screen = screenWatchlist
		return m.focusScreen()
	}
	return m.focusLogin()
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		listenForWatcher(m.sub),
		m.spinner.Tick,
	)
}
