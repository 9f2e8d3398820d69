package tui

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"tokentrackr/pkg/reconcile"
	"tokentrackr/pkg/utils"

	"github.com/guptarohit/asciigraph"
)

var tabNames = []string{"Watchlist", "History", "Allowance", "Transfer"}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("TokenTrackr %s • %s", Version, m.settings.Name)))
	b.WriteString("\n")

	if m.screen == screenLogin {
		b.WriteString(m.loginView())
	} else {
		b.WriteString(m.tabBar())
		b.WriteString("\n")
		switch m.screen {
		case screenWatchlist:
			b.WriteString(m.watchlistView())
		case screenHistory:
			b.WriteString(m.historyView())
		case screenAllowance:
			b.WriteString(m.allowanceView())
		case screenTransfer:
			b.WriteString(m.transferView())
		}
		b.WriteString("\n")
		b.WriteString(m.statusBar())
	}

	b.WriteString("\n")
	if m.busy {
		b.WriteString(m.spinner.View() + " working...\n")
	}
	if m.errMessage != "" {
		b.WriteString(errStyle.Render(m.errMessage) + "\n")
	}
	if m.statusMessage != "" {
		b.WriteString(okStyle.Render(m.statusMessage) + "\n")
	}
	b.WriteString(subtleStyle.Render(m.helpLine()))

	return b.String()
}

func (m model) loginView() string {
	var b strings.Builder
	b.WriteString("Connect a wallet session:\n\n")

	choices := []string{
		"Embedded signer (local keystore)",
		"Extension wallet (node-managed account)",
		"Watch an address (read-only)",
	}
	for i, c := range choices {
		cursor := "  "
		style := subtleStyle
		if i == m.loginChoice {
			cursor = "> "
			style = infoStyle
		}
		b.WriteString(style.Render(cursor+c) + "\n")
	}
	b.WriteString("\n")

	switch m.loginChoice {
	case 0:
		b.WriteString(m.passphraseInput.View() + "\n")
	case 2:
		b.WriteString(m.addressInput.View() + "\n")
	}

	return boxStyle.Render(b.String())
}

func (m model) tabBar() string {
	screens := []screen{screenWatchlist, screenHistory, screenAllowance, screenTransfer}
	parts := make([]string, 0, len(screens))
	for i, s := range screens {
		if s == m.screen {
			parts = append(parts, activeTabStyle.Render(tabNames[i]))
		} else {
			parts = append(parts, tabStyle.Render(tabNames[i]))
		}
	}
	return strings.Join(parts, "|")
}

func (m model) watchlistView() string {
	var b strings.Builder

	b.WriteString(tableHeaderStyle.Render(fmt.Sprintf("%-8s %-24s %-20s", "SYMBOL", "BALANCE", "TOKEN")) + "\n")
	if len(m.entries) == 0 {
		b.WriteString(subtleStyle.Render("No tokens tracked yet.") + "\n")
	}
	for _, e := range m.entries {
		balance := e.Balance
		line := fmt.Sprintf("%-8s %-24s %-20s",
			utils.TruncateString(e.Token.Symbol, 8),
			utils.TruncateString(balance, 24),
			utils.ShortAddress(e.Token.Address))
		if balance == reconcile.ErrorBalance {
			b.WriteString(errStyle.Render(line) + "\n")
		} else {
			b.WriteString(line + "\n")
		}
	}

	if len(m.promoted) > 0 {
		b.WriteString("\n" + tableHeaderStyle.Render("POPULAR") + "\n")
		for i, d := range m.promoted {
			cursor := "  "
			style := subtleStyle
			if i == m.promoIdx {
				cursor = "> "
				style = infoStyle
			}
			line := fmt.Sprintf("%s%-8s %s", cursor, d.Symbol, d.Name)
			if m.tracked(d.Address) {
				line += " (tracked)"
			}
			b.WriteString(style.Render(line) + "\n")
		}
	}

	b.WriteString("\n" + m.tokenInput.View() + "\n")
	return boxStyle.Render(b.String())
}

func (m model) tracked(address string) bool {
	for _, e := range m.entries {
		if strings.EqualFold(e.Token.Address, address) {
			return true
		}
	}
	return false
}

func (m model) historyView() string {
	var b strings.Builder

	for i := range m.histInputs {
		b.WriteString(m.histInputs[i].View() + "\n")
	}

	if len(m.points) > 0 {
		values := make([]float64, 0, len(m.points))
		for _, p := range m.points {
			f, _ := strconv.ParseFloat(p.Balance, 64)
			values = append(values, f)
		}
		caption := fmt.Sprintf("%s .. %s",
			m.points[0].Date.Format("2006-01-02"),
			m.points[len(m.points)-1].Date.Format("2006-01-02"))
		b.WriteString("\n")
		b.WriteString(asciigraph.Plot(values,
			asciigraph.Height(10),
			asciigraph.Width(60),
			asciigraph.Caption(caption)))
		b.WriteString("\n")
	}

	return boxStyle.Render(b.String())
}

func (m model) allowanceView() string {
	var b strings.Builder

	mode := "Check allowance"
	if m.allowMode == 1 {
		mode = "Approve spender"
	}
	b.WriteString(infoStyle.Render(mode) + subtleStyle.Render("  (ctrl+o to switch)") + "\n\n")

	limit := len(m.allowInputs)
	if m.allowMode == 0 {
		limit = 2 // amount only applies to approve
	}
	for i := 0; i < limit; i++ {
		b.WriteString(m.allowInputs[i].View() + "\n")
	}

	if m.allowance != nil {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("Spender %s may spend %s\n",
			utils.ShortAddress(m.allowance.Spender), m.allowance.Amount))
	}
	if m.receipt != nil && m.allowMode == 1 {
		b.WriteString(m.receiptView())
	}

	return boxStyle.Render(b.String())
}

func (m model) transferView() string {
	var b strings.Builder

	for i := range m.xferInputs {
		b.WriteString(m.xferInputs[i].View() + "\n")
	}
	if m.receipt != nil {
		b.WriteString(m.receiptView())
	}

	return boxStyle.Render(b.String())
}

func (m model) receiptView() string {
	r := m.receipt
	return fmt.Sprintf("\nTx %s\nBlock %d, gas used %d @ %s gwei\n",
		utils.TruncateString(r.Hash, 20), r.BlockNumber, r.GasUsed, r.EffectiveGasPriceGwei)
}

func (m model) statusBar() string {
	sess := m.sessions.Current()
	parts := []string{sess.Mode.String()}
	if sess.Connected() {
		parts = append(parts, utils.ShortAddress(sess.Address))
	}
	if m.nativeBalance != "" {
		parts = append(parts, fmt.Sprintf("%s %s", utils.TruncateString(m.nativeBalance, 12), m.settings.NativeSymbol))
	}
	if m.price > 0 {
		parts = append(parts, fmt.Sprintf("$%s", utils.FormatFloat(m.price, 2)))
	}
	if gwei := weiToGwei(m.gasPriceWei); gwei != "" {
		parts = append(parts, fmt.Sprintf("gas %s gwei", gwei))
	}
	return statusBarStyle.Render(strings.Join(parts, " • "))
}

func (m model) helpLine() string {
	if m.screen == screenLogin {
		return "up/down choose • enter connect • ctrl+c quit"
	}
	help := "ctrl+n/p tabs • ctrl+r refresh • ctrl+y copy address • ctrl+d disconnect • ctrl+c quit"
	if m.screen == screenWatchlist {
		help = "up/down pick popular • enter add token • ctrl+x remove • " + help
	}
	return help
}

func weiToGwei(wei string) string {
	if wei == "" {
		return ""
	}
	f, ok := new(big.Float).SetString(wei)
	if !ok {
		return ""
	}
	f.Quo(f, big.NewFloat(1e9))
	return f.Text('f', 2)
}
