package models

import (
	"time"
)

// SessionMode identifies how the user is connected.
type SessionMode int

const (
	Disconnected SessionMode = iota
	EmbeddedSigner
	ExtensionWallet
	ReadOnlyAddress
)

func (m SessionMode) String() string {
	switch m {
	case EmbeddedSigner:
		return "embedded"
	case ExtensionWallet:
		return "extension"
	case ReadOnlyAddress:
		return "readonly"
	default:
		return "disconnected"
	}
}

// CanSign reports whether the mode carries a signing-capable provider.
func (m SessionMode) CanSign() bool {
	return m == EmbeddedSigner || m == ExtensionWallet
}

// TokenDescriptor describes a token. An empty Address means the native asset
// (fixed 18 decimals). Immutable once decimals are resolved.
type TokenDescriptor struct {
	Address  string `json:"address,omitempty"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	Logo     string `json:"logo,omitempty"`
}

// Native returns the descriptor for the chain's native asset.
func Native(symbol string) TokenDescriptor {
	return TokenDescriptor{Symbol: symbol, Name: symbol, Decimals: 18}
}

// IsNative reports whether the descriptor refers to the native asset.
func (t TokenDescriptor) IsNative() bool {
	return t.Address == ""
}

// WatchEntry is one row of the watchlist. A failed refresh keeps the row and
// records the error so the UI can render an explicit Error cell.
type WatchEntry struct {
	Token           TokenDescriptor `json:"token"`
	Balance         string          `json:"balance"`
	Err             error           `json:"-"`
	LastRefreshedAt time.Time       `json:"last_refreshed_at"`
}

// AllowanceRecord is the result of an allowance check. Transient, recomputed
// on demand, never cached across a token/spender change.
type AllowanceRecord struct {
	Owner   string          `json:"owner"`
	Spender string          `json:"spender"`
	Token   TokenDescriptor `json:"token"`
	Amount  string          `json:"amount"`
}

// HistoricalPoint is one day of a historical balance series. Date is UTC
// midnight of the calendar day the point represents.
type HistoricalPoint struct {
	Date    time.Time `json:"date"`
	Balance string    `json:"balance"`
	Block   uint64    `json:"block"`
}

// TransferReceipt is the normalized result of a mined transfer or approval.
// Immutable once created.
type TransferReceipt struct {
	Hash                  string `json:"hash"`
	From                  string `json:"from"`
	To                    string `json:"to"`
	Value                 string `json:"value"`
	GasUsed               uint64 `json:"gas_used"`
	EffectiveGasPriceGwei string `json:"effective_gas_price_gwei"`
	BlockNumber           uint64 `json:"block_number"`
}

// PriceData carries a spot price fetched from the price feed.
type PriceData struct {
	CoinID string  `json:"coin_id"`
	Price  float64 `json:"price"`
	Err    error   `json:"-"`
}

// GasPriceData carries the current suggested gas price in wei.
type GasPriceData struct {
	Wei string `json:"wei"`
	Err error  `json:"-"`
}
