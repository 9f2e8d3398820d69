package models

import "errors"

// Stable failure kinds. Validation errors are raised locally before any
// network call; provider-originated errors are normalized at the chain client
// boundary so callers never see raw provider failures. Wrap with
// github.com/pkg/errors for call-site context; match with errors.Is.
var (
	ErrAuthCancelled       = errors.New("authentication cancelled")
	ErrProviderUnavailable = errors.New("signer provider unavailable")
	ErrNoWalletDetected    = errors.New("no wallet detected")
	ErrUserRejected        = errors.New("user rejected the request")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrConnectInProgress   = errors.New("connect already in progress")
	ErrNotAnErc20          = errors.New("address is not an ERC-20 token")
	ErrReadOnlySession     = errors.New("session has no signer")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrInvalidDateRange    = errors.New("invalid date range")
	ErrMissingInput        = errors.New("missing input")
	ErrActionInProgress    = errors.New("action already in progress")
	ErrNoActiveSession     = errors.New("no active session")
	ErrProviderTimeout     = errors.New("provider timed out")
	ErrProviderError       = errors.New("provider error")
)

var kindNames = map[error]string{
	ErrAuthCancelled:       "AuthCancelled",
	ErrProviderUnavailable: "ProviderUnavailable",
	ErrNoWalletDetected:    "NoWalletDetected",
	ErrUserRejected:        "UserRejected",
	ErrInvalidAddress:      "InvalidAddress",
	ErrConnectInProgress:   "ConnectInProgress",
	ErrNotAnErc20:          "NotAnErc20",
	ErrReadOnlySession:     "ReadOnlySession",
	ErrInsufficientFunds:   "InsufficientFunds",
	ErrInsufficientBalance: "InsufficientBalance",
	ErrTransactionReverted: "TransactionReverted",
	ErrInvalidDateRange:    "InvalidDateRange",
	ErrMissingInput:        "MissingInput",
	ErrActionInProgress:    "ActionInProgress",
	ErrNoActiveSession:     "NoActiveSession",
	ErrProviderTimeout:     "ProviderTimeout",
	ErrProviderError:       "ProviderError",
}

// ErrorKind returns the stable kind name for err, or "ProviderError" for
// anything that escaped normalization. Nil errors return "".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for sentinel, name := range kindNames {
		if errors.Is(err, sentinel) {
			return name
		}
	}
	return "ProviderError"
}
