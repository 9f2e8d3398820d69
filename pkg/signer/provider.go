// Package signer holds the wallet-signing boundary: the embedded keystore
// signer and the external node-managed wallet are consumed through the same
// narrow Provider interface, selected once at connect time.
package signer

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/term"
)

// TxRequest is a fully-populated transaction handed to a provider for signing
// and broadcast. Providers that delegate signing to an external wallet may
// ignore the pre-filled gas fields and let the wallet fill its own.
type TxRequest struct {
	From     common.Address
	To       *common.Address
	Value    *big.Int
	Data     []byte
	Nonce    uint64
	GasLimit uint64
	GasPrice *big.Int
	ChainID  *big.Int
}

// Provider is a signing-capable wallet bound to a single address.
type Provider interface {
	Address() common.Address
	// SubmitTransaction signs the request (locally or inside the wallet) and
	// broadcasts it, returning the transaction hash.
	SubmitTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
	Close()
}

// PromptPassphrase reads a passphrase from the terminal without echo. Used by
// the non-TUI entry points; the TUI collects passphrases with its own input.
func PromptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
