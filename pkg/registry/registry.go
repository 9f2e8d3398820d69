// Package registry holds the promoted token list and validates arbitrary
// user-supplied addresses against the ERC-20 interface.
package registry

import (
	"context"
	"strings"

	"tokentrackr/pkg/chain"
	"tokentrackr/pkg/models"

	"github.com/pkg/errors"
)

// promoted is the built-in token list shown on the watchlist page. Static and
// immutable; decimals are resolved lazily on first use.
var promoted = []models.TokenDescriptor{
	{Symbol: "USDC", Name: "USD Coin", Address: "0x8267cF9254734C6Eb452a7bb9AAF97B392258b21", Decimals: 6, Logo: "usdc.png"},
	{Symbol: "WETH", Name: "Wrapped Ether", Address: "0x7b79995e5f793A07Bc00c21412e50Ecae098E7f9", Decimals: 18, Logo: "wrapped-eth.png"},
	{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0x68194a729C2450ad26072b3D33ADaCbcef39D574", Decimals: 18, Logo: "dai.png"},
	{Symbol: "USDT", Name: "Tether", Address: "0x7169D38820dfd117C3FA1f22a697dBA58d90BA06", Decimals: 6, Logo: "tether.png"},
	{Symbol: "LINK", Name: "ChainLink", Address: "0x779877A7B0D9E8603169DdbD7836e478b4624789", Decimals: 18, Logo: "chainlink.png"},
	{Symbol: "UNI", Name: "Uniswap", Address: "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984", Decimals: 18, Logo: "uniswap.png"},
}

// ListPromoted returns the ordered built-in token list.
func ListPromoted() []models.TokenDescriptor {
	out := make([]models.TokenDescriptor, len(promoted))
	copy(out, promoted)
	return out
}

// LookupPromoted returns the promoted descriptor for an address, if any.
func LookupPromoted(address string) (models.TokenDescriptor, bool) {
	for _, t := range promoted {
		if equalAddress(t.Address, address) {
			return t, true
		}
	}
	return models.TokenDescriptor{}, false
}

// Resolve validates address against the ERC-20 interface via the active
// client and produces a descriptor. Fails with NotAnErc20 when the address is
// not a token contract; nothing is recorded for failed addresses.
func Resolve(ctx context.Context, client chain.Client, address string) (models.TokenDescriptor, error) {
	if !chain.ValidAddress(address) {
		return models.TokenDescriptor{}, errors.Wrapf(models.ErrInvalidAddress, "%q", address)
	}
	desc, err := client.TokenMetadata(ctx, address)
	if err != nil {
		return models.TokenDescriptor{}, err
	}
	if known, ok := LookupPromoted(address); ok {
		desc.Logo = known.Logo
	}
	return desc, nil
}

func equalAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
