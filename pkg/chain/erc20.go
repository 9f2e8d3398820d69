package chain

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Hand-rolled ERC-20 call encoding. The surface is four view methods and two
// mutating methods, not worth a generated binding.
var (
	selectorName      = []byte{0x06, 0xfd, 0xde, 0x03} // name()
	selectorSymbol    = []byte{0x95, 0xd8, 0x9b, 0x41} // symbol()
	selectorDecimals  = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
	selectorBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31} // balanceOf(address)
	selectorAllowance = []byte{0xdd, 0x62, 0xed, 0x3e} // allowance(address,address)
	selectorApprove   = []byte{0x09, 0x5e, 0xa7, 0xb3} // approve(address,uint256)
	selectorTransfer  = []byte{0xa9, 0x05, 0x9c, 0xbb} // transfer(address,uint256)
)

func encodeCall(selector []byte, args ...[]byte) []byte {
	data := make([]byte, 0, 4+32*len(args))
	data = append(data, selector...)
	for _, a := range args {
		word := make([]byte, 32)
		copy(word[32-len(a):], a)
		data = append(data, word...)
	}
	return data
}

func addressArg(addr common.Address) []byte {
	return addr.Bytes()
}

func uint256Arg(v *big.Int) []byte {
	return v.Bytes()
}

// decodeString handles both ABI-encoded strings and the bytes32 variant some
// older tokens use for name()/symbol().
func decodeString(data []byte) (string, bool) {
	if len(data) == 32 {
		return string(bytes.TrimRight(data, "\x00")), true
	}
	if len(data) >= 64 {
		length := new(big.Int).SetBytes(data[32:64]).Int64()
		if length >= 0 && 64+int(length) <= len(data) {
			return string(data[64 : 64+length]), true
		}
	}
	return "", false
}

func decodeUint256(data []byte) (*big.Int, bool) {
	if len(data) < 32 {
		return nil, false
	}
	return new(big.Int).SetBytes(data[:32]), true
}
