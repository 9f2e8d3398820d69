package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidAddress reports whether s is a syntactically well-formed chain
// address. All-lowercase and all-uppercase forms are accepted; a mixed-case
// form must carry a correct EIP-55 checksum.
func ValidAddress(s string) bool {
	if !common.IsHexAddress(s) {
		return false
	}
	hexPart := strings.TrimPrefix(s, "0x")
	if hexPart == strings.ToLower(hexPart) || hexPart == strings.ToUpper(hexPart) {
		return true
	}
	return common.HexToAddress(s).Hex() == s
}
