package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tokentrackr/pkg/models"
)

const (
	goodToken = "0x1234567890123456789012345678901234567890"
	badToken  = "0x2234567890123456789012345678901234567890"
	hugeToken = "0x3234567890123456789012345678901234567890"
	owner     = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	spender   = "0xCb5801a7d398351b8be11c439e05c5b3259aec9c"
)

// mockRPC answers JSON-RPC requests the way a provider would. eth_call is
// dispatched on the 4-byte selector; calls against badToken revert.
func mockRPC(t *testing.T, callCount *map[string]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int           `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_chainId":
			resp["result"] = "0x1"
		case "eth_gasPrice":
			resp["result"] = "0x4a817c800" // 20 gwei
		case "eth_getBalance":
			resp["result"] = "0x22B1C8C1227A0000" // 2.5 ETH
		case "eth_getBlockByNumber":
			resp["result"] = map[string]interface{}{
				"number":           "0xf4240", // 1_000_000
				"hash":             "0x0000000000000000000000000000000000000000000000000000000000000001",
				"parentHash":       "0x0000000000000000000000000000000000000000000000000000000000000002",
				"sha3Uncles":       "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
				"timestamp":        "0x68000000",
				"miner":            "0x0000000000000000000000000000000000000000",
				"gasLimit":         "0x1",
				"gasUsed":          "0x0",
				"difficulty":       "0x0",
				"extraData":        "0x",
				"mixHash":          "0x0000000000000000000000000000000000000000000000000000000000000000",
				"nonce":            "0x0000000000000000",
				"stateRoot":        "0x0000000000000000000000000000000000000000000000000000000000000000",
				"receiptsRoot":     "0x0000000000000000000000000000000000000000000000000000000000000000",
				"transactionsRoot": "0x0000000000000000000000000000000000000000000000000000000000000001",
				"logsBloom":        "0x" + strings.Repeat("00", 256),
			}
		case "eth_call":
			params, _ := req.Params[0].(map[string]interface{})
			to, _ := params["to"].(string)
			data, _ := params["input"].(string)
			if data == "" {
				data, _ = params["data"].(string)
			}
			selector := ""
			if len(data) >= 10 {
				selector = data[:10]
			}
			if callCount != nil {
				(*callCount)[selector]++
			}
			if strings.EqualFold(to, badToken) {
				resp["error"] = map[string]interface{}{"code": 3, "message": "execution reverted"}
				break
			}
			switch selector {
			case "0x06fdde03": // name()
				resp["result"] = abiString("Mock Token")
			case "0x95d89b41": // symbol()
				resp["result"] = abiString("MOCK")
			case "0x313ce567": // decimals()
				if strings.EqualFold(to, hugeToken) {
					overflow := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(5))
					resp["result"] = "0x" + fmt.Sprintf("%064x", overflow)
					break
				}
				resp["result"] = "0x" + fmt.Sprintf("%064x", 6)
			case "0x70a08231": // balanceOf(address)
				resp["result"] = "0x" + fmt.Sprintf("%064x", 500000000) // 500 @ 6 decimals
			case "0xdd62ed3e": // allowance(address,address)
				resp["result"] = "0x" + fmt.Sprintf("%064x", 12500000) // 12.5 @ 6 decimals
			default:
				resp["result"] = "0x"
			}
		default:
			resp["result"] = "0x0"
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func abiString(s string) string {
	data := make([]byte, 64, 96)
	data[31] = 0x20
	data[63] = byte(len(s))
	padded := make([]byte, (len(s)+31)/32*32)
	copy(padded, s)
	data = append(data, padded...)
	return "0x" + hex.EncodeToString(data)
}

func dialMock(t *testing.T, server *httptest.Server, opts ...Option) *EthClient {
	t.Helper()
	client, err := Dial(context.Background(), server.URL, opts...)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return client
}

func TestTokenBalance(t *testing.T) {
	server := mockRPC(t, nil)
	defer server.Close()
	client := dialMock(t, server)
	defer client.Close()

	bal, err := client.TokenBalance(context.Background(), goodToken, owner, nil)
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if bal != "500" {
		t.Errorf("balance = %q, want 500 (6-decimal scaling)", bal)
	}
}

func TestTokenBalance_NotAnErc20(t *testing.T) {
	server := mockRPC(t, nil)
	defer server.Close()
	client := dialMock(t, server)
	defer client.Close()

	_, err := client.TokenBalance(context.Background(), badToken, owner, nil)
	if err == nil {
		t.Fatal("expected error for a reverting contract")
	}
	if kind := models.ErrorKind(err); kind != "NotAnErc20" {
		t.Errorf("kind = %q, want NotAnErc20", kind)
	}
}

func TestDecimals_FallbackAndCache(t *testing.T) {
	counts := map[string]int{}
	server := mockRPC(t, &counts)
	defer server.Close()
	client := dialMock(t, server)
	defer client.Close()

	// badToken reverts on decimals(); the fallback of 18 applies and is cached.
	d, err := client.Decimals(context.Background(), badToken)
	if err != nil {
		t.Fatalf("Decimals: %v", err)
	}
	if d != 18 {
		t.Errorf("decimals = %d, want fallback 18", d)
	}
	if _, err := client.Decimals(context.Background(), badToken); err != nil {
		t.Fatal(err)
	}
	if counts["0x313ce567"] != 1 {
		t.Errorf("decimals() called %d times, want 1 (cached)", counts["0x313ce567"])
	}
}

func TestDecimals_OverflowKeepsFallback(t *testing.T) {
	server := mockRPC(t, nil)
	defer server.Close()
	client := dialMock(t, server)
	defer client.Close()

	// A contract answering decimals() with a value past uint64 must not be
	// trusted; the fallback applies instead of a truncated nonsense value.
	d, err := client.Decimals(context.Background(), hugeToken)
	if err != nil {
		t.Fatalf("Decimals: %v", err)
	}
	if d != 18 {
		t.Errorf("decimals = %d, want fallback 18", d)
	}
}

func TestTokenMetadata(t *testing.T) {
	server := mockRPC(t, nil)
	defer server.Close()
	client := dialMock(t, server)
	defer client.Close()

	desc, err := client.TokenMetadata(context.Background(), goodToken)
	if err != nil {
		t.Fatalf("TokenMetadata: %v", err)
	}
	if desc.Name != "Mock Token" || desc.Symbol != "MOCK" || desc.Decimals != 6 {
		t.Errorf("descriptor = %+v", desc)
	}

	if _, err := client.TokenMetadata(context.Background(), badToken); models.ErrorKind(err) != "NotAnErc20" {
		t.Errorf("bad token kind = %q, want NotAnErc20", models.ErrorKind(err))
	}
}

func TestAllowance(t *testing.T) {
	server := mockRPC(t, nil)
	defer server.Close()
	client := dialMock(t, server)
	defer client.Close()

	amount, err := client.Allowance(context.Background(), goodToken, owner, spender)
	if err != nil {
		t.Fatalf("Allowance: %v", err)
	}
	if amount != "12.5" {
		t.Errorf("allowance = %q, want 12.5", amount)
	}
}

func TestNativeBalance(t *testing.T) {
	server := mockRPC(t, nil)
	defer server.Close()
	client := dialMock(t, server)
	defer client.Close()

	bal, err := client.NativeBalance(context.Background(), owner, nil)
	if err != nil {
		t.Fatalf("NativeBalance: %v", err)
	}
	if bal != "2.5" {
		t.Errorf("balance = %q, want 2.5", bal)
	}
}

func TestSendNative_ReadOnly(t *testing.T) {
	server := mockRPC(t, nil)
	defer server.Close()
	client := dialMock(t, server)
	defer client.Close()

	_, err := client.SendNative(context.Background(), owner, "1")
	if models.ErrorKind(err) != "ReadOnlySession" {
		t.Errorf("kind = %q, want ReadOnlySession", models.ErrorKind(err))
	}
}

func TestBlockNumberNear_Approximation(t *testing.T) {
	server := mockRPC(t, nil)
	defer server.Close()
	client := dialMock(t, server)
	defer client.Close()

	latestTime := int64(0x68000000)
	latestNum := uint64(1000000)

	// One day back at 12s per block is 7200 blocks.
	block, err := client.BlockNumberNear(context.Background(), time.Unix(latestTime-86400, 0))
	if err != nil {
		t.Fatalf("BlockNumberNear: %v", err)
	}
	if want := latestNum - 7200; block != want {
		t.Errorf("block = %d, want %d", block, want)
	}

	// A target in the future pins to the latest block.
	block, err = client.BlockNumberNear(context.Background(), time.Unix(latestTime+3600, 0))
	if err != nil {
		t.Fatal(err)
	}
	if block != latestNum {
		t.Errorf("future target block = %d, want %d", block, latestNum)
	}

	// A target before genesis floors at 0.
	block, err = client.BlockNumberNear(context.Background(), time.Unix(latestTime-86400*365*100, 0))
	if err != nil {
		t.Fatal(err)
	}
	if block != 0 {
		t.Errorf("ancient target block = %d, want 0", block)
	}
}

type fixedBlockSource struct {
	block uint64
}

func (f fixedBlockSource) BlockNumberByTime(ctx context.Context, target time.Time) (uint64, error) {
	return f.block, nil
}

func TestBlockNumberNear_PrefersIndexer(t *testing.T) {
	server := mockRPC(t, nil)
	defer server.Close()
	client := dialMock(t, server, WithBlockSource(fixedBlockSource{block: 424242}))
	defer client.Close()

	block, err := client.BlockNumberNear(context.Background(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if block != 424242 {
		t.Errorf("block = %d, want the indexer's answer", block)
	}
}

func TestValidAddress(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"0xab5801a7d398351b8be11c439e05c5b3259aec9b", true},  // lowercase
		{"0xAB5801A7D398351B8BE11C439E05C5B3259AEC9B", true},  // uppercase
		{"0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", true},  // correct checksum
		{"0xAb5801a7D398351b8bE11C439e05C5B3259aec9B", false}, // broken checksum
		{"0x1234", false},
		{"", false},
		{"not-an-address", false},
	}
	for _, tt := range tests {
		if got := ValidAddress(tt.addr); got != tt.want {
			t.Errorf("ValidAddress(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestChainIDCopy(t *testing.T) {
	server := mockRPC(t, nil)
	defer server.Close()
	client := dialMock(t, server)
	defer client.Close()

	id := client.ChainID()
	id.Add(id, big.NewInt(100))
	if client.ChainID().Int64() != 1 {
		t.Error("ChainID must return a copy")
	}
}
