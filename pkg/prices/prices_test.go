package prices

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]map[string]float64{
			"ethereum": {"usd": 3123.45},
		})
	}))
	defer server.Close()

	oldURL := CoinGeckoBaseURL
	CoinGeckoBaseURL = server.URL
	defer func() { CoinGeckoBaseURL = oldURL }()

	data, err := FetchPrice("ethereum")
	if err != nil {
		t.Fatalf("FetchPrice: %v", err)
	}
	if data.Price != 3123.45 {
		t.Errorf("price = %f, want 3123.45", data.Price)
	}
}

func TestFetchPrice_EmptyCoinID(t *testing.T) {
	data, err := FetchPrice("")
	if err != nil {
		t.Fatalf("empty coin id should not error: %v", err)
	}
	if data.Price != 0 {
		t.Errorf("price = %f, want 0", data.Price)
	}
}
