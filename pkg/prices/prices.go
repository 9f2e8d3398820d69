// Package prices fetches spot prices for the dashboard summary.
package prices

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tokentrackr/pkg/models"
)

var CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

// FetchPrice fetches the current USD price for a CoinGecko coin id. An empty
// id yields a zero price without a network call.
func FetchPrice(coinID string) (models.PriceData, error) {
	if coinID == "" {
		return models.PriceData{CoinID: coinID, Price: 0}, nil
	}
	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", CoinGeckoBaseURL, coinID)
	resp, err := client.Get(url)
	if err != nil {
		return models.PriceData{CoinID: coinID, Err: err}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.PriceData{CoinID: coinID, Err: err}, err
	}
	return models.PriceData{CoinID: coinID, Price: result[coinID]["usd"]}, nil
}
