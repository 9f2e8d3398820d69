// Package indexer talks to the block-indexing API used for exact
// block-number-from-time lookups. The API is keyed and network-scoped; both
// come from startup configuration.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tokentrackr/pkg/models"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var log = logging.Logger("indexer")

var networkBaseURLs = map[string]string{
	"mainnet": "https://api.etherscan.io/api",
	"sepolia": "https://api-sepolia.etherscan.io/api",
}

// Client queries the indexing API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New builds a client for the named network. Returns an error when the
// network is unknown or no API key is configured.
func New(network, apiKey string) (*Client, error) {
	base, ok := networkBaseURLs[network]
	if !ok {
		return nil, fmt.Errorf("unknown indexer network %q", network)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("indexer API key not configured")
	}
	return &Client{
		baseURL: base,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// NewWithBaseURL is used by tests to point the client at a mock server.
func NewWithBaseURL(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// BlockNumberByTime returns the number of the block mined closest before the
// target time.
func (c *Client) BlockNumberByTime(ctx context.Context, target time.Time) (uint64, error) {
	q := url.Values{}
	q.Set("module", "block")
	q.Set("action", "getblocknobytime")
	q.Set("timestamp", strconv.FormatInt(target.Unix(), 10))
	q.Set("closest", "before")
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errors.Wrap(models.ErrProviderError, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, errors.Wrap(models.ErrProviderError, err.Error())
	}
	if body.Status != "1" {
		return 0, errors.Wrapf(models.ErrProviderError, "indexer: %s (%s)", body.Message, body.Result)
	}
	n, err := strconv.ParseUint(body.Result, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(models.ErrProviderError, "indexer returned %q", body.Result)
	}
	log.Debugw("block lookup", "timestamp", target.Unix(), "block", n)
	return n, nil
}
