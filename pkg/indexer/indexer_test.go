package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokentrackr/pkg/models"
)

func TestBlockNumberByTime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("module") != "block" || q.Get("action") != "getblocknobytime" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("closest") != "before" {
			t.Errorf("closest = %q, want before", q.Get("closest"))
		}
		if q.Get("apikey") != "test-key" {
			t.Errorf("apikey = %q", q.Get("apikey"))
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "1",
			"message": "OK",
			"result":  "19876543",
		})
	}))
	defer server.Close()

	c := NewWithBaseURL(server.URL, "test-key")
	n, err := c.BlockNumberByTime(context.Background(), time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("BlockNumberByTime: %v", err)
	}
	if n != 19876543 {
		t.Errorf("block = %d, want 19876543", n)
	}
}

func TestBlockNumberByTime_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "0",
			"message": "NOTOK",
			"result":  "Max rate limit reached",
		})
	}))
	defer server.Close()

	c := NewWithBaseURL(server.URL, "test-key")
	_, err := c.BlockNumberByTime(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected an error for a NOTOK response")
	}
	if kind := models.ErrorKind(err); kind != "ProviderError" {
		t.Errorf("kind = %q, want ProviderError", kind)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("unknown-net", "key"); err == nil {
		t.Error("unknown network must be rejected")
	}
	if _, err := New("mainnet", ""); err == nil {
		t.Error("missing API key must be rejected")
	}
	if _, err := New("sepolia", "key"); err != nil {
		t.Errorf("sepolia with a key should work: %v", err)
	}
}
