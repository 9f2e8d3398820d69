package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("config")

const ConfigFileName = ".tokentrackr.json"

// ChainSettings holds the RPC endpoint and indexer configuration for the
// chain the dashboard talks to.
type ChainSettings struct {
	Name           string `json:"name"`
	RPCURL         string `json:"rpc_url"`
	ChainID        int64  `json:"chain_id,omitempty"`
	NativeSymbol   string `json:"native_symbol"`
	ExplorerURL    string `json:"explorer_url,omitempty"`
	CoinGeckoID    string `json:"coingecko_id,omitempty"`
	IndexerAPIKey  string `json:"indexer_api_key,omitempty"`
	IndexerNetwork string `json:"indexer_network,omitempty"` // "mainnet" or "sepolia"
}

// State is everything the dashboard persists locally: the authentication
// marker and saved read-only address (owned by the session manager), the
// ordered watchlist (owned by the watchlist side), and startup settings.
// No two components write the same slice.
type State struct {
	Authenticated          bool          `json:"authenticated"`
	SavedAddress           string        `json:"saved_address,omitempty"`
	Watchlist              []string      `json:"watchlist"`
	KeystoreDir            string        `json:"keystore_dir,omitempty"`
	ExtensionRPCURL        string        `json:"extension_rpc_url,omitempty"`
	Chain                  ChainSettings `json:"chain"`
	CallTimeoutSeconds     int           `json:"call_timeout_seconds"`
	RefreshIntervalSeconds int           `json:"refresh_interval_seconds"`
}

// Defaults returns the state used when no config file exists yet.
func Defaults() State {
	return State{
		Watchlist: []string{},
		Chain: ChainSettings{
			Name:           "Ethereum",
			RPCURL:         "https://ethereum-rpc.publicnode.com",
			ChainID:        1,
			NativeSymbol:   "ETH",
			ExplorerURL:    "https://etherscan.io",
			CoinGeckoID:    "ethereum",
			IndexerNetwork: "mainnet",
		},
		CallTimeoutSeconds:     30,
		RefreshIntervalSeconds: 30,
	}
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// Load decodes persisted state from r. Absent or malformed entries fall back
// to defaults; a malformed document never fails the startup path.
func Load(r io.Reader) State {
	st := Defaults()
	var raw struct {
		Authenticated          *bool           `json:"authenticated"`
		SavedAddress           *string         `json:"saved_address"`
		Watchlist              json.RawMessage `json:"watchlist"`
		KeystoreDir            *string         `json:"keystore_dir"`
		ExtensionRPCURL        *string         `json:"extension_rpc_url"`
		Chain                  *ChainSettings  `json:"chain"`
		CallTimeoutSeconds     *int            `json:"call_timeout_seconds"`
		RefreshIntervalSeconds *int            `json:"refresh_interval_seconds"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		log.Warnw("malformed config, falling back to defaults", "err", err)
		return st
	}

	if raw.Authenticated != nil {
		st.Authenticated = *raw.Authenticated
	}
	if raw.SavedAddress != nil {
		st.SavedAddress = *raw.SavedAddress
	}
	if len(raw.Watchlist) > 0 {
		var list []string
		if err := json.Unmarshal(raw.Watchlist, &list); err != nil {
			log.Warnw("malformed watchlist entry, ignoring", "err", err)
		} else {
			st.Watchlist = list
		}
	}
	if raw.KeystoreDir != nil {
		st.KeystoreDir = *raw.KeystoreDir
	}
	if raw.ExtensionRPCURL != nil {
		st.ExtensionRPCURL = *raw.ExtensionRPCURL
	}
	if raw.Chain != nil && raw.Chain.RPCURL != "" {
		st.Chain = *raw.Chain
	}
	if raw.CallTimeoutSeconds != nil && *raw.CallTimeoutSeconds > 0 {
		st.CallTimeoutSeconds = *raw.CallTimeoutSeconds
	}
	if raw.RefreshIntervalSeconds != nil && *raw.RefreshIntervalSeconds > 0 {
		st.RefreshIntervalSeconds = *raw.RefreshIntervalSeconds
	}
	return st
}

// LoadFromFile loads persisted state from path, falling back to defaults when
// the file does not exist.
func LoadFromFile(path string) (State, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), err
	}
	defer func() { _ = f.Close() }()
	return Load(f), nil
}

// Store serializes writes to the config file. Each component mutates only its
// own slice of the state through the setter that owns it.
type Store struct {
	mu    sync.Mutex
	path  string
	state State
}

func NewStore(path string, st State) *Store {
	return &Store{path: path, state: st}
}

// State returns a copy of the current persisted state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.state
	cp.Watchlist = append([]string(nil), s.state.Watchlist...)
	return cp
}

// SetSessionMarkers persists the authentication flag and the saved read-only
// address. Owned by the session manager.
func (s *Store) SetSessionMarkers(authenticated bool, savedAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Authenticated = authenticated
	s.state.SavedAddress = savedAddress
	return s.writeLocked()
}

// SetWatchlist persists the ordered list of watched token addresses. Owned by
// the watchlist side.
func (s *Store) SetWatchlist(addresses []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Watchlist = append([]string(nil), addresses...)
	return s.writeLocked()
}

func (s *Store) writeLocked() error {
	return Save(s.state, s.path)
}

// Save writes st to path atomically, keeping a timestamped backup of any
// existing file.
func Save(st State, path string) error {
	if st.Chain.RPCURL == "" {
		return fmt.Errorf("validation failed: chain has no RPC URL")
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}
