package session

import (
	"context"
	"sync"

	"tokentrackr/pkg/chain"
	"tokentrackr/pkg/config"
	"tokentrackr/pkg/models"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var log = logging.Logger("session")

// Manager establishes exactly one active connection mode and exposes a stable
// {address, client} pair to the rest of the system. At most one connect
// attempt is outstanding at a time; a second attempt fails with
// ConnectInProgress instead of racing.
type Manager struct {
	mu          sync.RWMutex
	store       *config.Store
	dialer      Dialer
	current     Session
	connecting  bool
	subscribers []Subscriber
}

func NewManager(store *config.Store) *Manager {
	return &Manager{
		store:   store,
		dialer:  realDialer{},
		current: Session{Mode: models.Disconnected},
	}
}

// SetDialer overrides how connections are established (useful for testing).
func (m *Manager) SetDialer(d Dialer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialer = d
}

// Current returns the active session.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Epoch returns the current session epoch. Results computed under an older
// epoch must be discarded.
func (m *Manager) Epoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Epoch
}

// Subscribe adds a subscriber and returns a channel receiving session events.
func (m *Manager) Subscribe() Subscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(Subscriber, 16)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (m *Manager) Unsubscribe(ch Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (m *Manager) notifyLocked() {
	ev := Event{Session: m.current}
	for _, sub := range m.subscribers {
		select {
		case sub <- ev:
		default:
		}
	}
}

// ConnectEmbedded initializes the embedded signer and binds a signing-capable
// client to it. Fails with AuthCancelled when the user dismisses the unlock
// prompt and ProviderUnavailable when the signer cannot initialize.
func (m *Manager) ConnectEmbedded(ctx context.Context, passphrase string) (Session, error) {
	return m.connect(ctx, func(ctx context.Context, st config.State) (chain.Client, string, models.SessionMode, error) {
		client, addr, err := m.dialer.DialEmbedded(ctx, st, passphrase)
		return client, addr, models.EmbeddedSigner, err
	})
}

// ConnectExtension requests account access from the external wallet. Fails
// with NoWalletDetected when no wallet endpoint answers and UserRejected when
// the wallet declines.
func (m *Manager) ConnectExtension(ctx context.Context) (Session, error) {
	return m.connect(ctx, func(ctx context.Context, st config.State) (chain.Client, string, models.SessionMode, error) {
		client, addr, err := m.dialer.DialExtension(ctx, st)
		return client, addr, models.ExtensionWallet, err
	})
}

// ConnectReadOnly binds a client with no signing capability to a fixed RPC
// endpoint for the given address.
func (m *Manager) ConnectReadOnly(ctx context.Context, address string) (Session, error) {
	if !chain.ValidAddress(address) {
		return Session{}, errors.Wrapf(models.ErrInvalidAddress, "%q", address)
	}
	return m.connect(ctx, func(ctx context.Context, st config.State) (chain.Client, string, models.SessionMode, error) {
		client, addr, err := m.dialer.DialReadOnly(ctx, st, address)
		return client, addr, models.ReadOnlyAddress, err
	})
}

func (m *Manager) connect(ctx context.Context, dial func(context.Context, config.State) (chain.Client, string, models.SessionMode, error)) (Session, error) {
	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return Session{}, models.ErrConnectInProgress
	}
	m.connecting = true
	// A mode switch always passes through Disconnected.
	if m.current.Mode != models.Disconnected {
		m.disconnectLocked()
		if err := m.store.SetSessionMarkers(false, ""); err != nil {
			log.Warnw("failed to clear session markers", "err", err)
		}
		m.notifyLocked()
	}
	st := m.store.State()
	m.mu.Unlock()

	client, address, mode, err := dial(ctx, st)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.connecting = false
	if err != nil {
		return Session{}, err
	}

	m.current = Session{
		Mode:    mode,
		Address: address,
		ChainID: client.ChainID().Int64(),
		Epoch:   m.current.Epoch + 1,
		Client:  client,
	}
	savedAddress := ""
	if mode == models.ReadOnlyAddress {
		savedAddress = address
	}
	if err := m.store.SetSessionMarkers(true, savedAddress); err != nil {
		log.Warnw("failed to persist session markers", "err", err)
	}
	log.Infow("session connected", "mode", mode.String(), "address", address, "chain_id", m.current.ChainID, "epoch", m.current.Epoch)
	m.notifyLocked()
	return m.current, nil
}

// Disconnect tears the active session down and clears persisted markers.
// Idempotent: disconnecting while already disconnected is a no-op.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Mode == models.Disconnected {
		return nil
	}
	m.disconnectLocked()
	if err := m.store.SetSessionMarkers(false, ""); err != nil {
		log.Warnw("failed to clear session markers", "err", err)
	}
	m.notifyLocked()
	return nil
}

func (m *Manager) disconnectLocked() {
	if m.current.Client != nil {
		// Closing also logs the embedded signer out of its keystore.
		m.current.Client.Close()
	}
	m.current = Session{
		Mode:  models.Disconnected,
		Epoch: m.current.Epoch + 1,
	}
	log.Infow("session disconnected", "epoch", m.current.Epoch)
}

// Resume restores a persisted session at startup. Only a saved read-only
// address can be resumed without user interaction; a stale authentication
// marker from a signer session is treated as expired and cleared.
func (m *Manager) Resume(ctx context.Context) (Session, error) {
	st := m.store.State()
	if !st.Authenticated {
		return m.Current(), nil
	}
	if st.SavedAddress != "" && chain.ValidAddress(st.SavedAddress) {
		return m.ConnectReadOnly(ctx, st.SavedAddress)
	}
	if err := m.store.SetSessionMarkers(false, ""); err != nil {
		log.Warnw("failed to clear expired session markers", "err", err)
	}
	return m.Current(), nil
}
