package session

import (
	"context"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tokentrackr/pkg/chain"
	"tokentrackr/pkg/config"
	"tokentrackr/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

// fakeClient satisfies chain.Client without touching the network.
type fakeClient struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeClient) ChainID() *big.Int { return big.NewInt(1) }
func (f *fakeClient) NativeBalance(ctx context.Context, owner string, block *big.Int) (string, error) {
	return "1", nil
}
func (f *fakeClient) TokenBalance(ctx context.Context, token, owner string, block *big.Int) (string, error) {
	return "1", nil
}
func (f *fakeClient) TokenMetadata(ctx context.Context, token string) (models.TokenDescriptor, error) {
	return models.TokenDescriptor{Address: token, Symbol: "FAKE", Name: "Fake", Decimals: 18}, nil
}
func (f *fakeClient) Allowance(ctx context.Context, token, owner, spender string) (string, error) {
	return "0", nil
}
func (f *fakeClient) Approve(ctx context.Context, token, spender, amount string) (*models.TransferReceipt, error) {
	return nil, models.ErrReadOnlySession
}
func (f *fakeClient) SendNative(ctx context.Context, to, amount string) (*models.TransferReceipt, error) {
	return nil, models.ErrReadOnlySession
}
func (f *fakeClient) SendToken(ctx context.Context, token, to, amount string) (*models.TransferReceipt, error) {
	return nil, models.ErrReadOnlySession
}
func (f *fakeClient) BlockNumberNear(ctx context.Context, target time.Time) (uint64, error) {
	return 0, nil
}
func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (f *fakeClient) CanSign() bool { return false }
func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// stubDialer returns fresh fake clients and records how often it dialed. A
// non-nil gate blocks the dial until released.
type stubDialer struct {
	mu    sync.Mutex
	dials int
	err   error
	gate  chan struct{}
	last  *fakeClient
}

func (d *stubDialer) dial(address string) (chain.Client, string, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	err := d.err
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, "", err
	}
	c := &fakeClient{}
	d.mu.Lock()
	d.last = c
	d.mu.Unlock()
	return c, address, nil
}

func (d *stubDialer) DialReadOnly(ctx context.Context, st config.State, address string) (chain.Client, string, error) {
	return d.dial(address)
}
func (d *stubDialer) DialEmbedded(ctx context.Context, st config.State, passphrase string) (chain.Client, string, error) {
	return d.dial(testAddr)
}
func (d *stubDialer) DialExtension(ctx context.Context, st config.State) (chain.Client, string, error) {
	return d.dial(testAddr)
}

func (d *stubDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func newTestManager(t *testing.T) (*Manager, *stubDialer, *config.Store) {
	t.Helper()
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"), config.Defaults())
	m := NewManager(store)
	d := &stubDialer{}
	m.SetDialer(d)
	return m, d, store
}

func TestConnectReadOnly(t *testing.T) {
	m, _, store := newTestManager(t)

	sess, err := m.ConnectReadOnly(context.Background(), testAddr)
	require.NoError(t, err)

	assert.Equal(t, models.ReadOnlyAddress, sess.Mode)
	assert.Equal(t, testAddr, sess.Address)
	assert.Equal(t, int64(1), sess.ChainID)
	assert.True(t, sess.Connected())
	assert.Equal(t, uint64(1), sess.Epoch)

	// Read-only sessions persist the address for resume.
	st := store.State()
	assert.True(t, st.Authenticated)
	assert.Equal(t, testAddr, st.SavedAddress)
}

func TestConnectReadOnly_InvalidAddress(t *testing.T) {
	m, d, _ := newTestManager(t)

	_, err := m.ConnectReadOnly(context.Background(), "0x1234")
	assert.ErrorIs(t, err, models.ErrInvalidAddress)
	assert.Equal(t, 0, d.dialCount(), "validation failures must not dial")
	assert.False(t, m.Current().Connected())
}

func TestAddressPresentOnlyWhenConnected(t *testing.T) {
	m, _, _ := newTestManager(t)

	assert.Empty(t, m.Current().Address)

	_, err := m.ConnectReadOnly(context.Background(), testAddr)
	require.NoError(t, err)
	assert.NotEmpty(t, m.Current().Address)

	require.NoError(t, m.Disconnect())
	sess := m.Current()
	assert.Equal(t, models.Disconnected, sess.Mode)
	assert.Empty(t, sess.Address)
	assert.Nil(t, sess.Client)
}

func TestDisconnect_Idempotent(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.ConnectReadOnly(context.Background(), testAddr)
	require.NoError(t, err)

	require.NoError(t, m.Disconnect())
	epoch := m.Epoch()
	require.NoError(t, m.Disconnect())
	assert.Equal(t, epoch, m.Epoch(), "repeat disconnect must be a no-op")
}

func TestModeSwitch_PassesThroughDisconnected(t *testing.T) {
	m, d, _ := newTestManager(t)

	_, err := m.ConnectReadOnly(context.Background(), testAddr)
	require.NoError(t, err)
	d.mu.Lock()
	firstClient := d.last
	d.mu.Unlock()

	sub := m.Subscribe()
	defer m.Unsubscribe(sub)

	sess, err := m.ConnectEmbedded(context.Background(), "hunter2")
	require.NoError(t, err)
	assert.Equal(t, models.EmbeddedSigner, sess.Mode)

	// The old client is torn down, and subscribers see the intermediate
	// Disconnected state before the new session.
	assert.True(t, firstClient.isClosed())

	first := <-sub
	assert.Equal(t, models.Disconnected, first.Session.Mode)
	second := <-sub
	assert.Equal(t, models.EmbeddedSigner, second.Session.Mode)
	assert.Greater(t, second.Session.Epoch, first.Session.Epoch)
}

func TestConnect_SecondAttemptRejected(t *testing.T) {
	m, d, _ := newTestManager(t)
	d.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := m.ConnectReadOnly(context.Background(), testAddr)
		done <- err
	}()

	// Wait for the first dial to be in flight.
	require.Eventually(t, func() bool { return d.dialCount() == 1 }, time.Second, time.Millisecond)

	_, err := m.ConnectExtension(context.Background())
	assert.ErrorIs(t, err, models.ErrConnectInProgress)

	close(d.gate)
	require.NoError(t, <-done)
	assert.True(t, m.Current().Connected())
}

func TestConnect_DialFailureLeavesDisconnected(t *testing.T) {
	m, d, _ := newTestManager(t)
	d.err = models.ErrProviderUnavailable

	_, err := m.ConnectEmbedded(context.Background(), "hunter2")
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.False(t, m.Current().Connected())

	// The manager accepts a new attempt after the failure.
	d.err = nil
	_, err = m.ConnectEmbedded(context.Background(), "hunter2")
	assert.NoError(t, err)
}

func TestResume_ReadOnly(t *testing.T) {
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"), config.Defaults())
	require.NoError(t, store.SetSessionMarkers(true, testAddr))

	m := NewManager(store)
	m.SetDialer(&stubDialer{})

	sess, err := m.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ReadOnlyAddress, sess.Mode)
	assert.Equal(t, testAddr, sess.Address)
}

func TestResume_StaleSignerMarker(t *testing.T) {
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"), config.Defaults())
	// An authenticated marker with no saved address comes from a signer
	// session; it cannot be resumed without the user.
	require.NoError(t, store.SetSessionMarkers(true, ""))

	m := NewManager(store)
	d := &stubDialer{}
	m.SetDialer(d)

	sess, err := m.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Disconnected, sess.Mode)
	assert.Equal(t, 0, d.dialCount())
	assert.False(t, store.State().Authenticated, "expired marker must be cleared")
}

func TestResume_NothingSaved(t *testing.T) {
	m, d, _ := newTestManager(t)
	sess, err := m.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Disconnected, sess.Mode)
	assert.Equal(t, 0, d.dialCount())
}
