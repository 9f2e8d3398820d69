package reconcile

import (
	"context"
	"math/big"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"tokentrackr/pkg/chain"
	"tokentrackr/pkg/config"
	"tokentrackr/pkg/models"
	"tokentrackr/pkg/registry"
	"tokentrackr/pkg/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddr   = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	tokenAddr  = "0x1234567890123456789012345678901234567890"
	tokenAddr2 = "0x2234567890123456789012345678901234567890"
)

// scriptClient is a chain.Client whose behavior tests override per call.
type scriptClient struct {
	calls uint64

	tokenBalance    func(token string, block *big.Int) (string, error)
	nativeBalance   func(block *big.Int) (string, error)
	tokenMetadata   func(token string) (models.TokenDescriptor, error)
	blockNumberNear func(target time.Time) (uint64, error)
}

func (s *scriptClient) count() { atomic.AddUint64(&s.calls, 1) }

func (s *scriptClient) callCount() uint64 { return atomic.LoadUint64(&s.calls) }

func (s *scriptClient) ChainID() *big.Int { return big.NewInt(1) }

func (s *scriptClient) NativeBalance(ctx context.Context, owner string, block *big.Int) (string, error) {
	s.count()
	if s.nativeBalance != nil {
		return s.nativeBalance(block)
	}
	return "1", nil
}

func (s *scriptClient) TokenBalance(ctx context.Context, token, owner string, block *big.Int) (string, error) {
	s.count()
	if s.tokenBalance != nil {
		return s.tokenBalance(token, block)
	}
	return "100", nil
}

func (s *scriptClient) TokenMetadata(ctx context.Context, token string) (models.TokenDescriptor, error) {
	s.count()
	if s.tokenMetadata != nil {
		return s.tokenMetadata(token)
	}
	return models.TokenDescriptor{Address: token, Symbol: "FAKE", Name: "Fake", Decimals: 18}, nil
}

func (s *scriptClient) Allowance(ctx context.Context, token, owner, spender string) (string, error) {
	s.count()
	return "0", nil
}

func (s *scriptClient) Approve(ctx context.Context, token, spender, amount string) (*models.TransferReceipt, error) {
	return nil, models.ErrReadOnlySession
}

func (s *scriptClient) SendNative(ctx context.Context, to, amount string) (*models.TransferReceipt, error) {
	return nil, models.ErrReadOnlySession
}

func (s *scriptClient) SendToken(ctx context.Context, token, to, amount string) (*models.TransferReceipt, error) {
	return nil, models.ErrReadOnlySession
}

func (s *scriptClient) BlockNumberNear(ctx context.Context, target time.Time) (uint64, error) {
	s.count()
	if s.blockNumberNear != nil {
		return s.blockNumberNear(target)
	}
	return 1000, nil
}

func (s *scriptClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (s *scriptClient) CanSign() bool { return false }
func (s *scriptClient) Close()       {}

type scriptDialer struct {
	client *scriptClient
}

func (d scriptDialer) DialReadOnly(ctx context.Context, st config.State, address string) (chain.Client, string, error) {
	return d.client, address, nil
}
func (d scriptDialer) DialEmbedded(ctx context.Context, st config.State, passphrase string) (chain.Client, string, error) {
	return d.client, testAddr, nil
}
func (d scriptDialer) DialExtension(ctx context.Context, st config.State) (chain.Client, string, error) {
	return d.client, testAddr, nil
}

func newConnected(t *testing.T, client *scriptClient) (*session.Manager, *Reconciler) {
	t.Helper()
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"), config.Defaults())
	m := session.NewManager(store)
	m.SetDialer(scriptDialer{client: client})
	_, err := m.ConnectReadOnly(context.Background(), testAddr)
	require.NoError(t, err)
	return m, NewReconciler(m, store)
}

func TestSeedsFromPersistedWatchlist(t *testing.T) {
	st := config.Defaults()
	promoted := registry.ListPromoted()[0]
	st.Watchlist = []string{promoted.Address, tokenAddr}
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"), st)

	m := session.NewManager(store)
	r := NewReconciler(m, store)

	entries := r.Watchlist()
	require.Len(t, entries, 2)
	assert.Equal(t, promoted.Symbol, entries[0].Token.Symbol, "promoted tokens keep their known symbol")
	assert.NotEmpty(t, entries[1].Token.Symbol, "unknown tokens get a placeholder symbol")
	assert.Empty(t, entries[0].Balance, "seeded rows have no balance until a refresh")
}

func TestAddToken(t *testing.T) {
	client := &scriptClient{}
	_, r := newConnected(t, client)

	desc, err := r.AddToken(context.Background(), tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, "FAKE", desc.Symbol)
	assert.Len(t, r.Watchlist(), 1)

	// Same address again is a no-op, case-insensitively.
	_, err = r.AddToken(context.Background(), "0x1234567890123456789012345678901234567890")
	require.NoError(t, err)
	assert.Len(t, r.Watchlist(), 1)
}

func TestAddToken_ValidationFailureAddsNothing(t *testing.T) {
	client := &scriptClient{
		tokenMetadata: func(token string) (models.TokenDescriptor, error) {
			return models.TokenDescriptor{}, models.ErrNotAnErc20
		},
	}
	_, r := newConnected(t, client)

	_, err := r.AddToken(context.Background(), tokenAddr)
	assert.ErrorIs(t, err, models.ErrNotAnErc20)
	assert.Empty(t, r.Watchlist())
}

func TestAddToken_NoSession(t *testing.T) {
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"), config.Defaults())
	r := NewReconciler(session.NewManager(store), store)

	_, err := r.AddToken(context.Background(), tokenAddr)
	assert.ErrorIs(t, err, models.ErrNoActiveSession)
}

func TestRemoveToken(t *testing.T) {
	client := &scriptClient{}
	_, r := newConnected(t, client)

	_, err := r.AddToken(context.Background(), tokenAddr)
	require.NoError(t, err)
	require.NoError(t, r.RemoveToken(tokenAddr))
	assert.Empty(t, r.Watchlist())

	// Removing an absent address is a no-op.
	assert.NoError(t, r.RemoveToken(tokenAddr))
}

func TestRefreshWatchlist_FailedRowKeepsSentinel(t *testing.T) {
	client := &scriptClient{
		tokenBalance: func(token string, block *big.Int) (string, error) {
			if token == tokenAddr2 {
				return "", models.ErrNotAnErc20
			}
			return "42", nil
		},
	}
	_, r := newConnected(t, client)
	_, err := r.AddToken(context.Background(), tokenAddr)
	require.NoError(t, err)
	_, err = r.AddToken(context.Background(), tokenAddr2)
	require.NoError(t, err)

	entries, err := r.RefreshWatchlist(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "42", entries[0].Balance)
	assert.NoError(t, entries[0].Err)

	// The failed row stays visible with an explicit sentinel instead of
	// being dropped.
	assert.Equal(t, ErrorBalance, entries[1].Balance)
	assert.ErrorIs(t, entries[1].Err, models.ErrNotAnErc20)
	assert.False(t, entries[1].LastRefreshedAt.IsZero())
}

func TestRefreshWatchlist_DiscardsStaleSnapshot(t *testing.T) {
	var m *session.Manager
	client := &scriptClient{}
	client.tokenBalance = func(token string, block *big.Int) (string, error) {
		// The session goes away while the refresh is in flight.
		_ = m.Disconnect()
		return "42", nil
	}
	m, r := newConnected(t, client)
	_, err := r.AddToken(context.Background(), tokenAddr)
	require.NoError(t, err)

	_, err = r.RefreshWatchlist(context.Background())
	assert.ErrorIs(t, err, models.ErrNoActiveSession)
}

func TestInvalidate(t *testing.T) {
	client := &scriptClient{}
	_, r := newConnected(t, client)
	_, err := r.AddToken(context.Background(), tokenAddr)
	require.NoError(t, err)
	_, err = r.RefreshWatchlist(context.Background())
	require.NoError(t, err)

	r.Invalidate()
	entries := r.Watchlist()
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Balance)
	assert.True(t, entries[0].LastRefreshedAt.IsZero())
}

func TestComputeHistoricalSeries(t *testing.T) {
	client := &scriptClient{
		blockNumberNear: func(target time.Time) (uint64, error) {
			return uint64(target.Day()) * 100, nil
		},
		nativeBalance: func(block *big.Int) (string, error) {
			return block.String(), nil
		},
	}
	_, r := newConnected(t, client)

	points, err := r.ComputeHistoricalSeries(context.Background(), "", "2024-01-01", "2024-01-05")
	require.NoError(t, err)
	require.Len(t, points, 5, "one point per calendar day, endpoints inclusive")

	for i, p := range points {
		wantDay := time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, wantDay, p.Date, "dates are UTC midnights, ascending")
		assert.Equal(t, uint64(i+1)*100, p.Block)
		assert.Equal(t, big.NewInt(int64(i+1)*100).String(), p.Balance, "balance taken at that day's block")
	}
}

func TestComputeHistoricalSeries_SingleDay(t *testing.T) {
	client := &scriptClient{}
	_, r := newConnected(t, client)

	points, err := r.ComputeHistoricalSeries(context.Background(), "", "2024-06-15", "2024-06-15")
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestComputeHistoricalSeries_InvalidRange(t *testing.T) {
	client := &scriptClient{}
	_, r := newConnected(t, client)
	before := client.callCount()

	for _, tc := range []struct{ start, end string }{
		{"2024-01-05", "2024-01-01"}, // end before start
		{"not-a-date", "2024-01-01"},
		{"2024-01-01", "01/05/2024"},
		{"", ""},
	} {
		_, err := r.ComputeHistoricalSeries(context.Background(), "", tc.start, tc.end)
		assert.ErrorIs(t, err, models.ErrInvalidDateRange, "range %q..%q", tc.start, tc.end)
	}

	assert.Equal(t, before, client.callCount(), "validation failures must not touch the network")
}

func TestComputeHistoricalSeries_AllOrNothing(t *testing.T) {
	client := &scriptClient{
		nativeBalance: func(block *big.Int) (string, error) {
			if block.Uint64() == 1000 {
				return "1", nil
			}
			return "", models.ErrProviderTimeout
		},
		blockNumberNear: func(target time.Time) (uint64, error) {
			if target.Day() <= 2 {
				return 1000, nil
			}
			return 2000, nil
		},
	}
	_, r := newConnected(t, client)

	points, err := r.ComputeHistoricalSeries(context.Background(), "", "2024-01-01", "2024-01-04")
	assert.ErrorIs(t, err, models.ErrProviderTimeout)
	assert.Nil(t, points, "a partial series is never returned")
}
