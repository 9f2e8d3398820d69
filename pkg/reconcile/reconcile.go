// Package reconcile keeps balance and allowance snapshots consistent with
// the active session and rebuilds the historical balance series.
package reconcile

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"tokentrackr/pkg/config"
	"tokentrackr/pkg/models"
	"tokentrackr/pkg/registry"
	"tokentrackr/pkg/session"
	"tokentrackr/pkg/utils"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var log = logging.Logger("reconcile")

// ErrorBalance is the sentinel shown for a watchlist row whose refresh
// failed. The row stays visible instead of being dropped.
const ErrorBalance = "Error"

const dateLayout = "2006-01-02"

// Reconciler owns the watchlist slice of persisted state and produces
// balance snapshots for the active session.
type Reconciler struct {
	sessions *session.Manager
	store    *config.Store

	mu      sync.Mutex
	entries []models.WatchEntry
	epoch   uint64 // epoch the current snapshot was fetched under
}

func NewReconciler(sessions *session.Manager, store *config.Store) *Reconciler {
	r := &Reconciler{sessions: sessions, store: store}
	for _, addr := range store.State().Watchlist {
		r.entries = append(r.entries, models.WatchEntry{Token: descriptorFor(addr)})
	}
	return r
}

func descriptorFor(address string) models.TokenDescriptor {
	if known, ok := registry.LookupPromoted(address); ok {
		return known
	}
	return models.TokenDescriptor{Address: address, Symbol: utils.ShortAddress(address), Decimals: 18}
}

// Watchlist returns a copy of the current watchlist snapshot.
func (r *Reconciler) Watchlist() []models.WatchEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.WatchEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// AddToken validates address against the ERC-20 interface and appends it to
// the watchlist. Duplicate addresses are a no-op. Failed validation adds
// nothing.
func (r *Reconciler) AddToken(ctx context.Context, address string) (models.TokenDescriptor, error) {
	sess := r.sessions.Current()
	if !sess.Connected() {
		return models.TokenDescriptor{}, models.ErrNoActiveSession
	}
	desc, err := registry.Resolve(ctx, sess.Client, address)
	if err != nil {
		return models.TokenDescriptor{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if addrEqual(e.Token.Address, desc.Address) {
			return desc, nil
		}
	}
	r.entries = append(r.entries, models.WatchEntry{Token: desc})
	return desc, r.persistLocked()
}

// RemoveToken drops address from the watchlist.
func (r *Reconciler) RemoveToken(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if addrEqual(e.Token.Address, address) {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return r.persistLocked()
		}
	}
	return nil
}

func (r *Reconciler) persistLocked() error {
	addrs := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		addrs = append(addrs, e.Token.Address)
	}
	return r.store.SetWatchlist(addrs)
}

// Invalidate clears all fetched balances. Called on every session transition;
// a changed address or a pass through Disconnected makes the old snapshot
// meaningless.
func (r *Reconciler) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		r.entries[i].Balance = ""
		r.entries[i].Err = nil
		r.entries[i].LastRefreshedAt = time.Time{}
	}
	r.epoch = 0
}

// RefreshWatchlist re-fetches every watchlist balance for the active session.
// Rows whose fetch fails keep a sentinel Error balance rather than being
// dropped. Results fetched under a superseded session are discarded.
func (r *Reconciler) RefreshWatchlist(ctx context.Context) ([]models.WatchEntry, error) {
	sess := r.sessions.Current()
	if !sess.Connected() {
		return nil, models.ErrNoActiveSession
	}

	entries := r.Watchlist()
	now := time.Now()
	for i := range entries {
		bal, err := sess.Client.TokenBalance(ctx, entries[i].Token.Address, sess.Address, nil)
		if err != nil {
			log.Warnw("watchlist refresh failed", "token", entries[i].Token.Address, "err", err)
			entries[i].Balance = ErrorBalance
			entries[i].Err = err
		} else {
			entries[i].Balance = bal
			entries[i].Err = nil
		}
		entries[i].LastRefreshedAt = now
	}

	if r.sessions.Epoch() != sess.Epoch {
		// Session changed mid-flight; the snapshot belongs to the old one.
		return nil, errors.Wrap(models.ErrNoActiveSession, "session changed during refresh")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
	r.epoch = sess.Epoch
	return append([]models.WatchEntry(nil), entries...), nil
}

// NativeBalance fetches the active address's native balance.
func (r *Reconciler) NativeBalance(ctx context.Context) (string, error) {
	sess := r.sessions.Current()
	if !sess.Connected() {
		return "", models.ErrNoActiveSession
	}
	return sess.Client.NativeBalance(ctx, sess.Address, nil)
}

// ComputeHistoricalSeries rebuilds the daily balance series for the date
// range [startDate, endDate], both formatted as YYYY-MM-DD and interpreted as
// UTC calendar days. One point per day, ascending, each day's balance taken
// at the block nearest that day's midnight. The whole series fails rather
// than emitting partial data: the chart consumes it as one atomic set. An
// empty tokenAddress means the native asset.
func (r *Reconciler) ComputeHistoricalSeries(ctx context.Context, tokenAddress, startDate, endDate string) ([]models.HistoricalPoint, error) {
	start, err := time.ParseInLocation(dateLayout, startDate, time.UTC)
	if err != nil {
		return nil, errors.Wrapf(models.ErrInvalidDateRange, "start %q", startDate)
	}
	end, err := time.ParseInLocation(dateLayout, endDate, time.UTC)
	if err != nil {
		return nil, errors.Wrapf(models.ErrInvalidDateRange, "end %q", endDate)
	}
	if end.Before(start) {
		return nil, errors.Wrapf(models.ErrInvalidDateRange, "%s before %s", endDate, startDate)
	}

	sess := r.sessions.Current()
	if !sess.Connected() {
		return nil, models.ErrNoActiveSession
	}

	var points []models.HistoricalPoint
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		block, err := sess.Client.BlockNumberNear(ctx, day)
		if err != nil {
			return nil, err
		}
		var balance string
		if tokenAddress == "" {
			balance, err = sess.Client.NativeBalance(ctx, sess.Address, new(big.Int).SetUint64(block))
		} else {
			balance, err = sess.Client.TokenBalance(ctx, tokenAddress, sess.Address, new(big.Int).SetUint64(block))
		}
		if err != nil {
			return nil, err
		}
		points = append(points, models.HistoricalPoint{Date: day, Balance: balance, Block: block})
	}

	if r.sessions.Epoch() != sess.Epoch {
		return nil, errors.Wrap(models.ErrNoActiveSession, "session changed during series build")
	}
	return points, nil
}

func addrEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}
