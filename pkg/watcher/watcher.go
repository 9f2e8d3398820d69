// Package watcher runs the background refresh loop: it keeps the watchlist,
// native balance, gas price and price feed current for the active session and
// fans updates out to the TUI and server.
package watcher

import (
	"context"
	"sync"
	"time"

	"tokentrackr/pkg/config"
	"tokentrackr/pkg/models"
	"tokentrackr/pkg/prices"
	"tokentrackr/pkg/reconcile"
	"tokentrackr/pkg/session"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("watcher")

// PriceSource fetches spot prices. Extracted so tests can stub the feed.
type PriceSource interface {
	FetchPrice(coinID string) (models.PriceData, error)
}

type realPriceSource struct{}

func (realPriceSource) FetchPrice(coinID string) (models.PriceData, error) {
	return prices.FetchPrice(coinID)
}

// Watcher drives periodic refreshes and event fan-out.
type Watcher struct {
	sessions   *session.Manager
	reconciler *reconcile.Reconciler
	settings   config.ChainSettings
	interval   time.Duration

	mu            sync.RWMutex
	subscribers   []Subscriber
	nativeBalance string
	gasPriceWei   string
	price         float64
	priceSource   PriceSource

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewWatcher(sessions *session.Manager, reconciler *reconcile.Reconciler, st config.State) *Watcher {
	return &Watcher{
		sessions:    sessions,
		reconciler:  reconciler,
		settings:    st.Chain,
		interval:    time.Duration(st.RefreshIntervalSeconds) * time.Second,
		priceSource: realPriceSource{},
		stopChan:    make(chan struct{}),
	}
}

// SetPriceSource overrides the price feed (useful for testing).
func (w *Watcher) SetPriceSource(ps PriceSource) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.priceSource = ps
}

// Subscribe adds a subscriber and returns a channel receiving events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (w *Watcher) notify(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			// Slow subscriber; drop rather than block the loop.
		}
	}
}

// NativeBalance returns the last fetched native balance.
func (w *Watcher) NativeBalance() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.nativeBalance
}

// GasPriceWei returns the last fetched gas price in wei.
func (w *Watcher) GasPriceWei() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.gasPriceWei
}

// Price returns the last fetched native asset spot price in USD.
func (w *Watcher) Price() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.price
}

// Start begins the refresh loop. It returns when ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) {
	sub := w.sessions.Subscribe()
	defer w.sessions.Unsubscribe(sub)

	w.refreshAll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-sub:
			// Any session transition invalidates every cached snapshot.
			w.reconciler.Invalidate()
			w.mu.Lock()
			w.nativeBalance = ""
			w.mu.Unlock()
			w.notify(Event{Type: EventSessionChanged, Data: ev.Session.Mode.String()})
			if ev.Session.Connected() {
				w.refreshAll(ctx)
			}
		case <-ticker.C:
			w.refreshAll(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the refresh loop.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *Watcher) refreshAll(ctx context.Context) {
	sess := w.sessions.Current()

	if data, err := w.priceSource.FetchPrice(w.settings.CoinGeckoID); err == nil {
		w.mu.Lock()
		w.price = data.Price
		w.mu.Unlock()
		w.notify(Event{Type: EventPriceUpdated, Data: data})
	}

	if !sess.Connected() {
		return
	}

	if entries, err := w.reconciler.RefreshWatchlist(ctx); err == nil {
		w.notify(Event{Type: EventWatchlistUpdate, Data: entries})
	} else {
		log.Debugw("watchlist refresh skipped", "err", err)
	}

	if bal, err := w.reconciler.NativeBalance(ctx); err == nil {
		w.mu.Lock()
		w.nativeBalance = bal
		w.mu.Unlock()
		w.notify(Event{Type: EventNativeBalance, Data: bal})
	}

	if gas, err := sess.Client.SuggestGasPrice(ctx); err == nil {
		w.mu.Lock()
		w.gasPriceWei = gas.String()
		w.mu.Unlock()
		w.notify(Event{Type: EventGasPriceUpdated, Data: models.GasPriceData{Wei: gas.String()}})
	}
}
