package watcher

// EventType identifies a dashboard update being broadcast.
type EventType string

const (
	EventSessionChanged  EventType = "session_changed"
	EventWatchlistUpdate EventType = "watchlist_updated"
	EventNativeBalance   EventType = "native_balance_updated"
	EventGasPriceUpdated EventType = "gas_price_updated"
	EventPriceUpdated    EventType = "price_updated"
)

// Event is one dashboard update.
type Event struct {
	Type EventType
	Data interface{}
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
