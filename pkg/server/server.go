// Package server exposes the dashboard state over HTTP and pushes watcher
// events to websocket clients in headless mode.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"tokentrackr/pkg/models"
	"tokentrackr/pkg/reconcile"
	"tokentrackr/pkg/session"
	"tokentrackr/pkg/watcher"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("server")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	sessions   *session.Manager
	reconciler *reconcile.Reconciler
	watcher    *watcher.Watcher

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	router  *mux.Router
}

func NewServer(sessions *session.Manager, reconciler *reconcile.Reconciler, w *watcher.Watcher) *Server {
	s := &Server{
		sessions:   sessions,
		reconciler: reconciler,
		watcher:    w,
		clients:    make(map[*websocket.Conn]bool),
		router:     mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/session", s.handleSession).Methods(http.MethodGet)
	s.router.HandleFunc("/api/watchlist", s.handleWatchlist).Methods(http.MethodGet)
	s.router.HandleFunc("/api/summary", s.handleSummary).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWS)
}

// Handler returns the HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	go s.listenToWatcher()

	log.Infof("API server listening on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.router)
}

type sessionView struct {
	Mode    string `json:"mode"`
	Address string `json:"address,omitempty"`
	ChainID int64  `json:"chain_id,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Current()
	view := sessionView{Mode: sess.Mode.String()}
	if sess.Connected() {
		view.Address = sess.Address
		view.ChainID = sess.ChainID
	}
	writeJSON(w, view)
}

type watchRow struct {
	models.WatchEntry
	ErrorKind string `json:"error_kind,omitempty"`
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	entries := s.reconciler.Watchlist()
	rows := make([]watchRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, watchRow{WatchEntry: e, ErrorKind: models.ErrorKind(e.Err)})
	}
	writeJSON(w, rows)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"native_balance": s.watcher.NativeBalance(),
		"gas_price_wei":  s.watcher.GasPriceWei(),
		"price_usd":      s.watcher.Price(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	sess := s.sessions.Current()
	initial := map[string]interface{}{
		"type": "initial",
		"data": map[string]interface{}{
			"session":   sessionView{Mode: sess.Mode.String(), Address: sess.Address, ChainID: sess.ChainID},
			"watchlist": s.reconciler.Watchlist(),
		},
	}
	_ = conn.WriteJSON(initial)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToWatcher() {
	sub := s.watcher.Subscribe()
	defer s.watcher.Unsubscribe(sub)

	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) broadcast(event watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
