package stream

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jakesimonds/Creator/internal/logging"
)

// SessionPath is where session hosts connect.
const SessionPath = "/session/ws"

// OpenFunc is called once per accepted connection. Returning an error closes
// the connection.
type OpenFunc func(c *Conn) error

// Server accepts session host websockets.
type Server struct {
	open     OpenFunc
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(open OpenFunc) *Server {
	return &Server{
		open:     open,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[*Conn]struct{}),
	}
}

// Handler serves the session websocket and a health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc(SessionPath, s.handleSession)
	return mux
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("session")
	if id == "" {
		id = uuid.NewString()
	}
	userID := q.Get("user")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("stream: upgrade failed", "err", err)
		return
	}
	c := newConn(ws, id, userID)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.serve()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	if err := s.open(c); err != nil {
		logging.Warnw("stream: session rejected", "session.id", id, "err", err)
		_ = c.Close()
		return
	}
	logging.Infow("stream: session connected", logging.SessionFields(id, userID)...)
}

// Len returns the number of open connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close closes every open connection and waits for their readers to exit.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
}
