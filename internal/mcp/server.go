package mcp

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jakesimonds/Creator/internal/generator"
	"github.com/jakesimonds/Creator/internal/logging"
)

// WebSocketPath is where MCP clients connect.
const WebSocketPath = "/mcp/ws"

// NewServer returns an MCP server whose generate_model tool submits the
// prompt through gen.
func NewServer(gen generator.Client, version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: "creator", Version: version}, nil)
	sdk.AddTool(server, &sdk.Tool{
		Name:        ToolName,
		Description: "Submit a text prompt to the 3D model generation service",
	}, func(ctx context.Context, req *sdk.CallToolRequest, args generateArgs) (*sdk.CallToolResult, any, error) {
		h, err := gen.Generate(ctx, args.Prompt)
		if err != nil {
			logging.Warnw("mcp: generate failed", "err", err)
		} else {
			logging.Infow("mcp: generate accepted", "model_id", h.ID)
		}
		res, err := encodeResult(h, err)
		return res, nil, err
	})
	return server
}

// WSHandler serves an MCP server over websockets plus a health probe.
// Upgraded connections are hijacked, so http.Server.Shutdown does not reach
// them; Close does.
type WSHandler struct {
	server   *sdk.Server
	mux      *http.ServeMux
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// Handler returns a WSHandler for server.
func Handler(server *sdk.Server) *WSHandler {
	h := &WSHandler{
		server:   server,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[*websocket.Conn]struct{}),
	}
	h.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	h.mux.HandleFunc(WebSocketPath, h.handleWebSocket)
	return h
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *WSHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("mcp: ws upgrade failed", "err", err)
		return
	}
	if !h.track(conn) {
		_ = conn.Close()
		return
	}
	go func() {
		defer h.untrack(conn)
		session, err := h.server.Connect(context.Background(), NewWebSocketTransport(conn), nil)
		if err != nil {
			logging.Warnw("mcp: server connect failed", "err", err)
			_ = conn.Close()
			return
		}
		if err := session.Wait(); err != nil {
			logging.Debugw("mcp: server session ended", "err", err)
		}
	}()
}

func (h *WSHandler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *WSHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Len reports the number of live websocket sessions.
func (h *WSHandler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close refuses new websocket sessions and closes the live ones.
func (h *WSHandler) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}
