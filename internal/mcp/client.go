package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jakesimonds/Creator/internal/generator"
	"github.com/jakesimonds/Creator/internal/logging"
)

// ErrNotConnected is returned by Generate before a connection succeeds.
var ErrNotConnected = errors.New("mcp client not connected")

// ClientWrapper connects to a generation MCP server over websocket or a
// spawned command and satisfies generator.Client by calling its
// generate_model tool.
type ClientWrapper struct {
	client *sdk.Client

	mu              sync.Mutex
	session         *sdk.ClientSession
	keepaliveCancel context.CancelFunc
}

var _ generator.Client = (*ClientWrapper)(nil)

// NewClientWrapper creates a new wrapper with the given name/version.
func NewClientWrapper(name, version string) *ClientWrapper {
	impl := &sdk.Implementation{Name: name, Version: version}
	return &ClientWrapper{client: sdk.NewClient(impl, nil)}
}

// ConnectWebSocket dials the MCP server websocket endpoint and creates a
// session. http and https URLs are rewritten to ws and wss.
func (w *ClientWrapper) ConnectWebSocket(ctx context.Context, rawurl string) error {
	u, err := url.Parse(rawurl)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	if err := w.connect(ctx, NewWebSocketTransport(conn)); err != nil {
		_ = conn.Close()
		return err
	}
	logging.Infow("mcp: client connected", "url", u.String())
	return nil
}

// ConnectCommand spawns a local MCP server process and connects over its
// stdin and stdout. Close ends the session and stops the process.
func (w *ClientWrapper) ConnectCommand(ctx context.Context, command string, args []string, env map[string]string) error {
	if command == "" {
		return errors.New("command is required")
	}
	cmd := exec.Command(command, args...)
	// stdout carries protocol frames, so the child logs to stderr.
	cmd.Env = append(os.Environ(), "LOG_OUTPUT=stderr")
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = stderrLog{command: command}

	if err := w.connect(ctx, &sdk.CommandTransport{Command: cmd}); err != nil {
		return err
	}
	logging.Infow("mcp: command server started", "command", command, "args", strings.Join(args, " "))
	return nil
}

// stderrLog forwards a child's stderr to the debug log line by line.
type stderrLog struct {
	command string
}

func (l stderrLog) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			logging.Debugw("mcp: server stderr", "command", l.command, "line", line)
		}
	}
	return len(p), nil
}

func (w *ClientWrapper) connect(ctx context.Context, transport sdk.Transport) error {
	sess, err := w.client.Connect(ctx, transport, nil)
	if err != nil {
		return err
	}
	kaCtx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	if w.keepaliveCancel != nil {
		w.keepaliveCancel()
	}
	w.session = sess
	w.keepaliveCancel = cancel
	w.mu.Unlock()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-kaCtx.Done():
				return
			case <-ticker.C:
				_ = sess.Ping(kaCtx, nil)
			}
		}
	}()
	return nil
}

// Generate calls the generate_model tool once. Transport failures are
// transient; tool errors keep the server's classification.
func (w *ClientWrapper) Generate(ctx context.Context, prompt string) (generator.ModelHandle, error) {
	w.mu.Lock()
	sess := w.session
	w.mu.Unlock()
	if sess == nil {
		return generator.ModelHandle{}, fmt.Errorf("%w: %w", generator.ErrTransient, ErrNotConnected)
	}
	res, err := sess.CallTool(ctx, &sdk.CallToolParams{
		Name:      ToolName,
		Arguments: map[string]any{"prompt": prompt},
	})
	if err != nil {
		return generator.ModelHandle{}, fmt.Errorf("%w: call %s: %v", generator.ErrTransient, ToolName, err)
	}
	return decodeResult(res)
}

func (w *ClientWrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	if w.keepaliveCancel != nil {
		w.keepaliveCancel()
		w.keepaliveCancel = nil
	}
	if w.session != nil {
		if err := w.session.Close(); err != nil {
			errs = append(errs, err)
		}
		w.session = nil
	}
	return errors.Join(errs...)
}
