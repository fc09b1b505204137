// Package wsclient is a client for the duplex session protocol that hides
// transient connection loss from its callers.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/protocol"
)

// ErrConnectFailed is returned once every connection attempt has failed.
var ErrConnectFailed = errors.New("failed to connect after maximum retries")

// ExecutionError carries the error result the server returned for a request.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }

// Config configures a Client. Zero values take the defaults below.
type Config struct {
	URL    string
	APIKey string
	// MaxRetries is the total number of connection attempts. Default 5.
	MaxRetries int
	// RetryDelay is the fixed pause between attempts. Default 1s.
	RetryDelay time.Duration
	// ReleaseTimeout bounds the wait for the release acknowledgement. Default 10s.
	ReleaseTimeout time.Duration
	// WriteTimeout bounds each frame write. Default 10s.
	WriteTimeout time.Duration
	Dialer       *websocket.Dialer
}

// Client holds at most one connection and issues one request at a time.
type Client struct {
	cfg Config

	mu sync.Mutex
	ws *websocket.Conn
}

// New creates a Client. It does not connect until needed.
func New(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{cfg: cfg}
}

// Connect opens the connection, retrying up to MaxRetries times.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	header := http.Header{}
	header.Set(protocol.HeaderAPIKey, c.cfg.APIKey)

	attempt := 0
	op := func() error {
		attempt++
		ws, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			logger.Error("Connection attempt failed.", "attempt", attempt, "error", err)
			return err
		}
		c.ws = ws
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryDelay), uint64(c.cfg.MaxRetries-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("%w (%d attempts): %v", ErrConnectFailed, attempt, err)
	}
	logger.Info("Connected to WebSocket server.", "url", c.cfg.URL)
	return nil
}

// ExecuteCode runs code in the caller's remote session and returns its
// output. A timeout of zero leaves the choice to the server. If the
// connection turns out to be closed, the client reconnects and reissues the
// request once.
func (c *Client) ExecuteCode(ctx context.Context, code string, files []string, timeout int) (string, error) {
	data, err := protocol.EncodeRequest(protocol.Execute{Code: code, Files: files, Timeout: timeout})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.roundTrip(ctx, data)
	if err != nil && isConnectionClosed(err) {
		ctxlog.FromContext(ctx).Warn("WebSocket connection closed. Attempting to reconnect...", "error", err)
		resp, err = c.roundTrip(ctx, data)
	}
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &ExecutionError{Message: resp.Result}
	}
	return resp.Result, nil
}

// roundTrip sends one request and reads its reply, connecting first when
// needed. Any failure drops the connection.
func (c *Client) roundTrip(ctx context.Context, data []byte) (protocol.Response, error) {
	if c.ws == nil {
		if err := c.connect(ctx); err != nil {
			return protocol.Response{}, err
		}
	}
	resp, err := c.exchange(ctx, data, time.Time{})
	if err != nil {
		c.drop()
		if ctx.Err() != nil {
			return protocol.Response{}, ctx.Err()
		}
		return protocol.Response{}, err
	}
	return resp, nil
}

// exchange writes data and waits for the reply until ctx is done or the
// optional deadline passes.
func (c *Client) exchange(ctx context.Context, data []byte, deadline time.Time) (protocol.Response, error) {
	ws := c.ws
	if err := ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return protocol.Response{}, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return protocol.Response{}, err
	}

	if err := ws.SetReadDeadline(deadline); err != nil {
		return protocol.Response{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, reply, err := ws.ReadMessage()
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.DecodeResponse(reply)
}

// Close asks the server to release the session, waits up to ReleaseTimeout
// for the acknowledgement and closes the connection. Release failures are
// only logged.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return nil
	}
	logger := ctxlog.FromContext(ctx)

	data, err := protocol.EncodeRequest(protocol.Release{})
	if err == nil {
		var resp protocol.Response
		resp, err = c.exchange(ctx, data, time.Now().Add(c.cfg.ReleaseTimeout))
		switch {
		case err != nil:
		case resp.OK() && resp.Result == protocol.ResultReleased:
			logger.Info("Interpreter released successfully.")
		default:
			logger.Error("Failed to release interpreter.", "result", resp.Result)
		}
	}
	if err != nil {
		logger.Warn("Failed to release interpreter.", "error", err)
	}

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err = c.ws.Close()
	c.ws = nil
	logger.Info("WebSocket connection closed.")
	return err
}

func (c *Client) drop() {
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
}

func isConnectionClosed(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
