package wsserver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/specialistvlad/codebox/internal/dispatcher"
	"github.com/specialistvlad/codebox/internal/protocol"
)

type conn struct {
	h        *Handler
	ws       *websocket.Conn
	id       string
	identity string
	cancel   context.CancelFunc
	logger   *slog.Logger

	state     state
	closeOnce sync.Once
}

func (c *conn) setState(s state) {
	c.logger.Debug("Connection state changed.", "from", c.state, "to", s)
	c.state = s
}

func (c *conn) serve(ctx context.Context) {
	c.logger.Info("🔌 WebSocket connected.")
	defer c.setState(stateClosed)

	if c.identity == "" {
		c.logger.Warn("Rejecting connection without API key.")
		c.close(protocol.CloseSessionError, protocol.ReasonMissingKey)
		return
	}
	if _, err := c.h.sessions.GetOrCreate(ctx, c.identity); err != nil {
		c.logger.Error("Failed to bind session.", "error", err)
		c.close(websocket.CloseInternalServerErr, "Failed to create session")
		return
	}
	c.setState(stateBound)

	if c.h.cfg.ReadLimit > 0 {
		c.ws.SetReadLimit(c.h.cfg.ReadLimit)
	}

	for {
		c.setState(stateAwaiting)
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logDisconnect(err)
			c.close(websocket.CloseNormalClosure, "")
			return
		}
		if !c.handle(ctx, data) {
			return
		}
	}
}

// handle processes one message and reports whether the connection stays open.
func (c *conn) handle(ctx context.Context, data []byte) bool {
	req, err := protocol.DecodeRequest(data)
	switch {
	case errors.Is(err, protocol.ErrUnknownType):
		c.logger.Warn("Unknown request type.", "error", err)
		return c.reply(protocol.Response{Result: protocol.ResultUnknown, Status: protocol.StatusError})
	case err != nil:
		c.logger.Warn("Malformed request.", "error", err)
		return c.reply(protocol.Response{Result: malformed(err), Status: protocol.StatusError})
	}

	switch r := req.(type) {
	case protocol.Release:
		if err := c.h.disp.Release(ctx, c.identity); err != nil {
			c.logger.Warn("Session executor did not close cleanly.", "error", err)
		}
		c.logger.Info("Session released by client.")
		return c.reply(protocol.Response{Result: protocol.ResultReleased, Status: protocol.StatusSuccess})

	case protocol.Execute:
		c.setState(stateDispatching)
		res := c.h.disp.Execute(ctx, c.identity, dispatcher.Request{
			Code:    r.Code,
			Files:   r.Files,
			Timeout: c.h.timeout(r.Timeout),
		})
		if res.OK() {
			return c.reply(protocol.Response{Result: res.Text, Status: protocol.StatusSuccess})
		}
		if !c.reply(protocol.Response{Result: res.Failure.Message, Status: protocol.StatusError}) {
			return false
		}
		if res.Failure.Kind == dispatcher.KindTimeout && res.Failure.Evicted {
			c.logger.Warn("Closing connection after execution timeout.")
			c.close(protocol.CloseSessionError, protocol.ReasonTimedOut)
			return false
		}
		return true
	}
	return true
}

func malformed(err error) string {
	detail := strings.TrimPrefix(err.Error(), protocol.ErrMalformed.Error()+": ")
	return "Malformed request: " + detail
}

func (c *conn) reply(resp protocol.Response) bool {
	data, err := protocol.Encode(resp)
	if err != nil {
		c.logger.Error("Failed to encode response.", "error", err)
		return false
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.h.cfg.WriteTimeout)); err != nil {
		return false
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn("Failed to write response, dropping connection.", "error", err)
		c.close(websocket.CloseAbnormalClosure, "")
		return false
	}
	return true
}

// close sends a close frame with code and reason, then closes the socket.
// Only the first call has any effect.
func (c *conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		if code != websocket.CloseAbnormalClosure {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.h.cfg.WriteTimeout))
		}
		_ = c.ws.Close()
		c.logger.Info("🔌 WebSocket closed.", "code", code, "reason", reason)
	})
}

func (c *conn) logDisconnect(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Debug("Client closed the connection.")
		return
	}
	if websocket.IsUnexpectedCloseError(err) {
		c.logger.Warn("Connection closed unexpectedly.", "error", err)
		return
	}
	c.logger.Debug("Connection read ended.", "error", err)
}
