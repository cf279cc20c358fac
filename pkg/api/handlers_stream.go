package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/odvcencio/repcoach/pkg/agent"
	"github.com/odvcencio/repcoach/pkg/bus"
	"github.com/odvcencio/repcoach/pkg/memory"
)

// ChunkEvent carries one piece of streamed reply text.
type ChunkEvent struct {
	Text string `json:"text"`
}

// streamReply answers a message as SSE: "chunk" events while the reply is
// produced, then one "reply" or "error" event.
func (s *Server) streamReply(w http.ResponseWriter, r *http.Request, sess *memory.Session, input string) {
	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	ctx := r.Context()
	reply, err := s.coach.StreamMessage(ctx, sess, input, func(chunk string) error {
		return sse.send("chunk", ChunkEvent{Text: chunk})
	})
	if ctx.Err() != nil {
		// Client went away; the agent keeps the partial reply.
		return
	}
	if err != nil {
		_ = sse.send("error", map[string]string{"error": err.Error()})
		return
	}
	_ = sse.send("reply", reply)
}

// handleSessionEvents streams the session's completed turns from the bus.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("event bus not configured"))
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	ctx := r.Context()
	events := make(chan []byte, 64)
	subject := bus.TurnSubject(s.busPrefix, sess.ID)
	sub, err := s.events.Subscribe(ctx, subject, func(msg *bus.Message) {
		select {
		case events <- msg.Data:
		default:
			// Drop if the client is not keeping up
		}
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer sub.Unsubscribe()

	sse, _ := newSSEWriter(w)
	if err := sse.send("connected", map[string]string{"session_id": sess.ID, "subject": subject}); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sse.comment("heartbeat"); err != nil {
				return
			}
		case data := <-events:
			if err := sse.sendRaw("turn", data); err != nil {
				return
			}
		}
	}
}

// Websocket message types.
const (
	wsTypeMessage   = "message"
	wsTypeCancel    = "cancel"
	wsTypePing      = "ping"
	wsTypeConnected = "connected"
	wsTypeChunk     = "chunk"
	wsTypeReply     = "reply"
	wsTypeCancelled = "cancelled"
	wsTypeError     = "error"
	wsTypePong      = "pong"
)

// WSInbound is a client frame: {"type":"message","text":"double it"},
// {"type":"cancel"} or {"type":"ping"}.
type WSInbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// WSOutbound is a server frame.
type WSOutbound struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id,omitempty"`
	Text      string       `json:"text,omitempty"`
	Reply     *agent.Reply `json:"reply,omitempty"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// chatConn tracks the one turn a websocket may have in flight.
type chatConn struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	turns  sync.WaitGroup
}

// begin reserves the connection for a turn. It fails while another turn is
// still streaming.
func (c *chatConn) begin(parent context.Context) (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.turns.Add(1)
	return ctx, true
}

func (c *chatConn) end() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.turns.Done()
}

// interrupt cancels the in-flight turn, if any.
func (c *chatConn) interrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// handleWebSocket runs an interactive chat. Replies stream as "chunk" frames
// followed by "reply"; a "cancel" frame stops the current reply, which is
// answered with "cancelled" carrying the partial text.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	chat := &chatConn{}
	defer func() {
		cancel()
		chat.turns.Wait()
		conn.Close(websocket.StatusNormalClosure, "connection closed")
	}()
	s.keepAlive(ctx, conn, sess.ID, cancel)

	if err := wsjson.Write(ctx, conn, WSOutbound{Type: wsTypeConnected, SessionID: sess.ID, Timestamp: time.Now()}); err != nil {
		return
	}

	for {
		var in WSInbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logger.Debug("websocket read failed", zap.String("session_id", sess.ID), zap.Error(err))
			}
			return
		}

		switch in.Type {
		case wsTypeMessage:
			if strings.TrimSpace(in.Text) == "" {
				_ = wsjson.Write(ctx, conn, WSOutbound{Type: wsTypeError, Error: "text is required", Timestamp: time.Now()})
				continue
			}
			turnCtx, ok := chat.begin(ctx)
			if !ok {
				_ = wsjson.Write(ctx, conn, WSOutbound{Type: wsTypeError, Error: "a reply is still streaming; send cancel first", Timestamp: time.Now()})
				continue
			}
			go s.wsTurn(ctx, turnCtx, conn, chat, sess, in.Text)
		case wsTypeCancel:
			chat.interrupt()
		case wsTypePing:
			_ = wsjson.Write(ctx, conn, WSOutbound{Type: wsTypePong, Timestamp: time.Now()})
		default:
			_ = wsjson.Write(ctx, conn, WSOutbound{Type: wsTypeError, Error: "unknown message type " + in.Type, Timestamp: time.Now()})
		}
	}
}

// wsTurn runs one turn. Frames are written on the connection context so a
// cancelled turn can still report what it produced.
func (s *Server) wsTurn(connCtx, turnCtx context.Context, conn *websocket.Conn, chat *chatConn, sess *memory.Session, text string) {
	defer chat.end()

	reply, err := s.coach.StreamMessage(turnCtx, sess, text, func(chunk string) error {
		return wsjson.Write(connCtx, conn, WSOutbound{Type: wsTypeChunk, Text: chunk, Timestamp: time.Now()})
	})
	if connCtx.Err() != nil {
		return
	}

	out := WSOutbound{Type: wsTypeReply, SessionID: sess.ID, Reply: reply, Timestamp: time.Now()}
	switch {
	case turnCtx.Err() != nil:
		out.Type = wsTypeCancelled
	case err != nil:
		out.Type = wsTypeError
		out.Error = err.Error()
	}
	if err := wsjson.Write(connCtx, conn, out); err != nil {
		s.logger.Debug("websocket write failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
}
