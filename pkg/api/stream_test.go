package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/odvcencio/repcoach/pkg/agent"
	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/model"
)

// slowCoach streams one chunk and then waits for cancellation.
type slowCoach struct {
	*agent.Agent
}

func (c slowCoach) StreamMessage(ctx context.Context, sess *memory.Session, input string, onChunk model.ChunkFunc) (*agent.Reply, error) {
	if err := onChunk("Squats work "); err != nil {
		return nil, err
	}
	<-ctx.Done()
	return &agent.Reply{SessionID: sess.ID, Text: "Squats work ", Truncated: true}, ctx.Err()
}

func readSSEEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestSessionEventsStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	id := env.createSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	ev := readSSEEvent(t, reader)
	require.Equal(t, "connected", ev.name)

	reply := decodeReply(t, env.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", MessageRequest{Message: "hello"}))

	ev = readSSEEvent(t, reader)
	require.Equal(t, "turn", ev.name)
	var turn agent.TurnEvent
	require.NoError(t, json.Unmarshal([]byte(ev.data), &turn))
	assert.Equal(t, id, turn.SessionID)
	assert.Equal(t, "hello", turn.UserInput)
	assert.Equal(t, reply.Text, turn.Response)
	cancel()
}

func dialChat(t *testing.T, ctx context.Context, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + id + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)

	var hello WSOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	require.Equal(t, wsTypeConnected, hello.Type)
	require.Equal(t, id, hello.SessionID)
	return conn
}

func TestWebSocketChat(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	id := env.createSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialChat(t, ctx, srv, id)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, WSInbound{Type: wsTypePing}))
	var out WSOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	assert.Equal(t, wsTypePong, out.Type)

	require.NoError(t, wsjson.Write(ctx, conn, WSInbound{Type: wsTypeMessage, Text: "hello"}))
	var streamed strings.Builder
	for {
		out = WSOutbound{}
		require.NoError(t, wsjson.Read(ctx, conn, &out))
		if out.Type != wsTypeChunk {
			break
		}
		streamed.WriteString(out.Text)
	}
	require.Equal(t, wsTypeReply, out.Type, out.Error)
	require.NotNil(t, out.Reply)
	assert.Equal(t, out.Reply.Text, streamed.String())

	require.NoError(t, wsjson.Write(ctx, conn, WSInbound{Type: wsTypeMessage, Text: " "}))
	out = WSOutbound{}
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	assert.Equal(t, wsTypeError, out.Type)

	require.NoError(t, wsjson.Write(ctx, conn, WSInbound{Type: "dance"}))
	out = WSOutbound{}
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	assert.Equal(t, wsTypeError, out.Type)
}

func TestWebSocketCancel(t *testing.T) {
	a := agent.New()
	s := NewServer(ServerConfig{Coach: slowCoach{a}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	sess, err := a.StartSession(context.Background(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialChat(t, ctx, srv, sess.ID)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, WSInbound{Type: wsTypeMessage, Text: "how do I squat"}))
	var out WSOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	require.Equal(t, wsTypeChunk, out.Type)

	// A second message is refused while the first is streaming.
	require.NoError(t, wsjson.Write(ctx, conn, WSInbound{Type: wsTypeMessage, Text: "hello"}))
	out = WSOutbound{}
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	assert.Equal(t, wsTypeError, out.Type)

	require.NoError(t, wsjson.Write(ctx, conn, WSInbound{Type: wsTypeCancel}))
	out = WSOutbound{}
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	require.Equal(t, wsTypeCancelled, out.Type)
	require.NotNil(t, out.Reply)
	assert.True(t, out.Reply.Truncated)
	assert.Equal(t, "Squats work ", out.Reply.Text)
}

func TestWebSocketUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/nope/ws"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
