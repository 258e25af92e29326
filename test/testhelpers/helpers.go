// Package testhelpers provides common utilities and helper functions for testing the GoChat relay.
//
// It starts a complete relay (presence registry, hub and HTTP routes) on an
// httptest server, dials real WebSocket clients against it and decodes the
// event envelopes they receive.
package testhelpers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/presence"
	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// TestOrigin is the Origin header sent by ConnectWebSocket and allowed by
// NewTestRelay.
const TestOrigin = "http://localhost:8080"

// ReadTimeout bounds every read helper so a missing event fails the test
// instead of hanging it.
const ReadTimeout = 2 * time.Second

// StubBot answers every bot query with a fixed reply. When Release is non-nil
// each query waits for a value on it, or for cancellation.
type StubBot struct {
	Reply   string
	Release chan struct{}
}

// Run implements server.BotRunner.
func (b *StubBot) Run(ctx context.Context, _ string) string {
	if b.Release != nil {
		select {
		case <-b.Release:
		case <-ctx.Done():
			return "cancelled"
		}
	}
	return b.Reply
}

// Relay is a running relay under test.
type Relay struct {
	HTTP *httptest.Server
	Hub  *server.Hub
	// WSURL is the ws:// address of the upgrade endpoint.
	WSURL string
}

// NewTestRelay starts a relay that answers bot queries through runner. The
// optional configure hook runs on the default config before the server is
// built. Everything is torn down when the test ends.
func NewTestRelay(t *testing.T, runner server.BotRunner, configure func(*server.Config)) *Relay {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{TestOrigin}
	if configure != nil {
		configure(cfg)
	}

	log := zaptest.NewLogger(t)
	hub := server.NewHub(presence.NewRegistry(), runner, log)
	go hub.Run()

	srv := server.NewServer(cfg, hub, log)
	ts := httptest.NewServer(srv.SetupRoutes())

	t.Cleanup(func() {
		_ = hub.Shutdown(5 * time.Second)
		ts.Close()
	})

	return &Relay{
		HTTP:  ts,
		Hub:   hub,
		WSURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

// Connect dials the relay and waits until the hub has attached the new
// connection, so that it is guaranteed to see every later broadcast.
func (r *Relay) Connect(t *testing.T) *websocket.Conn {
	t.Helper()

	before := r.Hub.ClientCount()
	conn, err := ConnectWebSocket(r.WSURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	WaitForClients(t, r.Hub, before+1)
	return conn
}

// WaitForClients blocks until the hub reports want open connections.
func WaitForClients(t *testing.T, hub *server.Hub, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == want
	}, ReadTimeout, 5*time.Millisecond, "expected %d connected clients", want)
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err, "failed to create request")

	resp, err := client.Do(req)
	require.NoError(t, err, "failed to make request")

	return resp
}

// ConnectWebSocket creates a WebSocket connection to url presenting TestOrigin.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	conn, resp, err := DialWithOrigin(url, TestOrigin)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// DialWithOrigin dials url with the given Origin header; an empty origin
// sends none. The handshake response is returned for status assertions.
func DialWithOrigin(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	return dialer.Dial(url, headers)
}

// SendEvent writes one envelope with a string payload.
func SendEvent(t *testing.T, conn *websocket.Conn, event, data string) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)

	frame, err := json.Marshal(server.Envelope{Event: event, Data: payload})
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// SendRawMessage sends a raw byte message over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// ReadEnvelope reads and decodes the next frame, failing after ReadTimeout.
func ReadEnvelope(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "no event received")

	var env server.Envelope
	require.NoError(t, json.Unmarshal(raw, &env), "frame is not an envelope: %s", raw)
	return env
}

// ExpectUserList reads the next frame and requires it to be a user list.
func ExpectUserList(t *testing.T, conn *websocket.Conn) []presence.Entry {
	t.Helper()

	env := ReadEnvelope(t, conn)
	require.Equal(t, server.EventUserList, env.Event)

	var entries []presence.Entry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	return entries
}

// ExpectChat reads the next frame and requires it to be a chat message.
func ExpectChat(t *testing.T, conn *websocket.Conn) server.ChatMessage {
	t.Helper()

	env := ReadEnvelope(t, conn)
	require.Equal(t, server.EventChatMessage, env.Event)

	var msg server.ChatMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	return msg
}

// ExpectNoEvent requires that nothing arrives within wait. The connection is
// unusable for reads afterwards, so call it last.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected event: %s", raw)
}

// ExpectClosed requires the server to close the connection within ReadTimeout.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatalf("connection still open after %s", ReadTimeout)
		}
		return
	}
}

// Usernames extracts display names from a user list, keeping its order.
func Usernames(entries []presence.Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Username
	}
	return names
}
