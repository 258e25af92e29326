package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/bot"
	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/Tyrowin/gochat-relay/test/testhelpers"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// TestWebSocketChatScenario walks two users through join, chat and leave.
func TestWebSocketChatScenario(t *testing.T) {
	relay := testhelpers.NewTestRelay(t, nil, nil)
	alice := relay.Connect(t)
	bob := relay.Connect(t)

	testhelpers.SendEvent(t, alice, server.EventRegister, "alice")
	assert.Equal(t, []string{"alice"}, testhelpers.Usernames(testhelpers.ExpectUserList(t, alice)))
	assert.Equal(t, []string{"alice"}, testhelpers.Usernames(testhelpers.ExpectUserList(t, bob)))

	testhelpers.SendEvent(t, bob, server.EventRegister, "bob")
	testhelpers.ExpectUserList(t, alice)
	users := testhelpers.ExpectUserList(t, bob)
	assert.Equal(t, []string{"alice", "bob"}, testhelpers.Usernames(users))
	assert.NotEqual(t, users[0].ID, users[1].ID)

	testhelpers.SendEvent(t, alice, server.EventChatMessage, "hi")
	want := server.ChatMessage{Username: "alice", Text: "hi"}
	assert.Equal(t, want, testhelpers.ExpectChat(t, alice))
	assert.Equal(t, want, testhelpers.ExpectChat(t, bob))

	require.NoError(t, alice.Close())
	left := testhelpers.ExpectUserList(t, bob)
	assert.Equal(t, []string{"bob"}, testhelpers.Usernames(left))
	assert.Equal(t, users[1].ID, left[0].ID)
}

func TestWebSocketUnregisteredSenderIsAnonymous(t *testing.T) {
	relay := testhelpers.NewTestRelay(t, nil, nil)
	conn := relay.Connect(t)

	testhelpers.SendEvent(t, conn, server.EventChatMessage, "hello")

	assert.Equal(t, server.ChatMessage{Username: server.AnonymousName, Text: "hello"}, testhelpers.ExpectChat(t, conn))
}

func TestWebSocketLegacyEventNames(t *testing.T) {
	relay := testhelpers.NewTestRelay(t, &testhelpers.StubBot{Reply: "pong"}, nil)
	conn := relay.Connect(t)

	testhelpers.SendEvent(t, conn, "set username", "carol")
	assert.Equal(t, []string{"carol"}, testhelpers.Usernames(testhelpers.ExpectUserList(t, conn)))

	testhelpers.SendEvent(t, conn, "gemini bot query", "ping")
	assert.Equal(t, server.ChatMessage{Username: bot.Name, Text: "pong"}, testhelpers.ExpectChat(t, conn))
}

func TestWebSocketInvalidFramesAreIgnored(t *testing.T) {
	relay := testhelpers.NewTestRelay(t, nil, func(cfg *server.Config) {
		cfg.RateLimit.Burst = 20
	})
	conn := relay.Connect(t)

	frames := []string{
		`not json`,
		`{"event":"shout","data":"x"}`,
		`{"event":"chat message","data":{"text":"x"}}`,
		`[]`,
	}
	for _, frame := range frames {
		require.NoError(t, testhelpers.SendRawMessage(conn, websocket.TextMessage, []byte(frame)))
	}

	// The connection survives and keeps processing valid events.
	testhelpers.SendEvent(t, conn, server.EventChatMessage, "still here")
	assert.Equal(t, "still here", testhelpers.ExpectChat(t, conn).Text)
	assert.Equal(t, 1, relay.Hub.ClientCount())
}

func TestWebSocketBotReplyIsBroadcast(t *testing.T) {
	stub := &testhelpers.StubBot{Reply: "42", Release: make(chan struct{})}
	relay := testhelpers.NewTestRelay(t, stub, nil)
	asker := relay.Connect(t)
	other := relay.Connect(t)

	testhelpers.SendEvent(t, asker, server.EventBotQuery, "what is 6*7")

	// Chat keeps flowing while the query is outstanding.
	testhelpers.SendEvent(t, other, server.EventChatMessage, "waiting")
	assert.Equal(t, "waiting", testhelpers.ExpectChat(t, asker).Text)
	assert.Equal(t, "waiting", testhelpers.ExpectChat(t, other).Text)

	close(stub.Release)
	want := server.ChatMessage{Username: bot.Name, Text: "42"}
	assert.Equal(t, want, testhelpers.ExpectChat(t, asker))
	assert.Equal(t, want, testhelpers.ExpectChat(t, other))
}

// TestWebSocketBotQueryAgainstGemini drives the real orchestrator and Gemini
// client against a fake generateContent endpoint that fails twice.
func TestWebSocketBotQueryAgainstGemini(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"code":400,"message":"try again","status":"INVALID_ARGUMENT"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"42"}]}}]}`)
	}))
	t.Cleanup(upstream.Close)

	log := zaptest.NewLogger(t)
	gemini, err := bot.NewGeminiClient(context.Background(), bot.GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    upstream.URL + "/",
		HTTPClient: upstream.Client(),
	}, log)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		waits []time.Duration
	)
	orchestrator := bot.NewOrchestrator(gemini, log, bot.WithSleep(func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		waits = append(waits, d)
		return nil
	}))

	relay := testhelpers.NewTestRelay(t, orchestrator, nil)
	conn := relay.Connect(t)

	testhelpers.SendEvent(t, conn, server.EventBotQuery, "what is 6*7")

	assert.Equal(t, server.ChatMessage{Username: bot.Name, Text: "42"}, testhelpers.ExpectChat(t, conn))
	assert.EqualValues(t, 3, calls.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)
}

func TestWebSocketBotFallbackWithoutAPIKey(t *testing.T) {
	log := zaptest.NewLogger(t)
	gemini, err := bot.NewGeminiClient(context.Background(), bot.GeminiConfig{}, log)
	require.NoError(t, err)

	orchestrator := bot.NewOrchestrator(gemini, log, bot.WithSleep(func(context.Context, time.Duration) error {
		return nil
	}))
	relay := testhelpers.NewTestRelay(t, orchestrator, nil)
	conn := relay.Connect(t)

	testhelpers.SendEvent(t, conn, server.EventBotQuery, "anyone?")

	assert.Equal(t, server.ChatMessage{Username: bot.Name, Text: bot.FallbackText}, testhelpers.ExpectChat(t, conn))
}
