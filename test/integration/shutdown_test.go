package integration

import (
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/Tyrowin/gochat-relay/test/testhelpers"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGracefulShutdown verifies that an idle hub stops promptly
func TestGracefulShutdown(t *testing.T) {
	hub := server.NewHub(nil, nil, nil)
	go hub.Run()

	require.NoError(t, hub.Shutdown(5*time.Second))
}

// TestGracefulShutdownWithClients verifies that active client connections
// are closed during graceful shutdown
func TestGracefulShutdownWithClients(t *testing.T) {
	relay := testhelpers.NewTestRelay(t, nil, nil)

	const numClients = 5
	clients := make([]*websocket.Conn, 0, numClients)
	for i := 0; i < numClients; i++ {
		clients = append(clients, relay.Connect(t))
	}

	require.NoError(t, relay.Hub.Shutdown(5*time.Second))

	for _, conn := range clients {
		testhelpers.ExpectClosed(t, conn)
	}
	assert.Zero(t, relay.Hub.ClientCount())
}

func TestShutdownCancelsPendingBotQuery(t *testing.T) {
	stub := &testhelpers.StubBot{Reply: "never", Release: make(chan struct{})}
	relay := testhelpers.NewTestRelay(t, stub, nil)
	conn := relay.Connect(t)

	testhelpers.SendEvent(t, conn, server.EventBotQuery, "slow question")
	// The chat round trip proves the query has been dispatched.
	testhelpers.SendEvent(t, conn, server.EventChatMessage, "marker")
	require.Equal(t, "marker", testhelpers.ExpectChat(t, conn).Text)

	start := time.Now()
	require.NoError(t, relay.Hub.Shutdown(5*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)

	testhelpers.ExpectClosed(t, conn)
}

func TestShutdownRejectsNewConnections(t *testing.T) {
	relay := testhelpers.NewTestRelay(t, nil, nil)
	require.NoError(t, relay.Hub.Shutdown(time.Second))

	conn, err := testhelpers.ConnectWebSocket(relay.WSURL)
	if err != nil {
		return
	}
	// The upgrade may complete, but the hub never serves the socket.
	testhelpers.ExpectClosed(t, conn)
	assert.Zero(t, relay.Hub.ClientCount())
}

func TestConcurrentShutdown(t *testing.T) {
	relay := testhelpers.NewTestRelay(t, nil, nil)
	relay.Connect(t)

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- relay.Hub.Shutdown(5 * time.Second)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
