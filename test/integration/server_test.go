package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/Tyrowin/gochat-relay/test/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHealthEndpointIntegration tests the health endpoint with the actual route setup
func TestHealthEndpointIntegration(t *testing.T) {
	relay := testhelpers.NewTestRelay(t, nil, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, relay.HTTP.URL+"/")
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "GoChat server is running!", string(body))
}

func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	relay := testhelpers.NewTestRelay(t, nil, nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, method, relay.HTTP.URL+"/ws")
			defer resp.Body.Close()
			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		})
	}
}

func TestWebSocketEndpointRequiresUpgrade(t *testing.T) {
	relay := testhelpers.NewTestRelay(t, nil, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, relay.HTTP.URL+"/ws")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, relay.Hub.ClientCount())
}

// TestFullServerIntegration serves the routes through the production http.Server settings
func TestFullServerIntegration(t *testing.T) {
	hub := server.NewHub(nil, nil, nil)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	mux := server.NewServer(nil, hub, nil).SetupRoutes()
	srv := server.CreateServer(":0", mux)

	testServer := httptest.NewUnstartedServer(mux)
	testServer.Config = srv
	testServer.Start()
	defer testServer.Close()

	resp := testhelpers.MakeRequest(t, http.MethodGet, testServer.URL+"/")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
}
