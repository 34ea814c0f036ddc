package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestEmitReachesClientsInNamespace(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	root := dial(t, srv, "")
	admin := dial(t, srv, "?namespace=/admin")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Emit("pattern_alert", map[string]string{"symbol": "AAPL"}, "/"))

	var msg struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, root.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, root.ReadJSON(&msg))
	assert.Equal(t, "pattern_alert", msg.Event)
	assert.Equal(t, "AAPL", msg.Data["symbol"])

	require.NoError(t, admin.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := admin.ReadMessage()
	require.Error(t, err)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEmitAfterCloseFails(t *testing.T) {
	hub := NewHub(nil)
	hub.Close()
	require.ErrorIs(t, hub.Emit("pattern_alert", nil, "/"), ErrHubClosed)
}

func TestEmitRejectsUnencodablePayload(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	require.Error(t, hub.Emit("pattern_alert", make(chan int), "/"))
}
