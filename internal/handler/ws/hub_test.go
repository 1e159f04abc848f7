package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

type frame struct {
	Type string                `json:"type"`
	Data models.WorkerSnapshot `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(b, &f))
	return f
}

func TestHubPushesSnapshots(t *testing.T) {
	hub := NewHub(nil, func() models.WorkerSnapshot {
		return models.WorkerSnapshot{Status: models.RunOK, Emitted: 1}
	})
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readFrame(t, conn)
	assert.Equal(t, "snapshot", first.Type)
	assert.Equal(t, 1, first.Data.Emitted)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(models.WorkerSnapshot{Status: models.RunError, Error: "all units failed"})
	next := readFrame(t, conn)
	assert.Equal(t, models.RunError, next.Data.Status)
	assert.Equal(t, "all units failed", next.Data.Error)

	require.NoError(t, hub.Close(context.Background()))
	assert.Equal(t, 0, hub.Clients())
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	hub := NewHub(nil, nil)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
