package realtime

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/exp/slog"

	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/record"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHub_BroadcastsChanges(t *testing.T) {
	hub := NewHub(slog.Default())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	a := dial(t, srv)
	defer a.Close()
	b := dial(t, srv)
	defer b.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)

	change := record.Change{EntityType: entity.Shipments, ID: "s1", Op: record.OpInsert}
	hub.Publish(change)

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		var got record.Change
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, change, got)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(slog.Default())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)

	// публикация без подписчиков не блокирует
	hub.Publish(record.Change{EntityType: entity.Drivers, ID: "d1", Op: record.OpDelete})
}

func TestHub_CloseSendsNormalClosure(t *testing.T) {
	hub := NewHub(slog.Default())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "err: %v", err)

	// после Close новые подключения сразу закрываются
	late := dial(t, srv)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "err: %v", err)
	assert.Zero(t, hub.Clients())
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(slog.Default())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	// клиент не читает: буфер и сокет рано или поздно переполняются
	require.Eventually(t, func() bool {
		for i := 0; i < sendBuffer; i++ {
			hub.Publish(record.Change{EntityType: entity.Products, ID: strings.Repeat("x", 512), Op: record.OpUpdate})
		}
		return hub.Clients() == 0
	}, 5*time.Second, time.Millisecond)
}
