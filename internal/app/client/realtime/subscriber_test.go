package realtime

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/exp/slog"

	"shiptrack/internal/domain/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFeedURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "http://localhost:8080", want: "ws://localhost:8080/api/v1/realtime"},
		{base: "https://api.example.com/", want: "wss://api.example.com/api/v1/realtime"},
	}
	for _, tt := range tests {
		got, err := FeedURL(tt.base)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestSubscriber_DeliversEventsAndReconnects(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var connects atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connects.Add(1)

		conn.WriteJSON(Event{EntityType: "unknown", ID: "x", Op: "insert"})
		conn.WriteJSON(Event{EntityType: entity.Shipments, ID: "s1", Op: "update"})
		// обрыв после первого события, чтобы проверить переподключение
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	feed, err := FeedURL(srv.URL)
	require.NoError(t, err)

	sub := NewSubscriber(feed, 10*time.Millisecond, 50*time.Millisecond, testLogger())
	events := make(chan Event, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sub.Run(ctx, func() bool { return true }, func(ev Event) { events <- ev })
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			assert.Equal(t, entity.Shipments, ev.EntityType)
			assert.Equal(t, "s1", ev.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}
	assert.GreaterOrEqual(t, connects.Load(), int32(2))

	cancel()
	<-done
}

func TestSubscriber_WaitsWhileOffline(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
	}))
	defer srv.Close()

	feed, err := FeedURL(srv.URL)
	require.NoError(t, err)
	sub := NewSubscriber(feed, 5*time.Millisecond, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sub.Run(ctx, func() bool { return false }, func(Event) {})

	assert.Zero(t, dials.Load())
}
