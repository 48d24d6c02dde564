package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"shiptrack/internal/app/client/gateway"
	"shiptrack/internal/app/client/realtime"
	serverRealtime "shiptrack/internal/app/server/realtime"
	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/record"
	"shiptrack/internal/domain/sync"
	"shiptrack/internal/infrastructure/storage/memory"
)

type testServer struct {
	srv     *httptest.Server
	hub     *serverRealtime.Hub
	service *record.Service
	gw      *gateway.HTTPGateway
}

func newTestServer(t *testing.T, pageSize int) *testServer {
	t.Helper()
	log := slog.Default()

	hub := serverRealtime.NewHub(log)
	service := record.NewService(memory.NewRecordRepository(), hub, log, 1000)
	srv := httptest.NewServer(New(Deps{Records: service, Feed: hub}, log))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return &testServer{
		srv:     srv,
		hub:     hub,
		service: service,
		gw:      gateway.New(gateway.Config{BaseURL: srv.URL, PageSize: pageSize, FetchTimeout: 5 * time.Second}, log),
	}
}

func TestAPI_GatewayRoundTrip(t *testing.T) {
	ts := newTestServer(t, 2)
	ctx := context.Background()

	require.NoError(t, ts.gw.Health(ctx))

	for i := 0; i < 5; i++ {
		_, err := ts.gw.Insert(ctx, entity.Shipments, entity.Record{
			"id":         fmt.Sprintf("s%d", i),
			"company_id": "c1",
		}, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}
	_, err := ts.gw.Insert(ctx, entity.Shipments, entity.Record{"id": "other", "company_id": "c2"}, "")
	require.NoError(t, err)

	records, err := ts.gw.FetchAll(ctx, entity.Shipments, gateway.Filter{CompanyID: "c1"})
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprintf("s%d", i), rec["id"])
	}

	all, err := ts.gw.FetchAll(ctx, entity.Shipments, gateway.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestAPI_ReplayedInsertIsIdempotent(t *testing.T) {
	ts := newTestServer(t, 100)
	ctx := context.Background()

	first, err := ts.gw.Insert(ctx, entity.Products, entity.Record{"id": "p1", "price": 10}, "m-1")
	require.NoError(t, err)

	second, err := ts.gw.Insert(ctx, entity.Products, entity.Record{"id": "p1", "price": 10, entity.PendingSyncField: true}, "m-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	records, err := ts.gw.FetchAll(ctx, entity.Products, gateway.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Pending())
}

func TestAPI_UpdateAndDelete(t *testing.T) {
	ts := newTestServer(t, 100)
	ctx := context.Background()

	_, err := ts.gw.Insert(ctx, entity.Drivers, entity.Record{"id": "d1", "name": "Ali"}, "")
	require.NoError(t, err)

	updated, err := ts.gw.Update(ctx, entity.Drivers, "d1", entity.Record{"name": "Omar"}, "m-2")
	require.NoError(t, err)
	assert.Equal(t, "Omar", updated["name"])

	_, err = ts.gw.Update(ctx, entity.Drivers, "missing", entity.Record{"name": "x"}, "m-3")
	var remoteErr *sync.RemoteFetchError
	require.True(t, errors.As(err, &remoteErr), "err: %v", err)
	assert.True(t, remoteErr.NotFound())

	require.NoError(t, ts.gw.Delete(ctx, entity.Drivers, "d1", "m-4"))
	require.NoError(t, ts.gw.Delete(ctx, entity.Drivers, "d1", "m-4"))

	records, err := ts.gw.FetchAll(ctx, entity.Drivers, gateway.Filter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAPI_UnknownType(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, err := http.Get(ts.srv.URL + "/api/v1/entities/invoices")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_RealtimeFeed(t *testing.T) {
	ts := newTestServer(t, 100)
	ctx, cancel := context.WithCancel(context.Background())

	feedURL, err := realtime.FeedURL(ts.srv.URL)
	require.NoError(t, err)
	sub := realtime.NewSubscriber(feedURL, 10*time.Millisecond, 50*time.Millisecond, slog.Default())

	events := make(chan realtime.Event, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sub.Run(ctx, func() bool { return true }, func(ev realtime.Event) { events <- ev })
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return ts.hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err = ts.gw.Insert(context.Background(), entity.Regions, entity.Record{"id": "r1"}, "")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, realtime.Event{EntityType: entity.Regions, ID: "r1", Op: string(record.OpInsert)}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("событие не пришло")
	}
}
