package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/mutation"
	"shiptrack/internal/domain/sync"
)

func backends(t *testing.T) map[string]func(t *testing.T) Storage {
	return map[string]func(t *testing.T) Storage{
		"memory": func(t *testing.T) Storage {
			return NewMemoryStorage()
		},
		"sqlite": func(t *testing.T) Storage {
			s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "cache.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func ids(t *testing.T, typ entity.Type, records []entity.Record) []string {
	t.Helper()
	out := make([]string, 0, len(records))
	for _, r := range records {
		id, ok := entity.IDOf(typ, r)
		require.True(t, ok)
		out = append(out, id)
	}
	return out
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("empty type", func(t *testing.T) {
				s := open(t)
				records, err := s.GetAll(ctx, entity.Drivers)
				require.NoError(t, err)
				assert.Empty(t, records)

				has, err := s.HasData(ctx, entity.Drivers)
				require.NoError(t, err)
				assert.False(t, has)
			})

			t.Run("save all replaces and keeps order", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.SaveAll(ctx, entity.Shipments, []entity.Record{
					{"id": "a", "status": "new"},
					{"id": "b", "status": "new"},
				}))
				require.NoError(t, s.SaveAll(ctx, entity.Shipments, []entity.Record{
					{"id": "c"}, {"id": "b", "status": "done"}, {"id": float64(7)},
				}))

				records, err := s.GetAll(ctx, entity.Shipments)
				require.NoError(t, err)
				assert.Equal(t, []string{"c", "b", "7"}, ids(t, entity.Shipments, records))
				assert.Equal(t, "done", records[1]["status"])

				has, err := s.HasData(ctx, entity.Shipments)
				require.NoError(t, err)
				assert.True(t, has)

				other, err := s.GetAll(ctx, entity.Products)
				require.NoError(t, err)
				assert.Empty(t, other)
			})

			t.Run("save all is atomic", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.SaveAll(ctx, entity.Products, []entity.Record{{"id": "p1"}}))

				err := s.SaveAll(ctx, entity.Products, []entity.Record{{"id": "p2"}, {"name": "no id"}})
				require.Error(t, err)
				assert.ErrorIs(t, err, sync.ErrOfflineCache)
				assert.ErrorIs(t, err, entity.ErrMissingID)

				records, err := s.GetAll(ctx, entity.Products)
				require.NoError(t, err)
				assert.Equal(t, []string{"p1"}, ids(t, entity.Products, records))
			})

			t.Run("replace all spans types", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.SaveAll(ctx, entity.Regions, []entity.Record{{"id": "r1"}}))

				err := s.ReplaceAll(ctx, map[entity.Type][]entity.Record{
					entity.Regions: {{"id": "r2"}},
					entity.Drivers: {{"name": "no id"}},
				})
				require.Error(t, err)

				regions, err := s.GetAll(ctx, entity.Regions)
				require.NoError(t, err)
				assert.Equal(t, []string{"r1"}, ids(t, entity.Regions, regions))

				require.NoError(t, s.ReplaceAll(ctx, map[entity.Type][]entity.Record{
					entity.Regions: {{"id": "r2"}},
					entity.Drivers: {{"id": "d1"}},
				}))
				regions, err = s.GetAll(ctx, entity.Regions)
				require.NoError(t, err)
				assert.Equal(t, []string{"r2"}, ids(t, entity.Regions, regions))
			})

			t.Run("cancelled replace writes nothing", func(t *testing.T) {
				s := open(t)
				cctx, cancel := context.WithCancel(ctx)
				cancel()

				err := s.ReplaceAll(cctx, map[entity.Type][]entity.Record{entity.Regions: {{"id": "r1"}}})
				require.Error(t, err)

				has, err := s.HasData(ctx, entity.Regions)
				require.NoError(t, err)
				assert.False(t, has)
			})

			t.Run("company settings keyed by company", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.SaveAll(ctx, entity.CompanySettings, []entity.Record{
					{"company_id": "acme", "currency": "USD"},
				}))
				require.NoError(t, s.Put(ctx, entity.CompanySettings, entity.Record{"company_id": "acme", "currency": "EUR"}))

				records, err := s.GetAll(ctx, entity.CompanySettings)
				require.NoError(t, err)
				require.Len(t, records, 1)
				assert.Equal(t, "EUR", records[0]["currency"])
			})

			t.Run("put prepends new and replaces existing in place", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.SaveAll(ctx, entity.Drivers, []entity.Record{{"id": "d1"}, {"id": "d2"}}))

				require.NoError(t, s.Put(ctx, entity.Drivers, entity.Record{"id": "d3"}))
				require.NoError(t, s.Put(ctx, entity.Drivers, entity.Record{"id": "d2", "name": "Ann"}))

				records, err := s.GetAll(ctx, entity.Drivers)
				require.NoError(t, err)
				assert.Equal(t, []string{"d3", "d1", "d2"}, ids(t, entity.Drivers, records))
				assert.Equal(t, "Ann", records[2]["name"])

				require.NoError(t, s.Delete(ctx, entity.Drivers, "d1"))
				require.NoError(t, s.Delete(ctx, entity.Drivers, "missing"))
				records, err = s.GetAll(ctx, entity.Drivers)
				require.NoError(t, err)
				assert.Equal(t, []string{"d3", "d2"}, ids(t, entity.Drivers, records))
			})

			t.Run("returned records are copies", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.SaveAll(ctx, entity.Regions, []entity.Record{{"id": "r1", "name": "North"}}))

				records, err := s.GetAll(ctx, entity.Regions)
				require.NoError(t, err)
				records[0]["name"] = "changed"

				again, err := s.GetAll(ctx, entity.Regions)
				require.NoError(t, err)
				assert.Equal(t, "North", again[0]["name"])
			})
		})
	}
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("fifo order", func(t *testing.T) {
				s := open(t)
				first := mutation.New(mutation.Create, entity.Shipments, "s1", entity.Record{"id": "s1"}, "u1", now)
				second := mutation.New(mutation.Update, entity.Shipments, "s1", entity.Record{"status": "sent"}, "u1", now)
				third := mutation.New(mutation.Delete, entity.Drivers, "d1", nil, "", now)

				for _, m := range []mutation.Mutation{first, second, third} {
					_, err := s.Enqueue(ctx, m)
					require.NoError(t, err)
				}

				list, err := s.Mutations(ctx)
				require.NoError(t, err)
				require.Len(t, list, 3)
				assert.Equal(t, first.ID, list[0].ID)
				assert.Equal(t, second.ID, list[1].ID)
				assert.Equal(t, third.ID, list[2].ID)
				assert.Less(t, list[0].Seq, list[1].Seq)
				assert.Equal(t, "sent", list[1].Payload["status"])
				assert.Equal(t, "u1", list[0].UserID)
				assert.WithinDuration(t, now, list[0].EnqueuedAt, time.Millisecond)
				assert.Nil(t, list[2].Payload)

				count, err := s.CountPending(ctx)
				require.NoError(t, err)
				assert.Equal(t, 3, count)

				require.NoError(t, s.Remove(ctx, list[0].Seq))
				list, err = s.Mutations(ctx)
				require.NoError(t, err)
				require.Len(t, list, 2)
				assert.Equal(t, second.ID, list[0].ID)
			})

			t.Run("rejects invalid mutation", func(t *testing.T) {
				s := open(t)
				m := mutation.New(mutation.Create, entity.Shipments, "s1", nil, "", now)
				_, err := s.Enqueue(ctx, m)
				assert.ErrorIs(t, err, mutation.ErrEmptyPayload)
			})

			t.Run("attempts and dead letters", func(t *testing.T) {
				s := open(t)
				seq, err := s.Enqueue(ctx, mutation.New(mutation.Update, entity.Products, "p1", entity.Record{"price": 3.5}, "", now))
				require.NoError(t, err)

				next := now.Add(10 * time.Second)
				require.NoError(t, s.MarkAttempt(ctx, seq, "status 500", next))

				list, err := s.Mutations(ctx)
				require.NoError(t, err)
				require.Len(t, list, 1)
				assert.Equal(t, 1, list[0].Attempts)
				assert.Equal(t, "status 500", list[0].LastError)
				assert.WithinDuration(t, next, list[0].NextAttemptAt, time.Millisecond)
				assert.False(t, list[0].Ready(now))

				require.NoError(t, s.MarkFailed(ctx, seq, "status 403"))
				count, err := s.CountPending(ctx)
				require.NoError(t, err)
				assert.Zero(t, count)

				failed, err := s.Failed(ctx)
				require.NoError(t, err)
				require.Len(t, failed, 1)
				assert.Equal(t, mutation.StatusFailed, failed[0].Status)
				assert.Equal(t, 2, failed[0].Attempts)

				require.NoError(t, s.Requeue(ctx, seq))
				list, err = s.Mutations(ctx)
				require.NoError(t, err)
				require.Len(t, list, 1)
				assert.Zero(t, list[0].Attempts)
				assert.True(t, list[0].Ready(now))

				assert.ErrorIs(t, s.Requeue(ctx, seq+100), mutation.ErrNotFound)
			})

			t.Run("write offline stores record and mutation together", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.SaveAll(ctx, entity.Shipments, []entity.Record{{"id": "s1"}}))

				rec := entity.Record{"id": "s2", "status": "new"}.WithPending(true)
				m := mutation.New(mutation.Create, entity.Shipments, "s2", rec, "u1", now)
				_, err := s.WriteOffline(ctx, entity.Shipments, rec, m)
				require.NoError(t, err)

				records, err := s.GetAll(ctx, entity.Shipments)
				require.NoError(t, err)
				assert.Equal(t, []string{"s2", "s1"}, ids(t, entity.Shipments, records))
				assert.True(t, records[0].Pending())

				del := mutation.New(mutation.Delete, entity.Shipments, "s1", nil, "u1", now)
				_, err = s.WriteOffline(ctx, entity.Shipments, nil, del)
				require.NoError(t, err)

				records, err = s.GetAll(ctx, entity.Shipments)
				require.NoError(t, err)
				assert.Equal(t, []string{"s2"}, ids(t, entity.Shipments, records))

				count, err := s.CountPending(ctx)
				require.NoError(t, err)
				assert.Equal(t, 2, count)
			})

			t.Run("write offline leaves nothing behind on failure", func(t *testing.T) {
				s := open(t)
				m := mutation.New(mutation.Update, entity.Shipments, "s9", entity.Record{"status": "x"}, "", now)
				_, err := s.WriteOffline(ctx, entity.Shipments, entity.Record{"status": "x"}, m)
				require.Error(t, err)

				count, err := s.CountPending(ctx)
				require.NoError(t, err)
				assert.Zero(t, count)
			})
		})
	}
}

func TestSQLiteStorage_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveAll(ctx, entity.Notifications, []entity.Record{{"id": "n1", "read": false}}))
	_, err = s.Enqueue(ctx, mutation.New(mutation.Update, entity.Notifications, "n1", entity.Record{"read": true}, "", time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.GetAll(ctx, entity.Notifications)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, false, records[0]["read"])

	count, err := reopened.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
