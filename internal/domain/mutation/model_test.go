package mutation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"shiptrack/internal/domain/entity"
)

func TestNew(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	payload := entity.Record{"id": "s1", "status": "draft"}

	m := New(Create, entity.Shipments, "s1", payload, "u1", now)
	payload["status"] = "changed"

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, StatusPending, m.Status)
	assert.Equal(t, "draft", m.Payload["status"])
	assert.Equal(t, "shipments/s1", m.Key())
	assert.Equal(t, now, m.EnqueuedAt)
	assert.NoError(t, m.Validate())

	other := New(Create, entity.Shipments, "s1", payload, "u1", now)
	assert.NotEqual(t, m.ID, other.ID)
}

func TestValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		m       Mutation
		wantErr error
	}{
		{
			name:    "invalid kind",
			m:       New("upsert", entity.Shipments, "s1", entity.Record{"id": "s1"}, "", now),
			wantErr: ErrInvalidKind,
		},
		{
			name:    "unknown type",
			m:       New(Create, "trucks", "s1", entity.Record{"id": "s1"}, "", now),
			wantErr: entity.ErrUnknownType,
		},
		{
			name:    "missing record id",
			m:       New(Update, entity.Shipments, "", entity.Record{"status": "x"}, "", now),
			wantErr: entity.ErrMissingID,
		},
		{
			name:    "create without payload",
			m:       New(Create, entity.Shipments, "s1", nil, "", now),
			wantErr: ErrEmptyPayload,
		},
		{
			name: "delete without payload is fine",
			m:    New(Delete, entity.Shipments, "s1", nil, "", now),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBackoff(t *testing.T) {
	base, max := time.Second, 10*time.Second

	assert.Equal(t, time.Second, Backoff(0, base, max))
	assert.Equal(t, 2*time.Second, Backoff(1, base, max))
	assert.Equal(t, 8*time.Second, Backoff(3, base, max))
	assert.Equal(t, max, Backoff(4, base, max))
	assert.Equal(t, max, Backoff(50, base, max))
}

func TestReady(t *testing.T) {
	now := time.Now()
	m := Mutation{}
	assert.True(t, m.Ready(now))

	m.NextAttemptAt = now.Add(time.Minute)
	assert.False(t, m.Ready(now))
	assert.True(t, m.Ready(now.Add(time.Minute)))
}
