package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*AvailabilityCache, redismock.ClientMock) {
	t.Helper()
	rdb, mock := redismock.NewClientMock()
	log := zerolog.Nop()
	return NewAvailabilityCache(rdb, time.Minute, &log), mock
}

func TestAvailabilityCache_GetHit(t *testing.T) {
	c, mock := newTestCache(t)

	eventID := uuid.New()
	want := Availability{
		EventID:        eventID,
		Capacity:       100,
		Registered:     40,
		AvailableSeats: 60,
		Status:         "upcoming",
	}
	raw, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectGet("event:avail:" + eventID.String()).SetVal(string(raw))

	got, ok := c.Get(context.Background(), eventID)
	require.True(t, ok)
	assert.Equal(t, want, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityCache_GetMiss(t *testing.T) {
	c, mock := newTestCache(t)

	eventID := uuid.New()
	mock.ExpectGet("event:avail:" + eventID.String()).RedisNil()

	_, ok := c.Get(context.Background(), eventID)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityCache_GetCorruptEntry(t *testing.T) {
	c, mock := newTestCache(t)

	eventID := uuid.New()
	mock.ExpectGet("event:avail:" + eventID.String()).SetVal("not json")

	_, ok := c.Get(context.Background(), eventID)
	assert.False(t, ok)
}

func TestAvailabilityCache_Set(t *testing.T) {
	c, mock := newTestCache(t)

	a := Availability{
		EventID:        uuid.New(),
		Capacity:       -1,
		Registered:     12,
		AvailableSeats: -1,
		Status:         "ongoing",
	}
	raw, err := json.Marshal(a)
	require.NoError(t, err)

	mock.ExpectSet("event:avail:"+a.EventID.String(), raw, time.Minute).SetVal("OK")

	c.Set(context.Background(), a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityCache_Invalidate(t *testing.T) {
	c, mock := newTestCache(t)

	eventID := uuid.New()
	mock.ExpectDel("event:avail:" + eventID.String()).SetVal(1)

	c.Invalidate(context.Background(), eventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
