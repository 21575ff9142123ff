package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTrackerLifecycle(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker(5 * time.Minute)

	require.NoError(t, tracker.SetOnline(ctx, "u1", "conn-1"))
	require.NoError(t, tracker.SetOnline(ctx, "u2", "conn-2"))

	online, err := tracker.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online)

	records, err := tracker.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "u1", records[0].UserID)
	assert.Equal(t, "conn-1", records[0].ConnectionRef)
	assert.Equal(t, 1, records[0].Connections)

	require.NoError(t, tracker.SetOffline(ctx, "u1", "conn-1"))
	online, err = tracker.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestMemoryTrackerSweepEvictsIdleEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := NewMemoryTracker(5 * time.Minute)
	tracker.SetClock(func() time.Time { return now })

	require.NoError(t, tracker.SetOnline(ctx, "idle", "c1"))
	require.NoError(t, tracker.SetOnline(ctx, "active", "c2"))

	now = now.Add(4 * time.Minute)
	require.NoError(t, tracker.Touch(ctx, "active", "c2"))

	now = now.Add(2 * time.Minute)
	online, _ := tracker.IsOnline(ctx, "idle")
	assert.False(t, online, "idle entries read as offline before the sweep runs")

	assert.Equal(t, []string{"idle"}, tracker.Sweep())

	online, _ = tracker.IsOnline(ctx, "active")
	assert.True(t, online)
}

func TestMemoryTrackerStaysOnlineUntilLastConnection(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker(0)

	require.NoError(t, tracker.SetOnline(ctx, "u1", "phone"))
	require.NoError(t, tracker.SetOnline(ctx, "u1", "laptop"))

	require.NoError(t, tracker.SetOffline(ctx, "u1", "phone"))
	online, err := tracker.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online)

	records, err := tracker.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "laptop", records[0].ConnectionRef)
	assert.Equal(t, 1, records[0].Connections)

	require.NoError(t, tracker.SetOffline(ctx, "u1", "laptop"))
	require.NoError(t, tracker.SetOffline(ctx, "u1", "laptop"))
	online, err = tracker.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestMemoryTrackerTouchRestoresEvictedConnection(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := NewMemoryTracker(time.Minute)
	tracker.SetClock(func() time.Time { return now })

	require.NoError(t, tracker.SetOnline(ctx, "u1", "conn-1"))
	now = now.Add(2 * time.Minute)
	assert.Equal(t, []string{"u1"}, tracker.Sweep())

	require.NoError(t, tracker.Touch(ctx, "u1", "conn-1"))

	online, err := tracker.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online)
}
