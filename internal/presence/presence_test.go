package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryTracker_OnlineOffline(t *testing.T) {
	tr := NewMemoryTracker(time.Minute)
	ctx := context.Background()

	online, err := tr.IsOnline(ctx, "alice")
	require.NoError(t, err)
	require.False(t, online)

	require.NoError(t, tr.SetOnline(ctx, "alice"))
	online, err = tr.IsOnline(ctx, "alice")
	require.NoError(t, err)
	require.True(t, online)

	require.NoError(t, tr.SetOffline(ctx, "alice"))
	online, err = tr.IsOnline(ctx, "alice")
	require.NoError(t, err)
	require.False(t, online)
}

func TestMemoryTracker_EntriesExpire(t *testing.T) {
	tr := NewMemoryTracker(time.Minute)
	ctx := context.Background()

	now := time.Now()
	tr.now = func() time.Time { return now }

	require.NoError(t, tr.SetOnline(ctx, "alice"))

	now = now.Add(30 * time.Second)
	online, err := tr.IsOnline(ctx, "alice")
	require.NoError(t, err)
	require.True(t, online)

	// A heartbeat extends the entry.
	require.NoError(t, tr.Heartbeat(ctx, "alice"))
	now = now.Add(45 * time.Second)
	online, err = tr.IsOnline(ctx, "alice")
	require.NoError(t, err)
	require.True(t, online)

	// Without one the entry lapses.
	now = now.Add(time.Hour)
	online, err = tr.IsOnline(ctx, "alice")
	require.NoError(t, err)
	require.False(t, online)
}
