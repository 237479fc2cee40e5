package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManager_Disabled(t *testing.T) {
	t.Parallel()

	m := New(Config{Enabled: false, Proxies: []string{"http://p1:8080"}}, nil)
	require.Equal(t, "", m.Next())
}

func TestManager_EmptyPool(t *testing.T) {
	t.Parallel()

	m := New(Config{Enabled: true}, nil)
	require.Equal(t, "", m.Next())
}

func TestManager_RoundRobinFairness(t *testing.T) {
	t.Parallel()

	pool := []string{"http://p1:8080", "http://p2:8080", "http://p3:8080"}
	m := New(Config{Enabled: true, Proxies: pool, Cooldown: time.Minute}, nil)

	counts := make(map[string]int)
	const n = 100
	for i := 0; i < n; i++ {
		counts[m.Next()]++
	}

	for _, p := range pool {
		require.GreaterOrEqual(t, counts[p], n/len(pool))
		require.LessOrEqual(t, counts[p], n/len(pool)+1)
	}
}

func TestManager_SkipsFailedUntilCooldown(t *testing.T) {
	t.Parallel()

	pool := []string{"http://p1:8080", "http://p2:8080"}
	m := New(Config{Enabled: true, Proxies: pool, Cooldown: time.Minute}, nil)

	base := time.Now()
	m.now = func() time.Time { return base }

	m.MarkFailed("http://p1:8080")
	require.Equal(t, 1, m.Excluded())

	for i := 0; i < 10; i++ {
		require.Equal(t, "http://p2:8080", m.Next())
	}

	// After the cooldown window the proxy rejoins the rotation.
	m.now = func() time.Time { return base.Add(time.Minute) }
	require.Equal(t, 0, m.Excluded())

	seen := make(map[string]bool)
	for i := 0; i < 4; i++ {
		seen[m.Next()] = true
	}
	require.True(t, seen["http://p1:8080"])
	require.True(t, seen["http://p2:8080"])
}

func TestManager_AllExcludedFallsBackToOldest(t *testing.T) {
	t.Parallel()

	pool := []string{"http://p1:8080", "http://p2:8080"}
	m := New(Config{Enabled: true, Proxies: pool, Cooldown: time.Hour}, nil)

	base := time.Now()
	m.now = func() time.Time { return base }
	m.MarkFailed("http://p1:8080")

	m.now = func() time.Time { return base.Add(time.Second) }
	m.MarkFailed("http://p2:8080")

	// Never starve the caller: reuse the proxy that failed longest ago.
	require.Equal(t, "http://p1:8080", m.Next())
}
