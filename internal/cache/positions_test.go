package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"organigramm/internal/domain"
)

// testClient skips unless ORGA_TEST_REDIS_ADDR points at a reachable server.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("ORGA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ORGA_TEST_REDIS_ADDR not set")
	}
	client, err := Connect(context.Background(), addr, os.Getenv("ORGA_TEST_REDIS_PASSWORD"))
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPositionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewPositions(testClient(t), time.Minute, zap.NewNop())
	practice := "test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		c.Invalidate(ctx, practice)
		c.client.Del(ctx, generationKey(practice))
	})

	_, gen, ok := c.Get(ctx, practice)
	assert.False(t, ok)

	parent := "a"
	want := []domain.Position{
		{ID: "a", PracticeID: practice, Title: "Leitung", Active: true, Version: 1},
		{ID: "b", PracticeID: practice, Title: "MFA", ParentID: &parent, Level: 1, Active: true, Version: 3},
	}
	c.Set(ctx, practice, gen, want)
	got, _, ok := c.Get(ctx, practice)
	require.True(t, ok)
	assert.Equal(t, want, got)

	c.Invalidate(ctx, practice)
	_, next, ok := c.Get(ctx, practice)
	assert.False(t, ok)
	assert.Greater(t, next, gen)
}

func TestPositionsSetSkipsAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewPositions(testClient(t), time.Minute, zap.NewNop())
	practice := "stale-" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		c.Invalidate(ctx, practice)
		c.client.Del(ctx, generationKey(practice))
	})

	_, gen, ok := c.Get(ctx, practice)
	require.False(t, ok)
	c.Invalidate(ctx, practice)
	c.Set(ctx, practice, gen, []domain.Position{{ID: "old", PracticeID: practice, Title: "Alt", Active: true}})

	_, _, ok = c.Get(ctx, practice)
	assert.False(t, ok)
}

func TestPositionsEmptyListIsAHit(t *testing.T) {
	ctx := context.Background()
	c := NewPositions(testClient(t), time.Minute, nil)
	practice := "empty-" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		c.Invalidate(ctx, practice)
		c.client.Del(ctx, generationKey(practice))
	})

	_, gen, _ := c.Get(ctx, practice)
	c.Set(ctx, practice, gen, nil)
	got, _, ok := c.Get(ctx, practice)
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestConnectFailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Connect(ctx, "127.0.0.1:1", "")
	assert.Error(t, err)
}
