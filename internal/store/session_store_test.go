// internal/store/session_store_test.go
package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/JubenshaMCP/internal/errors"
	"github.com/Corphon/JubenshaMCP/internal/models"
)

func newRedisStore(t *testing.T) *RedisSessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisSessionStore(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStoreResolveOrCreateIsStable(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	first, err := s.ResolveOrCreate(ctx, "user-1", "script-1")
	require.NoError(t, err)
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, models.SessionStatusActive, first.Status)

	// 同一(用户,剧本)再次解析拿到同一个会话
	second, err := s.ResolveOrCreate(ctx, "user-1", "script-1")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	// 不同剧本或不同用户各自独立
	other, err := s.ResolveOrCreate(ctx, "user-1", "script-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, other.SessionID)

	stranger, err := s.ResolveOrCreate(ctx, "user-2", "script-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, stranger.SessionID)
}

func TestRedisStoreFinalizeReleasesLookup(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	first, err := s.ResolveOrCreate(ctx, "user-1", "script-1")
	require.NoError(t, err)

	require.NoError(t, s.Finalize(ctx, first.SessionID, 123.5))

	ended, err := s.loadRecord(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, ended.Status)
	assert.InDelta(t, 123.5, ended.TotalTTSDuration, 0.001)
	assert.False(t, ended.FinalizedAt.IsZero())

	// 结束后再解析会创建新会话
	next, err := s.ResolveOrCreate(ctx, "user-1", "script-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, next.SessionID)
}

func TestRedisStoreFinalizeMissingSession(t *testing.T) {
	s := newRedisStore(t)
	err := s.Finalize(context.Background(), "ghost", 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestRedisStoreAppendAndReadEvents(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ev := models.GameEvent{ID: uint64(i), Kind: models.EventKindChat, Character: "林医生", Content: fmt.Sprintf("发言%d", i)}
		require.NoError(t, s.AppendEvent(ctx, "sess-1", ev))
	}

	events, err := s.Events(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(1), events[0].ID)
	assert.Equal(t, "发言3", events[2].Content)
}

func TestRedisStoreEventListIsTrimmed(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	for i := 1; i <= redisEventCap+10; i++ {
		ev := models.GameEvent{ID: uint64(i), Kind: models.EventKindChat, Character: "系统", Content: "填充"}
		require.NoError(t, s.AppendEvent(ctx, "sess-1", ev))
	}

	events, err := s.Events(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, events, redisEventCap)
	// 裁掉的是最旧的，保留的ID连续到最后
	assert.Equal(t, uint64(11), events[0].ID)
	assert.Equal(t, uint64(redisEventCap+10), events[len(events)-1].ID)
}

func TestRedisStoreDeleteSessionsChecksOwnership(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	mine, err := s.ResolveOrCreate(ctx, "user-1", "script-1")
	require.NoError(t, err)
	theirs, err := s.ResolveOrCreate(ctx, "user-2", "script-1")
	require.NoError(t, err)
	require.NoError(t, s.AppendEvent(ctx, mine.SessionID, models.GameEvent{ID: 1, Kind: models.EventKindChat}))

	results := s.DeleteSessions(ctx, []string{mine.SessionID, theirs.SessionID, "ghost"}, "user-1")
	require.Len(t, results, 3)

	assert.True(t, results[0].Deleted)
	assert.Empty(t, results[0].Error)

	assert.False(t, results[1].Deleted)
	assert.Equal(t, "无权删除该会话", results[1].Error)

	assert.False(t, results[2].Deleted)
	assert.Equal(t, "会话不存在", results[2].Error)

	// 删除后记录、事件和定位键都不存在
	_, err = s.loadRecord(ctx, mine.SessionID)
	assert.True(t, apperrors.IsNotFoundError(err))
	events, err := s.Events(ctx, mine.SessionID)
	require.NoError(t, err)
	assert.Empty(t, events)

	fresh, err := s.ResolveOrCreate(ctx, "user-1", "script-1")
	require.NoError(t, err)
	assert.NotEqual(t, mine.SessionID, fresh.SessionID)
}

func TestMemoryStoreMirrorsRedisSemantics(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()

	first, err := s.ResolveOrCreate(ctx, "user-1", "script-1")
	require.NoError(t, err)
	second, err := s.ResolveOrCreate(ctx, "user-1", "script-1")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	require.NoError(t, s.AppendEvent(ctx, first.SessionID, models.GameEvent{ID: 1, Kind: models.EventKindChat}))
	require.NoError(t, s.Finalize(ctx, first.SessionID, 10))

	next, err := s.ResolveOrCreate(ctx, "user-1", "script-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, next.SessionID)

	results := s.DeleteSessions(ctx, []string{first.SessionID}, "user-2")
	require.Len(t, results, 1)
	assert.False(t, results[0].Deleted)

	results = s.DeleteSessions(ctx, []string{first.SessionID}, "user-1")
	require.Len(t, results, 1)
	assert.True(t, results[0].Deleted)
}
