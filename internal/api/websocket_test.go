// internal/api/websocket_test.go
package api

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn 替代真实WebSocket连接的测试桩
type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error { return nil }
func (f *fakeConn) ReadMessage() (int, []byte, error)               { return 0, nil, io.EOF }
func (f *fakeConn) SetReadDeadline(t time.Time) error               { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error              { return nil }
func (f *fakeConn) SetPongHandler(h func(appData string) error)     {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestSubscriber(sessionID, userID string, queueSize int) *Subscriber {
	return &Subscriber{
		conn:      &fakeConn{},
		sessionID: sessionID,
		userID:    userID,
		send:      make(chan []byte, queueSize),
		lastPing:  time.Now(),
		createdAt: time.Now(),
	}
}

func waitForCount(t *testing.T, hub *Hub, sessionID string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(sessionID) == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubFanOutReachesSessionSubscribers(t *testing.T) {
	hub := NewHub(time.Hour)
	defer hub.Shutdown()

	sub1 := newTestSubscriber("session-a", "user-1", 8)
	sub2 := newTestSubscriber("session-a", "user-2", 8)
	other := newTestSubscriber("session-b", "user-3", 8)
	hub.register <- sub1
	hub.register <- sub2
	hub.register <- other
	waitForCount(t, hub, "session-a", 2)
	waitForCount(t, hub, "session-b", 1)

	hub.FanOut("session-a", map[string]interface{}{
		"type":       "phase_changed",
		"session_id": "session-a",
	})

	for _, sub := range []*Subscriber{sub1, sub2} {
		select {
		case raw := <-sub.send:
			var msg map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &msg))
			assert.Equal(t, "phase_changed", msg["type"])
		case <-time.After(time.Second):
			t.Fatal("订阅端未收到广播")
		}
	}

	// 其他会话的订阅端不应收到
	select {
	case <-other.send:
		t.Fatal("广播泄漏到其他会话")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubFanOutUnknownSessionIsNoop(t *testing.T) {
	hub := NewHub(time.Hour)
	defer hub.Shutdown()

	hub.FanOut("missing", map[string]interface{}{"type": "noop"})
	assert.Equal(t, 0, hub.SubscriberCount("missing"))
}

func TestHubDetachKeepsSessionWithinGraceWindow(t *testing.T) {
	hub := NewHub(time.Hour)
	defer hub.Shutdown()

	sub := newTestSubscriber("session-a", "user-1", 8)
	hub.register <- sub
	waitForCount(t, hub, "session-a", 1)

	hub.unregister <- sub
	waitForCount(t, hub, "session-a", 0)

	// 宽限窗口内会话条目仍然保留，供断线重连
	hub.sweepIdleSessions()
	status := hub.GetStatus()
	assert.Equal(t, 1, status["total_sessions"])
	assert.True(t, sub.IsClosed())
}

func TestHubSweepsIdleSessionAfterGraceWindow(t *testing.T) {
	hub := NewHub(20 * time.Millisecond)
	defer hub.Shutdown()

	evicted := make(chan string, 1)
	hub.SetOnIdle(func(sessionID string) { evicted <- sessionID })

	sub := newTestSubscriber("session-a", "user-1", 8)
	hub.register <- sub
	waitForCount(t, hub, "session-a", 1)
	hub.unregister <- sub
	waitForCount(t, hub, "session-a", 0)

	time.Sleep(40 * time.Millisecond)
	hub.sweepIdleSessions()

	select {
	case sessionID := <-evicted:
		assert.Equal(t, "session-a", sessionID)
	case <-time.After(time.Second):
		t.Fatal("空闲会话未触发回收回调")
	}
	assert.Equal(t, 0, hub.GetStatus()["total_sessions"])
}

func TestHubReconnectResetsIdleClock(t *testing.T) {
	hub := NewHub(20 * time.Millisecond)
	defer hub.Shutdown()

	evicted := make(chan string, 1)
	hub.SetOnIdle(func(sessionID string) { evicted <- sessionID })

	sub := newTestSubscriber("session-a", "user-1", 8)
	hub.register <- sub
	waitForCount(t, hub, "session-a", 1)
	hub.unregister <- sub
	waitForCount(t, hub, "session-a", 0)

	// 宽限期内重连
	again := newTestSubscriber("session-a", "user-1", 8)
	hub.register <- again
	waitForCount(t, hub, "session-a", 1)

	time.Sleep(40 * time.Millisecond)
	hub.sweepIdleSessions()

	select {
	case <-evicted:
		t.Fatal("有订阅者的会话不应被回收")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubKicksSlowSubscriber(t *testing.T) {
	hub := NewHub(time.Hour)
	defer hub.Shutdown()

	slow := newTestSubscriber("session-a", "user-1", 1)
	slow.send <- []byte("stale")
	hub.register <- slow
	waitForCount(t, hub, "session-a", 1)

	hub.FanOut("session-a", map[string]interface{}{"type": "game_state_update"})

	require.Eventually(t, func() bool {
		return slow.IsClosed() && hub.SubscriberCount("session-a") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscriberSendMessageDropsWhenFull(t *testing.T) {
	sub := newTestSubscriber("session-a", "user-1", 1)

	require.NoError(t, sub.SendMessage(map[string]interface{}{"type": "first"}))
	require.NoError(t, sub.SendMessage(map[string]interface{}{"type": "dropped"}))
	assert.Len(t, sub.send, 1)
}

func TestSubscriberSendMessageAfterClose(t *testing.T) {
	sub := newTestSubscriber("session-a", "user-1", 1)
	sub.Close()

	require.NoError(t, sub.SendMessage(map[string]interface{}{"type": "late"}))
	assert.Empty(t, sub.send)
}

func TestSubscriberCloseIsIdempotent(t *testing.T) {
	sub := newTestSubscriber("session-a", "user-1", 1)

	sub.Close()
	sub.Close()
	assert.True(t, sub.IsClosed())
	assert.True(t, sub.conn.(*fakeConn).closed)
}

func TestSubscriberExpiry(t *testing.T) {
	sub := newTestSubscriber("session-a", "user-1", 1)
	sub.lastPing = time.Now().Add(-2 * time.Minute)

	assert.True(t, sub.IsExpired(time.Minute))
	sub.UpdatePing()
	assert.False(t, sub.IsExpired(time.Minute))
}

func TestHubShutdownClosesAllSubscribers(t *testing.T) {
	hub := NewHub(time.Hour)

	sub := newTestSubscriber("session-a", "user-1", 8)
	hub.register <- sub
	waitForCount(t, hub, "session-a", 1)

	hub.Shutdown()

	require.Eventually(t, func() bool {
		return sub.IsClosed() && hub.GetStatus()["total_sessions"] == 0
	}, 2*time.Second, 10*time.Millisecond)
}
