// internal/api/websocket_handlers_test.go
package api

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/JubenshaMCP/internal/auth"
	"github.com/Corphon/JubenshaMCP/internal/game"
	"github.com/Corphon/JubenshaMCP/internal/store"
)

// scriptedConn 按脚本投喂读消息的连接桩
type scriptedConn struct {
	fakeConn
	reads chan []byte
}

func (s *scriptedConn) ReadMessage() (int, []byte, error) {
	raw, ok := <-s.reads
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, raw, nil
}

func newControlFixture(t *testing.T) (*WebSocketHandler, *game.Session, *Subscriber) {
	t.Helper()

	scripts, err := store.NewFileScriptStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, scripts.SaveScript(routerTestScript()))

	hub := NewHub(time.Hour)
	t.Cleanup(hub.Shutdown)

	cfg := game.DefaultConfig()
	cfg.TurnDelay = 0
	cfg.BackgroundLineDelay = 0
	cfg.NoPacing = true
	cfg.Seed = 7

	session := game.NewSession("control-session", "user-1", "manor_case",
		scripts, store.NewMemorySessionStore(), nil, nil, hub, cfg)

	wh := NewWebSocketHandler(nil, auth.NewProvider("", time.Hour), hub)
	sub := newTestSubscriber("control-session", "user-1", 64)
	return wh, session, sub
}

func runFullGame(t *testing.T, session *game.Session) {
	t.Helper()
	require.NoError(t, session.Start(""))
	require.Eventually(t, func() bool {
		return !session.Running()
	}, 15*time.Second, 20*time.Millisecond)
}

func readReply(t *testing.T, sub *Subscriber) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-sub.send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("未收到直接回复")
		return nil
	}
}

func eventIDs(t *testing.T, reply map[string]interface{}) []uint64 {
	t.Helper()
	data := reply["data"].(map[string]interface{})
	rawEvents, _ := data["events"].([]interface{})
	ids := make([]uint64, 0, len(rawEvents))
	for _, raw := range rawEvents {
		ids = append(ids, uint64(raw.(map[string]interface{})["id"].(float64)))
	}
	return ids
}

func TestFetchHistoryHonorsWatermark(t *testing.T) {
	wh, session, sub := newControlFixture(t)
	runFullGame(t, session)

	wh.handleMessage(sub, session, map[string]interface{}{
		"type": "fetch_history", "from_event_id": float64(0),
	})
	full := readReply(t, sub)
	require.Equal(t, "history", full["type"])
	allIDs := eventIDs(t, full)
	require.Greater(t, len(allIDs), 3)

	// 从中段水位线增量拉取，只应返回之后的事件
	watermark := allIDs[len(allIDs)/2]
	wh.handleMessage(sub, session, map[string]interface{}{
		"type": "fetch_history", "from_event_id": float64(watermark),
	})
	tail := eventIDs(t, readReply(t, sub))
	require.NotEmpty(t, tail)
	for _, id := range tail {
		assert.Greater(t, id, watermark)
	}
	assert.Len(t, tail, len(allIDs)-len(allIDs)/2-1)
}

func TestFetchHistoryLegacyFieldAlias(t *testing.T) {
	wh, session, sub := newControlFixture(t)
	runFullGame(t, session)

	wh.handleMessage(sub, session, map[string]interface{}{
		"type": "fetch_history", "from_event_id": float64(0),
	})
	allIDs := eventIDs(t, readReply(t, sub))
	watermark := allIDs[len(allIDs)-3]

	wh.handleMessage(sub, session, map[string]interface{}{
		"type": "fetch_history", "from_event_id": float64(watermark),
	})
	canonical := eventIDs(t, readReply(t, sub))

	wh.handleMessage(sub, session, map[string]interface{}{
		"type": "fetch_history", "from_id": float64(watermark),
	})
	legacy := eventIDs(t, readReply(t, sub))

	assert.Equal(t, canonical, legacy)
}

func TestGetGameStateReplyType(t *testing.T) {
	wh, session, sub := newControlFixture(t)

	wh.handleMessage(sub, session, map[string]interface{}{"type": "get_game_state"})
	reply := readReply(t, sub)
	assert.Equal(t, "game_state_update", reply["type"])
	assert.Equal(t, "control-session", reply["session_id"])
}

func TestGetPublicChatReplyType(t *testing.T) {
	wh, session, sub := newControlFixture(t)
	runFullGame(t, session)

	wh.handleMessage(sub, session, map[string]interface{}{"type": "get_public_chat"})
	reply := readReply(t, sub)
	assert.Equal(t, "public_chat_update", reply["type"])
	data := reply["data"].(map[string]interface{})
	assert.NotEmpty(t, data["messages"])
}

func TestGetTTSHistoryCharacterNameFilter(t *testing.T) {
	wh, session, sub := newControlFixture(t)
	runFullGame(t, session)

	wh.handleMessage(sub, session, map[string]interface{}{
		"type": "get_tts_history", "character_name": "管家",
	})
	reply := readReply(t, sub)
	require.Equal(t, "tts_history", reply["type"])

	events := reply["data"].(map[string]interface{})["events"].([]interface{})
	require.NotEmpty(t, events)
	for _, raw := range events {
		assert.Equal(t, "管家", raw.(map[string]interface{})["character"])
	}
}

func TestMalformedMessageRepliesErrorAndKeepsChannel(t *testing.T) {
	wh, session, _ := newControlFixture(t)

	conn := &scriptedConn{reads: make(chan []byte, 4)}
	sub := &Subscriber{
		conn:      conn,
		sessionID: "control-session",
		userID:    "user-1",
		send:      make(chan []byte, 16),
		lastPing:  time.Now(),
		createdAt: time.Now(),
	}

	done := make(chan struct{})
	go func() {
		wh.handleReads(sub, session)
		close(done)
	}()

	conn.reads <- []byte(`{这不是JSON`)
	reply := readReply(t, sub)
	assert.Equal(t, "error", reply["type"])

	// 通道保持开启，后续消息照常处理
	conn.reads <- []byte(`{"type":"ping"}`)
	reply = readReply(t, sub)
	assert.Equal(t, "pong", reply["type"])

	close(conn.reads)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("读循环未退出")
	}
}

func TestUnknownMessageTypeRepliesError(t *testing.T) {
	wh, session, sub := newControlFixture(t)

	wh.handleMessage(sub, session, map[string]interface{}{"type": "bogus"})
	reply := readReply(t, sub)
	assert.Equal(t, "error", reply["type"])
	assert.Contains(t, reply["error"], "bogus")

	wh.handleMessage(sub, session, map[string]interface{}{"limit": float64(3)})
	reply = readReply(t, sub)
	assert.Equal(t, "error", reply["type"])
}
