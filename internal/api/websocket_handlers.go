// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/JubenshaMCP/internal/auth"
	apperrors "github.com/Corphon/JubenshaMCP/internal/errors"
	"github.com/Corphon/JubenshaMCP/internal/game"
)

// WebSocketHandler 处理游戏 WebSocket 连接与控制消息
type WebSocketHandler struct {
	registry *game.Registry
	auth     *auth.Provider
	hub      *Hub
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(registry *game.Registry, authProvider *auth.Provider, hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		auth:     authProvider,
		hub:      hub,
	}
}

// GameWebSocket 处理游戏会话的 WebSocket 连接
// 鉴权失败时以策略违规码关闭，身份决定会话归属
func (wh *WebSocketHandler) GameWebSocket(c *gin.Context) {
	scriptID := c.Query("script_id")
	if scriptID == "" {
		log.Printf("❌ WebSocket 连接失败：剧本ID缺失")
		c.JSON(400, gin.H{"error": "剧本ID缺失"})
		return
	}

	credential := c.Query("token")
	if credential == "" {
		credential = c.GetHeader("Authorization")
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ 游戏 WebSocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	identity, err := wh.auth.ResolveBearer(credential)
	if err != nil {
		log.Printf("❌ WebSocket 鉴权失败: %v", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "鉴权失败"))
		return
	}

	session, err := wh.registry.ResolveOrCreate(c.Request.Context(), identity.UserID, scriptID)
	if err != nil {
		log.Printf("❌ 解析会话失败: %v", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "解析会话失败"))
		return
	}

	sub := &Subscriber{
		conn:      &WebSocketConnWrapper{conn},
		sessionID: session.ID,
		userID:    identity.UserID,
		send:      make(chan []byte, 256),
		closed:    0,
		lastPing:  time.Now(),
		createdAt: time.Now(),
	}

	select {
	case wh.hub.register <- sub:
	default:
		log.Printf("❌ 无法注册订阅端，注册通道已满")
		return
	}

	defer func() {
		done := make(chan bool, 1)
		go func() {
			wh.hub.unregister <- sub
			done <- true
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			log.Printf("⚠️ 订阅端注销超时")
		}
	}()

	go wh.handleWrites(sub)

	// 连接确认带上当前状态快照，断线重连的客户端据此决定是否要补拉历史
	sub.SendMessage(map[string]interface{}{
		"type":       "session_connected",
		"session_id": session.ID,
		"user_id":    identity.UserID,
		"timestamp":  time.Now().Format(time.RFC3339),
		"data":       session.StateSnapshot(),
	})

	wh.handleReads(sub, session)
}

// handleReads 读循环，逐条分发控制消息
func (wh *WebSocketHandler) handleReads(sub *Subscriber, session *game.Session) {
	sub.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	sub.conn.SetPongHandler(func(string) error {
		sub.UpdatePing()
		sub.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if sub.IsClosed() {
			break
		}

		sub.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, messageBytes, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket 读取错误: %v", err)
			}
			break
		}

		var message map[string]interface{}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			log.Printf("⚠️ JSON解析失败: %v", err)
			sub.SendError("无法解析控制消息")
			continue
		}

		sub.UpdatePing()
		wh.handleMessage(sub, session, message)
	}
}

// handleWrites 写循环，负责实际投递和心跳
func (wh *WebSocketHandler) handleWrites(sub *Subscriber) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		sub.Close()
		func() {
			defer func() { recover() }()
			close(sub.send)
		}()
	}()

	for {
		select {
		case message, ok := <-sub.send:
			if sub.IsClosed() {
				return
			}

			sub.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := sub.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ WebSocket 写入失败: %v", err)
				return
			}

		case <-ticker.C:
			if sub.IsClosed() {
				return
			}

			sub.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("❌ WebSocket ping 失败: %v", err)
				return
			}
		}
	}
}

// handleMessage 处理收到的控制消息
func (wh *WebSocketHandler) handleMessage(sub *Subscriber, session *game.Session, message map[string]interface{}) {
	msgType, ok := message["type"].(string)
	if !ok {
		log.Printf("⚠️ 收到无效的消息类型")
		sub.SendError("控制消息缺少 type 字段")
		return
	}

	switch msgType {
	case "start_game":
		wh.handleStartGame(sub, session, message)
	case "reset_game":
		session.Reset()
	case "next_phase":
		session.NextPhase()
	case "get_game_state":
		sub.SendMessage(map[string]interface{}{
			"type":       "game_state_update",
			"session_id": session.ID,
			"data":       session.StateSnapshot(),
		})
	case "fetch_history":
		wh.handleFetchHistory(sub, session, message)
	case "get_public_chat":
		wh.handleGetPublicChat(sub, session, message)
	case "get_tts_history":
		wh.handleGetTTSHistory(sub, session, message)
	case "ping":
		sub.SendMessage(map[string]interface{}{
			"type":      "pong",
			"timestamp": time.Now().Unix(),
		})
	default:
		log.Printf("⚠️ 未知的消息类型: %s", msgType)
		sub.SendError("未知的消息类型: " + msgType)
	}
}

// handleStartGame 开局请求
func (wh *WebSocketHandler) handleStartGame(sub *Subscriber, session *game.Session, message map[string]interface{}) {
	scriptID, _ := message["script_id"].(string)
	if err := session.Start(scriptID); err != nil {
		if apperrors.IsInvalidScriptError(err) {
			sub.SendMessage(map[string]interface{}{
				"type":       "error",
				"session_id": session.ID,
				"code":       "INVALID_SCRIPT",
				"error":      err.Error(),
			})
			return
		}
		sub.SendError("开局失败: " + err.Error())
	}
}

// handleFetchHistory 按事件ID增量拉取历史
func (wh *WebSocketHandler) handleFetchHistory(sub *Subscriber, session *game.Session, message map[string]interface{}) {
	// from_id 是早期客户端用过的字段名，作为别名兼容
	fromID := uint64(numberField(message, "from_event_id", "from_id"))
	limit := int(numberField(message, "limit"))

	events, newestID, earliestID, truncated := session.History(fromID, limit)
	sub.SendMessage(map[string]interface{}{
		"type":       "history",
		"session_id": session.ID,
		"data": map[string]interface{}{
			"events":            events,
			"newest_event_id":   newestID,
			"earliest_event_id": earliestID,
			"truncated":         truncated,
		},
	})
}

// handleGetPublicChat 按时间戳拉取聊天记录
func (wh *WebSocketHandler) handleGetPublicChat(sub *Subscriber, session *game.Session, message map[string]interface{}) {
	since := numberField(message, "since")
	sub.SendMessage(map[string]interface{}{
		"type":       "public_chat_update",
		"session_id": session.ID,
		"data": map[string]interface{}{
			"messages": session.PublicChatSince(since),
		},
	})
}

// handleGetTTSHistory 拉取带语音状态的事件历史
func (wh *WebSocketHandler) handleGetTTSHistory(sub *Subscriber, session *game.Session, message map[string]interface{}) {
	character := stringField(message, "character_name", "character")
	limit := int(numberField(message, "limit"))

	sub.SendMessage(map[string]interface{}{
		"type":       "tts_history",
		"session_id": session.ID,
		"data": map[string]interface{}{
			"events": session.TTSHistory(character, limit),
		},
	})
}

// numberField JSON数字字段统一按float64取值，按key顺序取第一个命中的，缺失返回0
func numberField(message map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := message[key].(float64); ok {
			return v
		}
	}
	return 0
}

// stringField 字符串字段，按key顺序取第一个命中的，缺失返回空串
func stringField(message map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := message[key].(string); ok {
			return v
		}
	}
	return ""
}
