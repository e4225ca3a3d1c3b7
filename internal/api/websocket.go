// internal/api/websocket.go
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

// WebSocketConnection 定义 WebSocket 连接的接口，便于测试替换
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketConnWrapper 包装真实的 websocket.Conn 以实现接口
type WebSocketConnWrapper struct {
	*websocket.Conn
}

// Subscriber 一个订阅了会话的观战端
type Subscriber struct {
	conn      WebSocketConnection
	sessionID string
	userID    string
	send      chan []byte
	closed    int32 // 原子操作标志，0=开启，1=关闭
	lastPing  time.Time
	createdAt time.Time
}

// Close 安全关闭订阅端连接
// 只设置关闭标志和断开连接，send通道由写协程的defer负责关闭
func (sub *Subscriber) Close() {
	if atomic.CompareAndSwapInt32(&sub.closed, 0, 1) {
		if sub.conn != nil {
			sub.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (sub *Subscriber) IsClosed() bool {
	return atomic.LoadInt32(&sub.closed) == 1
}

// UpdatePing 更新最后活跃时间
func (sub *Subscriber) UpdatePing() {
	sub.lastPing = time.Now()
}

// IsExpired 检查连接是否超时
func (sub *Subscriber) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(sub.lastPing) > timeout
}

// SendMessage 安全发送消息，队列满时丢弃而不阻塞
func (sub *Subscriber) SendMessage(message map[string]interface{}) error {
	if sub.IsClosed() {
		return nil
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	if sub.IsClosed() {
		return nil
	}

	select {
	case sub.send <- msgBytes:
		return nil
	default:
		log.Printf("⚠️ 订阅端 %s 消息队列已满，消息被丢弃", sub.userID)
		return nil
	}
}

// SendError 发送错误消息到订阅端
func (sub *Subscriber) SendError(errorMsg string) {
	sub.SendMessage(map[string]interface{}{
		"type":      "error",
		"error":     errorMsg,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// sessionEntry 会话的订阅者集合
// lastEmptyAt 记录订阅者清零的时刻，用于空闲回收
type sessionEntry struct {
	subs        map[WebSocketConnection]*Subscriber
	lastEmptyAt time.Time
}

// Hub 订阅中心：按会话ID维护订阅者并分发信封
// 会话的订阅者清零后并不立即回收，保留一个宽限窗口供断线重连
type Hub struct {
	sessions   map[string]*sessionEntry
	register   chan *Subscriber
	unregister chan *Subscriber
	shutdownCh chan bool

	mutex       sync.RWMutex
	pingTimeout time.Duration
	graceWindow time.Duration

	// 会话空闲超过宽限窗口时的回调，由上层接到注册表的回收
	onIdle func(sessionID string)
}

// NewHub 创建订阅中心并启动主循环
func NewHub(graceWindow time.Duration) *Hub {
	h := &Hub{
		sessions:    make(map[string]*sessionEntry),
		register:    make(chan *Subscriber, 256),
		unregister:  make(chan *Subscriber, 256),
		shutdownCh:  make(chan bool, 1),
		pingTimeout: 60 * time.Second,
		graceWindow: graceWindow,
	}
	go h.run()
	return h
}

// SetOnIdle 设置空闲会话回调
func (h *Hub) SetOnIdle(fn func(sessionID string)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onIdle = fn
}

// run 订阅中心主循环
func (h *Hub) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case sub := <-h.register:
			h.attach(sub)

		case sub := <-h.unregister:
			h.detach(sub)

		case <-ticker.C:
			h.cleanupExpired()
			h.sweepIdleSessions()

		case <-h.shutdownCh:
			h.shutdown()
			return
		}
	}
}

// attach 注册订阅端
func (h *Hub) attach(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	entry := h.sessions[sub.sessionID]
	if entry == nil {
		entry = &sessionEntry{subs: make(map[WebSocketConnection]*Subscriber)}
		h.sessions[sub.sessionID] = entry
	}
	entry.subs[sub.conn] = sub
	entry.lastEmptyAt = time.Time{}
	sub.UpdatePing()

	log.Printf("✅ 订阅端已连接到会话 %s (用户: %s)", sub.sessionID, sub.userID)
}

// detach 注销订阅端，最后一个离开时开始计空闲时间
func (h *Hub) detach(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if entry, exists := h.sessions[sub.sessionID]; exists {
		delete(entry.subs, sub.conn)
		if len(entry.subs) == 0 {
			entry.lastEmptyAt = time.Now()
		}
	}

	if !sub.IsClosed() {
		sub.Close()
	}

	log.Printf("🔌 订阅端已断开 (会话: %s, 用户: %s)", sub.sessionID, sub.userID)
}

// cleanupExpired 清理超时和死连接
func (h *Hub) cleanupExpired() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, entry := range h.sessions {
		for conn, sub := range entry.subs {
			if sub.IsClosed() || sub.IsExpired(h.pingTimeout) {
				delete(entry.subs, conn)
				if !sub.IsClosed() {
					sub.Close()
				}
			}
		}
		if len(entry.subs) == 0 && entry.lastEmptyAt.IsZero() {
			entry.lastEmptyAt = time.Now()
		}
	}
}

// sweepIdleSessions 回收空置超过宽限窗口的会话
func (h *Hub) sweepIdleSessions() {
	if h.graceWindow <= 0 {
		return
	}

	h.mutex.Lock()
	idle := make([]string, 0)
	for sessionID, entry := range h.sessions {
		if len(entry.subs) == 0 && !entry.lastEmptyAt.IsZero() &&
			time.Since(entry.lastEmptyAt) > h.graceWindow {
			delete(h.sessions, sessionID)
			idle = append(idle, sessionID)
		}
	}
	onIdle := h.onIdle
	h.mutex.Unlock()

	if onIdle != nil {
		for _, sessionID := range idle {
			onIdle(sessionID)
		}
	}
}

// FanOut 向会话的全部订阅者分发信封，实现 game.Broadcaster
func (h *Hub) FanOut(sessionID string, envelope map[string]interface{}) {
	msgBytes, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("❌ 序列化广播消息失败: %v", err)
		return
	}

	h.mutex.RLock()
	entry, exists := h.sessions[sessionID]
	if !exists {
		h.mutex.RUnlock()
		return
	}
	subs := make([]*Subscriber, 0, len(entry.subs))
	for _, sub := range entry.subs {
		if !sub.IsClosed() {
			subs = append(subs, sub)
		}
	}
	h.mutex.RUnlock()

	h.deliver(subs, msgBytes)
}

// deliver 逐个投递，慢订阅端直接踢掉
func (h *Hub) deliver(subs []*Subscriber, message []byte) {
	failedCount := 0
	for _, sub := range subs {
		if sub.IsClosed() {
			continue
		}

		select {
		case sub.send <- message:
		default:
			failedCount++
			if failedCount <= 5 {
				go func(s *Subscriber) {
					s.Close()
					select {
					case h.unregister <- s:
					case <-time.After(50 * time.Millisecond):
					}
				}(sub)
			} else {
				sub.Close()
			}
		}
	}
}

// SubscriberCount 会话当前的订阅者数
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	entry, exists := h.sessions[sessionID]
	if !exists {
		return 0
	}
	count := 0
	for _, sub := range entry.subs {
		if !sub.IsClosed() {
			count++
		}
	}
	return count
}

// GetStatus 订阅中心状态
func (h *Hub) GetStatus() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	sessions := make(map[string]interface{})
	totalConnections := 0

	for sessionID, entry := range h.sessions {
		activeConnections := 0
		users := make([]interface{}, 0)

		for _, sub := range entry.subs {
			if sub != nil && !sub.IsClosed() {
				activeConnections++
				users = append(users, map[string]interface{}{
					"user_id":      sub.userID,
					"session_id":   sub.sessionID,
					"connected_at": sub.createdAt.Format(time.RFC3339),
					"last_ping":    sub.lastPing.Format(time.RFC3339),
				})
			}
		}

		sessions[sessionID] = map[string]interface{}{
			"subscriber_count": activeConnections,
			"users":            users,
		}
		totalConnections += activeConnections
	}

	return map[string]interface{}{
		"total_sessions":    len(h.sessions),
		"total_connections": totalConnections,
		"sessions":          sessions,
	}
}

// Shutdown 优雅关闭订阅中心
func (h *Hub) Shutdown() {
	select {
	case h.shutdownCh <- true:
	default:
	}
}

func (h *Hub) shutdown() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	log.Println("🛑 正在关闭订阅中心...")
	for _, entry := range h.sessions {
		for _, sub := range entry.subs {
			sub.Close()
		}
	}
	h.sessions = make(map[string]*sessionEntry)
	log.Println("✅ 订阅中心已关闭")
}

// ReadJSON 读取JSON消息 - 为了兼容测试和handlers
func (w *WebSocketConnWrapper) ReadJSON(v interface{}) error {
	return w.Conn.ReadJSON(v)
}

// WriteJSON 写入JSON消息 - 为了兼容测试和handlers
func (w *WebSocketConnWrapper) WriteJSON(v interface{}) error {
	return w.Conn.WriteJSON(v)
}
