// internal/game/eventlog.go
package game

import (
	"sync"
	"time"

	"github.com/Corphon/JubenshaMCP/internal/models"
)

// 默认保留容量
const (
	DefaultEventCapacity = 5000
	DefaultChatCapacity  = 5000
)

// EventMeta 追加事件时的可选元数据
type EventMeta struct {
	VoiceID   string
	TurnIndex int
	Phase     Phase
}

// EventLog 会话内的追加式事件日志
// ID 严格单调递增；超出容量时裁掉最旧的条目但从不重编号
// 只有会话循环写入，订阅端并发读取，因此需要读写锁
type EventLog struct {
	mu           sync.RWMutex
	capacity     int
	chatCapacity int
	sequence     uint64
	events       []models.GameEvent
	chat         []models.GameEvent
}

// NewEventLog 创建事件日志
func NewEventLog(capacity, chatCapacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	if chatCapacity <= 0 {
		chatCapacity = DefaultChatCapacity
	}
	return &EventLog{
		capacity:     capacity,
		chatCapacity: chatCapacity,
		events:       make([]models.GameEvent, 0, 64),
		chat:         make([]models.GameEvent, 0, 64),
	}
}

// Append 追加一条事件并返回完整记录
func (l *EventLog) Append(character, content string, kind models.EventKind, meta EventMeta) models.GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence++
	ev := models.GameEvent{
		ID:        l.sequence,
		Kind:      kind,
		Character: character,
		Content:   content,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		VoiceID:   meta.VoiceID,
		TurnIndex: meta.TurnIndex,
		Phase:     string(meta.Phase),
	}

	l.events = append(l.events, ev)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}

	if ev.IsChat() {
		l.chat = append(l.chat, ev)
		if len(l.chat) > l.chatCapacity {
			l.chat = l.chat[len(l.chat)-l.chatCapacity:]
		}
	}

	return ev
}

// Since 返回所有 id > lastID 的事件
// 如果 lastID 早于最早保留的事件，第二个返回值为 true，调用方应当重新同步
func (l *EventLog) Since(lastID uint64) ([]models.GameEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	truncated := lastID+1 < l.earliestLocked()

	// 二分不值得，事件窗口有限，线性扫描即可
	result := make([]models.GameEvent, 0)
	for _, ev := range l.events {
		if ev.ID > lastID {
			result = append(result, ev)
		}
	}
	return result, truncated
}

// Tail 返回最近的 n 条事件
func (l *EventLog) Tail(n int) []models.GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.events) == 0 {
		return nil
	}
	if n > len(l.events) {
		n = len(l.events)
	}
	result := make([]models.GameEvent, n)
	copy(result, l.events[len(l.events)-n:])
	return result
}

// ChatSince 返回时间戳晚于 ts 的聊天事件
func (l *EventLog) ChatSince(ts float64) []models.GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]models.GameEvent, 0)
	for _, ev := range l.chat {
		if ev.Timestamp > ts {
			result = append(result, ev)
		}
	}
	return result
}

// RecentChat 返回最近的 n 条聊天事件
func (l *EventLog) RecentChat(n int) []models.GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.chat) == 0 {
		return nil
	}
	if n > len(l.chat) {
		n = len(l.chat)
	}
	result := make([]models.GameEvent, n)
	copy(result, l.chat[len(l.chat)-n:])
	return result
}

// EarliestRetainedID 最早仍然保留的事件ID，空日志返回下一个将要分配的ID
func (l *EventLog) EarliestRetainedID() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.earliestLocked()
}

func (l *EventLog) earliestLocked() uint64 {
	if len(l.events) == 0 {
		return l.sequence + 1
	}
	return l.events[0].ID
}

// NewestID 最近分配的事件ID，尚未追加过返回0
func (l *EventLog) NewestID() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sequence
}

// Len 当前保留的事件数
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// AttachAudio 为已追加的事件补写语音字段（TTS异步完成时使用）
func (l *EventLog) AttachAudio(id uint64, audioURL string, status models.TTSStatus) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	found := false
	for i := range l.events {
		if l.events[i].ID == id {
			l.events[i].AudioURL = audioURL
			l.events[i].TTSStatus = status
			found = true
			break
		}
	}
	for i := range l.chat {
		if l.chat[i].ID == id {
			l.chat[i].AudioURL = audioURL
			l.chat[i].TTSStatus = status
			break
		}
	}
	return found
}

// SetTTSStatus 在广播前为事件写入语音状态（同步路径）
func (l *EventLog) SetTTSStatus(id uint64, audioURL string, status models.TTSStatus) {
	l.AttachAudio(id, audioURL, status)
}

// TTSHistory 返回带语音状态的最近事件，可按角色过滤
func (l *EventLog) TTSHistory(character string, limit int) []models.GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	result := make([]models.GameEvent, 0, limit)
	for i := len(l.events) - 1; i >= 0 && len(result) < limit; i-- {
		ev := l.events[i]
		if ev.TTSStatus == "" {
			continue
		}
		if character != "" && ev.Character != character {
			continue
		}
		result = append(result, ev)
	}
	// 倒序收集，翻回正序
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}
