// internal/models/event.go
package models

// SystemSpeaker 系统事件的发言者名称
const SystemSpeaker = "系统"

// EventKind 事件类型，由阶段和内容推导，不由调用方随意指定
type EventKind string

const (
	EventKindAction     EventKind = "action"
	EventKindBackground EventKind = "background"
	EventKindChat       EventKind = "chat"
	EventKindSystem     EventKind = "system"
	EventKindQuestion   EventKind = "question"
	EventKindAnswer     EventKind = "answer"
	EventKindAccusation EventKind = "accusation"
	EventKindDiscussion EventKind = "discussion"
	EventKindVote       EventKind = "vote"
)

// TTSStatus 单条事件的语音合成状态
type TTSStatus string

const (
	TTSStatusPending   TTSStatus = "pending"
	TTSStatusCompleted TTSStatus = "completed"
	TTSStatusFailed    TTSStatus = "failed"
	TTSStatusSkipped   TTSStatus = "skipped"
)

// GameEvent 会话事件日志的一条记录
// ID 在会话内严格单调递增，截断后也不会复用
type GameEvent struct {
	ID        uint64    `json:"id"`
	Kind      EventKind `json:"kind"`
	Character string    `json:"character"`
	Content   string    `json:"content"`
	Timestamp float64   `json:"timestamp"`

	VoiceID   string    `json:"voice_id,omitempty"`
	AudioURL  string    `json:"audio_url,omitempty"`
	TTSStatus TTSStatus `json:"tts_status,omitempty"`
	TurnIndex int       `json:"turn_index,omitempty"`
	Phase     string    `json:"phase,omitempty"`
}

// IsChat 聊天视图只保留非系统类事件
func (e *GameEvent) IsChat() bool {
	return e.Kind != EventKindSystem && e.Kind != EventKindBackground
}

// DiscoveredEvidence 已发现证据的记录，含发现者与发现顺序
type DiscoveredEvidence struct {
	Evidence
	DiscoveredBy string `json:"discovered_by"`
	Order        int    `json:"order"`
}
