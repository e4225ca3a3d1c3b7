// internal/models/session.go
package models

import "time"

// SessionStatus 会话在存储层的状态
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// SessionRecord 会话存储记录，按 (user_id, script_id) 解析或创建
type SessionRecord struct {
	SessionID        string        `json:"session_id"`
	UserID           string        `json:"user_id"`
	ScriptID         string        `json:"script_id"`
	Status           SessionStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	FinalizedAt      time.Time     `json:"finalized_at,omitempty"`
	TotalTTSDuration float64       `json:"total_tts_duration,omitempty"`
}

// SessionDeleteResult 批量删除会话时的单项结果
type SessionDeleteResult struct {
	SessionID string `json:"session_id"`
	Deleted   bool   `json:"deleted"`
	Error     string `json:"error,omitempty"`
}
