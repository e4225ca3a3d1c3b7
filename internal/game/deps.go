// internal/game/deps.go
package game

import (
	"context"

	"github.com/Corphon/JubenshaMCP/internal/llm"
	"github.com/Corphon/JubenshaMCP/internal/models"
	"github.com/Corphon/JubenshaMCP/internal/tts"
)

// LLMClient 会话引擎消费的LLM能力，llm.Provider 即满足
type LLMClient interface {
	CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// TTSPipeline 语音合成能力，tts.Provider 即满足
type TTSPipeline interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// ScriptStore 剧本快照来源，会话运行期间同一ID必须返回同一快照
type ScriptStore interface {
	GetScript(scriptID string) (*models.ScriptSnapshot, error)
}

// SessionStore 会话持久化；事件写入尽力而为，失败不影响游戏推进
type SessionStore interface {
	ResolveOrCreate(ctx context.Context, userID, scriptID string) (*models.SessionRecord, error)
	Finalize(ctx context.Context, sessionID string, totalTTSDuration float64) error
	AppendEvent(ctx context.Context, sessionID string, event models.GameEvent) error
	DeleteSessions(ctx context.Context, sessionIDs []string, userID string) []models.SessionDeleteResult
}

// Broadcaster 向会话的全部订阅者分发信封，由订阅中心实现
type Broadcaster interface {
	FanOut(sessionID string, envelope map[string]interface{})
}

// StateView 角色运行时可见的只读状态投影
// 运行时只持有这个接口，不持有会话本体，会话是唯一写入方
type StateView interface {
	Phase() Phase
	DiscoveredEvidence() []models.DiscoveredEvidence
	RecentChat(n int) []models.GameEvent
	ActiveNames() []string
	SearchableLocations() []string
}
