// internal/game/registry.go
package game

import (
	"context"
	"log"
	"sync"
)

// Registry 管理进程内的活跃会话
// 会话ID由存储层按(用户,剧本)解析，同一对在任何时刻最多一个活跃会话
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	cfg          Config
	scriptStore  ScriptStore
	sessionStore SessionStore
	llm          LLMClient
	ttsPipeline  TTSPipeline
	broadcaster  Broadcaster
}

// NewRegistry 创建会话注册表
func NewRegistry(scriptStore ScriptStore, sessionStore SessionStore,
	llmClient LLMClient, ttsPipeline TTSPipeline, broadcaster Broadcaster, cfg Config) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		cfg:          cfg,
		scriptStore:  scriptStore,
		sessionStore: sessionStore,
		llm:          llmClient,
		ttsPipeline:  ttsPipeline,
		broadcaster:  broadcaster,
	}
}

// ResolveOrCreate 定位或创建(用户,剧本)对应的会话
func (r *Registry) ResolveOrCreate(ctx context.Context, userID, scriptID string) (*Session, error) {
	record, err := r.sessionStore.ResolveOrCreate(ctx, userID, scriptID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[record.SessionID]; ok {
		return existing, nil
	}

	session := NewSession(record.SessionID, userID, scriptID,
		r.scriptStore, r.sessionStore, r.llm, r.ttsPipeline, r.broadcaster, r.cfg)
	r.sessions[record.SessionID] = session
	log.Printf("✅ 会话 %s 已创建 (用户: %s, 剧本: %s)", record.SessionID, userID, scriptID)
	return session, nil
}

// Get 按ID查找活跃会话
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Evict 终止并移除会话，订阅者全部离开且超过保留窗口后由订阅中心触发
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if ok {
		session.Reset()
		log.Printf("🔌 会话 %s 空闲超时，已回收", sessionID)
	}
}

// Count 当前活跃会话数
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs 当前活跃会话ID列表
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
