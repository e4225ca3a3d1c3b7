// internal/game/mocks_test.go
package game

import (
	"context"
	"sync"

	"github.com/Corphon/JubenshaMCP/internal/llm"
	"github.com/Corphon/JubenshaMCP/internal/models"
	"github.com/Corphon/JubenshaMCP/internal/tts"
)

// mockLLM 可编程的LLM替身，记录全部调用
type mockLLM struct {
	mu           sync.Mutex
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	calls        []llm.CompletionRequest
}

func (m *mockLLM) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &llm.CompletionResponse{Text: "我先观察一下。"}, nil
}

func (m *mockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockLLM) Calls() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// mockTTS 可编程的语音合成替身
type mockTTS struct {
	mu             sync.Mutex
	SynthesizeFunc func(ctx context.Context, req tts.Request) (*tts.Result, error)
	calls          []tts.Request
}

func (m *mockTTS) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, req)
	}
	return &tts.Result{AudioURL: "https://audio.test/clip.mp3", Duration: 1.5}, nil
}

func (m *mockTTS) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockScriptStore 内存剧本源
type mockScriptStore struct {
	GetFunc func(scriptID string) (*models.ScriptSnapshot, error)
}

func (m *mockScriptStore) GetScript(scriptID string) (*models.ScriptSnapshot, error) {
	return m.GetFunc(scriptID)
}

// mockSessionStore 记录落库调用的会话存储替身
type mockSessionStore struct {
	mu        sync.Mutex
	appended  []models.GameEvent
	finalized []float64
}

func (m *mockSessionStore) ResolveOrCreate(ctx context.Context, userID, scriptID string) (*models.SessionRecord, error) {
	return &models.SessionRecord{SessionID: "test-session", UserID: userID, ScriptID: scriptID, Status: models.SessionStatusActive}, nil
}

func (m *mockSessionStore) Finalize(ctx context.Context, sessionID string, totalTTSDuration float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = append(m.finalized, totalTTSDuration)
	return nil
}

func (m *mockSessionStore) AppendEvent(ctx context.Context, sessionID string, event models.GameEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, event)
	return nil
}

func (m *mockSessionStore) DeleteSessions(ctx context.Context, sessionIDs []string, userID string) []models.SessionDeleteResult {
	results := make([]models.SessionDeleteResult, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		results = append(results, models.SessionDeleteResult{SessionID: id, Deleted: true})
	}
	return results
}

func (m *mockSessionStore) FinalizeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.finalized)
}

// mockBroadcaster 收集全部广播信封
type mockBroadcaster struct {
	mu        sync.Mutex
	envelopes []map[string]interface{}
}

func (m *mockBroadcaster) FanOut(sessionID string, envelope map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envelopes = append(m.envelopes, envelope)
}

func (m *mockBroadcaster) Envelopes() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]interface{}, len(m.envelopes))
	copy(out, m.envelopes)
	return out
}

func (m *mockBroadcaster) ByType(t string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0)
	for _, env := range m.Envelopes() {
		if env["type"] == t {
			out = append(out, env)
		}
	}
	return out
}

// mockView 角色运行时的只读视图替身
type mockView struct {
	phase     Phase
	evidence  []models.DiscoveredEvidence
	chat      []models.GameEvent
	names     []string
	locations []string
}

func (v *mockView) Phase() Phase                                     { return v.phase }
func (v *mockView) DiscoveredEvidence() []models.DiscoveredEvidence  { return v.evidence }
func (v *mockView) RecentChat(n int) []models.GameEvent              { return v.chat }
func (v *mockView) ActiveNames() []string                            { return v.names }
func (v *mockView) SearchableLocations() []string                    { return v.locations }

// testScript 构造一个合法的四人剧本：一位被害人、一位凶手、三位在场角色
func testScript() *models.ScriptSnapshot {
	return &models.ScriptSnapshot{
		ID:          "script-001",
		Title:       "午夜山庄",
		PlayerCount: 3,
		Difficulty:  "中等",
		Background: models.BackgroundStory{
			Setting:            "暴雨夜的深山别墅",
			Incident:           "管家陈伯被发现死在书房",
			VictimBackground:   "陈伯在山庄服务了三十年",
			InvestigationScope: "书房、花园、地下室",
			Rules:              "每人轮流发言，不得查看他人剧本",
		},
		Characters: []models.Character{
			{Name: "陈伯", Profession: "管家", IsVictim: true},
			{Name: "林医生", Gender: "女", Age: 35, Profession: "医生", Secret: "曾给陈伯开过过量药物", Objective: "隐瞒医疗事故", Personality: []string{"冷静", "理性"}, VoiceID: "zh_female_calm"},
			{Name: "张律师", Gender: "男", Age: 42, Profession: "律师", Secret: "伪造了遗嘱", Objective: "拿到遗产", IsMurderer: true, Personality: []string{"圆滑"}},
			{Name: "小周", Gender: "男", Age: 24, Profession: "园丁", Secret: "目击了案发经过", Objective: "找出真凶", Personality: []string{"胆小", "善良"}},
		},
		Evidence: []models.Evidence{
			{Name: "带血的信纸", Location: "书房", Description: "信纸上有半枚指纹"},
			{Name: "空药瓶", Location: "花园", Description: "标签被撕掉的药瓶"},
			{Name: "伪造的遗嘱", Location: "地下室", Description: "墨迹未干的遗嘱副本"},
		},
		Locations: []models.Location{
			{Name: "书房", IsCrimeScene: true},
			{Name: "花园"},
			{Name: "地下室"},
		},
	}
}

// fastConfig 测试用配置，延迟全部压到最低
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.TurnDelay = 0
	cfg.BackgroundLineDelay = 0
	cfg.TTSBudget = 0
	cfg.Seed = 42
	cfg.NoPacing = true
	return cfg
}
