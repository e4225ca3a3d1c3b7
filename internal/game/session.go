// internal/game/session.go
package game

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/JubenshaMCP/internal/errors"
	"github.com/Corphon/JubenshaMCP/internal/models"
)

// runState 一局游戏的全部可变状态
// Reset 会整体换新，旧的游戏循环写到旧状态上不会污染新局
type runState struct {
	script     *models.ScriptSnapshot
	eventLog   *EventLog
	scheduler  *TurnScheduler
	evidence   *EvidenceResolver
	controller *PhaseController
	runtimes   []*CharacterRuntime
	coupler    *TTSCoupler
	votes      map[string]string // 投票人 -> 被指认者
	rng        *rand.Rand
}

// Session 一场进行中的剧本杀会话
// 会话循环是唯一写入方；订阅端经过带锁的只读方法观察状态
type Session struct {
	ID       string
	UserID   string
	ScriptID string

	cfg          Config
	scriptStore  ScriptStore
	sessionStore SessionStore
	llm          LLMClient
	ttsPipeline  TTSPipeline
	broadcaster  Broadcaster

	mu        sync.Mutex
	state     *runState
	running   bool
	cancel    context.CancelFunc
	advanceCh chan struct{}
}

// NewSession 创建会话，所有外部协作者由构造注入
func NewSession(id, userID, scriptID string, scriptStore ScriptStore, sessionStore SessionStore,
	llmClient LLMClient, ttsPipeline TTSPipeline, broadcaster Broadcaster, cfg Config) *Session {
	return &Session{
		ID:           id,
		UserID:       userID,
		ScriptID:     scriptID,
		cfg:          cfg,
		scriptStore:  scriptStore,
		sessionStore: sessionStore,
		llm:          llmClient,
		ttsPipeline:  ttsPipeline,
		broadcaster:  broadcaster,
		advanceCh:    make(chan struct{}, 1),
	}
}

// Running 游戏循环是否在运行
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Initialized 是否已经加载过剧本
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != nil
}

// CurrentPhase 当前阶段，未初始化返回背景阶段
func (s *Session) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return PhaseBackground
	}
	return s.state.controller.Current()
}

// Start 加载剧本、校验并启动游戏循环，立即返回
func (s *Session) Start(scriptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return apperrors.NewValidationError("游戏已在进行中", nil)
	}
	if scriptID != "" {
		s.ScriptID = scriptID
	}

	script, err := s.scriptStore.GetScript(s.ScriptID)
	if err != nil {
		return apperrors.WrapError(err, "加载剧本失败", apperrors.ErrorTypeNotFound)
	}
	if err := ValidateSnapshot(script); err != nil {
		return err
	}

	st := s.newRunState(script)
	s.state = st
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.runLoop(ctx, st)
	return nil
}

// newRunState 组装一局游戏的状态，调用方必须持有锁
func (s *Session) newRunState(script *models.ScriptSnapshot) *runState {
	seed := s.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	st := &runState{
		script:     script,
		eventLog:   NewEventLog(s.cfg.EventCapacity, s.cfg.ChatCapacity),
		scheduler:  NewTurnScheduler(script.ActiveCharacters()),
		evidence:   NewEvidenceResolver(script),
		controller: NewPhaseController(s.cfg.RevelationTurnCap),
		votes:      make(map[string]string),
		rng:        rand.New(rand.NewSource(seed)),
	}

	for _, c := range script.ActiveCharacters() {
		st.runtimes = append(st.runtimes, NewCharacterRuntime(c, script, s.llm, &s.cfg))
	}

	st.coupler = NewTTSCoupler(s.ttsPipeline, st.eventLog, &s.cfg, s.ID, s.fanOut)
	return st
}

// Reset 终止当前循环并回到未开局状态，订阅者保持连接
func (s *Session) Reset() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = nil
	s.running = false
	// 清掉挂起的手动推进信号
	select {
	case <-s.advanceCh:
	default:
	}
	s.mu.Unlock()

	s.fanOut(map[string]interface{}{
		"type":       "game_reset",
		"session_id": s.ID,
	})
}

// NextPhase 请求手动推进阶段，在下一个回合间隙生效
func (s *Session) NextPhase() {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}
	select {
	case s.advanceCh <- struct{}{}:
	default:
	}
}

// History 按事件ID增量读取日志
func (s *Session) History(fromID uint64, limit int) (events []models.GameEvent, newestID, earliestID uint64, truncated bool) {
	st := s.currentState()
	if st == nil {
		return nil, 0, 0, false
	}
	events, truncated = st.eventLog.Since(fromID)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, st.eventLog.NewestID(), st.eventLog.EarliestRetainedID(), truncated
}

// PublicChatSince 按时间戳过滤聊天记录
func (s *Session) PublicChatSince(ts float64) []models.GameEvent {
	st := s.currentState()
	if st == nil {
		return nil
	}
	return st.eventLog.ChatSince(ts)
}

// TTSHistory 带语音状态的事件历史
func (s *Session) TTSHistory(character string, limit int) []models.GameEvent {
	st := s.currentState()
	if st == nil {
		return nil
	}
	return st.eventLog.TTSHistory(character, limit)
}

// StateSnapshot 当前可观测状态投影，用于 session_connected 和 get_game_state
func (s *Session) StateSnapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := map[string]interface{}{
		"session_id":     s.ID,
		"script_id":      s.ScriptID,
		"is_running":     s.running,
		"is_initialized": s.state != nil,
	}
	if s.state == nil {
		snapshot["phase"] = string(PhaseBackground)
		return snapshot
	}

	st := s.state
	names := make([]string, 0)
	for _, c := range st.script.ActiveCharacters() {
		names = append(names, c.Name)
	}

	discovered := make([]map[string]interface{}, 0)
	for _, ev := range st.evidence.Discovered() {
		discovered = append(discovered, map[string]interface{}{
			"name":          ev.Name,
			"description":   ev.Description,
			"discovered_by": ev.DiscoveredBy,
			"order":         ev.Order,
		})
	}

	snapshot["phase"] = string(st.controller.Current())
	snapshot["title"] = st.script.Title
	snapshot["characters"] = names
	snapshot["turn_counters"] = st.scheduler.Counters()
	snapshot["discovered_evidence"] = discovered
	snapshot["newest_event_id"] = st.eventLog.NewestID()
	snapshot["earliest_event_id"] = st.eventLog.EarliestRetainedID()
	return snapshot
}

// currentState 取当前局状态
func (s *Session) currentState() *runState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ========================================
// StateView 实现（角色运行时的只读投影）
// ========================================

type sessionView struct {
	s  *Session
	st *runState
}

func (v *sessionView) Phase() Phase {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.st.controller.Current()
}

func (v *sessionView) DiscoveredEvidence() []models.DiscoveredEvidence {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.st.evidence.Discovered()
}

func (v *sessionView) RecentChat(n int) []models.GameEvent {
	return v.st.eventLog.RecentChat(n)
}

func (v *sessionView) ActiveNames() []string {
	names := make([]string, 0)
	for _, c := range v.st.script.ActiveCharacters() {
		names = append(names, c.Name)
	}
	return names
}

func (v *sessionView) SearchableLocations() []string {
	return v.st.script.LocationNames()
}

// ========================================
// 游戏循环
// ========================================

// runLoop 阶段状态机主循环，一个会话同一时刻只有一个循环在跑
func (s *Session) runLoop(ctx context.Context, st *runState) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ 会话 %s 游戏循环异常: %v", s.ID, r)
			s.fanOut(map[string]interface{}{
				"type":       "error",
				"session_id": s.ID,
				"message":    fmt.Sprintf("游戏循环异常终止: %v", r),
			})
			s.stopRunning()
		}
	}()

	s.fanOut(map[string]interface{}{
		"type":       "game_started",
		"session_id": s.ID,
		"data": map[string]interface{}{
			"script_id": s.ScriptID,
			"title":     st.script.Title,
		},
	})

	for {
		if ctx.Err() != nil {
			return
		}

		phase := s.phaseOf(st)
		if phase == PhaseEnded {
			break
		}

		if phase == PhaseBackground {
			if !s.runBackground(ctx, st) {
				return
			}
		} else if !s.runScheduledPhase(ctx, st, phase) {
			return
		}

		if phase == PhaseVoting {
			s.broadcastVotingComplete(st)
		}

		next := s.advancePhase(st)
		if next == PhaseEnded {
			s.finishGame(st)
			break
		}

		s.fanOut(map[string]interface{}{
			"type":       "phase_changed",
			"session_id": s.ID,
			"data": map[string]interface{}{
				"phase": string(next),
			},
		})
		s.fanOut(map[string]interface{}{
			"type":       "game_state_update",
			"session_id": s.ID,
			"data":       s.StateSnapshot(),
		})

		// 阶段间节奏等待，手动推进会跳过
		if !s.pacingWait(ctx, s.pacingOf(st)) {
			return
		}
	}

	s.stopRunning()
}

// runBackground 背景阶段：逐行播报背景故事
func (s *Session) runBackground(ctx context.Context, st *runState) bool {
	for _, line := range backgroundLines(st.script) {
		if ctx.Err() != nil {
			return false
		}
		ev := st.eventLog.Append(models.SystemSpeaker, line, models.EventKindBackground, EventMeta{Phase: PhaseBackground})
		st.coupler.Enrich(ctx, &ev)
		s.broadcastEvent(ev)
		s.persistEvent(ev)
		if !s.sleepCtx(ctx, s.cfg.BackgroundLineDelay) {
			return false
		}
	}
	return true
}

// backgroundLines 从背景故事字段组装固定的播报序列，缺失字段用占位文案
func backgroundLines(script *models.ScriptSnapshot) []string {
	orDefault := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return "…暂无相关信息"
		}
		return v
	}
	bg := script.Background
	return []string{
		fmt.Sprintf("【剧本杀】《%s》现在开始", script.Title),
		"【背景设定】" + orDefault(bg.Setting),
		"【案件经过】" + orDefault(bg.Incident),
		"【被害人】" + orDefault(bg.VictimBackground),
		"【调查范围】" + orDefault(bg.InvestigationScope),
		"【游戏规则】" + orDefault(bg.Rules),
		"接下来请各位角色依次登场。",
	}
}

// runScheduledPhase 调度发言循环，直到回合上限或终止判定触发
func (s *Session) runScheduledPhase(ctx context.Context, st *runState, phase Phase) bool {
	s.mu.Lock()
	st.scheduler.ResetForPhase(phase)
	turnCap := st.controller.TurnCap(st.scheduler.ActiveCount())
	s.mu.Unlock()

	for turn := 0; turn < turnCap; turn++ {
		if ctx.Err() != nil {
			return false
		}
		// 手动推进请求在回合间隙生效
		select {
		case <-s.advanceCh:
			return true
		default:
		}

		if !s.runTurn(ctx, st, phase, turn) {
			return false
		}

		if s.terminated(st) {
			break
		}
		if !s.sleepCtx(ctx, s.cfg.TurnDelay) {
			return false
		}
	}
	return true
}

// runTurn 执行一个回合：选人、生成发言、入日志、搜证、语音、广播
func (s *Session) runTurn(ctx context.Context, st *runState, phase Phase, turn int) bool {
	s.mu.Lock()
	speaker := st.scheduler.NextSpeaker(phase)
	s.mu.Unlock()
	if speaker == nil {
		return true
	}

	rt := s.runtimeFor(st, speaker.Name)
	if rt == nil {
		return true
	}

	view := &sessionView{s: s, st: st}
	text := rt.Act(ctx, view, phase)
	if ctx.Err() != nil {
		return false
	}

	kind := ClassifyUtterance(phase, text)
	ev := st.eventLog.Append(speaker.Name, text, kind, EventMeta{
		VoiceID:   speaker.VoiceID,
		TurnIndex: turn,
		Phase:     phase,
	})

	s.mu.Lock()
	st.scheduler.RecordTurn(speaker.Name)
	s.mu.Unlock()

	st.coupler.Enrich(ctx, &ev)
	s.broadcastEvent(ev)
	s.persistEvent(ev)

	switch phase {
	case PhaseEvidenceCollection:
		s.resolveEvidence(ctx, st, speaker.Name, text)
	case PhaseVoting:
		s.recordVote(st, speaker.Name, text)
	}

	return true
}

// resolveEvidence 搜证发言路由到证据解析器，命中则播报系统事件
func (s *Session) resolveEvidence(ctx context.Context, st *runState, speaker, text string) {
	s.mu.Lock()
	found := st.evidence.Resolve(speaker, text)
	s.mu.Unlock()
	if found == nil {
		return
	}

	ev := st.eventLog.Append(models.SystemSpeaker,
		DiscoveryAnnouncement(speaker, found.Name),
		models.EventKindSystem,
		EventMeta{Phase: PhaseEvidenceCollection})
	s.broadcastEvent(ev)
	s.persistEvent(ev)

	s.fanOut(map[string]interface{}{
		"type":       "game_state_update",
		"session_id": s.ID,
		"data":       s.StateSnapshot(),
	})
}

// recordVote 从投票发言里解析被指认者，解析不出则随机兜底
func (s *Session) recordVote(st *runState, voter, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 名字长的优先匹配，避免"李明"误命中"李明远"
	candidates := make([]string, 0)
	for _, c := range st.script.ActiveCharacters() {
		if c.Name != voter {
			candidates = append(candidates, c.Name)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })

	for _, name := range candidates {
		if strings.Contains(text, name) {
			st.votes[voter] = name
			return
		}
	}

	if len(candidates) > 0 {
		st.votes[voter] = candidates[st.rng.Intn(len(candidates))]
	}
}

// broadcastVotingComplete 投票阶段结束后公布每个人的指认结果
func (s *Session) broadcastVotingComplete(st *runState) {
	s.mu.Lock()
	votes := make(map[string]string, len(st.votes))
	for k, v := range st.votes {
		votes[k] = v
	}
	s.mu.Unlock()

	s.fanOut(map[string]interface{}{
		"type":       "voting_complete",
		"session_id": s.ID,
		"data": map[string]interface{}{
			"votes": votes,
		},
	})
}

// finishGame 揭晓结果并收尾
func (s *Session) finishGame(st *runState) {
	murderer := st.script.Murderer()
	victim := st.script.Victim()

	s.mu.Lock()
	votes := make(map[string]string, len(st.votes))
	tally := make(map[string]int)
	for k, v := range st.votes {
		votes[k] = v
		tally[v]++
	}
	s.mu.Unlock()

	// 得票最多者即玩家指认结果，平票按剧本顺序
	accused := ""
	best := 0
	for _, c := range st.script.ActiveCharacters() {
		if tally[c.Name] > best {
			best = tally[c.Name]
			accused = c.Name
		}
	}

	result := map[string]interface{}{
		"votes":   votes,
		"accused": accused,
	}
	if murderer != nil {
		result["murderer"] = murderer.Name
		result["solved"] = accused == murderer.Name
	}
	if victim != nil {
		result["victim"] = victim.Name
	}

	summary := "游戏结束。"
	if murderer != nil {
		summary = fmt.Sprintf("真相揭晓：凶手是 %s。", murderer.Name)
	}
	ev := st.eventLog.Append(models.SystemSpeaker, summary, models.EventKindSystem, EventMeta{Phase: PhaseEnded})
	s.broadcastEvent(ev)
	s.persistEvent(ev)

	s.fanOut(map[string]interface{}{
		"type":       "game_result",
		"session_id": s.ID,
		"data":       result,
	})
	s.fanOut(map[string]interface{}{
		"type":       "game_ended",
		"session_id": s.ID,
	})

	if s.sessionStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.sessionStore.Finalize(ctx, s.ID, st.coupler.TotalDuration()); err != nil {
			log.Printf("⚠️ 会话 %s 归档失败: %v", s.ID, err)
		}
	}

	s.stopRunning()
}

// ========================================
// 辅助方法
// ========================================

func (s *Session) phaseOf(st *runState) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return st.controller.Current()
}

func (s *Session) pacingOf(st *runState) time.Duration {
	if s.cfg.NoPacing {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return st.controller.PacingDelay()
}

func (s *Session) advancePhase(st *runState) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := st.controller.Advance()
	st.scheduler.ResetForPhase(next)
	return next
}

func (s *Session) terminated(st *runState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return st.controller.Terminated(PhaseStats{
		ActiveCount:        st.scheduler.ActiveCount(),
		Counters:           st.scheduler.Counters(),
		TurnsThisPhase:     st.scheduler.TotalTurns(),
		EvidenceDiscovered: st.evidence.DiscoveredCount(),
		EvidenceTotal:      st.evidence.TotalCount(),
	})
}

func (s *Session) runtimeFor(st *runState, name string) *CharacterRuntime {
	for _, rt := range st.runtimes {
		if rt.Name() == name {
			return rt
		}
	}
	return nil
}

func (s *Session) stopRunning() {
	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.mu.Unlock()
}

// sleepCtx 可中断的延迟，返回false表示循环应当退出
func (s *Session) sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// pacingWait 阶段间等待，手动推进信号会缩短等待
func (s *Session) pacingWait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-s.advanceCh:
		return true
	}
}

// broadcastEvent 把事件包成ai_action信封广播
func (s *Session) broadcastEvent(ev models.GameEvent) {
	s.fanOut(map[string]interface{}{
		"type":       "ai_action",
		"session_id": s.ID,
		"data":       ev,
	})
}

// persistEvent 事件落库尽力而为，不阻塞游戏循环
func (s *Session) persistEvent(ev models.GameEvent) {
	if s.sessionStore == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.sessionStore.AppendEvent(ctx, s.ID, ev); err != nil {
			log.Printf("⚠️ 会话 %s 事件落库失败 (id=%d): %v", s.ID, ev.ID, err)
		}
	}()
}

func (s *Session) fanOut(envelope map[string]interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.FanOut(s.ID, envelope)
}
