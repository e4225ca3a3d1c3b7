// internal/game/ttscoupler.go
package game

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/JubenshaMCP/internal/models"
	"github.com/Corphon/JubenshaMCP/internal/tts"
)

// 超过此长度的文本在送入合成前截断
const maxTTSRunes = 500

// TTSCoupler 把每条发言挂接到语音合成管线
// 合成在广播前启动，但广播最多等待一个小预算：
// 合成及时完成则事件直接携带audio_url，否则先以pending广播，
// 合成完成后再补发一条tts_ready信封。失败不影响游戏推进
type TTSCoupler struct {
	pipeline  TTSPipeline
	eventLog  *EventLog
	cfg       *Config
	sessionID string
	broadcast func(envelope map[string]interface{})

	mu            sync.Mutex
	totalDuration float64
}

// NewTTSCoupler 创建TTS挂接器，pipeline可以为nil（全部跳过）
func NewTTSCoupler(pipeline TTSPipeline, eventLog *EventLog, cfg *Config, sessionID string, broadcast func(map[string]interface{})) *TTSCoupler {
	return &TTSCoupler{
		pipeline:  pipeline,
		eventLog:  eventLog,
		cfg:       cfg,
		sessionID: sessionID,
		broadcast: broadcast,
	}
}

// Enrich 为事件补充语音字段，返回时事件已可广播
func (c *TTSCoupler) Enrich(ctx context.Context, ev *models.GameEvent) {
	if c.pipeline == nil || !shouldSynthesize(ev.Content) {
		ev.TTSStatus = models.TTSStatusSkipped
		c.eventLog.SetTTSStatus(ev.ID, "", models.TTSStatusSkipped)
		return
	}

	voice := ev.VoiceID
	if voice == "" {
		voice = c.cfg.DefaultVoice
	}
	ev.VoiceID = voice

	content := truncateRunes(ev.Content, maxTTSRunes)

	type outcome struct {
		result *tts.Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := c.pipeline.Synthesize(ctx, tts.Request{
			SessionID: c.sessionID,
			Character: ev.Character,
			Content:   content,
			VoiceID:   voice,
		})
		done <- outcome{result, err}
	}()

	// 在预算内等待，超时则转为pending异步补发
	// 预算为零表示一直等到合成返回（受管线自身超时约束）
	var budgetC <-chan time.Time
	if c.cfg.TTSBudget > 0 {
		timer := time.NewTimer(c.cfg.TTSBudget)
		defer timer.Stop()
		budgetC = timer.C
	}

	select {
	case out := <-done:
		c.applyOutcome(ev.ID, ev, out.result, out.err, false)
	case <-budgetC:
		ev.TTSStatus = models.TTSStatusPending
		c.eventLog.SetTTSStatus(ev.ID, "", models.TTSStatusPending)
		eventID := ev.ID
		go func() {
			out := <-done
			c.applyOutcome(eventID, nil, out.result, out.err, true)
		}()
	case <-ctx.Done():
		ev.TTSStatus = models.TTSStatusFailed
		c.eventLog.SetTTSStatus(ev.ID, "", models.TTSStatusFailed)
	}
}

// applyOutcome 把合成结果落到事件日志；follow为true时补发tts_ready信封
func (c *TTSCoupler) applyOutcome(eventID uint64, ev *models.GameEvent, result *tts.Result, err error, follow bool) {
	if err != nil || result == nil || result.AudioURL == "" {
		if err != nil {
			log.Printf("⚠️ 会话 %s 语音合成失败: %v", c.sessionID, err)
		}
		if ev != nil {
			ev.TTSStatus = models.TTSStatusFailed
		}
		c.eventLog.SetTTSStatus(eventID, "", models.TTSStatusFailed)
		return
	}

	if ev != nil {
		ev.AudioURL = result.AudioURL
		ev.TTSStatus = models.TTSStatusCompleted
	}
	c.eventLog.SetTTSStatus(eventID, result.AudioURL, models.TTSStatusCompleted)

	c.mu.Lock()
	c.totalDuration += result.Duration
	c.mu.Unlock()

	if follow && c.broadcast != nil {
		c.broadcast(map[string]interface{}{
			"type":       "tts_ready",
			"session_id": c.sessionID,
			"data": map[string]interface{}{
				"event_id":  eventID,
				"audio_url": result.AudioURL,
			},
		})
	}
}

// TotalDuration 本会话累计合成的音频时长（秒）
func (c *TTSCoupler) TotalDuration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalDuration
}

// shouldSynthesize 过滤空内容、占位符和系统内部标记
func shouldSynthesize(content string) bool {
	text := strings.TrimSpace(content)
	if text == "" {
		return false
	}
	// "[思考中...]"之类的占位标记不进合成
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return false
	}
	if strings.HasPrefix(text, "【") && strings.HasSuffix(text, "】") {
		return false
	}
	return true
}

// truncateRunes 按字符数截断
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
