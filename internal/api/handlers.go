// internal/api/handlers.go
package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/JubenshaMCP/internal/auth"
	"github.com/Corphon/JubenshaMCP/internal/config"
	"github.com/Corphon/JubenshaMCP/internal/game"
	"github.com/Corphon/JubenshaMCP/internal/llm"
	"github.com/Corphon/JubenshaMCP/internal/store"
	"github.com/Corphon/JubenshaMCP/internal/tts"
)

// Handler 处理REST请求
type Handler struct {
	scripts      *store.FileScriptStore
	registry     *game.Registry
	sessionStore game.SessionStore
	hub          *Hub
	auth         *auth.Provider
	response     *ResponseHelper
}

// NewHandler 创建REST处理器
func NewHandler(scripts *store.FileScriptStore, registry *game.Registry,
	sessionStore game.SessionStore, hub *Hub, authProvider *auth.Provider) *Handler {
	return &Handler{
		scripts:      scripts,
		registry:     registry,
		sessionStore: sessionStore,
		hub:          hub,
		auth:         authProvider,
		response:     NewResponseHelper(),
	}
}

// ListScripts 剧本列表
func (h *Handler) ListScripts(c *gin.Context) {
	list, err := h.scripts.ListScripts()
	if err != nil {
		h.response.FromAppError(c, err)
		return
	}
	h.response.Success(c, gin.H{"scripts": list})
}

// GetScript 剧本详情
// 角色的秘密和凶手标记属于剧本内幕，对外隐藏
func (h *Handler) GetScript(c *gin.Context) {
	script, err := h.scripts.GetScript(c.Param("id"))
	if err != nil {
		h.response.FromAppError(c, err)
		return
	}

	characters := make([]gin.H, 0, len(script.Characters))
	for _, ch := range script.Characters {
		characters = append(characters, gin.H{
			"name":        ch.Name,
			"gender":      ch.Gender,
			"age":         ch.Age,
			"profession":  ch.Profession,
			"background":  ch.Background,
			"personality": ch.Personality,
			"is_victim":   ch.IsVictim,
		})
	}

	h.response.Success(c, gin.H{
		"id":           script.ID,
		"title":        script.Title,
		"player_count": script.PlayerCount,
		"difficulty":   script.Difficulty,
		"background":   script.Background,
		"characters":   characters,
		"locations":    script.Locations,
	})
}

// SessionHistory 会话事件历史（增量）
func (h *Handler) SessionHistory(c *gin.Context) {
	session, ok := h.registry.Get(c.Param("id"))
	if !ok {
		h.response.Error(c, 404, ErrorSessionNotFound, "会话不存在或已回收")
		return
	}

	fromID := uint64(queryInt(c, "from_id", 0))
	limit := queryInt(c, "limit", 0)

	events, newestID, earliestID, truncated := session.History(fromID, limit)
	h.response.Success(c, gin.H{
		"events":            events,
		"newest_event_id":   newestID,
		"earliest_event_id": earliestID,
		"truncated":         truncated,
	})
}

// SessionChat 会话聊天记录（按时间戳过滤）
func (h *Handler) SessionChat(c *gin.Context) {
	session, ok := h.registry.Get(c.Param("id"))
	if !ok {
		h.response.Error(c, 404, ErrorSessionNotFound, "会话不存在或已回收")
		return
	}

	since := queryFloat(c, "since", 0)
	h.response.Success(c, gin.H{"messages": session.PublicChatSince(since)})
}

// SessionTTSHistory 会话的语音事件历史
func (h *Handler) SessionTTSHistory(c *gin.Context) {
	session, ok := h.registry.Get(c.Param("id"))
	if !ok {
		h.response.Error(c, 404, ErrorSessionNotFound, "会话不存在或已回收")
		return
	}

	character := c.Query("character")
	limit := queryInt(c, "limit", 50)
	h.response.Success(c, gin.H{"events": session.TTSHistory(character, limit)})
}

// DeleteSessions 批量删除会话，只允许属主删除
func (h *Handler) DeleteSessions(c *gin.Context) {
	var req struct {
		SessionIDs []string `json:"session_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "请求体缺少 session_ids")
		return
	}
	if len(req.SessionIDs) == 0 {
		h.response.BadRequest(c, "session_ids 不能为空")
		return
	}

	userID, _ := GetUserFromContext(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	results := h.sessionStore.DeleteSessions(ctx, req.SessionIDs, userID)

	// 同步回收进程内的会话实例
	for _, result := range results {
		if result.Deleted {
			h.registry.Evict(result.SessionID)
		}
	}

	h.response.Success(c, gin.H{"results": results})
}

// IssueToken 签发身份凭证（调试与脚本化接入用）
func (h *Handler) IssueToken(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "请求体缺少 user_id")
		return
	}

	token, err := h.auth.IssueToken(req.UserID)
	if err != nil {
		h.response.Error(c, 500, ErrorInternalError, "签发凭证失败: "+err.Error())
		return
	}
	h.response.Success(c, gin.H{"token": token, "user_id": req.UserID})
}

// LLMStatus LLM服务状态
func (h *Handler) LLMStatus(c *gin.Context) {
	cfg := config.GetCurrentConfig()

	ready := cfg.LLMConfig["api_key"] != ""
	h.response.Success(c, gin.H{
		"provider":            cfg.LLMProvider,
		"ready":               ready,
		"available_providers": llm.ListProviders(),
		"supported_models":    llm.GetSupportedModelsForProvider(cfg.LLMProvider),
	})
}

// TTSStatus TTS服务状态
func (h *Handler) TTSStatus(c *gin.Context) {
	cfg := config.GetCurrentConfig()

	h.response.Success(c, gin.H{
		"provider":            cfg.TTSProvider,
		"ready":               cfg.TTSConfig["api_key"] != "",
		"available_providers": tts.ListProviders(),
	})
}

// WSStatus 订阅中心状态
func (h *Handler) WSStatus(c *gin.Context) {
	h.response.Success(c, h.hub.GetStatus())
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	h.response.Success(c, gin.H{
		"status":          "ok",
		"active_sessions": h.registry.Count(),
	})
}

// queryInt 读取整数查询参数
func queryInt(c *gin.Context, key string, fallback int) int {
	value := c.Query(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// queryFloat 读取浮点查询参数
func queryFloat(c *gin.Context, key string, fallback float64) float64 {
	value := c.Query(key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return f
}
