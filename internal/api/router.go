// internal/api/router.go
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Corphon/JubenshaMCP/internal/auth"
	"github.com/Corphon/JubenshaMCP/internal/game"
	"github.com/Corphon/JubenshaMCP/internal/store"
)

// RouterDeps 路由装配所需的依赖
type RouterDeps struct {
	Scripts      *store.FileScriptStore
	Registry     *game.Registry
	SessionStore game.SessionStore
	Hub          *Hub
	Auth         *auth.Provider
	StaticDir    string
	DebugMode    bool
}

// SetupRouter 装配全部路由
func SetupRouter(deps RouterDeps) *gin.Engine {
	if !deps.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(CORSMiddleware())

	handler := NewHandler(deps.Scripts, deps.Registry, deps.SessionStore, deps.Hub, deps.Auth)
	wsHandler := NewWebSocketHandler(deps.Registry, deps.Auth, deps.Hub)

	// 静态页面
	if deps.StaticDir != "" {
		r.Static("/static", deps.StaticDir)
	}

	// WebSocket 入口
	r.GET("/ws/game", wsHandler.GameWebSocket)

	api := r.Group("/api")
	api.Use(AccessLogMiddleware())
	api.Use(AuthMiddleware(deps.Auth))
	api.Use(DefaultRateLimit())
	{
		api.GET("/health", handler.Health)

		// 剧本
		api.GET("/scripts", handler.ListScripts)
		api.GET("/scripts/:id", handler.GetScript)

		// 会话
		api.GET("/sessions/:id/history", handler.SessionHistory)
		api.GET("/sessions/:id/chat", handler.SessionChat)
		api.GET("/sessions/:id/tts", handler.SessionTTSHistory)
		api.DELETE("/sessions", RequireAuth(), DeleteRateLimit(), handler.DeleteSessions)

		// 鉴权
		api.POST("/auth/token", handler.IssueToken)

		// 服务状态
		api.GET("/llm/status", handler.LLMStatus)
		api.GET("/tts/status", handler.TTSStatus)
		api.GET("/ws/status", handler.WSStatus)
	}

	return r
}
