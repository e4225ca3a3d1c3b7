// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/JubenshaMCP/internal/api"
	"github.com/Corphon/JubenshaMCP/internal/auth"
	"github.com/Corphon/JubenshaMCP/internal/config"
	"github.com/Corphon/JubenshaMCP/internal/di"
	"github.com/Corphon/JubenshaMCP/internal/game"
	"github.com/Corphon/JubenshaMCP/internal/llm"
	"github.com/Corphon/JubenshaMCP/internal/store"
	"github.com/Corphon/JubenshaMCP/internal/tts"
	"github.com/Corphon/JubenshaMCP/internal/utils"
)

// App 应用程序实例
type App struct {
	config   *config.AppConfig
	router   *gin.Engine
	hub      *api.Hub
	registry *game.Registry
}

// InitServices 按依赖顺序初始化全部服务并注册到容器
// LLM和TTS是可降级依赖：初始化失败只警告，角色走兜底台词、语音跳过
func InitServices() (*App, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()
	container.Register("config", cfg)

	// 访问日志落盘，失败不阻断启动
	if cfg.LogDir != "" {
		if err := utils.InitLogger(filepath.Join(cfg.LogDir, "access.log")); err != nil {
			log.Printf("⚠️ 初始化访问日志失败: %v", err)
		}
	}

	// 鉴权
	authProvider := auth.NewProvider(cfg.AuthSecret, 24*time.Hour)
	container.Register("auth", authProvider)
	if cfg.AuthSecret == "" {
		log.Println("⚠️ 未设置 AUTH_SECRET，鉴权处于调试直通模式")
	}

	// LLM提供者
	var llmClient game.LLMClient
	if provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig); err != nil {
		log.Printf("⚠️ LLM提供者 %s 初始化失败: %v，角色将使用兜底台词", cfg.LLMProvider, err)
	} else {
		llmClient = provider
		container.Register("llm", provider)
		log.Printf("✅ LLM提供者就绪: %s", provider.GetName())
	}

	// TTS提供者
	var ttsPipeline game.TTSPipeline
	if provider, err := tts.GetProvider(cfg.TTSProvider, cfg.TTSConfig); err != nil {
		log.Printf("⚠️ TTS提供者 %s 初始化失败: %v，语音合成将被跳过", cfg.TTSProvider, err)
	} else {
		ttsPipeline = provider
		container.Register("tts", provider)
		log.Printf("✅ TTS提供者就绪: %s", provider.GetName())
	}

	// 剧本库
	scripts, err := store.NewFileScriptStore(cfg.ScriptDir)
	if err != nil {
		return nil, fmt.Errorf("初始化剧本库失败: %w", err)
	}
	container.Register("scripts", scripts)

	// 会话存储：Redis优先，不可用时退化到内存
	var sessionStore game.SessionStore
	if redisStore, err := store.NewRedisSessionStore(cfg.RedisAddr); err != nil {
		log.Printf("⚠️ Redis不可用 (%v)，会话存储退化为内存模式", err)
		sessionStore = store.NewMemorySessionStore()
	} else {
		sessionStore = redisStore
		log.Printf("✅ Redis会话存储就绪: %s", cfg.RedisAddr)
	}
	container.Register("session_store", sessionStore)

	// 订阅中心
	graceWindow := time.Duration(cfg.SessionGraceSeconds) * time.Second
	hub := api.NewHub(graceWindow)
	container.Register("hub", hub)

	// 会话引擎
	gameCfg := game.DefaultConfig()
	gameCfg.GraceWindow = graceWindow
	gameCfg.Seed = cfg.RandomSeed
	registry := game.NewRegistry(scripts, sessionStore, llmClient, ttsPipeline, hub, gameCfg)
	container.Register("registry", registry)

	// 空闲会话由订阅中心触发回收
	hub.SetOnIdle(registry.Evict)

	router := api.SetupRouter(api.RouterDeps{
		Scripts:      scripts,
		Registry:     registry,
		SessionStore: sessionStore,
		Hub:          hub,
		Auth:         authProvider,
		StaticDir:    cfg.StaticDir,
		DebugMode:    cfg.DebugMode,
	})

	return &App{
		config:   cfg,
		router:   router,
		hub:      hub,
		registry: registry,
	}, nil
}

// Run 启动HTTP服务器并等待关闭信号
func (a *App) Run() error {
	srv := &http.Server{
		Addr:    ":" + a.config.Port,
		Handler: a.router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	log.Printf("🌐 服务器启动在端口 %s", a.config.Port)
	log.Printf("🔗 WebSocket入口: ws://localhost:%s/ws/game", a.config.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭服务器...")
	a.hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}

	log.Println("✅ 服务器已关闭")
	return nil
}

// Router 返回路由（测试用）
func (a *App) Router() *gin.Engine {
	return a.router
}
