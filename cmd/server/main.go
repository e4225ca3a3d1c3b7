// cmd/server/main.go
package main

import (
	"log"

	"github.com/Corphon/JubenshaMCP/internal/app"
	"github.com/Corphon/JubenshaMCP/internal/config"

	// 注册LLM与TTS提供者
	_ "github.com/Corphon/JubenshaMCP/internal/llm/providers/deepseek"
	_ "github.com/Corphon/JubenshaMCP/internal/llm/providers/openai"
	_ "github.com/Corphon/JubenshaMCP/internal/tts/providers/cosyvoice"
)

func main() {
	log.Println("🚀 启动 JubenshaMCP 服务器...")

	// 1. 加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 基础配置加载完成，端口: %s", baseConfig.Port)

	// 2. 初始化配置系统
	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Fatalf("初始化配置系统失败: %v", err)
	}
	log.Println("✅ 配置系统初始化完成")

	// 3. 初始化所有服务（按依赖顺序）
	application, err := app.InitServices()
	if err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	log.Println("✅ 所有服务初始化完成")

	// 4. 启动并等待关闭信号
	if err := application.Run(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}
