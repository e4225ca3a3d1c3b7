// internal/game/config.go
package game

import "time"

// Config 会话引擎的节奏与容量参数
// 测试里把延迟调到接近零，生产用 DefaultConfig
type Config struct {
	EventCapacity int
	ChatCapacity  int

	TurnDelay           time.Duration // 两次发言之间的间隔
	BackgroundLineDelay time.Duration // 背景播报逐行间隔
	TTSBudget           time.Duration // 广播前等待语音合成的预算

	RevelationTurnCap int
	ChatContextLines  int // 提示词附带的最近聊天行数

	MaxTokens   int
	Temperature float32

	FallbackUtterance string
	DefaultVoice      string

	Seed int64 // 投票兜底等随机行为的种子，0表示按时间播种

	NoPacing bool // 跳过阶段间的节奏等待，测试用

	GraceWindow time.Duration // 无订阅者后的保留时间
}

// DefaultConfig 返回生产默认值
func DefaultConfig() Config {
	return Config{
		EventCapacity:       DefaultEventCapacity,
		ChatCapacity:        DefaultChatCapacity,
		TurnDelay:           time.Second,
		BackgroundLineDelay: 2 * time.Second,
		TTSBudget:           3 * time.Second,
		RevelationTurnCap:   3,
		ChatContextLines:    12,
		MaxTokens:           300,
		Temperature:         0.8,
		FallbackUtterance:   "我需要仔细想想...",
		DefaultVoice:        "zh_female_wenrou",
		GraceWindow:         600 * time.Second,
	}
}
