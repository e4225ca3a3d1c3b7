// internal/tts/interface.go
package tts

import (
	"context"
	"errors"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的TTS提供者")

// Request 单次合成请求
type Request struct {
	SessionID string `json:"session_id"`
	Character string `json:"character"`
	Content   string `json:"content"`
	VoiceID   string `json:"voice_id,omitempty"`
}

// Result 合成结果，Duration为音频秒数
type Result struct {
	AudioURL string  `json:"audio_url"`
	Duration float64 `json:"duration,omitempty"`
}

// Provider 定义所有TTS提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 语音合成，失败返回错误，调用方决定如何降级
	Synthesize(ctx context.Context, req Request) (*Result, error)
}

// 注册表和工厂函数类型
type ProviderFactory func() Provider

var providers = make(map[string]ProviderFactory)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := providers[name]
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	err := provider.Initialize(config)
	return provider, err
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
