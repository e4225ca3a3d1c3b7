// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	ScriptDir string `json:"script_dir"`
	StaticDir string `json:"static_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 会话相关配置
	RedisAddr           string `json:"redis_addr"`
	AuthSecret          string `json:"auth_secret,omitempty"`
	SessionGraceSeconds int    `json:"session_grace_seconds"`
	RandomSeed          int64  `json:"random_seed,omitempty"`

	// LLM相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`

	// TTS相关配置
	TTSProvider string            `json:"tts_provider"`
	TTSConfig   map[string]string `json:"tts_config"`
}

// Load 从环境变量加载配置
func Load() (*AppConfig, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &AppConfig{
		Port:                getEnv("PORT", "8080"),
		DataDir:             getEnvPath("DATA_DIR", "data"),
		ScriptDir:           getEnvPath("SCRIPT_DATA_DIR", "data/scripts"),
		StaticDir:           getEnvPath("STATIC_DIR", "static"),
		LogDir:              getEnvPath("LOG_DIR", "logs"),
		DebugMode:           getEnvBool("DEBUG_MODE", true),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		AuthSecret:          getEnv("AUTH_SECRET", ""),
		SessionGraceSeconds: getEnvInt("SESSION_GRACE_SECONDS", 600),
		RandomSeed:          int64(getEnvInt("RANDOM_SEED", 0)),
		LLMProvider:         getEnv("LLM_PROVIDER", "openai"),
		LLMConfig: map[string]string{
			"api_key":       getEnv("OPENAI_API_KEY", ""),
			"default_model": getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
		},
		TTSProvider: getEnv("TTS_PROVIDER", "cosyvoice"),
		TTSConfig: map[string]string{
			"api_key":       getEnv("TTS_API_KEY", ""),
			"base_url":      getEnv("TTS_BASE_URL", ""),
			"default_voice": getEnv("TTS_DEFAULT_VOICE", "zh_female_wenrou"),
		},
	}

	if config.LLMConfig["api_key"] == "" {
		// 只记录警告，不返回错误
		log.Println("警告: 未设置LLM API密钥，AI角色将使用兜底台词")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = baseConfig

	// 尝试从文件加载已保存的配置（只覆盖LLM/TTS设置，基础配置以环境为准）
	if data, err := os.ReadFile(configFile); err == nil {
		var savedConfig AppConfig
		if json.Unmarshal(data, &savedConfig) == nil {
			if savedConfig.LLMProvider != "" {
				currentConfig.LLMProvider = savedConfig.LLMProvider
			}
			if savedConfig.LLMConfig != nil {
				if savedConfig.LLMConfig["api_key"] == "" {
					savedConfig.LLMConfig["api_key"] = baseConfig.LLMConfig["api_key"]
				}
				currentConfig.LLMConfig = savedConfig.LLMConfig
			}
			if savedConfig.TTSProvider != "" {
				currentConfig.TTSProvider = savedConfig.TTSProvider
			}
			if savedConfig.TTSConfig != nil {
				if savedConfig.TTSConfig["api_key"] == "" {
					savedConfig.TTSConfig["api_key"] = baseConfig.TTSConfig["api_key"]
				}
				currentConfig.TTSConfig = savedConfig.TTSConfig
			}
		}
	}

	return saveConfigLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, _ := Load()
		return baseConfig
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateLLMConfig 更新LLM配置
func UpdateLLMConfig(provider string, config map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = config

	return saveConfigLocked()
}

// UpdateTTSConfig 更新TTS配置
func UpdateTTSConfig(provider string, config map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.TTSProvider = provider
	currentConfig.TTSConfig = config

	return saveConfigLocked()
}

// saveConfigLocked 保存当前配置到文件，调用方必须持有写锁
func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
