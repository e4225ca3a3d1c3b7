// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorForbidden     = "FORBIDDEN"
	ErrorUnauthorized  = "UNAUTHORIZED"

	// 剧本相关错误
	ErrorScriptNotFound = "SCRIPT_NOT_FOUND"
	ErrorScriptInvalid  = "INVALID_SCRIPT"

	// 会话相关错误
	ErrorSessionNotFound   = "SESSION_NOT_FOUND"
	ErrorSessionConflict   = "SESSION_CONFLICT"
	ErrorGameAlreadyActive = "GAME_ALREADY_ACTIVE"

	// LLM服务相关错误
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"

	// TTS服务相关错误
	ErrorTTSServiceUnavailable = "TTS_SERVICE_UNAVAILABLE"
)
