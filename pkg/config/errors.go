package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingCredentials 表示 API Key 或 Secret 未配置
var ErrMissingCredentials = errors.New("missing exchange credentials")

// ConfigError 配置错误
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("配置错误 %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RequireCredentials 检查凭证是否齐全，缺失时返回 *ConfigError（可用 errors.Is(err, ErrMissingCredentials) 判断）
func RequireCredentials(apiKey, apiSecret string) error {
	var missing []string
	if strings.TrimSpace(apiKey) == "" {
		missing = append(missing, "BYBIT_API_KEY")
	}
	if strings.TrimSpace(apiSecret) == "" {
		missing = append(missing, "BYBIT_API_SECRET")
	}
	if len(missing) == 0 {
		return nil
	}
	return &ConfigError{
		Field:  "exchange.credentials",
		Reason: strings.Join(missing, ", ") + " 未配置",
		Err:    ErrMissingCredentials,
	}
}
