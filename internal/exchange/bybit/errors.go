package bybit

import (
	"errors"
	"fmt"
)

// ErrInvalidOrder 下单参数不合法（请求未发出）
var ErrInvalidOrder = errors.New("invalid order params")

// ErrSymbolNotFound 行情接口未返回请求的 symbol
var ErrSymbolNotFound = errors.New("symbol not found")

// TransportError 网络失败或非 2xx 响应
type TransportError struct {
	Endpoint   string
	StatusCode int    // 网络失败时为 0
	Body       string // 非 2xx 响应体原文
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("bybit %s: 请求失败: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("bybit %s: HTTP 错误 %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamRejection 交易所返回 2xx 但 retCode != 0
type UpstreamRejection struct {
	Endpoint string
	RetCode  int
	RetMsg   string
}

func (e *UpstreamRejection) Error() string {
	return fmt.Sprintf("bybit %s: retCode=%d retMsg=%s", e.Endpoint, e.RetCode, e.RetMsg)
}

// IsTransportError 判断是否为传输层错误
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsUpstreamRejection 判断是否为交易所业务拒绝
func IsUpstreamRejection(err error) bool {
	var ur *UpstreamRejection
	return errors.As(err, &ur)
}
