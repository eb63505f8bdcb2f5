package ledger

import (
	"errors"
	"fmt"
	"time"
)

// StorageKey 成交记录在各存储后端中的 key
const StorageKey = "optionsdesk:orderHistory"

// TradeRecord 一笔本地提交成功的订单
// 只在下单成功后创建，之后不再修改
type TradeRecord struct {
	OrderID       string    `json:"orderId"`
	ClientOrderID string    `json:"clientOrderId"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"` // Buy | Sell
	OrderType     string    `json:"orderType,omitempty"`
	Price         float64   `json:"price"`
	Quantity      float64   `json:"quantity"`
	Timestamp     time.Time `json:"timestamp"`
}

// ErrClosed 后端已关闭
var ErrClosed = errors.New("ledger: backend closed")

// PersistenceError 读写持久化存储失败
type PersistenceError struct {
	Op  string // load | save | clear
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
