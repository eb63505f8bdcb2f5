package options

import (
	"context"
	"errors"
	"sync"
)

// Status 期权数据状态
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// FailurePolicy 轮询失败时如何处理已有数据
type FailurePolicy string

const (
	// FailureClear 清空合约与到期日列表
	FailureClear FailurePolicy = "clear"
	// FailureRetain 保留上一次成功的快照，同时报告错误
	FailureRetain FailurePolicy = "retain"
)

var (
	// ErrUnknownExpiry 选择了当前快照中不存在的到期日
	ErrUnknownExpiry = errors.New("unknown expiry")
	// ErrStopped 数据源已停止，结果被丢弃
	ErrStopped = errors.New("options store stopped")
)

// Provider 期权数据源（实盘/模拟实现可互换）
// CallOptions/PutOptions 返回当前选中到期日下的合约，选中 ExpiryAll 时返回全部
type Provider interface {
	CallOptions() []OptionContract
	PutOptions() []OptionContract
	Expirations() []string
	CurrentPrice() float64
	SelectedExpiry() string
	SetSelectedExpiry(expiry string) error
	Loading() bool
	Err() error
	Refresh(ctx context.Context) error
	State() Status
	Snapshot() Snapshot
	BaseCoin() string
	Subscribe(fn func()) (unsubscribe func())
}

// observers 变更通知
type observers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func()
}

func (o *observers) subscribe(fn func()) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func())
	}
	id := o.nextID
	o.nextID++
	o.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.fns, id)
			o.mu.Unlock()
		})
	}
}

// notify 在调用方 goroutine 中依次回调；回调里不能再持有 store 的锁
func (o *observers) notify() {
	o.mu.Lock()
	fns := make([]func(), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
