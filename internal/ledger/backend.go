package ledger

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/betbot/optionsdesk/pkg/config"
)

// Backend 持久化后端：整份记录列表以一个 JSON 数组存放在 StorageKey 下
// Load 在没有数据时返回 (nil, nil)
type Backend interface {
	Load() ([]byte, error)
	Save(blob []byte) error
	Clear() error
	Close() error
}

// OpenBackend 按配置打开后端；path 为数据目录
func OpenBackend(kind, path string) (Backend, error) {
	if path == "" {
		path = config.DefaultLedgerPath
	}
	switch kind {
	case "", config.LedgerBackendFile:
		return NewFileBackend(path), nil
	case config.LedgerBackendSQLite:
		return OpenSQLiteBackend(filepath.Join(path, "ledger.db"))
	case config.LedgerBackendBadger:
		return OpenBadgerBackend(filepath.Join(path, "ledger"), false)
	case config.LedgerBackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("未知的 ledger 后端: %q", kind)
	}
}

// ErrInjected MemoryBackend 注入的故障
var ErrInjected = errors.New("injected backend failure")

// MemoryBackend 进程内后端，可注入读写失败
type MemoryBackend struct {
	mu        sync.Mutex
	blob      []byte
	FailSave  bool
	FailLoad  bool
	FailClear bool
	saves     int
	closed    bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// NewMemoryBackendWith 以已有内容初始化（例如模拟损坏的数据）
func NewMemoryBackendWith(blob []byte) *MemoryBackend {
	return &MemoryBackend{blob: append([]byte(nil), blob...)}
}

func (m *MemoryBackend) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.FailLoad {
		return nil, ErrInjected
	}
	if m.blob == nil {
		return nil, nil
	}
	return append([]byte(nil), m.blob...), nil
}

func (m *MemoryBackend) Save(blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.FailSave {
		return ErrInjected
	}
	m.blob = append([]byte(nil), blob...)
	m.saves++
	return nil
}

func (m *MemoryBackend) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.FailClear {
		return ErrInjected
	}
	m.blob = nil
	return nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// SetFailSave 切换写入失败
func (m *MemoryBackend) SetFailSave(fail bool) {
	m.mu.Lock()
	m.FailSave = fail
	m.mu.Unlock()
}

// Blob 当前保存的内容
func (m *MemoryBackend) Blob() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.blob...)
}

// Saves 成功写入次数
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
