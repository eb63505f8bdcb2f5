package ledger

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/optionsdesk/internal/metrics"
)

var log = logrus.WithField("component", "ledger")

// Ledger 本地提交过的订单记录
// 内存列表是唯一的读取来源，后端只做写后备份；写入失败不回滚内存
type Ledger struct {
	backend Backend
	now     func() time.Time

	mu      sync.RWMutex
	records []TradeRecord
	closed  bool

	subMu  sync.Mutex
	nextID int
	subs   map[int]func()
}

// Open 从后端加载已有记录
// 数据损坏或读取失败时返回空 Ledger 以及 *PersistenceError，Ledger 仍然可用
func Open(backend Backend) (*Ledger, error) {
	l := &Ledger{
		backend: backend,
		now:     time.Now,
		records: []TradeRecord{},
		subs:    make(map[int]func()),
	}

	blob, err := backend.Load()
	if err != nil {
		log.Errorf("加载成交记录失败: %v", err)
		return l, &PersistenceError{Op: "load", Key: StorageKey, Err: err}
	}
	if len(blob) == 0 {
		return l, nil
	}
	var records []TradeRecord
	if err := json.Unmarshal(blob, &records); err != nil {
		log.Errorf("成交记录数据损坏，按空记录处理: %v", err)
		return l, &PersistenceError{Op: "load", Key: StorageKey, Err: err}
	}
	if records != nil {
		l.records = records
	}
	log.Infof("已加载 %d 条成交记录", len(l.records))
	return l, nil
}

// AddTrade 追加一条记录并整体写回后端
// 写入失败返回 *PersistenceError，但内存中的记录保留
// Close 之后仍追加到内存，返回包装 ErrClosed 的 *PersistenceError
func (l *Ledger) AddTrade(rec TradeRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}

	err := l.append(rec)
	l.notify()
	if err != nil {
		metrics.LedgerWriteErrors.Add(1)
		log.Warnf("成交记录写入失败（内存已更新）: orderId=%s err=%v", rec.OrderID, err)
		return &PersistenceError{Op: "save", Key: StorageKey, Err: err}
	}
	log.Infof("记录成交: orderId=%s symbol=%s side=%s qty=%v price=%v",
		rec.OrderID, rec.Symbol, rec.Side, rec.Quantity, rec.Price)
	return nil
}

func (l *Ledger) append(rec TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)
	if l.closed {
		return ErrClosed
	}
	blob, err := json.Marshal(l.records)
	if err != nil {
		return err
	}
	return l.backend.Save(blob)
}

// ClearHistory 清空内存与后端
func (l *Ledger) ClearHistory() error {
	err := l.clear()
	l.notify()
	if err != nil {
		return &PersistenceError{Op: "clear", Key: StorageKey, Err: err}
	}
	log.Info("成交记录已清空")
	return nil
}

func (l *Ledger) clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = []TradeRecord{}
	if l.closed {
		return ErrClosed
	}
	return l.backend.Clear()
}

// Trades 按时间倒序返回记录副本
func (l *Ledger) Trades() []TradeRecord {
	l.mu.RLock()
	out := append([]TradeRecord(nil), l.records...)
	l.mu.RUnlock()

	// 先反转保证同一时间戳时新追加的在前
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Len 记录数量
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Subscribe 记录变化时回调；返回取消订阅函数
func (l *Ledger) Subscribe(fn func()) func() {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	return func() {
		l.subMu.Lock()
		delete(l.subs, id)
		l.subMu.Unlock()
	}
}

func (l *Ledger) notify() {
	l.subMu.Lock()
	fns := make([]func(), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Close 关闭后端；等待进行中的写入完成，可重复调用
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.backend.Close()
}
