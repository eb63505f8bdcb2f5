package syncgroup

import (
	"errors"
	"sync"
)

type syncGroupFunc func() error

// SyncGroup 是 sync.WaitGroup 的包装器，简化 goroutine 生命周期管理
// 自动管理 Add() 和 Done()，并收集每个函数返回的错误
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	sgFuncs []syncGroupFunc
	errs    []error
	running bool
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 添加一个待运行函数
// 运行期间调用 Add 会被忽略，需要先 Wait 完成本轮
func (w *SyncGroup) Add(fn syncGroupFunc) {
	if fn == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.sgFuncs = append(w.sgFuncs, fn)
}

// Run 并发启动所有已添加的函数，并清空函数列表
func (w *SyncGroup) Run() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	fns := w.sgFuncs
	w.sgFuncs = nil
	w.errs = nil
	w.running = true
	w.mu.Unlock()

	w.wg.Add(len(fns))
	for _, fn := range fns {
		go func(doFunc syncGroupFunc) {
			defer w.wg.Done()
			if err := doFunc(); err != nil {
				w.mu.Lock()
				w.errs = append(w.errs, err)
				w.mu.Unlock()
			}
		}(fn)
	}
}

// Wait 等待本轮所有函数完成，返回合并后的错误（无错误返回 nil）
func (w *SyncGroup) Wait() error {
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
	err := errors.Join(w.errs...)
	w.errs = nil
	return err
}

// RunAndWait 运行并等待
func (w *SyncGroup) RunAndWait() error {
	w.Run()
	return w.Wait()
}
