package options

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/optionsdesk/internal/exchange/bybit"
	"github.com/betbot/optionsdesk/internal/metrics"
	"github.com/betbot/optionsdesk/pkg/cache"
	"github.com/betbot/optionsdesk/pkg/sigchan"
	"github.com/betbot/optionsdesk/pkg/syncgroup"
)

var log = logrus.WithField("component", "options_store")

// MarketSource 期权链数据来源
type MarketSource interface {
	GetOptionInstruments(ctx context.Context, query bybit.InstrumentsQuery) (*bybit.InstrumentsPage, error)
	GetOptionTickers(ctx context.Context, query bybit.TickersQuery) ([]bybit.OptionTicker, error)
}

// PriceSource 标的现货价格来源，symbol 例如 BTCUSDT
type PriceSource interface {
	SpotPrice(ctx context.Context, symbol string) (float64, error)
}

// RESTPriceSource 通过 REST ticker 获取现货价格
type RESTPriceSource struct {
	Client *bybit.Client
}

func (r RESTPriceSource) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	t, err := r.Client.GetMarketData(ctx, symbol)
	if err != nil {
		return 0, err
	}
	p := toFloat(t.LastPrice)
	if p <= 0 {
		return 0, fmt.Errorf("%s lastPrice 无效: %q", symbol, t.LastPrice)
	}
	return p, nil
}

// SpotSymbol 标的对应的 USDT 现货交易对
func SpotSymbol(base string) string {
	return strings.ToUpper(base) + "USDT"
}

// LiveConfig 实盘数据源配置
type LiveConfig struct {
	BaseCoin           string
	Underlyings        []string // 价格看板展示的全部标的，默认只有 BaseCoin
	PriceInterval      time.Duration
	ChainInterval      time.Duration
	MaxInstrumentPages int
	PageSize           int
	FailurePolicy      FailurePolicy
	PriceTTL           time.Duration
}

func (c *LiveConfig) applyDefaults() {
	c.BaseCoin = strings.ToUpper(c.BaseCoin)
	if c.BaseCoin == "" {
		c.BaseCoin = "BTC"
	}
	if len(c.Underlyings) == 0 {
		c.Underlyings = []string{c.BaseCoin}
	}
	if c.PriceInterval <= 0 {
		c.PriceInterval = 5 * time.Second
	}
	if c.ChainInterval <= 0 {
		c.ChainInterval = 60 * time.Second
	}
	if c.MaxInstrumentPages <= 0 {
		c.MaxInstrumentPages = 10
	}
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = FailureClear
	}
	if c.PriceTTL <= 0 {
		c.PriceTTL = 30 * time.Second
	}
}

// LiveStore 由交易所数据驱动的期权数据源
// 两个独立循环：参考价格（短间隔）与期权链（长间隔或手动刷新），互不协调
type LiveStore struct {
	cfg    LiveConfig
	market MarketSource
	prices PriceSource
	board  *cache.PriceBoard
	now    func() time.Time

	mu          sync.RWMutex
	snap        Snapshot
	status      Status
	err         error
	selected    string
	explicitAll bool
	price       float64
	stopped     bool

	// 同一循环内不允许重叠
	chainMu sync.Mutex
	priceMu sync.Mutex

	refreshSig *sigchan.Chan
	obs        observers

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Provider = (*LiveStore)(nil)

// NewLiveStore 创建实盘数据源；prices 为 nil 时不更新参考价格
func NewLiveStore(cfg LiveConfig, market MarketSource, prices PriceSource) *LiveStore {
	cfg.applyDefaults()
	return &LiveStore{
		cfg:        cfg,
		market:     market,
		prices:     prices,
		board:      cache.NewPriceBoard(cfg.PriceTTL),
		now:        time.Now,
		status:     StatusIdle,
		snap:       Snapshot{Calls: []OptionContract{}, Puts: []OptionContract{}, Expirations: []string{}},
		refreshSig: sigchan.New(1),
	}
}

// Start 启动两个轮询循环，立即各执行一次
func (s *LiveStore) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(2)
	go s.priceLoop(ctx)
	go s.chainLoop(ctx)
	log.Infof("期权数据源已启动: baseCoin=%s price=%v chain=%v policy=%s",
		s.cfg.BaseCoin, s.cfg.PriceInterval, s.cfg.ChainInterval, s.cfg.FailurePolicy)
}

// Stop 停止循环；停止后到达的结果被丢弃
func (s *LiveStore) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.board.Close()
}

// RequestRefresh 请求期权链循环尽快刷新（非阻塞，多次请求会合并）
func (s *LiveStore) RequestRefresh() {
	s.refreshSig.Emit()
}

func (s *LiveStore) priceLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PriceInterval)
	defer ticker.Stop()

	for {
		if err := s.RefreshPrice(ctx); err != nil && ctx.Err() == nil {
			metrics.PriceRefreshErrors.Add(1)
			log.Warnf("刷新参考价格失败: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *LiveStore) chainLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ChainInterval)
	defer ticker.Stop()

	for {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.Warnf("刷新期权链失败: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.refreshSig.C():
		}
	}
}

// RefreshPrice 拉取全部标的现货价，更新价格看板与当前参考价格
func (s *LiveStore) RefreshPrice(ctx context.Context) error {
	if s.prices == nil {
		return nil
	}
	s.priceMu.Lock()
	defer s.priceMu.Unlock()

	var mu sync.Mutex
	got := make(map[string]float64, len(s.cfg.Underlyings))
	sg := syncgroup.NewSyncGroup()
	for _, u := range s.cfg.Underlyings {
		sym := SpotSymbol(u)
		sg.Add(func() error {
			p, err := s.prices.SpotPrice(ctx, sym)
			if err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
			mu.Lock()
			got[sym] = p
			mu.Unlock()
			return nil
		})
	}
	err := sg.RunAndWait()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.board.SetAll(got)
	changed := false
	if p, ok := got[SpotSymbol(s.cfg.BaseCoin)]; ok && p != s.price {
		s.price = p
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.obs.notify()
	}
	return err
}

// Refresh 立即执行一次期权链轮询（与循环中的轮询互斥）
func (s *LiveStore) Refresh(ctx context.Context) error {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	prevStatus, prevErr := s.status, s.err
	s.status = StatusLoading
	s.mu.Unlock()
	s.obs.notify()

	snap, err := s.fetch(ctx)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if err != nil && ctx.Err() != nil {
		// 调用方取消或超时：丢弃本次结果，恢复之前的状态
		s.status, s.err = prevStatus, prevErr
		s.mu.Unlock()
		s.obs.notify()
		log.Debugf("期权链刷新被调用方取消: %v", ctx.Err())
		return err
	}
	metrics.ChainRefreshes.Add(1)
	if err != nil {
		metrics.ChainRefreshErrors.Add(1)
		s.status = StatusFailed
		s.err = err
		if s.cfg.FailurePolicy == FailureClear {
			s.snap = Snapshot{Calls: []OptionContract{}, Puts: []OptionContract{}, Expirations: []string{}}
		}
	} else {
		s.snap = snap
		s.status = StatusReady
		s.err = nil
		s.selected = chooseExpiry(s.selected, s.explicitAll, snap.Expirations)
		if s.selected != ExpiryAll {
			s.explicitAll = false
		}
	}
	s.mu.Unlock()
	s.obs.notify()

	if err == nil {
		log.Debugf("期权链已更新: calls=%d puts=%d expirations=%d", len(snap.Calls), len(snap.Puts), len(snap.Expirations))
	}
	return err
}

// fetch 并发拉取合约列表（分页）与 ticker，然后合并
func (s *LiveStore) fetch(ctx context.Context) (Snapshot, error) {
	var (
		instruments []bybit.Instrument
		tickers     []bybit.OptionTicker
	)

	sg := syncgroup.NewSyncGroup()
	sg.Add(func() error {
		var err error
		instruments, err = s.fetchInstruments(ctx)
		return err
	})
	sg.Add(func() error {
		var err error
		tickers, err = s.market.GetOptionTickers(ctx, bybit.TickersQuery{BaseCoin: s.cfg.BaseCoin})
		if err != nil {
			return fmt.Errorf("获取期权 ticker 失败: %w", err)
		}
		return nil
	})
	if err := sg.RunAndWait(); err != nil {
		return Snapshot{}, err
	}

	snap := BuildSnapshot(instruments, tickers)
	snap.FetchedAt = s.now()
	return snap, nil
}

func (s *LiveStore) fetchInstruments(ctx context.Context) ([]bybit.Instrument, error) {
	var (
		all    []bybit.Instrument
		cursor string
	)
	for page := 0; page < s.cfg.MaxInstrumentPages; page++ {
		resp, err := s.market.GetOptionInstruments(ctx, bybit.InstrumentsQuery{
			BaseCoin: s.cfg.BaseCoin,
			Limit:    s.cfg.PageSize,
			Cursor:   cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("获取期权合约列表失败: %w", err)
		}
		all = append(all, resp.List...)
		if resp.NextPageCursor == "" || resp.NextPageCursor == cursor {
			return all, nil
		}
		cursor = resp.NextPageCursor
	}
	log.Warnf("合约列表超过 %d 页，剩余部分被忽略", s.cfg.MaxInstrumentPages)
	return all, nil
}

func (s *LiveStore) CallOptions() []OptionContract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterByExpiry(s.snap.Calls, s.selected)
}

func (s *LiveStore) PutOptions() []OptionContract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterByExpiry(s.snap.Puts, s.selected)
}

func (s *LiveStore) Expirations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.snap.Expirations...)
}

func (s *LiveStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

func (s *LiveStore) CurrentPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price
}

// Prices 价格看板中未过期的全部报价
func (s *LiveStore) Prices() []cache.Quote {
	return s.board.Snapshot()
}

func (s *LiveStore) BaseCoin() string { return s.cfg.BaseCoin }

func (s *LiveStore) SelectedExpiry() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == "" {
		return ExpiryAll
	}
	return s.selected
}

// SetSelectedExpiry 选择到期日；ExpiryAll 表示不过滤
func (s *LiveStore) SetSelectedExpiry(expiry string) error {
	s.mu.Lock()
	if err := validateExpiry(expiry, s.snap.Expirations); err != nil {
		s.mu.Unlock()
		return err
	}
	s.selected = expiry
	s.explicitAll = expiry == ExpiryAll
	s.mu.Unlock()
	s.obs.notify()
	return nil
}

func validateExpiry(expiry string, expirations []string) error {
	if expiry == ExpiryAll {
		return nil
	}
	for _, e := range expirations {
		if e == expiry {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownExpiry, expiry)
}

func (s *LiveStore) Loading() bool {
	return s.State() == StatusLoading
}

func (s *LiveStore) State() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Err 最近一次期权链轮询的错误，成功后清空
func (s *LiveStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *LiveStore) Subscribe(fn func()) func() {
	return s.obs.subscribe(fn)
}

// ErrorMessage 便于展示的错误文本
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var te *bybit.TransportError
	var ur *bybit.UpstreamRejection
	switch {
	case errors.As(err, &te):
		if te.StatusCode > 0 {
			return fmt.Sprintf("交易所请求失败 (HTTP %d)", te.StatusCode)
		}
		return "无法连接交易所"
	case errors.As(err, &ur):
		return fmt.Sprintf("交易所拒绝请求: %s (%d)", ur.RetMsg, ur.RetCode)
	default:
		return err.Error()
	}
}
