package options

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// MockStore 固定数据的期权数据源，用于演示与测试
// 选择到期日时只做过滤，Refresh 不访问网络
type MockStore struct {
	base  string
	price float64

	mu       sync.RWMutex
	snap     Snapshot
	selected string
	obs      observers
}

var _ Provider = (*MockStore)(nil)

// NewMockStore 以 price 为中心生成三个到期日（now 之后 7/14/28 天）的合约
func NewMockStore(base string, price float64, now time.Time) *MockStore {
	return NewMockStoreFromSnapshot(base, price, MockSnapshot(base, price, now))
}

// NewMockStoreFromSnapshot 使用给定快照；默认选择最早的到期日
func NewMockStoreFromSnapshot(base string, price float64, snap Snapshot) *MockStore {
	snap = snap.Clone()
	sortContracts(snap.Calls)
	sortContracts(snap.Puts)
	return &MockStore{
		base:     strings.ToUpper(base),
		price:    price,
		snap:     snap,
		selected: chooseExpiry("", false, snap.Expirations),
	}
}

// MockSnapshot 生成确定性的模拟期权链
// 行权价覆盖 price 的 80%..120%，步长 5%，按价格量级取整
func MockSnapshot(base string, price float64, now time.Time) Snapshot {
	snap := Snapshot{
		Calls:       []OptionContract{},
		Puts:        []OptionContract{},
		Expirations: []string{},
		FetchedAt:   now,
	}
	if !validStrike(price) {
		return snap
	}
	base = strings.ToUpper(base)
	tick := math.Pow(10, math.Floor(math.Log10(price))-1)

	for _, days := range []int{7, 14, 28} {
		expiry := now.UTC().AddDate(0, 0, days).Format(expiryLayout)
		snap.Expirations = append(snap.Expirations, expiry)
		years := float64(days) / 365

		seen := make(map[float64]struct{})
		for i := -4; i <= 4; i++ {
			strike := math.Round(price*(1+0.05*float64(i))/tick) * tick
			if _, dup := seen[strike]; dup || strike <= 0 {
				continue
			}
			seen[strike] = struct{}{}
			for _, typ := range []OptionType{Call, Put} {
				c, err := mockContract(base, expiry, strike, typ, price, years)
				if err != nil {
					continue
				}
				if typ == Call {
					snap.Calls = append(snap.Calls, c)
				} else {
					snap.Puts = append(snap.Puts, c)
				}
			}
		}
	}
	sortContracts(snap.Calls)
	sortContracts(snap.Puts)
	return snap
}

// mockContract 用简单的近似生成看起来合理的行情与 Greeks，不是定价模型
func mockContract(base, expiry string, strike float64, typ OptionType, spot, years float64) (OptionContract, error) {
	symbol, err := ExchangeSymbol(base, expiry, strike, typ)
	if err != nil {
		return OptionContract{}, err
	}
	moneyness := (spot - strike) / spot
	if typ == Put {
		moneyness = -moneyness
	}
	// delta 随价内程度平滑变化，put 取负
	d := 1 / (1 + math.Exp(-moneyness*12))
	delta := math.Round(d*1000) / 1000
	if typ == Put {
		delta = -delta
	}

	iv := 0.55 + math.Abs(moneyness)*0.4
	timeValue := spot * iv * math.Sqrt(years) * 0.4 * math.Exp(-math.Abs(moneyness)*4)
	intrinsic := math.Max(0, spot*moneyness)
	mark := math.Round((intrinsic+timeValue)*100) / 100
	spread := math.Max(mark*0.02, 0.5)

	return OptionContract{
		Symbol:          symbol,
		Strike:          strike,
		Type:            typ,
		Expiry:          expiry,
		MarkPrice:       mark,
		Bid:             math.Round((mark-spread/2)*100) / 100,
		Ask:             math.Round((mark+spread/2)*100) / 100,
		IV:              math.Round(iv*10000) / 10000,
		Delta:           delta,
		Gamma:           math.Round(d*(1-d)/spot*1e6) / 1e6,
		Theta:           -math.Round(timeValue/(years*365)*0.5*100) / 100,
		Vega:            math.Round(spot*math.Sqrt(years)*d*(1-d)*0.01*100) / 100,
		Volume:          math.Round(1000 * math.Exp(-math.Abs(moneyness)*8)),
		OpenInterest:    math.Round(5000 * math.Exp(-math.Abs(moneyness)*5)),
		UnderlyingPrice: spot,
	}, nil
}

func (m *MockStore) CallOptions() []OptionContract {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return FilterByExpiry(m.snap.Calls, m.selected)
}

func (m *MockStore) PutOptions() []OptionContract {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return FilterByExpiry(m.snap.Puts, m.selected)
}

func (m *MockStore) Expirations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.snap.Expirations...)
}

func (m *MockStore) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone()
}

func (m *MockStore) CurrentPrice() float64 { return m.price }
func (m *MockStore) BaseCoin() string       { return m.base }
func (m *MockStore) Loading() bool          { return false }
func (m *MockStore) Err() error             { return nil }
func (m *MockStore) State() Status          { return StatusReady }

func (m *MockStore) SelectedExpiry() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selected
}

func (m *MockStore) SetSelectedExpiry(expiry string) error {
	m.mu.Lock()
	if err := validateExpiry(expiry, m.snap.Expirations); err != nil {
		m.mu.Unlock()
		return err
	}
	m.selected = expiry
	m.mu.Unlock()
	m.obs.notify()
	return nil
}

// Refresh 只重新触发通知
func (m *MockStore) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mock refresh: %w", err)
	}
	m.obs.notify()
	return nil
}

func (m *MockStore) Subscribe(fn func()) func() {
	return m.obs.subscribe(fn)
}
