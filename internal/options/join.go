package options

import (
	"sort"

	"github.com/betbot/optionsdesk/internal/exchange/bybit"
)

// BuildSnapshot 合并合约信息与 ticker，生成一次完整快照（纯函数）
//   - ticker 按 symbol 建索引，每个合约左连接；缺失的 ticker 字段按 0 处理
//   - 行权价不是有限正数、或无法确定类型/到期日的合约被丢弃
//   - 同一 symbol 只保留第一次出现
//   - 合约按 (到期日, 行权价, symbol) 排序，到期日列表去重升序
func BuildSnapshot(instruments []bybit.Instrument, tickers []bybit.OptionTicker) Snapshot {
	bySymbol := make(map[string]*bybit.OptionTicker, len(tickers))
	for i := range tickers {
		if _, dup := bySymbol[tickers[i].Symbol]; !dup {
			bySymbol[tickers[i].Symbol] = &tickers[i]
		}
	}

	seen := make(map[string]struct{}, len(instruments))
	expiries := make(map[string]struct{})
	snap := Snapshot{
		Calls:       []OptionContract{},
		Puts:        []OptionContract{},
		Expirations: []string{},
	}

	for _, inst := range instruments {
		if inst.Symbol == "" {
			continue
		}
		if _, dup := seen[inst.Symbol]; dup {
			continue
		}
		seen[inst.Symbol] = struct{}{}

		c, ok := buildContract(inst, bySymbol[inst.Symbol])
		if !ok {
			continue
		}
		expiries[c.Expiry] = struct{}{}
		if c.Type == Call {
			snap.Calls = append(snap.Calls, c)
		} else {
			snap.Puts = append(snap.Puts, c)
		}
	}

	sortContracts(snap.Calls)
	sortContracts(snap.Puts)
	for e := range expiries {
		snap.Expirations = append(snap.Expirations, e)
	}
	sort.Strings(snap.Expirations)
	return snap
}

func buildContract(inst bybit.Instrument, t *bybit.OptionTicker) (OptionContract, bool) {
	parts, parsed := parseSymbol(inst.Symbol)

	c := OptionContract{
		Symbol: inst.Symbol,
		Strike: resolveStrike(string(inst.StrikePrice), parts, parsed),
		Type:   resolveType(inst.OptionsType, parts, parsed),
		Expiry: resolveExpiry(inst.DeliveryTime, parts, parsed),
	}
	if !validStrike(c.Strike) || c.Type == "" || c.Expiry == "" {
		return OptionContract{}, false
	}

	if t != nil {
		c.MarkPrice = toFloat(t.MarkPrice)
		c.Bid = toFloat(t.Bid1Price)
		c.Ask = toFloat(t.Ask1Price)
		c.IV = toFloat(t.MarkIv)
		c.Delta = toFloat(t.Delta)
		c.Gamma = toFloat(t.Gamma)
		c.Theta = toFloat(t.Theta)
		c.Vega = toFloat(t.Vega)
		c.Volume = toFloat(t.Volume24h)
		c.OpenInterest = toFloat(t.OpenInterest)
		c.UnderlyingPrice = toFloat(t.IndexPrice)
		if c.UnderlyingPrice == 0 {
			c.UnderlyingPrice = toFloat(t.UnderlyingPrice)
		}
	}
	return c, true
}

func sortContracts(cs []OptionContract) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Expiry != cs[j].Expiry {
			return cs[i].Expiry < cs[j].Expiry
		}
		if cs[i].Strike != cs[j].Strike {
			return cs[i].Strike < cs[j].Strike
		}
		return cs[i].Symbol < cs[j].Symbol
	})
}

// chooseExpiry 轮询成功后的到期日选择
//   - 没有任何到期日时为 ExpiryAll
//   - 用户显式选择的 ExpiryAll 保留
//   - 当前选择仍存在则保留
//   - 否则（未选择、隐式 ExpiryAll、已下架）选择最早的到期日
func chooseExpiry(current string, explicitAll bool, expirations []string) string {
	if len(expirations) == 0 {
		return ExpiryAll
	}
	if current == ExpiryAll && explicitAll {
		return ExpiryAll
	}
	for _, e := range expirations {
		if e == current {
			return current
		}
	}
	return expirations[0]
}
