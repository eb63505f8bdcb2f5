package bybit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/betbot/optionsdesk/pkg/syncgroup"
)

const (
	EndpointTickers       = "/v5/market/tickers"
	EndpointKline         = "/v5/market/kline"
	EndpointInstruments   = "/v5/market/instruments-info"
	EndpointWalletBalance = "/v5/account/wallet-balance"
	EndpointOrderCreate   = "/v5/order/create"
	EndpointOrderHistory  = "/v5/order/history"
)

// InstrumentsQuery 期权合约列表查询
type InstrumentsQuery struct {
	BaseCoin string
	Status   string // 为空时不过滤
	Limit    int
	Cursor   string
}

// TickersQuery 期权 ticker 查询；BaseCoin 与 Symbol 至少一个
type TickersQuery struct {
	Symbol   string
	BaseCoin string
	ExpDate  string // 例如 30AUG24
}

// HistoryQuery 期权历史订单查询
type HistoryQuery struct {
	Symbol   string
	BaseCoin string
	Limit    int
	Cursor   string
}

// GetMarketData 获取现货 ticker，例如 BTCUSDT
func (c *Client) GetMarketData(ctx context.Context, symbol string) (*SpotTicker, error) {
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", strings.ToUpper(symbol))

	var result struct {
		List []SpotTicker `json:"list"`
	}
	if err := c.call(ctx, http.MethodGet, EndpointTickers, q, nil, &result); err != nil {
		return nil, err
	}
	for i := range result.List {
		if strings.EqualFold(result.List[i].Symbol, symbol) {
			return &result.List[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
}

// GetKlineData 获取现货 K 线，interval 取交易所枚举（1, 5, 60, D ...）
func (c *Client) GetKlineData(ctx context.Context, symbol, interval string, limit int) ([]KlineBar, error) {
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := c.call(ctx, http.MethodGet, EndpointKline, q, nil, &result); err != nil {
		return nil, err
	}

	bars := make([]KlineBar, 0, len(result.List))
	for _, row := range result.List {
		if len(row) < 7 {
			continue
		}
		bars = append(bars, KlineBar{
			StartTime: row[0],
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
			Turnover:  row[6],
		})
	}
	return bars, nil
}

// GetAccountInfo 获取统一账户余额
func (c *Client) GetAccountInfo(ctx context.Context) ([]WalletAccount, error) {
	q := url.Values{}
	q.Set("accountType", "UNIFIED")

	var result struct {
		List []WalletAccount `json:"list"`
	}
	if err := c.call(ctx, http.MethodGet, EndpointWalletBalance, q, nil, &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

// GetOptionInstruments 获取一页期权合约列表；NextPageCursor 为空表示没有下一页
func (c *Client) GetOptionInstruments(ctx context.Context, query InstrumentsQuery) (*InstrumentsPage, error) {
	q := url.Values{}
	q.Set("category", "option")
	if query.BaseCoin != "" {
		q.Set("baseCoin", strings.ToUpper(query.BaseCoin))
	}
	if query.Status != "" {
		q.Set("status", query.Status)
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Cursor != "" {
		q.Set("cursor", query.Cursor)
	}

	var page InstrumentsPage
	if err := c.call(ctx, http.MethodGet, EndpointInstruments, q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetOptionTickers 获取期权 ticker 列表
func (c *Client) GetOptionTickers(ctx context.Context, query TickersQuery) ([]OptionTicker, error) {
	q := url.Values{}
	q.Set("category", "option")
	if query.Symbol != "" {
		q.Set("symbol", query.Symbol)
	}
	if query.BaseCoin != "" {
		q.Set("baseCoin", strings.ToUpper(query.BaseCoin))
	}
	if query.ExpDate != "" {
		q.Set("expDate", strings.ToUpper(query.ExpDate))
	}

	var result struct {
		List []OptionTicker `json:"list"`
	}
	if err := c.call(ctx, http.MethodGet, EndpointTickers, q, nil, &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

// GetSpotPrices 并发获取多个现货最新价，返回 symbol -> lastPrice
// 任一请求失败则返回错误（同时返回已成功的部分）
func (c *Client) GetSpotPrices(ctx context.Context, symbols ...string) (map[string]float64, error) {
	var mu sync.Mutex
	prices := make(map[string]float64, len(symbols))

	sg := syncgroup.NewSyncGroup()
	for _, sym := range symbols {
		sym := strings.ToUpper(sym)
		sg.Add(func() error {
			t, err := c.GetMarketData(ctx, sym)
			if err != nil {
				return err
			}
			p, err := decimal.NewFromString(t.LastPrice)
			if err != nil {
				return fmt.Errorf("%s lastPrice 无法解析: %q", sym, t.LastPrice)
			}
			mu.Lock()
			prices[sym] = p.InexactFloat64()
			mu.Unlock()
			return nil
		})
	}
	err := sg.RunAndWait()
	return prices, err
}

// GetOptionOrderHistory 获取期权历史订单
func (c *Client) GetOptionOrderHistory(ctx context.Context, query HistoryQuery) (*OrderHistoryPage, error) {
	q := url.Values{}
	q.Set("category", "option")
	if query.Symbol != "" {
		q.Set("symbol", query.Symbol)
	}
	if query.BaseCoin != "" {
		q.Set("baseCoin", strings.ToUpper(query.BaseCoin))
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Cursor != "" {
		q.Set("cursor", query.Cursor)
	}

	var page OrderHistoryPage
	if err := c.call(ctx, http.MethodGet, EndpointOrderHistory, q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
