package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/optionsdesk/internal/exchange/bybit"
	"github.com/betbot/optionsdesk/internal/ledger"
	"github.com/betbot/optionsdesk/internal/options"
	"github.com/betbot/optionsdesk/internal/services"
)

var fixtureNow = time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

type exchangeStub struct {
	status  int
	result  any
	retCode int
}

func (e *exchangeStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e.status != 0 && e.status != http.StatusOK {
		http.Error(w, "denied", e.status)
		return
	}
	b, _ := json.Marshal(e.result)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"retCode": e.retCode, "retMsg": "stub", "result": json.RawMessage(b)})
}

func newTestServer(t *testing.T, stub *exchangeStub) (http.Handler, *options.MockStore) {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	client, err := bybit.NewClient(bybit.Credentials{APIKey: "k", APISecret: "s"}, bybit.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	l, err := ledger.Open(ledger.NewMemoryBackend())
	require.NoError(t, err)

	store := options.NewMockStore("BTC", 60000, fixtureNow)
	return NewServer(store, services.NewTradingService(client, l), l, client).Router(), store
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHealthz(t *testing.T) {
	h, _ := newTestServer(t, &exchangeStub{})
	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready"`)
}

func TestDebugVars(t *testing.T) {
	h, _ := newTestServer(t, &exchangeStub{})
	rec := do(t, h, http.MethodGet, "/debug/vars", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"orders_placed"`)
}

func TestOptionsAndExpirySelection(t *testing.T) {
	h, store := newTestServer(t, &exchangeStub{})

	var resp optionsResponse
	rec := do(t, h, http.MethodGet, "/api/options", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, "BTC", resp.BaseCoin)
	assert.Equal(t, 60000.0, resp.CurrentPrice)
	assert.Equal(t, "2024-08-08", resp.SelectedExpiry)
	assert.Len(t, resp.Expirations, 3)
	assert.Len(t, resp.Calls, 9)
	for _, c := range resp.Calls {
		assert.Equal(t, "2024-08-08", c.Expiry)
	}

	rec = do(t, h, http.MethodPut, "/api/options/expiry", selectExpiryRequest{Expiry: "2024-08-29"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-08-29", store.SelectedExpiry())

	rec = do(t, h, http.MethodPut, "/api/options/expiry", selectExpiryRequest{Expiry: "2031-01-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var eb errorBody
	decode(t, rec, &eb)
	assert.Equal(t, kindValidation, eb.Kind)

	rec = do(t, h, http.MethodPut, "/api/options/expiry", selectExpiryRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var exps struct {
		Expirations []string `json:"expirations"`
		Selected    string   `json:"selected"`
	}
	rec = do(t, h, http.MethodGet, "/api/options/expirations", nil)
	decode(t, rec, &exps)
	assert.Equal(t, []string{"2024-08-08", "2024-08-15", "2024-08-29"}, exps.Expirations)
	assert.Equal(t, "2024-08-29", exps.Selected)

	rec = do(t, h, http.MethodPost, "/api/options/refresh", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecommendations(t *testing.T) {
	h, _ := newTestServer(t, &exchangeStub{})

	var resp struct {
		Spot            float64          `json:"spot"`
		Recommendations []recommendation `json:"recommendations"`
	}
	rec := do(t, h, http.MethodGet, "/api/options/recommendations?limit=4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, 60000.0, resp.Spot)
	assert.LessOrEqual(t, len(resp.Recommendations), 4)
	for i := 1; i < len(resp.Recommendations); i++ {
		assert.GreaterOrEqual(t, resp.Recommendations[i-1].Volume, resp.Recommendations[i].Volume)
	}

	rec = do(t, h, http.MethodGet, "/api/options/recommendations?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPricesFallsBackToCurrentPrice(t *testing.T) {
	h, _ := newTestServer(t, &exchangeStub{})
	rec := do(t, h, http.MethodGet, "/api/prices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"BTCUSDT"`)
}

func TestPlaceOrderAndTrades(t *testing.T) {
	h, _ := newTestServer(t, &exchangeStub{result: map[string]string{"orderId": "abc123"}})

	price := 50.0
	rec := do(t, h, http.MethodPost, "/api/orders", services.OrderTicket{Symbol: "BTC-30AUG24-60000-C", Side: bybit.SideBuy, Qty: 0.01, Price: &price})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var trades struct {
		Trades []ledger.TradeRecord `json:"trades"`
	}
	rec = do(t, h, http.MethodGet, "/api/trades", nil)
	decode(t, rec, &trades)
	require.Len(t, trades.Trades, 1)
	assert.Equal(t, "abc123", trades.Trades[0].OrderID)
	assert.NotEmpty(t, trades.Trades[0].ClientOrderID)

	rec = do(t, h, http.MethodDelete, "/api/trades", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/trades", nil)
	decode(t, rec, &trades)
	assert.Empty(t, trades.Trades)
}

func TestPlaceOrderTransportErrorIs502(t *testing.T) {
	h, _ := newTestServer(t, &exchangeStub{status: http.StatusForbidden})

	rec := do(t, h, http.MethodPost, "/api/orders", services.OrderTicket{Symbol: "BTC-30AUG24-60000-C", Side: bybit.SideBuy, Qty: 0.01})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var eb errorBody
	decode(t, rec, &eb)
	assert.Equal(t, kindTransport, eb.Kind)
	assert.Contains(t, eb.Error, "403")

	var trades struct {
		Trades []ledger.TradeRecord `json:"trades"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/trades", nil), &trades)
	assert.Empty(t, trades.Trades)
}

func TestPlaceOrderUpstreamRejectionIs502(t *testing.T) {
	h, _ := newTestServer(t, &exchangeStub{retCode: 10001})
	rec := do(t, h, http.MethodPost, "/api/orders", services.OrderTicket{Symbol: "BTC-30AUG24-60000-C", Side: bybit.SideSell, Qty: 1})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var eb errorBody
	decode(t, rec, &eb)
	assert.Equal(t, kindUpstream, eb.Kind)
}

func TestPlaceOrderValidation(t *testing.T) {
	h, _ := newTestServer(t, &exchangeStub{})
	rec := do(t, h, http.MethodPost, "/api/orders", services.OrderTicket{Symbol: "BTC-30AUG24-60000-C", Side: "hold", Qty: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderHistoryAndKlines(t *testing.T) {
	stub := &exchangeStub{result: map[string]any{
		"category": "option",
		"list":     []map[string]string{{"orderId": "o1"}},
	}}
	h, _ := newTestServer(t, stub)

	rec := do(t, h, http.MethodGet, "/api/orders/history?symbol=BTC-30AUG24-60000-C", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"o1"`)

	stub.result = map[string]any{"list": [][]string{{"1717000000000", "1", "2", "0.5", "1.5", "10", "15"}}}
	rec = do(t, h, http.MethodGet, "/api/klines?symbol=btcusdt&interval=60&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"BTCUSDT"`)
}

func TestReadOnlyModeIs503(t *testing.T) {
	h := NewServer(options.NewMockStore("ETH", 3000, fixtureNow), nil, nil, nil).Router()
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/orders"},
		{http.MethodGet, "/api/trades"},
		{http.MethodGet, "/api/klines"},
		{http.MethodGet, "/api/account"},
	} {
		rec := do(t, h, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.path)
	}
}

func TestTradesWithoutTrading(t *testing.T) {
	l, err := ledger.Open(ledger.NewMemoryBackend())
	require.NoError(t, err)
	require.NoError(t, l.AddTrade(ledger.TradeRecord{OrderID: "abc123", Symbol: "ETH-30AUG24-3000-C", Side: "Buy", Quantity: 1}))
	h := NewServer(options.NewMockStore("ETH", 3000, fixtureNow), nil, l, nil).Router()

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Contains(t, rec.Body.String(), `"trades":1`)

	var trades struct {
		Trades []ledger.TradeRecord `json:"trades"`
	}
	rec = do(t, h, http.MethodGet, "/api/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &trades)
	require.Len(t, trades.Trades, 1)
	assert.Equal(t, "abc123", trades.Trades[0].OrderID)

	rec = do(t, h, http.MethodDelete, "/api/trades", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, l.Trades())

	// 没有凭证时下单仍不可用
	rec = do(t, h, http.MethodPost, "/api/orders", services.OrderTicket{Symbol: "ETH-30AUG24-3000-C", Side: bybit.SideBuy, Qty: 1})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefreshFailureIs502(t *testing.T) {
	market := failingMarket{err: &bybit.TransportError{Endpoint: bybit.EndpointInstruments, StatusCode: 500}}
	store := options.NewLiveStore(options.LiveConfig{}, market, nil)
	defer store.Stop()
	h := NewServer(store, nil, nil, nil).Router()

	rec := do(t, h, http.MethodPost, "/api/options/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp optionsResponse
	decode(t, do(t, h, http.MethodGet, "/api/options", nil), &resp)
	assert.Equal(t, options.StatusFailed, resp.Status)
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.Calls)
}

type failingMarket struct{ err error }

func (f failingMarket) GetOptionInstruments(context.Context, bybit.InstrumentsQuery) (*bybit.InstrumentsPage, error) {
	return nil, f.err
}

func (f failingMarket) GetOptionTickers(context.Context, bybit.TickersQuery) ([]bybit.OptionTicker, error) {
	return nil, f.err
}
