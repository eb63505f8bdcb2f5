package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/optionsdesk/internal/ledger"
	"github.com/betbot/optionsdesk/internal/options"
	"github.com/betbot/optionsdesk/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Ledger: config.LedgerConfig{Backend: config.LedgerBackendMemory}}
	cfg.ApplyDefaults()
	return cfg
}

func TestNew_MockWithoutCredentials(t *testing.T) {
	a, err := New(testConfig(t), Options{Mock: true, MockPrice: 3000})
	require.NoError(t, err)
	defer a.Close(time.Second)

	assert.Nil(t, a.Client)
	assert.Nil(t, a.Trading)
	assert.Nil(t, a.Live)
	assert.Equal(t, 3000.0, a.Provider.CurrentPrice())
	assert.Equal(t, options.StatusReady, a.Provider.State())
}

func TestClose_LedgerOutlivesShutdownHooks(t *testing.T) {
	a, err := New(testConfig(t), Options{Mock: true})
	require.NoError(t, err)

	// 模拟 HTTP 排空期间仍在完成的下单请求
	hookErr := make(chan error, 1)
	a.Shutdown.OnShutdown("inflight_order", func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		err := a.Ledger.AddTrade(ledger.TradeRecord{OrderID: "abc123", Symbol: "BTC-30AUG24-60000-C", Side: "Buy", Quantity: 1})
		hookErr <- err
		return err
	})

	a.Close(2 * time.Second)
	require.NoError(t, <-hookErr)
	assert.Equal(t, 1, a.Ledger.Len())

	err = a.Ledger.AddTrade(ledger.TradeRecord{OrderID: "late"})
	assert.ErrorIs(t, err, ledger.ErrClosed)
}

func TestNew_LiveRequiresCredentials(t *testing.T) {
	_, err := New(testConfig(t), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Market.FailurePolicy = "explode"
	_, err := New(cfg, Options{Mock: true})
	var ce *config.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "market.failure_policy", ce.Field)
}

func TestNew_LiveStartAndClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var result any = map[string]any{"list": []any{}}
		if r.URL.Query().Get("category") == "spot" {
			result = map[string]any{"list": []map[string]string{{"symbol": r.URL.Query().Get("symbol"), "lastPrice": "100"}}}
		}
		b, _ := json.Marshal(result)
		_ = json.NewEncoder(w).Encode(map[string]any{"retCode": 0, "retMsg": "OK", "result": json.RawMessage(b)})
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Exchange.BaseURL = srv.URL
	cfg.Exchange.APIKey = "k"
	cfg.Exchange.APISecret = "s"
	cfg.Market.Underlyings = []string{"BTC"}
	cfg.Market.BaseCoin = "BTC"

	a, err := New(cfg, Options{})
	require.NoError(t, err)
	require.NotNil(t, a.Live)
	require.NotNil(t, a.Trading)
	assert.Nil(t, a.Stream)

	a.Start(context.Background())
	require.Eventually(t, func() bool { return a.Provider.State() == options.StatusReady }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return a.Provider.CurrentPrice() == 100 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, options.ExpiryAll, a.Provider.SelectedExpiry())

	a.Close(2 * time.Second)
}

func TestNew_WSPriceSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Exchange.APIKey = "k"
	cfg.Exchange.APISecret = "s"
	cfg.Market.PriceSource = config.PriceSourceWS

	a, err := New(cfg, Options{})
	require.NoError(t, err)
	assert.NotNil(t, a.Stream)
	a.Close(time.Second)
}
