package options

import (
	"encoding/json"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/optionsdesk/internal/exchange/bybit"
)

// 2024-08-30 08:00:00 UTC
const aug30Delivery = "1725004800000"

func inst(symbol, optionsType, delivery string) bybit.Instrument {
	return bybit.Instrument{Symbol: symbol, OptionsType: optionsType, DeliveryTime: delivery}
}

func sampleChain() ([]bybit.Instrument, []bybit.OptionTicker) {
	instruments := []bybit.Instrument{
		inst("BTC-30AUG24-60000-C", "Call", aug30Delivery),
		inst("BTC-30AUG24-60000-P", "Put", aug30Delivery),
		inst("BTC-30AUG24-55000-C", "Call", aug30Delivery),
		inst("BTC-27SEP24-70000-C", "Call", ""),
		inst("BTC-27SEP24-70000-P", "", ""),
	}
	tickers := []bybit.OptionTicker{
		{Symbol: "BTC-30AUG24-60000-C", MarkPrice: "1520.5", Bid1Price: "1500", Ask1Price: "1540", MarkIv: "0.52", Delta: "0.48", Gamma: "0.00004", Theta: "-45.1", Vega: "30.2", Volume24h: "12.5", OpenInterest: "300", IndexPrice: "59850.12"},
		{Symbol: "BTC-30AUG24-60000-P", MarkPrice: "1700", Delta: "-0.52"},
		{Symbol: "BTC-27SEP24-70000-C", MarkPrice: "not-a-number", Delta: ""},
	}
	return instruments, tickers
}

func TestBuildSnapshot_ScenarioContract(t *testing.T) {
	instruments, tickers := sampleChain()
	snap := BuildSnapshot(instruments, tickers)

	var got *OptionContract
	for i := range snap.Calls {
		if snap.Calls[i].Symbol == "BTC-30AUG24-60000-C" {
			got = &snap.Calls[i]
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, 60000.0, got.Strike)
	assert.Equal(t, Call, got.Type)
	assert.Equal(t, "2024-08-30", got.Expiry)
	assert.Equal(t, 1520.5, got.MarkPrice)
	assert.Equal(t, 0.48, got.Delta)
	assert.Equal(t, 59850.12, got.UnderlyingPrice)
}

func TestBuildSnapshot_ExpiryFromSymbol(t *testing.T) {
	snap := BuildSnapshot([]bybit.Instrument{inst("BTC-30AUG24-60000-C", "", "")}, nil)
	require.Len(t, snap.Calls, 1)
	assert.Equal(t, "2024-08-30", snap.Calls[0].Expiry)
	assert.Equal(t, Call, snap.Calls[0].Type)
	assert.Equal(t, []string{"2024-08-30"}, snap.Expirations)
}

func TestBuildSnapshot_SettleSuffix(t *testing.T) {
	snap := BuildSnapshot([]bybit.Instrument{inst("ETH-5JUL24-3500.5-P-USDT", "", "")}, nil)
	require.Len(t, snap.Puts, 1)
	assert.Equal(t, 3500.5, snap.Puts[0].Strike)
	assert.Equal(t, "2024-07-05", snap.Puts[0].Expiry)
}

func TestBuildSnapshot_MissingTickerIsZeroDefaulted(t *testing.T) {
	instruments, tickers := sampleChain()
	snap := BuildSnapshot(instruments, tickers)

	for _, c := range append(snap.Calls, snap.Puts...) {
		if c.Symbol != "BTC-30AUG24-55000-C" && c.Symbol != "BTC-27SEP24-70000-P" {
			continue
		}
		assert.Equal(t, OptionContract{Symbol: c.Symbol, Strike: c.Strike, Type: c.Type, Expiry: c.Expiry}, c, c.Symbol)
	}
}

func TestBuildSnapshot_UnparseableNumbersBecomeZero(t *testing.T) {
	instruments, tickers := sampleChain()
	snap := BuildSnapshot(instruments, tickers)
	for _, c := range snap.Calls {
		if c.Symbol == "BTC-27SEP24-70000-C" {
			assert.Zero(t, c.MarkPrice)
			assert.Zero(t, c.Delta)
			return
		}
	}
	t.Fatal("BTC-27SEP24-70000-C missing")
}

func TestBuildSnapshot_DropsInvalidContracts(t *testing.T) {
	instruments := []bybit.Instrument{
		inst("BTC-30AUG24-0-C", "Call", aug30Delivery),
		inst("garbage", "Call", aug30Delivery),
		inst("BTC-PERP", "", ""),
		inst("", "Call", aug30Delivery),
		{Symbol: "BTC-30AUG24-60000-C", OptionsType: "Call", DeliveryTime: aug30Delivery, StrikePrice: json.RawMessage(`"NaN"`)},
	}
	snap := BuildSnapshot(instruments, nil)
	require.Len(t, snap.Calls, 1)
	assert.Equal(t, 60000.0, snap.Calls[0].Strike)
	assert.Empty(t, snap.Puts)
}

func TestBuildSnapshot_Invariants(t *testing.T) {
	instruments, tickers := sampleChain()
	// 重复的合约只保留第一次出现
	instruments = append(instruments, instruments[0], inst("BTC-6SEP24-65000-P", "Put", ""))
	snap := BuildSnapshot(instruments, tickers)

	expiries := map[string]struct{}{}
	for _, c := range append(append([]OptionContract{}, snap.Calls...), snap.Puts...) {
		assert.True(t, c.Strike > 0 && !math.IsInf(c.Strike, 0) && !math.IsNaN(c.Strike), c.Symbol)
		assert.NotEqual(t, "Invalid Date", c.Expiry)
		expiries[c.Expiry] = struct{}{}
	}
	want := make([]string, 0, len(expiries))
	for e := range expiries {
		want = append(want, e)
	}
	sort.Strings(want)
	assert.Equal(t, want, snap.Expirations)
	assert.Equal(t, []string{"2024-08-30", "2024-09-06", "2024-09-27"}, snap.Expirations)
	assert.Len(t, snap.Calls, 3)
	assert.Len(t, snap.Puts, 3)

	for _, cs := range [][]OptionContract{snap.Calls, snap.Puts} {
		assert.True(t, sort.SliceIsSorted(cs, func(i, j int) bool {
			if cs[i].Expiry != cs[j].Expiry {
				return cs[i].Expiry < cs[j].Expiry
			}
			return cs[i].Strike < cs[j].Strike
		}))
	}
}

func TestBuildSnapshot_Idempotent(t *testing.T) {
	instruments, tickers := sampleChain()
	first := BuildSnapshot(instruments, tickers)
	second := BuildSnapshot(instruments, tickers)
	assert.Equal(t, first, second)
}

func TestBuildSnapshot_Empty(t *testing.T) {
	snap := BuildSnapshot(nil, nil)
	assert.True(t, snap.Empty())
	assert.NotNil(t, snap.Calls)
	assert.NotNil(t, snap.Puts)
	assert.Equal(t, []string{}, snap.Expirations)
}

func TestChooseExpiry(t *testing.T) {
	exps := []string{"2024-08-30", "2024-09-27"}
	tests := []struct {
		name        string
		current     string
		explicitAll bool
		expirations []string
		want        string
	}{
		{"no expirations", "2024-08-30", false, nil, ExpiryAll},
		{"unset picks earliest", "", false, exps, "2024-08-30"},
		{"implicit all picks earliest", ExpiryAll, false, exps, "2024-08-30"},
		{"explicit all kept", ExpiryAll, true, exps, ExpiryAll},
		{"present selection kept", "2024-09-27", false, exps, "2024-09-27"},
		{"vanished selection falls back", "2024-08-23", false, exps, "2024-08-30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chooseExpiry(tt.current, tt.explicitAll, tt.expirations))
		})
	}
}

func TestParseSymbol(t *testing.T) {
	p, ok := parseSymbol("btc-30aug24-60000-p")
	require.True(t, ok)
	assert.Equal(t, symbolParts{Base: "BTC", Date: "30AUG24", Strike: 60000, Type: Put}, p)

	_, ok = parseSymbol("BTCUSDT")
	assert.False(t, ok)
}

func TestToFloat(t *testing.T) {
	assert.Equal(t, 1.5, toFloat("1.5"))
	assert.Equal(t, 1.5, toFloat(`"1.5"`))
	assert.Equal(t, 0.0, toFloat(""))
	assert.Equal(t, 0.0, toFloat("abc"))
	assert.Equal(t, -0.25, toFloat(" -0.25 "))
}

func TestFilterByExpiry(t *testing.T) {
	cs := []OptionContract{{Symbol: "a", Expiry: "2024-08-30"}, {Symbol: "b", Expiry: "2024-09-27"}}
	assert.Len(t, FilterByExpiry(cs, ExpiryAll), 2)
	assert.Len(t, FilterByExpiry(cs, ""), 2)
	got := FilterByExpiry(cs, "2024-09-27")
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Symbol)
	assert.Empty(t, FilterByExpiry(cs, "2025-01-01"))
}
