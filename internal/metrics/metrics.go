package metrics

import "expvar"

// 进程内计数器，经 /debug/vars 暴露
var (
	ChainRefreshes     = expvar.NewInt("options_chain_refreshes")
	ChainRefreshErrors = expvar.NewInt("options_chain_refresh_errors")
	PriceRefreshErrors = expvar.NewInt("options_price_refresh_errors")
	OrdersPlaced       = expvar.NewInt("orders_placed")
	OrderErrors        = expvar.NewInt("order_errors")
	LedgerWriteErrors  = expvar.NewInt("ledger_write_errors")
)
