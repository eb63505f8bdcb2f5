package bybit

import "encoding/json"

// Envelope Bybit V5 通用响应外壳，Result 原样保留
type Envelope struct {
	RetCode    int             `json:"retCode"`
	RetMsg     string          `json:"retMsg"`
	Result     json.RawMessage `json:"result"`
	RetExtInfo json.RawMessage `json:"retExtInfo"`
	Time       int64           `json:"time"`
}

// Side 买卖方向
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "Limit"
	OrderTypeMarket OrderType = "Market"
)

// TimeInForce 常量
const (
	TimeInForceGTC = "GTC"
	TimeInForceIOC = "IOC"
	TimeInForceFOK = "FOK"
)

// 交易所返回的数值字段全部是字符串，由调用方宽松解析

// SpotTicker 现货 ticker
type SpotTicker struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Bid1Price    string `json:"bid1Price"`
	Ask1Price    string `json:"ask1Price"`
	PrevPrice24h string `json:"prevPrice24h"`
	Price24hPcnt string `json:"price24hPcnt"`
	HighPrice24h string `json:"highPrice24h"`
	LowPrice24h  string `json:"lowPrice24h"`
	Volume24h    string `json:"volume24h"`
	Turnover24h  string `json:"turnover24h"`
}

// OptionTicker 期权 ticker
type OptionTicker struct {
	Symbol          string `json:"symbol"`
	Bid1Price       string `json:"bid1Price"`
	Bid1Size        string `json:"bid1Size"`
	Bid1Iv          string `json:"bid1Iv"`
	Ask1Price       string `json:"ask1Price"`
	Ask1Size        string `json:"ask1Size"`
	Ask1Iv          string `json:"ask1Iv"`
	LastPrice       string `json:"lastPrice"`
	HighPrice24h    string `json:"highPrice24h"`
	LowPrice24h     string `json:"lowPrice24h"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	MarkIv          string `json:"markIv"`
	UnderlyingPrice string `json:"underlyingPrice"`
	OpenInterest    string `json:"openInterest"`
	Turnover24h     string `json:"turnover24h"`
	Volume24h       string `json:"volume24h"`
	TotalVolume     string `json:"totalVolume"`
	TotalTurnover   string `json:"totalTurnover"`
	Delta           string `json:"delta"`
	Gamma           string `json:"gamma"`
	Vega            string `json:"vega"`
	Theta           string `json:"theta"`
}

// PriceFilter 价格规则
type PriceFilter struct {
	MinPrice string `json:"minPrice"`
	MaxPrice string `json:"maxPrice"`
	TickSize string `json:"tickSize"`
}

// LotSizeFilter 数量规则
type LotSizeFilter struct {
	MaxOrderQty string `json:"maxOrderQty"`
	MinOrderQty string `json:"minOrderQty"`
	QtyStep     string `json:"qtyStep"`
}

// Instrument 期权合约信息
type Instrument struct {
	Symbol          string        `json:"symbol"`
	Status          string        `json:"status"`
	BaseCoin        string        `json:"baseCoin"`
	QuoteCoin       string        `json:"quoteCoin"`
	SettleCoin      string        `json:"settleCoin"`
	OptionsType     string        `json:"optionsType"`
	LaunchTime      string        `json:"launchTime"`
	DeliveryTime    string        `json:"deliveryTime"`
	DeliveryFeeRate string        `json:"deliveryFeeRate"`
	PriceFilter     PriceFilter   `json:"priceFilter"`
	LotSizeFilter   LotSizeFilter `json:"lotSizeFilter"`

	// 部分网关会额外返回行权价，缺失时从 symbol 中解析
	StrikePrice json.RawMessage `json:"strikePrice,omitempty"`
}

// InstrumentsPage 合约列表的一页
type InstrumentsPage struct {
	Category       string       `json:"category"`
	List           []Instrument `json:"list"`
	NextPageCursor string       `json:"nextPageCursor"`
}

// KlineBar 一根 K 线，字段顺序与交易所返回一致
type KlineBar struct {
	StartTime string
	Open      string
	High      string
	Low       string
	Close     string
	Volume    string
	Turnover  string
}

// CoinBalance 单币种余额
type CoinBalance struct {
	Coin          string `json:"coin"`
	Equity        string `json:"equity"`
	WalletBalance string `json:"walletBalance"`
	UsdValue      string `json:"usdValue"`
	UnrealisedPnl string `json:"unrealisedPnl"`
}

// WalletAccount 统一账户余额
type WalletAccount struct {
	AccountType           string        `json:"accountType"`
	TotalEquity           string        `json:"totalEquity"`
	TotalWalletBalance    string        `json:"totalWalletBalance"`
	TotalAvailableBalance string        `json:"totalAvailableBalance"`
	TotalMarginBalance    string        `json:"totalMarginBalance"`
	Coin                  []CoinBalance `json:"coin"`
}

// OrderRecord 历史订单
type OrderRecord struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	OrderType   string `json:"orderType"`
	TimeInForce string `json:"timeInForce"`
	OrderStatus string `json:"orderStatus"`
	AvgPrice    string `json:"avgPrice"`
	CumExecQty  string `json:"cumExecQty"`
	CreatedTime string `json:"createdTime"`
	UpdatedTime string `json:"updatedTime"`
}

// OrderHistoryPage 历史订单的一页
type OrderHistoryPage struct {
	Category       string        `json:"category"`
	List           []OrderRecord `json:"list"`
	NextPageCursor string        `json:"nextPageCursor"`
}

// OrderAck 下单成功回执
type OrderAck struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}
