package bybit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderParams 期权下单参数
type OrderParams struct {
	Symbol        string
	Side          Side
	Qty           float64
	Price         *float64  // nil 表示不带价格
	OrderType     OrderType // 为空时：有价格为 Limit，否则 Market
	TimeInForce   string    // 为空时 GTC
	ClientOrderID string    // 作为 orderLinkId 发送
}

type createOrderBody struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        Side   `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

// normalize 填默认值并校验
func (p OrderParams) normalize() (OrderParams, error) {
	p.Symbol = strings.TrimSpace(p.Symbol)
	if p.Symbol == "" {
		return p, fmt.Errorf("%w: symbol 不能为空", ErrInvalidOrder)
	}
	switch strings.ToLower(string(p.Side)) {
	case "buy":
		p.Side = SideBuy
	case "sell":
		p.Side = SideSell
	default:
		return p, fmt.Errorf("%w: 未知方向 %q", ErrInvalidOrder, p.Side)
	}
	if p.Qty <= 0 || math.IsNaN(p.Qty) || math.IsInf(p.Qty, 0) {
		return p, fmt.Errorf("%w: qty 必须大于 0", ErrInvalidOrder)
	}
	if p.Price != nil && (*p.Price <= 0 || math.IsNaN(*p.Price) || math.IsInf(*p.Price, 0)) {
		return p, fmt.Errorf("%w: price 必须大于 0", ErrInvalidOrder)
	}
	if p.OrderType == "" {
		if p.Price != nil {
			p.OrderType = OrderTypeLimit
		} else {
			p.OrderType = OrderTypeMarket
		}
	}
	switch p.OrderType {
	case OrderTypeLimit:
		if p.Price == nil {
			return p, fmt.Errorf("%w: 限价单必须带 price", ErrInvalidOrder)
		}
	case OrderTypeMarket:
	default:
		return p, fmt.Errorf("%w: 未知订单类型 %q", ErrInvalidOrder, p.OrderType)
	}
	switch strings.ToUpper(strings.TrimSpace(p.TimeInForce)) {
	case "", TimeInForceGTC:
		p.TimeInForce = TimeInForceGTC
	case TimeInForceIOC:
		p.TimeInForce = TimeInForceIOC
	case TimeInForceFOK:
		p.TimeInForce = TimeInForceFOK
	default:
		return p, fmt.Errorf("%w: 未知 timeInForce %q", ErrInvalidOrder, p.TimeInForce)
	}
	return p, nil
}

func (p OrderParams) body() createOrderBody {
	b := createOrderBody{
		Category:    "option",
		Symbol:      p.Symbol,
		Side:        p.Side,
		OrderType:   string(p.OrderType),
		Qty:         decimal.NewFromFloat(p.Qty).String(),
		TimeInForce: p.TimeInForce,
		OrderLinkID: p.ClientOrderID,
	}
	if p.Price != nil {
		b.Price = decimal.NewFromFloat(*p.Price).String()
	}
	return b
}

// CreateOptionOrder 期权下单，成功返回交易所订单号
func (c *Client) CreateOptionOrder(ctx context.Context, params OrderParams) (*OrderAck, error) {
	p, err := params.normalize()
	if err != nil {
		return nil, err
	}

	var ack OrderAck
	if err := c.call(ctx, http.MethodPost, EndpointOrderCreate, nil, p.body(), &ack); err != nil {
		log.Warnf("期权下单失败: symbol=%s side=%s qty=%v err=%v", p.Symbol, p.Side, p.Qty, err)
		return nil, err
	}
	if ack.OrderID == "" {
		return nil, &UpstreamRejection{Endpoint: EndpointOrderCreate, RetMsg: "响应缺少 orderId"}
	}
	log.Infof("期权下单成功: orderId=%s symbol=%s side=%s qty=%v", ack.OrderID, p.Symbol, p.Side, p.Qty)
	return &ack, nil
}
