package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/optionsdesk/internal/exchange/bybit"
	"github.com/betbot/optionsdesk/internal/ledger"
	"github.com/betbot/optionsdesk/internal/metrics"
)

var log = logrus.WithField("component", "trading_service")

// OrderGateway 下单与历史订单查询（*bybit.Client 实现）
type OrderGateway interface {
	CreateOptionOrder(ctx context.Context, params bybit.OrderParams) (*bybit.OrderAck, error)
	GetOptionOrderHistory(ctx context.Context, query bybit.HistoryQuery) (*bybit.OrderHistoryPage, error)
	GetAccountInfo(ctx context.Context) ([]bybit.WalletAccount, error)
}

// OrderTicket 用户提交的下单请求
type OrderTicket struct {
	Symbol      string          `json:"symbol"`
	Side        bybit.Side      `json:"side"`
	Qty         float64         `json:"qty"`
	Price       *float64        `json:"price,omitempty"`
	OrderType   bybit.OrderType `json:"orderType,omitempty"`
	TimeInForce string          `json:"timeInForce,omitempty"`
}

// TradingService 下单并记录到本地成交记录
type TradingService struct {
	gateway OrderGateway
	ledger  *ledger.Ledger
	now     func() time.Time
	newID   func() string
}

func NewTradingService(gateway OrderGateway, l *ledger.Ledger) *TradingService {
	return &TradingService{
		gateway: gateway,
		ledger:  l,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// PlaceOrder 提交订单；成功后追加成交记录
// 交易所错误原样返回且不记录；记录写入失败时订单已成功，返回记录和 *ledger.PersistenceError
func (s *TradingService) PlaceOrder(ctx context.Context, t OrderTicket) (ledger.TradeRecord, error) {
	clientID := s.newID()
	ack, err := s.gateway.CreateOptionOrder(ctx, bybit.OrderParams{
		Symbol:        t.Symbol,
		Side:          t.Side,
		Qty:           t.Qty,
		Price:         t.Price,
		OrderType:     t.OrderType,
		TimeInForce:   t.TimeInForce,
		ClientOrderID: clientID,
	})
	if err != nil {
		metrics.OrderErrors.Add(1)
		return ledger.TradeRecord{}, err
	}
	metrics.OrdersPlaced.Add(1)

	rec := ledger.TradeRecord{
		OrderID:       ack.OrderID,
		ClientOrderID: clientID,
		Symbol:        strings.TrimSpace(t.Symbol),
		Side:          string(normalizeSide(t.Side)),
		OrderType:     string(resolveOrderType(t)),
		Quantity:      t.Qty,
		Timestamp:     s.now().UTC(),
	}
	if t.Price != nil {
		rec.Price = *t.Price
	}
	if err := s.ledger.AddTrade(rec); err != nil {
		log.Errorf("订单已提交但本地记录失败: orderId=%s err=%v", rec.OrderID, err)
		return rec, err
	}
	log.Infof("下单完成: orderId=%s clientOrderId=%s", rec.OrderID, rec.ClientOrderID)
	return rec, nil
}

// OrderHistory 交易所侧的期权历史订单
func (s *TradingService) OrderHistory(ctx context.Context, symbol, cursor string) (*bybit.OrderHistoryPage, error) {
	page, err := s.gateway.GetOptionOrderHistory(ctx, bybit.HistoryQuery{Symbol: symbol, Cursor: cursor})
	if err != nil {
		return nil, fmt.Errorf("查询历史订单失败: %w", err)
	}
	return page, nil
}

// Balances 统一账户余额
func (s *TradingService) Balances(ctx context.Context) ([]bybit.WalletAccount, error) {
	return s.gateway.GetAccountInfo(ctx)
}

// IsPersistenceError 订单成功但本地记录未写入
func IsPersistenceError(err error) bool {
	var pe *ledger.PersistenceError
	return errors.As(err, &pe)
}

func normalizeSide(s bybit.Side) bybit.Side {
	switch strings.ToLower(string(s)) {
	case "buy":
		return bybit.SideBuy
	case "sell":
		return bybit.SideSell
	}
	return s
}

func resolveOrderType(t OrderTicket) bybit.OrderType {
	if t.OrderType != "" {
		return t.OrderType
	}
	if t.Price != nil {
		return bybit.OrderTypeLimit
	}
	return bybit.OrderTypeMarket
}
