package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var wsLog = logrus.WithField("component", "bybit_spot_ws")

// ErrNoPrice 尚未收到该 symbol 的推送
var ErrNoPrice = errors.New("no price received yet")

// SpotStream 订阅 Bybit 公共现货 tickers 推送，保存每个 symbol 的最新价
type SpotStream struct {
	url     string
	symbols []string

	mu     sync.RWMutex
	prices map[string]float64
	onTick func(symbol string, price float64)

	ctx    context.Context
	cancel context.CancelFunc

	connMu sync.Mutex
	conn   *websocket.Conn

	reconnectDelay time.Duration
	pingInterval   time.Duration
	started        atomic.Bool
	done           chan struct{}
}

// NewSpotStream 创建推送订阅；symbols 例如 BTCUSDT
func NewSpotStream(wsURL string, symbols []string) *SpotStream {
	syms := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			syms = append(syms, s)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SpotStream{
		url:            wsURL,
		symbols:        syms,
		prices:         make(map[string]float64),
		ctx:            ctx,
		cancel:         cancel,
		reconnectDelay: 2 * time.Second,
		pingInterval:   20 * time.Second,
		done:           make(chan struct{}),
	}
}

// OnTick 注册价格回调（在读循环 goroutine 中调用，需尽快返回）
func (s *SpotStream) OnTick(fn func(symbol string, price float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = fn
}

func (s *SpotStream) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.run()
	}
}

func (s *SpotStream) Stop() {
	s.cancel()
	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()
	if s.started.Load() {
		<-s.done
	}
}

// Price 最新价
func (s *SpotStream) Price(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[strings.ToUpper(symbol)]
	return p, ok
}

// SpotPrice 实现参考价格来源接口
func (s *SpotStream) SpotPrice(_ context.Context, symbol string) (float64, error) {
	if p, ok := s.Price(symbol); ok {
		return p, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
}

func (s *SpotStream) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn, err := s.dial()
		if err != nil {
			wsLog.Warnf("连接 Bybit 现货 WS 失败: %v", err)
			select {
			case <-time.After(s.reconnectDelay):
				continue
			case <-s.ctx.Done():
				return
			}
		}

		s.connMu.Lock()
		s.conn = conn
		s.connMu.Unlock()

		if err := s.subscribe(conn); err != nil {
			wsLog.Warnf("订阅失败: %v", err)
		} else {
			wsLog.Infof("✅ Bybit 现货 tickers 已连接: symbols=%v", s.symbols)
			if err := s.readLoop(conn); err != nil && s.ctx.Err() == nil {
				wsLog.Warnf("Bybit 现货 WS readLoop 退出: %v", err)
			}
		}

		s.connMu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		_ = conn.Close()
		s.connMu.Unlock()

		select {
		case <-time.After(s.reconnectDelay):
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *SpotStream) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(s.ctx, s.url, nil)
	return conn, err
}

type wsRequest struct {
	ReqID string   `json:"req_id,omitempty"`
	Op    string   `json:"op"`
	Args  []string `json:"args,omitempty"`
}

func (s *SpotStream) write(conn *websocket.Conn, msg wsRequest) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

func (s *SpotStream) subscribe(conn *websocket.Conn) error {
	args := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		args = append(args, "tickers."+sym)
	}
	return s.write(conn, wsRequest{ReqID: "optionsdesk-sub", Op: "subscribe", Args: args})
}

type wsMessage struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Ts      int64           `json:"ts"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
}

func (s *SpotStream) readLoop(conn *websocket.Conn) error {
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.write(conn, wsRequest{Op: "ping"}); err != nil {
					return
				}
			case <-pingDone:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(2*s.pingInterval + 10*time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(raw)
	}
}

func (s *SpotStream) handleMessage(raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Op != "" {
		if msg.Success != nil && !*msg.Success {
			wsLog.Warnf("WS %s 失败: %s", msg.Op, msg.RetMsg)
		}
		return
	}
	if !strings.HasPrefix(msg.Topic, "tickers.") || len(msg.Data) == 0 {
		return
	}

	var data struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	}
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}
	p, err := decimal.NewFromString(data.LastPrice)
	if err != nil || !p.IsPositive() {
		return
	}
	sym := strings.ToUpper(data.Symbol)
	if sym == "" {
		sym = strings.TrimPrefix(msg.Topic, "tickers.")
	}
	price := p.InexactFloat64()

	s.mu.Lock()
	s.prices[sym] = price
	cb := s.onTick
	s.mu.Unlock()

	if cb != nil {
		cb(sym, price)
	}
}
