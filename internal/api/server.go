package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/optionsdesk/internal/exchange/bybit"
	"github.com/betbot/optionsdesk/internal/ledger"
	"github.com/betbot/optionsdesk/internal/metrics"
	"github.com/betbot/optionsdesk/internal/options"
	"github.com/betbot/optionsdesk/internal/services"
	"github.com/betbot/optionsdesk/pkg/cache"
)

var log = logrus.WithField("component", "api")

// KlineSource K 线数据（*bybit.Client 实现）
type KlineSource interface {
	GetKlineData(ctx context.Context, symbol, interval string, limit int) ([]bybit.KlineBar, error)
}

// priceLister 能提供多标的价格看板的数据源
type priceLister interface {
	Prices() []cache.Quote
}

// Server 只读取 store 快照，写操作全部委托给 store/service
type Server struct {
	options options.Provider
	trading *services.TradingService
	ledger  *ledger.Ledger
	klines  KlineSource
}

// NewServer trading、trades 与 klines 可以为 nil，对应接口返回 503
// 成交记录不依赖交易凭证，模拟模式下同样可读写
func NewServer(provider options.Provider, trading *services.TradingService, trades *ledger.Ledger, klines KlineSource) *Server {
	return &Server{options: provider, trading: trading, ledger: trades, klines: klines}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/debug/*path", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")

	opts := api.Group("/options")
	opts.GET("", s.handleOptions)
	opts.GET("/expirations", s.handleExpirations)
	opts.PUT("/expiry", s.handleSelectExpiry)
	opts.POST("/refresh", s.handleRefresh)
	opts.GET("/recommendations", s.handleRecommendations)

	api.GET("/prices", s.handlePrices)
	api.GET("/klines", s.handleKlines)
	api.GET("/account", s.handleAccount)

	api.POST("/orders", s.handlePlaceOrder)
	api.GET("/orders/history", s.handleOrderHistory)

	api.GET("/trades", s.handleTrades)
	api.DELETE("/trades", s.handleClearTrades)

	return r
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

const (
	kindTransport   = "transport"
	kindUpstream    = "upstream"
	kindValidation  = "validation"
	kindPersistence = "persistence"
	kindUnavailable = "unavailable"
	kindInternal    = "internal"
)

func writeError(c *gin.Context, status int, kind, msg string) {
	c.AbortWithStatusJSON(status, errorBody{Error: msg, Kind: kind})
}

// writeFailure 按错误类型映射状态码：交易所错误 502，参数错误 400，其余 500
func writeFailure(c *gin.Context, err error) {
	var (
		te *bybit.TransportError
		ur *bybit.UpstreamRejection
		pe *ledger.PersistenceError
	)
	switch {
	case errors.As(err, &te):
		writeError(c, http.StatusBadGateway, kindTransport, options.ErrorMessage(err))
	case errors.As(err, &ur):
		writeError(c, http.StatusBadGateway, kindUpstream, options.ErrorMessage(err))
	case errors.Is(err, bybit.ErrInvalidOrder), errors.Is(err, options.ErrUnknownExpiry):
		writeError(c, http.StatusBadRequest, kindValidation, err.Error())
	case errors.As(err, &pe):
		writeError(c, http.StatusInternalServerError, kindPersistence, err.Error())
	default:
		log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		writeError(c, http.StatusInternalServerError, kindInternal, err.Error())
	}
}
