package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/optionsdesk/internal/ledger"
	"github.com/betbot/optionsdesk/internal/options"
	"github.com/betbot/optionsdesk/internal/services"
	"github.com/betbot/optionsdesk/pkg/cache"
)

func (s *Server) handleHealthz(c *gin.Context) {
	body := gin.H{"status": "ok", "options": s.options.State()}
	if s.ledger != nil {
		body["trades"] = s.ledger.Len()
	}
	c.JSON(http.StatusOK, body)
}

type optionsResponse struct {
	BaseCoin       string                   `json:"baseCoin"`
	CurrentPrice   float64                  `json:"currentPrice"`
	SelectedExpiry string                   `json:"selectedExpiry"`
	Status         options.Status           `json:"status"`
	Error          string                   `json:"error,omitempty"`
	Calls          []options.OptionContract `json:"calls"`
	Puts           []options.OptionContract `json:"puts"`
	Expirations    []string                 `json:"expirations"`
	FetchedAt      *time.Time               `json:"fetchedAt,omitempty"`
}

func (s *Server) handleOptions(c *gin.Context) {
	resp := optionsResponse{
		BaseCoin:       s.options.BaseCoin(),
		CurrentPrice:   s.options.CurrentPrice(),
		SelectedExpiry: s.options.SelectedExpiry(),
		Status:         s.options.State(),
		Error:          options.ErrorMessage(s.options.Err()),
		Calls:          nonNil(s.options.CallOptions()),
		Puts:           nonNil(s.options.PutOptions()),
		Expirations:    s.options.Expirations(),
	}
	if resp.Expirations == nil {
		resp.Expirations = []string{}
	}
	if at := s.options.Snapshot().FetchedAt; !at.IsZero() {
		resp.FetchedAt = &at
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExpirations(c *gin.Context) {
	exps := s.options.Expirations()
	if exps == nil {
		exps = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"expirations": exps, "selected": s.options.SelectedExpiry()})
}

type selectExpiryRequest struct {
	Expiry string `json:"expiry"`
}

func (s *Server) handleSelectExpiry(c *gin.Context) {
	var req selectExpiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, kindValidation, "invalid json body")
		return
	}
	req.Expiry = strings.TrimSpace(req.Expiry)
	if req.Expiry == "" {
		writeError(c, http.StatusBadRequest, kindValidation, "expiry is required")
		return
	}
	if err := s.options.SetSelectedExpiry(req.Expiry); err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": s.options.SelectedExpiry()})
}

func (s *Server) handleRefresh(c *gin.Context) {
	if err := s.options.Refresh(c.Request.Context()); err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.options.State(), "expirations": len(s.options.Expirations())})
}

type recommendation struct {
	options.OptionContract
	EstReturn *float64          `json:"estReturn"` // 现价上涨 1% 时的收益率（%），无法估算时为 null
	Risk      options.RiskLevel `json:"risk"`
}

func (s *Server) handleRecommendations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "4"))
	if err != nil || limit < 0 {
		writeError(c, http.StatusBadRequest, kindValidation, "invalid limit")
		return
	}
	spot := s.options.CurrentPrice()
	candidates := append(s.options.CallOptions(), s.options.PutOptions()...)
	picks := options.Recommend(candidates, spot, limit)

	out := make([]recommendation, 0, len(picks))
	for _, p := range picks {
		rec := recommendation{OptionContract: p, Risk: options.Risk(p)}
		if v, ok := options.EstimatedReturn(p, spot); ok {
			rec.EstReturn = &v
		}
		out = append(out, rec)
	}
	c.JSON(http.StatusOK, gin.H{"spot": spot, "expiry": s.options.SelectedExpiry(), "recommendations": out})
}

func (s *Server) handlePrices(c *gin.Context) {
	var quotes []cache.Quote
	if pl, ok := s.options.(priceLister); ok {
		quotes = pl.Prices()
	}
	if len(quotes) == 0 && s.options.CurrentPrice() > 0 {
		quotes = []cache.Quote{{Symbol: options.SpotSymbol(s.options.BaseCoin()), Price: s.options.CurrentPrice()}}
	}
	if quotes == nil {
		quotes = []cache.Quote{}
	}
	c.JSON(http.StatusOK, gin.H{"prices": quotes})
}

func (s *Server) handleKlines(c *gin.Context) {
	if s.klines == nil {
		writeError(c, http.StatusServiceUnavailable, kindUnavailable, "market data not configured")
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		symbol = options.SpotSymbol(s.options.BaseCoin())
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if err != nil || limit <= 0 {
		writeError(c, http.StatusBadRequest, kindValidation, "invalid limit")
		return
	}
	bars, err := s.klines.GetKlineData(c.Request.Context(), symbol, c.DefaultQuery("interval", "60"), limit)
	if err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "bars": bars})
}

func (s *Server) requireTrading(c *gin.Context) bool {
	if s.trading == nil {
		writeError(c, http.StatusServiceUnavailable, kindUnavailable, "trading not configured")
		return false
	}
	return true
}

func (s *Server) handleAccount(c *gin.Context) {
	if !s.requireTrading(c) {
		return
	}
	accounts, err := s.trading.Balances(c.Request.Context())
	if err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	if !s.requireTrading(c) {
		return
	}
	var ticket services.OrderTicket
	if err := c.ShouldBindJSON(&ticket); err != nil {
		writeError(c, http.StatusBadRequest, kindValidation, "invalid json body")
		return
	}
	rec, err := s.trading.PlaceOrder(c.Request.Context(), ticket)
	if err != nil {
		if services.IsPersistenceError(err) {
			// 订单已在交易所成功，只是本地记录没写进去
			c.JSON(http.StatusCreated, gin.H{"trade": rec, "warning": err.Error()})
			return
		}
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trade": rec})
}

func (s *Server) handleOrderHistory(c *gin.Context) {
	if !s.requireTrading(c) {
		return
	}
	page, err := s.trading.OrderHistory(c.Request.Context(), c.Query("symbol"), c.Query("cursor"))
	if err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) requireLedger(c *gin.Context) bool {
	if s.ledger == nil {
		writeError(c, http.StatusServiceUnavailable, kindUnavailable, "ledger not configured")
		return false
	}
	return true
}

func (s *Server) handleTrades(c *gin.Context) {
	if !s.requireLedger(c) {
		return
	}
	trades := s.ledger.Trades()
	if trades == nil {
		trades = []ledger.TradeRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleClearTrades(c *gin.Context) {
	if !s.requireLedger(c) {
		return
	}
	if err := s.ledger.ClearHistory(); err != nil {
		writeFailure(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func nonNil(cs []options.OptionContract) []options.OptionContract {
	if cs == nil {
		return []options.OptionContract{}
	}
	return cs
}
