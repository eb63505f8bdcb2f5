package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/optionsdesk/internal/exchange/bybit"
	"github.com/betbot/optionsdesk/internal/ledger"
	"github.com/betbot/optionsdesk/internal/options"
	"github.com/betbot/optionsdesk/internal/services"
	"github.com/betbot/optionsdesk/pkg/config"
	"github.com/betbot/optionsdesk/pkg/shutdown"
)

var log = logrus.WithField("component", "app")

// Options 运行模式
type Options struct {
	// Mock 使用固定的模拟期权链，不访问交易所；有凭证时仍可下单
	Mock      bool
	MockPrice float64
}

// App 组装好的运行时组件
type App struct {
	Config   *config.Config
	Client   *bybit.Client // 凭证缺失的模拟模式下为 nil
	Provider options.Provider
	Live     *options.LiveStore // 模拟模式下为 nil
	Stream   *bybit.SpotStream  // 只有 price_source=ws 时存在
	Ledger   *ledger.Ledger
	Trading  *services.TradingService // Client 为 nil 时为 nil

	Shutdown *shutdown.Manager
}

// New 按配置组装组件，不启动任何循环
// 实盘模式下凭证缺失返回 *config.ConfigError
func New(cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ResolveCredentials(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Shutdown: shutdown.NewManager()}

	client, err := bybit.NewClient(bybit.Credentials{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
	}, bybit.Options{
		BaseURL:    cfg.Exchange.BaseURL,
		RecvWindow: cfg.Exchange.RecvWindow,
		Timeout:    cfg.Exchange.Timeout,
	})
	switch {
	case err == nil:
		a.Client = client
	case opts.Mock:
		log.Warnf("未配置交易所凭证，模拟模式下禁用下单: %v", err)
	default:
		return nil, err
	}

	backend, err := ledger.OpenBackend(cfg.Ledger.Backend, cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("打开成交记录存储失败: %w", err)
	}
	l, err := ledger.Open(backend)
	if err != nil {
		// 数据损坏不影响启动，只记录
		log.Errorf("成交记录加载失败，从空记录开始: %v", err)
	}
	a.Ledger = l

	if a.Client != nil {
		a.Trading = services.NewTradingService(a.Client, l)
	}

	if opts.Mock {
		price := opts.MockPrice
		if price <= 0 {
			price = 60000
		}
		a.Provider = options.NewMockStore(cfg.Market.BaseCoin, price, time.Now())
		return a, nil
	}

	var prices options.PriceSource = options.RESTPriceSource{Client: a.Client}
	if cfg.Market.PriceSource == config.PriceSourceWS {
		symbols := make([]string, 0, len(cfg.Market.Underlyings))
		for _, u := range cfg.Market.Underlyings {
			symbols = append(symbols, options.SpotSymbol(u))
		}
		a.Stream = bybit.NewSpotStream(cfg.Exchange.WSURL, symbols)
		prices = a.Stream
	}

	a.Live = options.NewLiveStore(options.LiveConfig{
		BaseCoin:           cfg.Market.BaseCoin,
		Underlyings:        cfg.Market.Underlyings,
		PriceInterval:      cfg.Market.PriceInterval,
		ChainInterval:      cfg.Market.ChainInterval,
		MaxInstrumentPages: cfg.Market.MaxInstrumentPages,
		FailurePolicy:      options.FailurePolicy(cfg.Market.FailurePolicy),
		PriceTTL:           cfg.Market.PriceTTL,
	}, a.Client, prices)
	a.Provider = a.Live
	return a, nil
}

// Start 启动推送与轮询，并注册对应的关闭回调
func (a *App) Start(ctx context.Context) {
	if a.Stream != nil {
		a.Stream.Start()
		a.Shutdown.OnShutdown("spot_stream", func(context.Context) error {
			a.Stream.Stop()
			return nil
		})
	}
	if a.Live != nil {
		a.Live.Start(ctx)
		a.Shutdown.OnShutdown("options_store", func(context.Context) error {
			a.Live.Stop()
			return nil
		})
	}
	log.Infof("已启动: baseCoin=%s trading=%v", a.Provider.BaseCoin(), a.Trading != nil)
}

// Close 分两阶段关闭：先执行全部关闭回调（HTTP 排空、停止轮询），再关闭成交记录
// 回调中仍在写入的请求因此不会碰到已关闭的后端
func (a *App) Close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a.Shutdown.Shutdown(ctx)

	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			log.Warnf("关闭成交记录失败: %v", err)
		}
	}
}
