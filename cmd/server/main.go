package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/optionsdesk/internal/api"
	"github.com/betbot/optionsdesk/internal/app"
	"github.com/betbot/optionsdesk/pkg/config"
	"github.com/betbot/optionsdesk/pkg/logger"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("OPTIONSDESK_CONFIG"), "YAML/JSON config file")
		listenAddr = flag.String("listen", "", "HTTP listen address (overrides config)")
		mock       = flag.Bool("mock", false, "serve a fixed mock option chain instead of polling the exchange")
		mockPrice  = flag.Float64("mock-price", 60000, "underlying price for -mock")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Close()

	a, err := app.New(cfg, app.Options{Mock: *mock, MockPrice: *mockPrice})
	if err != nil {
		logger.Errorf("初始化失败: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	var klines api.KlineSource
	if a.Client != nil {
		klines = a.Client
	}
	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.NewServer(a.Provider, a.Trading, a.Ledger, klines).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.Shutdown.OnShutdown("http", httpSrv.Shutdown)

	go func() {
		logger.Infof("optionsdesk listening on %s", cfg.Server.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server error: %v", err)
			cancel()
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case <-stopCh:
	case <-ctx.Done():
	}

	cancel()
	a.Close(10 * time.Second)
	logger.Info("server stopped")
}
