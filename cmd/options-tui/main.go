package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/optionsdesk/internal/app"
	"github.com/betbot/optionsdesk/internal/dashboard"
	"github.com/betbot/optionsdesk/pkg/config"
	"github.com/betbot/optionsdesk/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("OPTIONSDESK_CONFIG"), "YAML/JSON config file")
		baseCoin   = flag.String("base", "", "underlying for the option chain (BTC, ETH, SOL)")
		mock       = flag.Bool("mock", false, "use a fixed mock option chain")
		mockPrice  = flag.Float64("mock-price", 60000, "underlying price for -mock")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *baseCoin != "" {
		cfg.Market.BaseCoin = *baseCoin
	}
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/options-tui.log"
	}
	// TUI 模式下日志只写文件，避免打乱界面
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, OutputFile: logFile, MaxSize: 50, MaxBackups: 3, MaxAge: 7, Quiet: true}); err != nil {
		fatal(err)
	}
	defer logger.Close()

	a, err := app.New(cfg, app.Options{Mock: *mock, MockPrice: *mockPrice})
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.Start(ctx)

	var trades dashboard.TradeSource
	if a.Ledger != nil {
		trades = a.Ledger
	}
	runErr := dashboard.Run(ctx, a.Provider, trades)
	a.Close(5 * time.Second)
	if runErr != nil {
		fatal(runErr)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
