package dashboard

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/betbot/optionsdesk/internal/options"
)

var log = logrus.WithField("component", "dashboard")

// Run 运行终端看板，直到用户退出或 ctx 结束
// 看板只读取 store，变更通知经由缓冲为 1 的通道合并
func Run(ctx context.Context, provider options.Provider, trades TradeSource) error {
	updateCh := make(chan struct{}, 1)
	notify := func() {
		select {
		case updateCh <- struct{}{}:
		default:
		}
	}
	unsubscribe := provider.Subscribe(notify)
	defer unsubscribe()
	if trades != nil {
		unsubTrades := trades.Subscribe(notify)
		defer unsubTrades()
	}

	p := tea.NewProgram(newModel(ctx, provider, trades, updateCh), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dashboard: %w", err)
	}
	log.Info("看板已退出")
	return nil
}
