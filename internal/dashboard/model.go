package dashboard

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/betbot/optionsdesk/internal/ledger"
	"github.com/betbot/optionsdesk/internal/options"
)

var modelLog = logrus.WithField("component", "dashboard.model")

// TradeSource 本地成交记录（*ledger.Ledger 实现）
type TradeSource interface {
	Trades() []ledger.TradeRecord
	Subscribe(fn func()) func()
}

type tab int

const (
	tabCalls tab = iota
	tabPuts
)

// changedMsg store 有变化
type changedMsg struct{}

// tickMsg 每秒刷新时钟
type tickMsg time.Time

// refreshDoneMsg 手动刷新结束
type refreshDoneMsg struct{ err error }

type model struct {
	ctx      context.Context
	provider options.Provider
	trades   TradeSource
	updateCh <-chan struct{}

	tab        tab
	cursor     int
	refreshing bool
	notice     string
	now        time.Time

	width  int
	height int
}

func newModel(ctx context.Context, provider options.Provider, trades TradeSource, updateCh <-chan struct{}) model {
	return model{
		ctx:      ctx,
		provider: provider,
		trades:   trades,
		updateCh: updateCh,
		now:      time.Now(),
		width:    120,
		height:   40,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), tick())
}

func (m model) waitForUpdate() tea.Cmd {
	if m.updateCh == nil {
		return nil
	}
	ch := m.updateCh
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case changedMsg:
		m.clampCursor()
		return m, m.waitForUpdate()
	case tickMsg:
		m.now = time.Time(msg)
		return m, tick()
	case refreshDoneMsg:
		m.refreshing = false
		if msg.err != nil {
			m.notice = "刷新失败: " + options.ErrorMessage(msg.err)
		} else {
			m.notice = "已刷新"
		}
		m.clampCursor()
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		if m.tab == tabCalls {
			m.tab = tabPuts
		} else {
			m.tab = tabCalls
		}
		m.cursor = 0
	case "c":
		m.tab, m.cursor = tabCalls, 0
	case "p":
		m.tab, m.cursor = tabPuts, 0
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		m.cursor++
		m.clampCursor()
	case "right", "]":
		m.cycleExpiry(1)
	case "left", "[":
		m.cycleExpiry(-1)
	case "a":
		m.selectExpiry(options.ExpiryAll)
	case "r":
		if m.refreshing {
			return m, nil
		}
		m.refreshing = true
		m.notice = "刷新中..."
		provider, ctx := m.provider, m.ctx
		return m, func() tea.Msg {
			return refreshDoneMsg{err: provider.Refresh(ctx)}
		}
	}
	return m, nil
}

// cycleExpiry 在 [all, e1, e2, ...] 之间循环
func (m *model) cycleExpiry(step int) {
	choices := append([]string{options.ExpiryAll}, m.provider.Expirations()...)
	cur := 0
	selected := m.provider.SelectedExpiry()
	for i, e := range choices {
		if e == selected {
			cur = i
			break
		}
	}
	next := (cur + step + len(choices)) % len(choices)
	m.selectExpiry(choices[next])
}

func (m *model) selectExpiry(expiry string) {
	if err := m.provider.SetSelectedExpiry(expiry); err != nil {
		modelLog.Warnf("选择到期日失败: %v", err)
		m.notice = err.Error()
		return
	}
	m.notice = ""
	m.cursor = 0
}

func (m model) rows() []options.OptionContract {
	if m.tab == tabPuts {
		return m.provider.PutOptions()
	}
	return m.provider.CallOptions()
}

func (m *model) clampCursor() {
	n := len(m.rows())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}
