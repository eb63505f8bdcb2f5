package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/optionsdesk/internal/options"
)

const maxLedgerRows = 8

func (m model) View() string {
	header := m.renderHeader()
	chain := m.renderChain()
	side := lipgloss.JoinVertical(lipgloss.Left, m.renderDetail(), "", m.renderLedger())

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(chain),
		"  ",
		panelStyle.Render(side),
	)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderFooter())
}

func (m model) renderHeader() string {
	p := m.provider
	status := string(p.State())
	if p.Loading() {
		status = "loading..."
	}
	title := fmt.Sprintf("%s Options | %s | Expiry: %s | %s | %s",
		p.BaseCoin(),
		priceStyle.Render(fmt.Sprintf("%.2f", p.CurrentPrice())),
		p.SelectedExpiry(),
		status,
		m.now.Format("15:04:05"),
	)
	out := headerStyle.Render(title)
	if err := p.Err(); err != nil {
		out += "\n" + errorStyle.Render(options.ErrorMessage(err))
	}
	return out
}

func (m model) renderChain() string {
	var lines []string
	callTab, putTab := " Calls ", " Puts "
	if m.tab == tabCalls {
		callTab = callStyle.Reverse(true).Render(callTab)
		putTab = mutedStyle.Render(putTab)
	} else {
		callTab = mutedStyle.Render(callTab)
		putTab = putStyle.Reverse(true).Render(putTab)
	}
	lines = append(lines, callTab+" "+putTab)
	lines = append(lines, titleStyle.Render(fmt.Sprintf("%-10s %10s %10s %10s %7s %7s %9s",
		"Strike", "Mark", "Bid", "Ask", "IV", "Delta", "Volume")))

	rows := m.rows()
	if len(rows) == 0 {
		lines = append(lines, mutedStyle.Render("没有合约数据"))
		return strings.Join(lines, "\n")
	}

	maxVol := 0.0
	for _, c := range rows {
		if c.Volume > maxVol {
			maxVol = c.Volume
		}
	}

	start, end := m.window(len(rows))
	spot := m.provider.CurrentPrice()
	for i := start; i < end; i++ {
		c := rows[i]
		strike := fmt.Sprintf("%-10.0f", c.Strike)
		if spot > 0 && options.IntrinsicValue(c, spot) > 0 {
			strike = priceStyle.Render(strike)
		}
		intensity := 0.0
		if maxVol > 0 {
			intensity = c.Volume / maxVol
		}
		vol := heatStyle(options.HeatmapIntensity(intensity)).Render(fmt.Sprintf("%9.2f", c.Volume))
		line := fmt.Sprintf("%s %10.2f %10.2f %10.2f %6.1f%% %7.3f %s",
			strike, c.MarkPrice, c.Bid, c.Ask, c.IV*100, c.Delta, vol)
		if i == m.cursor {
			line = cursorStyle.Render(">") + line
		} else {
			line = " " + line
		}
		lines = append(lines, line)
	}
	if end < len(rows) || start > 0 {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("%d-%d / %d", start+1, end, len(rows))))
	}
	return strings.Join(lines, "\n")
}

// window 可见行范围，保证光标可见
func (m model) window(n int) (int, int) {
	visible := m.height - 12
	if visible < 5 {
		visible = 5
	}
	if n <= visible {
		return 0, n
	}
	start := m.cursor - visible/2
	if start < 0 {
		start = 0
	}
	if start+visible > n {
		start = n - visible
	}
	return start, start + visible
}

func (m model) renderDetail() string {
	var lines []string
	lines = append(lines, titleStyle.Render("Contract"))
	rows := m.rows()
	if m.cursor >= len(rows) {
		lines = append(lines, mutedStyle.Render("-"))
		return strings.Join(lines, "\n")
	}
	c := rows[m.cursor]
	spot := m.provider.CurrentPrice()

	est := "N/A"
	if v, ok := options.EstimatedReturn(c, spot); ok {
		est = fmt.Sprintf("%+.2f%%", v)
	}
	rr := "OK"
	if options.IsPoorRiskReward(c, spot) {
		rr = "Poor"
	}
	lines = append(lines,
		c.Symbol,
		fmt.Sprintf("Expiry:   %s", c.Expiry),
		fmt.Sprintf("Risk:     %s", options.Risk(c)),
		fmt.Sprintf("+1%% Est:  %s", est),
		fmt.Sprintf("R/R:      %s", rr),
		fmt.Sprintf("Gamma:    %.6f", c.Gamma),
		fmt.Sprintf("Theta:    %.2f", c.Theta),
		fmt.Sprintf("Vega:     %.2f", c.Vega),
		fmt.Sprintf("OI:       %.2f", c.OpenInterest),
	)
	return strings.Join(lines, "\n")
}

func (m model) renderLedger() string {
	var lines []string
	lines = append(lines, titleStyle.Render("Order History"))
	if m.trades == nil {
		lines = append(lines, mutedStyle.Render("未启用"))
		return strings.Join(lines, "\n")
	}
	trades := m.trades.Trades()
	if len(trades) == 0 {
		lines = append(lines, mutedStyle.Render("暂无记录"))
		return strings.Join(lines, "\n")
	}
	for i, t := range trades {
		if i >= maxLedgerRows {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("... 共 %d 条", len(trades))))
			break
		}
		side := callStyle.Render(fmt.Sprintf("%-4s", t.Side))
		if strings.EqualFold(t.Side, "sell") {
			side = putStyle.Render(fmt.Sprintf("%-4s", t.Side))
		}
		lines = append(lines, fmt.Sprintf("%s %s %s x%g @%g",
			t.Timestamp.Local().Format("01-02 15:04"), side, t.Symbol, t.Quantity, t.Price))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderFooter() string {
	help := "tab/c/p 切换  ←/→ 到期日  a 全部  ↑/↓ 选择  r 刷新  q 退出"
	if m.notice != "" {
		help = m.notice + "  |  " + help
	}
	return mutedStyle.Render(help)
}
