package dashboard

import "github.com/charmbracelet/lipgloss"

// heatPalette 成交量热度色阶，下标对应 options.HeatmapIntensity 的 0..10
var heatPalette = [11]string{
	"#262738", "#f7f0ff", "#e9d9ff", "#d4b4ff", "#b78eff", "#9c6bff",
	"#804aff", "#6933f5", "#5626dc", "#4520b5", "#361d86",
}

const (
	callColor  = "#00C49A"
	putColor   = "#FF4A91"
	priceColor = "#e0b84d"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

	callStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(callColor))
	putStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(putColor))
	priceStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(priceColor))

	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	cursorStyle = lipgloss.NewStyle().Reverse(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

// heatStyle 成交量热度单元格；浅色背景用深色前景
func heatStyle(level int) lipgloss.Style {
	if level < 0 {
		level = 0
	}
	if level > 10 {
		level = 10
	}
	fg := "#000000"
	if level == 0 || level >= 6 {
		fg = "#ffffff"
	}
	return lipgloss.NewStyle().Background(lipgloss.Color(heatPalette[level])).Foreground(lipgloss.Color(fg))
}
