package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

var (
	bullStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22c55e"))
	bearStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef4444"))
	symbolStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748b"))
)

// Console prints alerts to a terminal.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Notify(_ context.Context, symbol string, alert domain.Alert) error {
	style := bearStyle
	if alert.Direction == domain.DirectionBullish {
		style = bullStyle
	}

	line := fmt.Sprintf("%s %s %s %s\n",
		mutedStyle.Render(alert.BarTime.UTC().Format("15:04")),
		symbolStyle.Render(symbol),
		style.Render(alert.Text),
		mutedStyle.Render(fmt.Sprintf("price=%s vol=%sx", alert.Price, alert.VolumeRatio.StringFixed(2))))

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, line)
	return err
}
