package board

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

const columnsPerRow = 4

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF")).
			MarginBottom(1)
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

var priorityColors = map[domain.TaskPriority]lipgloss.Color{
	domain.TaskPriorityCritical: lipgloss.Color("#FF6B6B"),
	domain.TaskPriorityHigh:     lipgloss.Color("#F5A623"),
	domain.TaskPriorityMedium:   lipgloss.Color("#AAAAAA"),
	domain.TaskPriorityLow:      lipgloss.Color("#666666"),
}

// Render draws the board as rows of bordered columns in status order.
func Render(title string, columns Columns, width int) string {
	colWidth := max(24, width/columnsPerRow-2)

	var rows []string
	var row []string
	for _, status := range domain.Statuses {
		row = append(row, renderColumn(status, columns[status], colWidth))
		if len(row) == columnsPerRow {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}

	header := titleStyle.Render(fmt.Sprintf("%s · %d tasks", title, columns.Count()))
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{header}, rows...)...)
}

func renderColumn(status domain.TaskStatus, tasks []*domain.Task, width int) string {
	lines := []string{headerStyle.Render(fmt.Sprintf("%s (%d)", status, len(tasks)))}
	if len(tasks) == 0 {
		lines = append(lines, mutedStyle.Render("—"))
	}
	for _, task := range tasks {
		lines = append(lines, renderCard(task))
	}
	return columnStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func renderCard(task *domain.Task) string {
	priority := lipgloss.NewStyle().
		Foreground(priorityColors[task.Priority]).
		Render(task.Priority.Label())

	card := fmt.Sprintf("%s %s\n  %s", task.Code, task.Name, priority)
	if task.DueDate != nil {
		card += mutedStyle.Render(" · " + task.DueDate.Format("02/01"))
	}
	if task.Progress > 0 {
		card += mutedStyle.Render(fmt.Sprintf(" · %d%%", task.Progress))
	}
	return card
}
