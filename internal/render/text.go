package render

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	numericStyle = cellStyle.Align(lipgloss.Right)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Text renders rows as a bordered terminal table. Every column except the
// trailing title columns is right-aligned.
func Text(header []string, rows []Row) string {
	titleCols := 2
	firstTitle := len(header) - titleCols

	data := make([][]string, len(rows))
	for i, r := range rows {
		data[i] = r.Cells
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(header...).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col < firstTitle:
				return numericStyle
			default:
				return cellStyle
			}
		})
	return t.String()
}
