package handlers

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(18)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true).Padding(0, 1)
)

type field struct {
	label string
	value interface{}
}

// printSummary writes a boxed block of label/value rows
func printSummary(w io.Writer, title string, fields ...field) {
	rows := []string{titleStyle.Render(title)}
	for _, f := range fields {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(f.label), fmt.Sprint(f.value)))
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(rows, "\n")))
}

// count renders n, highlighted when it signals trouble
func count(n int, bad bool) string {
	s := fmt.Sprint(n)
	if bad && n > 0 {
		return errStyle.Render(s)
	}
	return s
}
