package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/specialistvlad/cellgrid/internal/ctyconv"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	cellStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	statusStyles = map[string]lipgloss.Style{
		"resolved": lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"errored":  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		"pending":  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"disposed": lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

const maxValueWidth = 80

func writeRunText(w io.Writer, r *Run) error {
	width := 0
	for _, e := range r.Entries {
		width = max(width, len(e.Cell))
	}

	var b strings.Builder
	for _, e := range r.Entries {
		status := e.Status
		if st, ok := statusStyles[status]; ok {
			status = st.Render(fmt.Sprintf("%-8s", status))
		}
		detail := ""
		switch {
		case e.Error != "":
			detail = e.Error
		case e.Status == "resolved":
			detail = truncate(ctyconv.Format(e.Value), maxValueWidth)
		}
		fmt.Fprintf(&b, "%s  %s  %s\n", cellStyle.Render(fmt.Sprintf("%-*s", width, e.Cell)), status, detail)
	}

	counts := r.Counts()
	summary := fmt.Sprintf("%d cells: %d resolved, %d errored, %d pending", len(r.Entries), counts["resolved"], counts["errored"], counts["pending"])
	if n := counts["disposed"]; n > 0 {
		summary += fmt.Sprintf(", %d disposed", n)
	}
	b.WriteString(headerStyle.Render(summary))
	b.WriteString("\n")
	if failures := r.Failures(); len(failures) > 0 {
		b.WriteString(headerStyle.Render("Root causes:"))
		b.WriteString("\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "  - %s: %s\n", f.Cell, f.Error)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writePlanText(w io.Writer, p *Plan) error {
	var b strings.Builder
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "%3d. %s %s\n", s.Position, cellStyle.Render(s.Cell), dimStyle.Render(fmt.Sprintf("(%s, depth %d)", s.Kind, s.Depth)))
		for _, in := range s.Inputs {
			switch {
			case in.Root:
				fmt.Fprintf(&b, "       %s <- external root\n", in.Name)
			default:
				fmt.Fprintf(&b, "       %s <- %s\n", in.Name, in.From)
			}
		}
		if s.Source != "" {
			fmt.Fprintf(&b, "       = %s\n", dimStyle.Render(truncate(s.Source, maxValueWidth)))
		}
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("%d cells in evaluation order", len(p.Steps))))
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
