package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/eteka/biojet-intel-node/internal/record"
	"github.com/eteka/biojet-intel-node/internal/runlog"
)

// Render formats the report for a terminal.
func Render(r Report, now time.Time) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("biojet status") + "  " + headerDateStyle.Render(r.DateLabel) + "\n\n")

	if len(r.Streams) == 0 {
		b.WriteString(dimStyle.Render("No streams configured.") + "\n")
		return b.String()
	}

	var current string
	var lines []string
	flush := func() {
		if current == "" {
			return
		}
		b.WriteString(panelStyle.Render(strings.Join(lines, "\n")) + "\n")
		lines = nil
	}

	for _, s := range r.Streams {
		if s.Category != current {
			flush()
			current = s.Category
			head := categoryStyle.Render(s.Title)
			if s.LastRun != nil {
				head += "  " + dimStyle.Render("last run "+relativeTime(*s.LastRun, now))
			}
			lines = append(lines, head)
		}
		lines = append(lines, streamLine(s, now))
		if s.TopSources != "" {
			lines = append(lines, dimStyle.Render("    sources: "+s.TopSources))
		}
		if len(s.Themes) > 0 {
			lines = append(lines, dimStyle.Render("    themes:  "+strings.Join(s.Themes, ", ")))
		}
	}
	flush()
	return b.String()
}

func streamLine(s StreamStatus, now time.Time) string {
	label := freshnessStyle(s.Freshness).Render(fmt.Sprintf("%-9s", s.Freshness))
	name := streamStyle.Render(fmt.Sprintf("%-16s", s.Stream))
	count := fmt.Sprintf("%3d/%-3d", s.Count, s.Max)

	var detail string
	switch {
	case s.Error != "":
		detail = alertStyle.Render(s.Error)
	case s.Newest != nil:
		detail = "newest " + relativeTime(*s.Newest, now)
		if n := s.Modes[record.Live]; n > 0 {
			detail += fmt.Sprintf(", %d live", n)
		}
		detail = dimStyle.Render(detail)
	default:
		detail = dimStyle.Render("no records yet")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, "  ", label, " ", name, " ", count, "  ", detail)
}

// RenderHistory formats ledger runs, newest first.
func RenderHistory(runs []runlog.Run, now time.Time) string {
	if len(runs) == 0 {
		return dimStyle.Render("No runs recorded.") + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("biojet history") + "\n\n")
	for _, r := range runs {
		status := freshStyle.Render(fmt.Sprintf("%-6s", r.Status))
		if r.Status != runlog.StatusOK {
			status = alertStyle.Render(fmt.Sprintf("%-6s", r.Status))
		}
		line := fmt.Sprintf("  %s %s %-10s %s",
			dimStyle.Render(fmt.Sprintf("%-12s", relativeTime(r.FinishedAt, now))),
			status,
			r.Category,
			fmt.Sprintf("+%d -%d =%d", r.Written, r.Evicted, r.StoreSize),
		)
		if r.Error != "" {
			line += "  " + alertStyle.Render(r.Error)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func relativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
