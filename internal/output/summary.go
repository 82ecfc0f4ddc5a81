/*
PURPOSE:
  Human-readable end-of-run summary for the terminal.

IMPLEMENTATION RULES:
  - Title color follows the outcome: success, safeguard warning, or failure.
  - Never used for machine output; see report.go.
*/

package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/daryltucker/fio-tuner/internal/model"
)

// Summary renders the final report for a terminal.
func Summary(r *model.Report) string {
	var lines []string
	title, style := summaryTitle(r)
	lines = append(lines, style.Inherit(TitleStyle).Render(title), "")

	if r.Optimum == nil {
		lines = append(lines, WarningStyle.Render("No numjobs level completed; no optimum to report."))
	} else {
		lines = append(lines,
			row("Optimal numjobs", strconv.Itoa(r.Optimum.JobCount)),
			row("Optimal iodepth", strconv.Itoa(r.Optimum.QueueDepth)),
			row("Max achieved IOPS", humanize.CommafWithDigits(r.Optimum.IOPS, 2)),
			row("99% CLAT", fmt.Sprintf("%.2f ms", r.Optimum.TailLatencyMs)),
		)
	}

	lines = append(lines,
		row("Trials run", strconv.Itoa(len(r.Trials))),
		row("Levels completed", strconv.Itoa(len(r.Levels))),
	)
	if !r.FinishedAt.IsZero() {
		lines = append(lines, row("Elapsed", r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()))
	}
	if r.SafeguardLimitReached {
		lines = append(lines, "", WarningStyle.Render("Safeguard limit reached: search space exhausted before a plateau."))
	}
	if r.Error != "" {
		lines = append(lines, "", ErrorStyle.Render(r.Error))
	}

	return SummaryBox.Render(strings.Join(lines, "\n"))
}

func summaryTitle(r *model.Report) (string, lipgloss.Style) {
	switch {
	case r.Canceled:
		return "FIO OPTIMIZATION CANCELED (best so far)", WarningStyle
	case r.Stop == model.StopFailed:
		return "FIO OPTIMIZATION FAILED (best so far)", ErrorStyle
	default:
		return "FIO OPTIMIZATION COMPLETE", SuccessStyle
	}
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, LabelStyle.Render(label+":"), ValueStyle.Render(value))
}
