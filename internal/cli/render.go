package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/scrivener-tools/scrivener/internal/batch"
	"github.com/scrivener-tools/scrivener/internal/remote"
)

// Column widths for the batch tables.
const (
	batchIDColWidth = 28
	packageColWidth = 24
	stateColWidth   = 10
)

// Styles for summary rendering. lipgloss degrades to plain text when the
// output profile has no color support.
var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// numPrinter formats item counts with locale-aware grouping.
var numPrinter = message.NewPrinter(language.English)

// styled applies style only when stdout is a terminal, keeping piped output
// clean for scripts.
func styled(style lipgloss.Style, s string) string {
	if !isTerminal(os.Stdout) {
		return s
	}
	return style.Render(s)
}

// stateStyle picks a style for a remote job state.
func stateStyle(state remote.JobState) lipgloss.Style {
	switch state {
	case remote.JobStateCompleted:
		return okStyle
	case remote.JobStateFailed:
		return failStyle
	case remote.JobStateUnknown:
		return dimStyle
	case remote.JobStatePending, remote.JobStateProcessing:
		return pendingStyle
	}
	return pendingStyle
}

// renderJobTable prints recorded jobs (active or quarantined) without any
// remote state.
func renderJobTable(out io.Writer, jobs []*batch.Job, staleAfter time.Duration) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No batches recorded.")
		return
	}

	fmt.Fprintln(out, styled(headerStyle, fmt.Sprintf("%-*s %-*s %6s  %s",
		batchIDColWidth, "BATCH", packageColWidth, "PACKAGE", "ITEMS", "AGE")))

	totalItems := 0
	for _, job := range jobs {
		age := formatAge(job.Age())
		if staleAfter > 0 && job.Age() > staleAfter {
			age += " (stale)"
		}
		fmt.Fprintf(out, "%-*s %-*s %6d  %s\n",
			batchIDColWidth, clip(job.BatchID, batchIDColWidth),
			packageColWidth, clip(job.PackagePath, packageColWidth),
			len(job.Items), age)
		totalItems += len(job.Items)
	}

	numPrinter.Fprintf(out, "\n%d batch(es), %d item(s) total\n", len(jobs), totalItems)
}

// renderSummary prints the outcome of one poll pass.
func renderSummary(out io.Writer, summary *batch.Summary) {
	if len(summary.Jobs) == 0 {
		fmt.Fprintln(out, "No batches recorded. Run 'scrivener batch submit' first.")
		return
	}

	fmt.Fprintln(out, styled(headerStyle, fmt.Sprintf("%-*s %-*s %6s %-*s %8s  %s",
		batchIDColWidth, "BATCH", packageColWidth, "PACKAGE", "ITEMS",
		stateColWidth, "STATE", "AGE", "DETAIL")))

	for _, job := range summary.Jobs {
		detail := summarizeDetail(job)
		fmt.Fprintf(out, "%-*s %-*s %6d %s %8s  %s\n",
			batchIDColWidth, clip(job.BatchID, batchIDColWidth),
			packageColWidth, clip(job.PackagePath, packageColWidth),
			job.Items,
			styled(stateStyle(job.State), fmt.Sprintf("%-*s", stateColWidth, string(job.State))),
			formatAge(job.Age),
			detail)

		for _, failure := range job.Failures {
			fmt.Fprintf(out, "    %s %s: %s\n", styled(failStyle, "x"), failure.FilePath, failure.Reason)
		}
	}

	numPrinter.Fprintf(out,
		"\n%d batch(es): %d pending, %d processing, %d completed, %d failed, %d unreachable\n",
		len(summary.Jobs),
		summary.CountByState(remote.JobStatePending),
		summary.CountByState(remote.JobStateProcessing),
		summary.CountByState(remote.JobStateCompleted),
		summary.CountByState(remote.JobStateFailed),
		summary.CountByState(remote.JobStateUnknown))
}

// summarizeDetail condenses a job's pass outcome to one cell.
func summarizeDetail(job batch.JobStatus) string {
	switch {
	case job.Quarantined:
		return "quarantined"
	case job.State == remote.JobStateCompleted:
		return numPrinter.Sprintf("%d applied, %d failed", job.Applied, len(job.Failures))
	case job.State == remote.JobStatePending || job.State == remote.JobStateProcessing:
		progress := numPrinter.Sprintf("%d done, %d in flight",
			job.Counts.Succeeded+job.Counts.Errored, job.Counts.Processing)
		if job.Stale {
			progress += " (stale)"
		}
		return progress
	default:
		return job.Detail
	}
}

// formatAge renders a duration in coarse human units.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%02dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

// clip truncates s to width with an ellipsis.
func clip(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}
