// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/job-matcher/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the run and status commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, clip(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// clip shortens s to width runes so box borders stay aligned.
func clip(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

// joinFirst joins up to n values, noting how many were left out.
func joinFirst(values []string, n int) string {
	if len(values) <= n {
		return strings.Join(values, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(values[:n], ", "), len(values)-n)
}

// PrintProgress outputs a one-line progress bar for a tracking record.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(rec *types.ProgressRecord) {
	if rec == nil {
		return
	}
	const barWidth = 20
	pct := rec.DisplayPercentage()
	filled := pct * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(p.out, "[%s] %3d%%  %s", bar, pct, rec.Stage)
	if rec.Error != "" {
		fmt.Fprintf(p.out, "  (%s)", rec.Error)
	}
	fmt.Fprintln(p.out)
}

// PrintSteps outputs the per-stage execution record of a run.
func (p *Printer) PrintSteps(records []types.StepRecord) {
	if len(records) == 0 {
		return
	}

	var sb strings.Builder
	for _, rec := range records {
		sb.WriteString(fmt.Sprintf("%-18s %-10s attempts=%d", rec.Step, rec.Status, rec.Attempts))
		if rec.DurationMs != nil {
			sb.WriteString(fmt.Sprintf(" %dms", *rec.DurationMs))
		}
		sb.WriteString("\n")
		if rec.Error != "" {
			sb.WriteString(fmt.Sprintf("  error: %s\n", rec.Error))
		}
	}

	p.printBox("WORKFLOW STEPS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSummary outputs the aggregate statistics and insights of a result set.
func (p *Printer) PrintSummary(summary *types.SearchResultsSummary) {
	if summary == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found:     %d\n", summary.TotalFound))
	sb.WriteString(fmt.Sprintf("Relevant:  %d\n", summary.TotalRelevant))
	sb.WriteString(fmt.Sprintf("Avg score: %.2f\n", summary.AverageMatchScore))

	if len(summary.TopSkillsInDemand) > 0 {
		sb.WriteString(fmt.Sprintf("In demand: %s\n", joinFirst(summary.TopSkillsInDemand, maxItemsToShow)))
	}
	if sr := summary.SearchParams.SalaryRange; sr != nil {
		sb.WriteString(fmt.Sprintf("Salary:    %.0f - %.0f %s\n", sr.Min, sr.Max, sr.Currency))
	}
	if len(summary.SearchParams.OptimizedKeywords) > 0 {
		sb.WriteString(fmt.Sprintf("Keywords:  %s\n", joinFirst(summary.SearchParams.OptimizedKeywords, maxItemsToShow)))
	}
	if summary.MarketObservations != "" {
		sb.WriteString("\n")
		sb.WriteString(summary.MarketObservations)
		sb.WriteString("\n")
	}

	p.printBox("SEARCH SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintJobs outputs the top ranked jobs with score, recommendation and skill fit.
func (p *Printer) PrintJobs(jobs []types.JobResult) {
	if len(jobs) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total jobs: %d\n\n", len(jobs)))

	count := min(len(jobs), maxItemsToShow)
	for i := 0; i < count; i++ {
		job := jobs[i]
		rank := job.Rank
		if rank == 0 {
			rank = i + 1
		}
		sb.WriteString(fmt.Sprintf("#%d  %s\n", rank, job.Title))
		if job.Company != "" || job.Location != "" {
			sb.WriteString(fmt.Sprintf("    %s  %s\n", job.Company, job.Location))
		}
		sb.WriteString(fmt.Sprintf("    Score: %.2f", job.MatchScore))
		if job.Recommendation != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", job.Recommendation))
		}
		sb.WriteString("\n")
		if len(job.MatchedSkills) > 0 {
			sb.WriteString(fmt.Sprintf("    Skills: %s\n", joinFirst(job.MatchedSkills, 4)))
		}
		if len(job.MissingSkills) > 0 {
			sb.WriteString(fmt.Sprintf("    Missing: %s\n", joinFirst(job.MissingSkills, 4)))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(jobs) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more\n", len(jobs)-maxItemsToShow))
	}

	p.printBox("TOP MATCHES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintResults outputs the summary followed by the ranked jobs.
func (p *Printer) PrintResults(results *types.SavedResults) {
	if results == nil {
		return
	}
	p.PrintSummary(&results.Summary)
	p.PrintJobs(results.Jobs)
}
