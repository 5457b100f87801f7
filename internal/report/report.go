// Package report renders run reports and store statistics for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/amishk599/jobharvest/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	statusStyles = map[model.RunStatus]lipgloss.Style{
		model.RunCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		model.RunFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		model.RunAborted:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		model.RunRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}

	classStyles = map[model.Classification]lipgloss.Style{
		model.New:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		model.Updated:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33")),
		model.Vanished: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
)

// Summary is a one-line plain text digest of r.
func Summary(r model.Report) string {
	var completed, newCount, updated, vanished int
	for _, rec := range r.Records {
		if rec.Completed() {
			completed++
		}
		newCount += rec.New
		updated += rec.Updated
		vanished += rec.Vanished
	}
	return fmt.Sprintf("%d/%d sites completed, %s new, %s updated, %s vanished in %s",
		completed, len(r.Records),
		humanize.Comma(int64(newCount)),
		humanize.Comma(int64(updated)),
		humanize.Comma(int64(vanished)),
		Duration(r.CompletedAt.Sub(r.StartedAt)),
	)
}

// Duration renders d the way humans say it ("3 minutes").
func Duration(d time.Duration) string {
	start := time.Time{}
	return strings.TrimSpace(humanize.RelTime(start, start.Add(d), "", ""))
}

// Render writes the per-site table, the qualifying postings and any site
// errors to w.
func Render(w io.Writer, r model.Report) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Run " + r.StartedAt.Local().Format("2006-01-02 15:04")))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(Summary(r)))
	b.WriteString("\n\n")
	b.WriteString(siteTable(r.Records))
	b.WriteString("\n")

	if len(r.Batch) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render(fmt.Sprintf("%s new or updated postings", humanize.Comma(int64(len(r.Batch))))))
		b.WriteString("\n")
		for _, cp := range r.Batch {
			writePosting(&b, cp)
		}
	}

	if len(r.Vanished) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render(fmt.Sprintf("%s vanished postings", humanize.Comma(int64(len(r.Vanished))))))
		b.WriteString("\n")
		for _, cp := range r.Vanished {
			writePosting(&b, cp)
		}
	}

	for _, rec := range r.Records {
		for _, msg := range rec.ErrorMessages {
			fmt.Fprintf(&b, "%s %s: %s\n", statusStyles[model.RunFailed].Render("!"), rec.SiteName, msg)
		}
	}

	if len(r.Documents) > 0 {
		fmt.Fprintf(&b, "\n%s documents written\n", humanize.Comma(int64(len(r.Documents))))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func siteTable(records []model.SiteRunRecord) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("SITE", "STATUS", "PAGES", "SEEN", "NEW", "UPDATED", "UNCHANGED", "VANISHED", "DROPPED", "ERRORS", "TOOK").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, rec := range records {
		t.Row(
			rec.SiteName,
			statusStyles[rec.Status].Render(string(rec.Status)),
			strconv.Itoa(rec.PagesFetched),
			humanize.Comma(int64(rec.PostingsSeen)),
			humanize.Comma(int64(rec.New)),
			humanize.Comma(int64(rec.Updated)),
			humanize.Comma(int64(rec.Unchanged)),
			humanize.Comma(int64(rec.Vanished)),
			strconv.Itoa(rec.Dropped),
			strconv.Itoa(rec.Errors),
			Duration(rec.Duration()),
		)
	}
	return t.Render()
}

func writePosting(b *strings.Builder, cp model.ClassifiedPosting) {
	f := cp.Posting.Fields
	tag := classStyles[cp.Classification].Render(fmt.Sprintf("[%s]", cp.Classification))

	line := f.Title
	for _, part := range []string{f.Company, f.Location, f.Compensation} {
		if part != "" {
			line += " · " + part
		}
	}
	fmt.Fprintf(b, "  %s %s %s\n", tag, line, dimStyle.Render("("+cp.Posting.Site+")"))
	if f.URL != "" {
		fmt.Fprintf(b, "      %s\n", dimStyle.Render(f.URL))
	}
}

// RenderStats writes store totals and the most recent site runs to w.
func RenderStats(w io.Writer, stats model.StoreStats, runs []model.SiteRunRecord) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s postings stored", humanize.Comma(int64(stats.Total)))))
	b.WriteString("\n")

	sites := make([]string, 0, len(stats.BySite))
	for site := range stats.BySite {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	for _, site := range sites {
		fmt.Fprintf(&b, "  %-24s %s\n", site, humanize.Comma(int64(stats.BySite[site])))
	}

	fmt.Fprintf(&b, "\n%s\n", titleStyle.Render(fmt.Sprintf("%s site runs logged", humanize.Comma(int64(stats.Runs)))))
	if len(runs) > 0 {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(dimStyle).
			Headers("STARTED", "SITE", "STATUS", "NEW", "UPDATED", "VANISHED", "ERRORS", "TOOK").
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		for _, rec := range runs {
			t.Row(
				humanize.Time(rec.RunStartedAt),
				rec.SiteName,
				statusStyles[rec.Status].Render(string(rec.Status)),
				humanize.Comma(int64(rec.New)),
				humanize.Comma(int64(rec.Updated)),
				humanize.Comma(int64(rec.Vanished)),
				strconv.Itoa(rec.Errors),
				Duration(rec.Duration()),
			)
		}
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
