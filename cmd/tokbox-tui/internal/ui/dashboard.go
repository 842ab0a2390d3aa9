package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

func newBox(title string) *tview.TextView {
	box := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	box.SetBorder(true).SetTitle(" " + title + " ")
	return box
}

// createDashboardPanel creates the main dashboard panel.
func (a *App) createDashboardPanel() {
	a.analysesBox = newBox("Analyses")
	a.gradesBox = newBox("Grades")
	a.systemBox = newBox("System")
	a.eventStatsBox = newBox("Event Log")

	topRow := tview.NewFlex().
		AddItem(a.analysesBox, 0, 1, false).
		AddItem(a.gradesBox, 0, 1, false)

	bottomRow := tview.NewFlex().
		AddItem(a.systemBox, 0, 1, false).
		AddItem(a.eventStatsBox, 0, 1, false)

	a.dashboardView = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 1, false).
		AddItem(bottomRow, 0, 1, false)

	for _, box := range []*tview.TextView{a.analysesBox, a.gradesBox, a.systemBox, a.eventStatsBox} {
		box.SetText("[gray]Loading...")
	}
}

// updateDashboard redraws the dashboard from the last stats. Must run on the
// UI goroutine.
func (a *App) updateDashboard() {
	stats := a.getStats()
	if stats == nil {
		return
	}

	var analyses strings.Builder
	if s := stats.Analyses; s != nil {
		fmt.Fprintf(&analyses, "[white::b]Total:[white]      %d\n", s.Total)
		fmt.Fprintf(&analyses, "[white::b]Today:[white]      %d\n", s.Today)
		fmt.Fprintf(&analyses, "[white::b]Anonymous:[white]  %d\n", s.Anonymous)
		fmt.Fprintf(&analyses, "[white::b]Premium:[white]    %d\n\n", s.Premium)
		fmt.Fprintf(&analyses, "[white::b]Avg viral score:[white] [%s]%.1f[white]\n", scoreColor(s.AverageScore), s.AverageScore)
	} else {
		analyses.WriteString("[red]Analysis stats unavailable[white]\n")
	}
	a.analysesBox.SetText(analyses.String())

	if stats.Analyses != nil {
		_, _, width, _ := a.gradesBox.GetInnerRect()
		a.gradesBox.SetText(gradeBars(stats.Analyses.GradeHistogram, width-12))
	}

	sys := stats.System
	var system strings.Builder
	fmt.Fprintf(&system, "[white::b]Uptime:[white]     %s\n", sys.UptimeHuman)
	fmt.Fprintf(&system, "[white::b]Goroutines:[white] %d\n", sys.NumGoroutines)
	fmt.Fprintf(&system, "[white::b]Heap:[white]       %d MB (sys %d MB)\n", sys.MemAllocMB, sys.MemSysMB)
	fmt.Fprintf(&system, "[white::b]CPUs:[white]       %d\n", sys.NumCPU)
	if sys.DiskTotalBytes > 0 {
		color := "green"
		if sys.DiskUsedPct >= 90 {
			color = "red"
		} else if sys.DiskUsedPct >= 75 {
			color = "yellow"
		}
		fmt.Fprintf(&system, "\n[white::b]Storage:[white] %s\n", tview.Escape(sys.StoragePath))
		fmt.Fprintf(&system, "  [%s]%.1f%% used[white], %s free of %s\n",
			color, sys.DiskUsedPct, formatBytes(sys.DiskFreeBytes), formatBytes(sys.DiskTotalBytes))
	}
	a.systemBox.SetText(system.String())

	ev := stats.Events
	var events strings.Builder
	fmt.Fprintf(&events, "[white::b]Buffered:[white] %d / %d\n", ev.BufferUsed, ev.BufferSize)
	fmt.Fprintf(&events, "[white::b]Live subscribers:[white] %d\n", ev.Subscribers)
	if ev.Persisted {
		events.WriteString("[white::b]Persistence:[white] [green]on[white]\n")
	} else {
		events.WriteString("[white::b]Persistence:[white] [gray]off[white]\n")
	}
	events.WriteString("\n[white::b]By severity[white]\n")
	for _, sev := range sortedCounts(ev.BySeverity) {
		fmt.Fprintf(&events, "  [%s]%-8s[white] %d\n", severityColor(sev), sev, ev.BySeverity[sev])
	}
	events.WriteString("\n[white::b]By category[white]\n")
	for _, cat := range sortedCounts(ev.ByCategory) {
		fmt.Fprintf(&events, "  %-9s %d\n", cat, ev.ByCategory[cat])
	}
	a.eventStatsBox.SetText(events.String())
}

// scoreColor follows the grade colors: green from B- up, yellow for C,
// red below.
func scoreColor(score float64) string {
	switch {
	case score >= 80:
		return "green"
	case score >= 70:
		return "yellow"
	case score >= 60:
		return "orange"
	default:
		return "red"
	}
}
