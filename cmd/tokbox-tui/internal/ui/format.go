package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rivo/tview"

	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/grading"
	"github.com/tokbox/tokbox/internal/service"
)

// severityColor maps an event severity to a tview color tag name.
func severityColor(sev domain.EventSeverity) string {
	switch sev {
	case domain.EventSeverityError:
		return "red"
	case domain.EventSeverityWarning:
		return "yellow"
	case domain.EventSeveritySuccess:
		return "green"
	default:
		return "white"
	}
}

// formatEventLine renders one event for the live view.
func formatEventLine(e domain.Event) string {
	line := fmt.Sprintf("[gray]%s[white] [%s]%-7s[white] [cyan]%-8s[white] %s",
		e.Timestamp.Local().Format("15:04:05"),
		severityColor(e.Severity), strings.ToUpper(string(e.Severity)),
		e.Category,
		tview.Escape(e.Message))
	if e.Source != "" {
		line += fmt.Sprintf(" [gray](%s)[white]", tview.Escape(e.Source))
	}
	return line
}

// gradeBars draws the grade histogram, best grade first. Grades with no
// analyses are skipped.
func gradeBars(histogram map[string]int, width int) string {
	if len(histogram) == 0 {
		return "No graded analyses yet"
	}
	top := 0
	for _, n := range histogram {
		if n > top {
			top = n
		}
	}
	if width <= 0 {
		width = 20
	}

	var b strings.Builder
	for _, letter := range grading.Letters() {
		n, ok := histogram[letter]
		if !ok || n == 0 {
			continue
		}
		bar := n * width / top
		if bar == 0 {
			bar = 1
		}
		fmt.Fprintf(&b, "%-3s %s %d\n", letter, strings.Repeat("█", bar), n)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatBytes renders a byte count with binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// sortedCounts returns the keys of counts ordered by count, then name.
func sortedCounts[K ~string](counts map[K]int) []K {
	keys := make([]K, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Summary renders ops stats as plain text, for non-interactive output.
func Summary(server string, s *service.OpsStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tokbox @ %s\n", server)
	fmt.Fprintf(&b, "uptime %s, %d goroutines, %d MB heap\n",
		s.System.UptimeHuman, s.System.NumGoroutines, s.System.MemAllocMB)
	if s.System.DiskTotalBytes > 0 {
		fmt.Fprintf(&b, "disk %s free of %s (%.1f%% used)\n",
			formatBytes(s.System.DiskFreeBytes), formatBytes(s.System.DiskTotalBytes), s.System.DiskUsedPct)
	}

	if a := s.Analyses; a != nil {
		fmt.Fprintf(&b, "\nanalyses: %d total, %d today, %d anonymous, %d premium, avg score %.1f\n",
			a.Total, a.Today, a.Anonymous, a.Premium, a.AverageScore)
		if len(a.GradeHistogram) > 0 {
			b.WriteString(gradeBars(a.GradeHistogram, 30))
			b.WriteString("\n")
		}
	} else {
		b.WriteString("\nanalyses: unavailable\n")
	}

	fmt.Fprintf(&b, "\nevents: %d/%d buffered, %d subscribers\n",
		s.Events.BufferUsed, s.Events.BufferSize, s.Events.Subscribers)
	for _, sev := range sortedCounts(s.Events.BySeverity) {
		fmt.Fprintf(&b, "  %-8s %d\n", sev, s.Events.BySeverity[sev])
	}
	return b.String()
}
