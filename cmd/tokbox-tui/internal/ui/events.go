package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tokbox/tokbox/cmd/tokbox-tui/internal/opsclient"
	"github.com/tokbox/tokbox/internal/domain"
)

var (
	severityCycle = []string{"", string(domain.EventSeverityError), string(domain.EventSeverityWarning), string(domain.EventSeverityInfo), string(domain.EventSeveritySuccess)}
	categoryCycle = []string{"", string(domain.EventCategoryUpstream), string(domain.EventCategoryAI), string(domain.EventCategoryStorage), string(domain.EventCategoryDatabase), string(domain.EventCategoryQuota), string(domain.EventCategorySystem)}
)

// next returns the value after cur in cycle, wrapping around.
func next(cycle []string, cur string) string {
	for i, v := range cycle {
		if v == cur {
			return cycle[(i+1)%len(cycle)]
		}
	}
	return cycle[0]
}

func orAll(v string) string {
	if v == "" {
		return "all"
	}
	return v
}

// createEventsPanel creates the filterable event table.
func (a *App) createEventsPanel() {
	a.eventsTable = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	a.eventsTable.SetBorder(true)
	a.eventsTable.SetSelectedStyle(tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorDarkCyan))
	a.setEventsTitle()

	a.searchInput = tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	a.searchInput.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			a.eventFilter.Search = strings.TrimSpace(a.searchInput.GetText())
			go a.refreshEvents()
		}
		a.app.SetFocus(a.eventsTable)
	})

	a.eventsTable.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter:
			row, _ := a.eventsTable.GetSelection()
			a.showEventDetail(row - 1)
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 's', 'S':
				a.eventFilter.Severity = next(severityCycle, a.eventFilter.Severity)
			case 'c', 'C':
				a.eventFilter.Category = next(categoryCycle, a.eventFilter.Category)
			case 'h', 'H':
				a.eventFilter.Historical = !a.eventFilter.Historical
			case 'x', 'X':
				a.eventFilter = opsclient.EventFilter{Limit: a.cfg.EventLimit}
				a.searchInput.SetText("")
			case '/':
				a.app.SetFocus(a.searchInput)
				return nil
			default:
				return event
			}
			a.setEventsTitle()
			go a.refreshEvents()
			return nil
		}
		return event
	})

	a.eventsView = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.searchInput, 1, 0, false).
		AddItem(a.eventsTable, 0, 1, true)
}

func (a *App) setEventsTitle() {
	source := "memory"
	if a.eventFilter.Historical {
		source = "database"
	}
	a.eventsTable.SetTitle(fmt.Sprintf(" Events [%s] severity:%s category:%s - 's' severity, 'c' category, 'h' source, '/' search, 'x' clear ",
		source, orAll(a.eventFilter.Severity), orAll(a.eventFilter.Category)))
}

// refreshEvents loads the event list with the current filter.
func (a *App) refreshEvents() {
	ctx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
	defer cancel()

	filter := make(chan opsclient.EventFilter, 1)
	a.app.QueueUpdate(func() { filter <- a.eventFilter })

	var f opsclient.EventFilter
	select {
	case f = <-filter:
	case <-ctx.Done():
		return
	}

	page, err := a.client.Events(ctx, f)
	if err != nil {
		a.updateStatusBar(fmt.Sprintf("[red]Error loading events: %v", err))
		return
	}

	a.app.QueueUpdateDraw(func() {
		a.events = page.Events
		a.renderEvents()
	})
	more := ""
	if page.HasMore {
		more = " (more available)"
	}
	a.updateStatusBar(fmt.Sprintf("[green]%d of %d event(s)%s", len(page.Events), page.Total, more))
}

func (a *App) renderEvents() {
	a.eventsTable.Clear()

	headers := []string{"TIME", "SEVERITY", "CATEGORY", "SOURCE", "MESSAGE"}
	for i, h := range headers {
		cell := tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false)
		if i == len(headers)-1 {
			cell.SetExpansion(1)
		}
		a.eventsTable.SetCell(0, i, cell)
	}

	for i, e := range a.events {
		row := i + 1
		a.eventsTable.SetCell(row, 0, tview.NewTableCell(e.Timestamp.Local().Format("01-02 15:04:05")).SetTextColor(tcell.ColorGray))
		a.eventsTable.SetCell(row, 1, tview.NewTableCell(string(e.Severity)).SetTextColor(tcell.GetColor(severityColor(e.Severity))))
		a.eventsTable.SetCell(row, 2, tview.NewTableCell(string(e.Category)).SetTextColor(tcell.ColorAqua))
		a.eventsTable.SetCell(row, 3, tview.NewTableCell(tview.Escape(e.Source)))
		a.eventsTable.SetCell(row, 4, tview.NewTableCell(tview.Escape(e.Message)).SetExpansion(1))
	}

	if len(a.events) == 0 {
		a.eventsTable.SetCell(1, 0, tview.NewTableCell("No events match the filter").SetTextColor(tcell.ColorGray).SetSelectable(false))
		return
	}
	a.eventsTable.Select(1, 0)
}

// showEventDetail opens a modal with the full event and its metadata.
func (a *App) showEventDetail(idx int) {
	if idx < 0 || idx >= len(a.events) {
		return
	}
	e := a.events[idx]

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s/%s  %s\n\n%s", e.Timestamp.Local().Format(time.RFC3339), e.Severity, e.Category, e.Source, e.Message)
	if len(e.Metadata) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, e.Metadata, "", "  "); err == nil {
			b.WriteString("\n\n")
			b.WriteString(pretty.String())
		}
	}

	modal := tview.NewModal().
		SetText(b.String()).
		AddButtons([]string{"Close"}).
		SetDoneFunc(func(int, string) {
			a.pages.RemovePage("event-detail")
			a.app.SetFocus(a.eventsTable)
		})
	a.pages.AddPage("event-detail", modal, true, true)
}
