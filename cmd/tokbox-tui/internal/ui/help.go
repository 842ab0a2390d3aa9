package ui

import (
	"github.com/rivo/tview"
)

// createHelpPanel creates the help panel.
func (a *App) createHelpPanel() {
	a.helpView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.helpView.SetBorder(true).SetTitle(" Help ")

	helpText := `[yellow::b]tok.box ops console[white]

Watches a running tokbox API through its /api/v1 ops endpoints.

[yellow::b]GLOBAL NAVIGATION[white]
[cyan]1[white] or [cyan]F1[white]     Dashboard      - Analyses, grades, system and event log stats
[cyan]2[white] or [cyan]F2[white]     Events         - Filterable event list
[cyan]3[white] or [cyan]F3[white]     Live           - Tail of new events as they happen
[cyan]4[white] or [cyan]F4[white]     Analyses       - Newest analyses across all callers
[cyan]?[white]            Help           - This help screen
[cyan]r[white]            Refresh        - Refresh current data
[cyan]q[white]            Quit           - Exit the application
[cyan]Escape[white]       Dashboard      - Return to dashboard

[yellow::b]EVENTS PANEL[white]
[cyan]s[white]            Cycle severity filter (all, error, warning, info, success)
[cyan]c[white]            Cycle category filter (upstream, ai, storage, database, quota, system)
[cyan]h[white]            Toggle between the in-memory buffer and the database
[cyan]/[white]            Search message text, Enter to apply
[cyan]x[white]            Clear all filters
[cyan]Enter[white]        Show the selected event with its metadata

[yellow::b]LIVE PANEL[white]
[cyan]c[white]            Clear the view
[cyan]b[white]            Back to dashboard

[yellow::b]ENVIRONMENT[white]
[cyan]TOKBOX_SERVER[white]           API base URL (default http://localhost:8080)
[cyan]TOKBOX_OPS_API_KEY[white]      Ops API key, sent as X-API-Key
[cyan]TOKBOX_STATUS_REFRESH[white]   Dashboard refresh interval (default 5s)
[cyan]TOKBOX_EVENT_LIMIT[white]      Events per page (default 100, server max 200)

When stdout is not a terminal the stats are printed once as plain text.
`
	a.helpView.SetText(helpText)
}
