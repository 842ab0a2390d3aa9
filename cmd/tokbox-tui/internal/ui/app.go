// Package ui provides the terminal user interface for the tokbox TUI.
package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tokbox/tokbox/cmd/tokbox-tui/internal/config"
	"github.com/tokbox/tokbox/cmd/tokbox-tui/internal/opsclient"
	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/service"
)

// Panel represents a UI panel type.
type Panel int

const (
	PanelDashboard Panel = iota
	PanelEvents
	PanelLive
	PanelAnalyses
	PanelHelp
)

// App is the main TUI application.
type App struct {
	app          *tview.Application
	pages        *tview.Pages
	cfg          *config.Config
	client       *opsclient.Client
	stats        *service.OpsStats
	statsMu      sync.RWMutex
	currentPanel Panel
	ctx          context.Context
	cancel       context.CancelFunc

	header    *tview.TextView
	footer    *tview.TextView
	statusBar *tview.TextView

	dashboardView *tview.Flex
	analysesBox   *tview.TextView
	gradesBox     *tview.TextView
	systemBox     *tview.TextView
	eventStatsBox *tview.TextView

	eventsView  *tview.Flex
	eventsTable *tview.Table
	searchInput *tview.InputField
	eventFilter opsclient.EventFilter
	events      []domain.Event

	analysesTable *tview.Table

	liveView     *tview.TextView
	liveCancel   context.CancelFunc
	liveLines    int
	helpView     *tview.TextView
	refreshTimer *time.Ticker
}

const maxLiveLines = 500

// NewApp creates a new TUI application.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("TOKBOX_OPS_API_KEY is required")
	}
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:         tview.NewApplication(),
		pages:       tview.NewPages(),
		cfg:         cfg,
		client:      opsclient.NewClient(cfg.Server, cfg.APIKey),
		eventFilter: opsclient.EventFilter{Limit: cfg.EventLimit},
		ctx:         ctx,
		cancel:      cancel,
	}

	a.setupUI()
	return a, nil
}

func (a *App) setupUI() {
	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)
	a.updateHeader()

	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[yellow]1[white]:Dashboard [yellow]2[white]:Events [yellow]3[white]:Live [yellow]4[white]:Analyses [yellow]r[white]:Refresh [yellow]?[white]:Help [yellow]q[white]:Quit")
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	a.statusBar = tview.NewTextView().
		SetDynamicColors(true)
	a.statusBar.SetBackgroundColor(tcell.ColorDarkGreen)

	a.createDashboardPanel()
	a.createEventsPanel()
	a.createLivePanel()
	a.createAnalysesPanel()
	a.createHelpPanel()

	a.pages.AddPage("dashboard", a.dashboardView, true, true)
	a.pages.AddPage("events", a.eventsView, true, false)
	a.pages.AddPage("live", a.liveView, true, false)
	a.pages.AddPage("analyses", a.analysesTable, true, false)
	a.pages.AddPage("help", a.helpView, true, false)

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 3, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false).
		AddItem(a.footer, 1, 0, false)

	a.app.SetInputCapture(a.handleGlobalKeys)
	a.app.SetRoot(mainFlex, true)
}

func (a *App) handleGlobalKeys(event *tcell.EventKey) *tcell.EventKey {
	// Don't intercept when typing in the search box
	if a.app.GetFocus() == a.searchInput {
		return event
	}

	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case '1':
			a.switchPanel(PanelDashboard)
			return nil
		case '2':
			a.switchPanel(PanelEvents)
			return nil
		case '3':
			a.switchPanel(PanelLive)
			return nil
		case '4':
			a.switchPanel(PanelAnalyses)
			return nil
		case '?':
			a.switchPanel(PanelHelp)
			return nil
		case 'q', 'Q':
			a.Stop()
			return nil
		case 'r', 'R':
			go a.refresh()
			return nil
		}
	case tcell.KeyF1:
		a.switchPanel(PanelDashboard)
		return nil
	case tcell.KeyF2:
		a.switchPanel(PanelEvents)
		return nil
	case tcell.KeyF3:
		a.switchPanel(PanelLive)
		return nil
	case tcell.KeyF4:
		a.switchPanel(PanelAnalyses)
		return nil
	case tcell.KeyEscape:
		a.switchPanel(PanelDashboard)
		return nil
	}

	return event
}

func (a *App) switchPanel(panel Panel) {
	if panel != PanelLive {
		a.stopLive()
	}
	a.currentPanel = panel

	switch panel {
	case PanelDashboard:
		a.pages.SwitchToPage("dashboard")
	case PanelEvents:
		a.pages.SwitchToPage("events")
		a.app.SetFocus(a.eventsTable)
		go a.refreshEvents()
	case PanelLive:
		a.pages.SwitchToPage("live")
		a.startLive()
	case PanelAnalyses:
		a.pages.SwitchToPage("analyses")
		a.app.SetFocus(a.analysesTable)
		go a.refreshAnalyses()
	case PanelHelp:
		a.pages.SwitchToPage("help")
	}

	a.updateHeader()
}

func (a *App) updateHeader() {
	var panelName string
	switch a.currentPanel {
	case PanelDashboard:
		panelName = "Dashboard"
	case PanelEvents:
		panelName = "Events"
	case PanelLive:
		panelName = "Live Events"
	case PanelAnalyses:
		panelName = "Recent Analyses"
	case PanelHelp:
		panelName = "Help"
	}

	a.header.SetText(fmt.Sprintf("\n[white::b]tok.box ops[white] - [yellow]%s[white] | Server: [green]%s",
		panelName, a.client.BaseURL()))
}

func (a *App) updateStatusBar(msg string) {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetText(fmt.Sprintf(" %s | Last refresh: %s", msg, time.Now().Format("15:04:05")))
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.startBackgroundRefresh()
	go a.refresh()

	return a.app.Run()
}

// Stop stops the TUI application.
func (a *App) Stop() {
	a.cancel()
	a.stopLive()
	a.app.Stop()
}

func (a *App) startBackgroundRefresh() {
	a.refreshTimer = time.NewTicker(a.cfg.StatusRefresh)
	defer a.refreshTimer.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.refreshTimer.C:
			a.refresh()
		}
	}
}

// refresh fetches the stats and the list shown on the current panel.
func (a *App) refresh() {
	ctx, cancel := context.WithTimeout(a.ctx, 20*time.Second)
	defer cancel()

	stats, err := a.client.Stats(ctx)
	if err != nil {
		a.updateStatusBar(fmt.Sprintf("[red]Error: %v", err))
		return
	}

	a.statsMu.Lock()
	a.stats = stats
	a.statsMu.Unlock()

	a.app.QueueUpdateDraw(a.updateDashboard)

	switch a.currentPanel {
	case PanelEvents:
		a.refreshEvents()
		return
	case PanelAnalyses:
		a.refreshAnalyses()
		return
	}

	errCount := stats.Events.BySeverity[domain.EventSeverityError]
	if errCount > 0 {
		a.updateStatusBar(fmt.Sprintf("[yellow]%d error event(s) buffered", errCount))
	} else {
		a.updateStatusBar("[green]All systems operational")
	}
}

func (a *App) getStats() *service.OpsStats {
	a.statsMu.RLock()
	defer a.statsMu.RUnlock()
	return a.stats
}
