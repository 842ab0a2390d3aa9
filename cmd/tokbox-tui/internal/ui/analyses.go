package ui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/service"
)

// createAnalysesPanel creates the recent analyses table.
func (a *App) createAnalysesPanel() {
	a.analysesTable = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	a.analysesTable.SetBorder(true).SetTitle(" Recent Analyses - 'r' refresh ")
	a.analysesTable.SetSelectedStyle(tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorDarkCyan))
	a.renderAnalyses(nil)
}

// refreshAnalyses loads the newest analyses.
func (a *App) refreshAnalyses() {
	ctx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
	defer cancel()

	rows, err := a.client.RecentAnalyses(ctx, a.cfg.EventLimit)
	if err != nil {
		a.updateStatusBar(fmt.Sprintf("[red]Error loading analyses: %v", err))
		return
	}
	a.app.QueueUpdateDraw(func() { a.renderAnalyses(rows) })
	a.updateStatusBar(fmt.Sprintf("[green]%d recent analyses", len(rows)))
}

func (a *App) renderAnalyses(rows []service.RecentAnalysis) {
	a.analysesTable.Clear()

	headers := []string{"CREATED", "GRADE", "SCORE", "MOOD", "TIER", "CALLER", "RESULTS", "ID"}
	for i, h := range headers {
		cell := tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false)
		if i == len(headers)-1 {
			cell.SetExpansion(1)
		}
		a.analysesTable.SetCell(0, i, cell)
	}

	for i, r := range rows {
		row := i + 1
		caller := "user"
		if r.Anonymous {
			caller = "anonymous"
		}
		results := "no"
		if r.HasResults {
			results = "yes"
		}
		tierColor := tcell.ColorGreen
		if r.ModelUsed == domain.TierFast {
			tierColor = tcell.ColorGray
		}

		a.analysesTable.SetCell(row, 0, tview.NewTableCell(r.CreatedAt.Local().Format("01-02 15:04")).SetTextColor(tcell.ColorGray))
		a.analysesTable.SetCell(row, 1, tview.NewTableCell(r.Grade).SetTextColor(tcell.GetColor(scoreColor(float64(r.ViralScore)))))
		a.analysesTable.SetCell(row, 2, tview.NewTableCell(strconv.Itoa(r.ViralScore)).SetAlign(tview.AlignRight))
		a.analysesTable.SetCell(row, 3, tview.NewTableCell(tview.Escape(r.Mood)))
		a.analysesTable.SetCell(row, 4, tview.NewTableCell(string(r.ModelUsed)).SetTextColor(tierColor))
		a.analysesTable.SetCell(row, 5, tview.NewTableCell(caller))
		a.analysesTable.SetCell(row, 6, tview.NewTableCell(results))
		a.analysesTable.SetCell(row, 7, tview.NewTableCell(string(r.ID)).SetTextColor(tcell.ColorGray).SetExpansion(1))
	}

	if len(rows) == 0 {
		a.analysesTable.SetCell(1, 0, tview.NewTableCell("No analyses yet").SetTextColor(tcell.ColorGray).SetSelectable(false))
	}
}
