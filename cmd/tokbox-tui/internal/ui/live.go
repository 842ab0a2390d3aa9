package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tokbox/tokbox/internal/domain"
)

// createLivePanel creates the live event tail.
func (a *App) createLivePanel() {
	a.liveView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(maxLiveLines)
	a.liveView.SetBorder(true).SetTitle(" Live Events - 'c' clear, 'b' back ")

	a.liveView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'c', 'C':
				a.liveView.Clear()
				a.liveLines = 0
				a.liveView.SetTitle(" Live Events - 'c' clear, 'b' back ")
				return nil
			case 'b', 'B':
				a.switchPanel(PanelDashboard)
				return nil
			}
		}
		return event
	})
}

// startLive follows the event stream until stopLive, reconnecting when the
// server ends the stream.
func (a *App) startLive() {
	if a.liveCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.liveCancel = cancel
	a.app.SetFocus(a.liveView)

	go func() {
		backoff := time.Second
		for ctx.Err() == nil {
			a.updateStatusBar("[green]Streaming events")
			err := a.client.Stream(ctx, func(e domain.Event) {
				line := formatEventLine(e)
				a.app.QueueUpdateDraw(func() {
					fmt.Fprintln(a.liveView, line)
					a.liveLines++
					a.liveView.SetTitle(fmt.Sprintf(" Live Events (%d) - 'c' clear, 'b' back ", a.liveLines))
					a.liveView.ScrollToEnd()
				})
			})
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				a.updateStatusBar(fmt.Sprintf("[yellow]Stream interrupted: %v, retrying in %s", err, backoff))
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second
		}
	}()
}

func (a *App) stopLive() {
	if a.liveCancel != nil {
		a.liveCancel()
		a.liveCancel = nil
	}
}
