// Package tui renders the model switcher in the terminal: a heading with the
// current model, a drop-down of available models and a status line.
package tui

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"github.com/coresolutiondoteu/open-webui/internal/switcher"
)

const helpText = "[gray]↑/↓ Enter: choose model   Esc/q: quit[-]"

// Options configures an App.
type Options struct {
	RequestTimeout time.Duration
}

// App is the tview application around one Switcher.
type App struct {
	app      *tview.Application
	root     *tview.Flex
	heading  *tview.TextView
	dropdown *tview.DropDown
	status   *tview.TextView

	sw  *switcher.Switcher
	log zerolog.Logger

	// queue runs f on the UI goroutine. It is app.QueueUpdateDraw outside tests.
	queue func(f func())

	latest        atomic.Pointer[switcher.State]
	redrawPending atomic.Bool

	// shown is the option list currently in the drop-down. UI goroutine only.
	shown []string
}

// New builds the UI and its Switcher. Nothing is fetched until Run.
func New(backend switcher.Backend, logger zerolog.Logger, opts Options) *App {
	a := &App{
		log: logger.With().Str("component", "tui").Logger(),
	}

	a.app = tview.NewApplication()
	a.queue = func(f func()) { a.app.QueueUpdateDraw(f) }

	a.heading = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	a.heading.SetBorder(false)

	a.dropdown = tview.NewDropDown().
		SetLabel("Model: ").
		SetFieldWidth(40)
	a.dropdown.SetBorder(false)

	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	a.status.SetBorder(false)

	help := tview.NewTextView().
		SetDynamicColors(true).
		SetText(helpText)

	a.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.heading, 1, 0, false).
		AddItem(a.dropdown, 1, 0, true).
		AddItem(a.status, 1, 0, false).
		AddItem(nil, 0, 1, false).
		AddItem(help, 1, 0, false)
	a.root.SetBorder(true).SetTitle(" modelswitch ")

	a.app.SetRoot(a.root, true).SetFocus(a.dropdown)
	a.app.SetInputCapture(a.handleKey)

	a.sw = switcher.New(backend, logger, switcher.Config{
		RequestTimeout: opts.RequestTimeout,
		OnChange:       a.onChange,
	})

	a.render(a.sw.State())
	return a
}

// Run loads the model list and blocks until the user quits.
func (a *App) Run() error {
	defer a.sw.Close()
	a.sw.Start()
	return a.app.Run()
}

// Switcher returns the state holder behind the UI.
func (a *App) Switcher() *switcher.Switcher {
	return a.sw
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	// Esc and q close the list first when it is open.
	if a.dropdown.IsOpen() && event.Key() != tcell.KeyCtrlC {
		return event
	}
	switch event.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		a.app.Stop()
		return nil
	case tcell.KeyRune:
		if event.Rune() == 'q' {
			a.app.Stop()
			return nil
		}
	}
	return event
}

// onChange runs with the switcher's lock held, so it only records the snapshot
// and hands the redraw to the UI goroutine. Bursts of changes collapse into one redraw.
func (a *App) onChange(st switcher.State) {
	a.latest.Store(&st)
	if a.redrawPending.Swap(true) {
		return
	}
	go a.queue(func() {
		a.redrawPending.Store(false)
		a.render(*a.latest.Load())
	})
}

// render copies st into the widgets. Must run on the UI goroutine.
func (a *App) render(st switcher.State) {
	a.heading.SetText("[::b]" + tview.Escape(Heading(st)) + "[::-]")

	// Detach the handler so programmatic changes are not taken for user picks.
	a.dropdown.SetSelectedFunc(nil)
	if !slices.Equal(a.shown, st.Models) {
		a.dropdown.SetOptions(st.Models, nil)
		a.shown = slices.Clone(st.Models)
	}
	shownModel := st.Current
	if st.Pending != "" {
		shownModel = st.Pending
	}
	a.dropdown.SetCurrentOption(slices.Index(st.Models, shownModel))
	a.dropdown.SetSelectedFunc(a.onSelected)

	line := tview.Escape(StatusLine(st))
	if st.Err != nil && st.Pending == "" {
		line = "[red]" + line + "[-]"
	}
	a.status.SetText(line)
}

func (a *App) onSelected(text string, index int) {
	if index < 0 {
		return
	}
	a.log.Debug().Str("model", text).Msg("model selected")
	a.sw.Select(text)
}

// Heading is the title line, "Current Model: " followed by the current model.
func Heading(st switcher.State) string {
	return "Current Model: " + st.Current
}

// StatusLine describes what the switcher is doing or what last went wrong.
func StatusLine(st switcher.State) string {
	switch {
	case st.Pending != "":
		return fmt.Sprintf("switching to %s...", st.Pending)
	case st.Phase == switcher.PhaseLoading:
		return "loading models..."
	case st.Err != nil && st.Err.Op == "switch":
		return fmt.Sprintf("switch to %s failed: %s", st.Err.Model, errorDetail(st.Err))
	case st.Err != nil:
		return fmt.Sprintf("load failed: %s", errorDetail(st.Err))
	case st.Phase == switcher.PhaseLoaded && len(st.Models) == 0:
		return "no models available"
	default:
		return ""
	}
}

func errorDetail(e *switcher.Error) string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}
