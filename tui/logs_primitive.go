package tui

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/fornellas/slogxt/log"
	"github.com/rivo/tview"
)

type LogsPrimitive struct {
	*tview.TextView
	app *tview.Application
}

func NewLogsPrimitive(app *tview.Application) *LogsPrimitive {
	lp := &LogsPrimitive{
		app: app,
	}

	textView := tview.NewTextView()
	textView.SetBorder(true)
	textView.SetTitle("Logs")
	textView.SetDynamicColors(true)
	textView.SetScrollable(true)
	textView.SetWrap(true)
	textView.SetMaxLines(2000)
	textView.SetChangedFunc(func() {
		textView.ScrollToEnd()
		lp.app.Draw()
	})
	lp.TextView = textView

	return lp
}

// Handler returns a slog.Handler writing to the logs view, enabled for the same levels as
// levelHandler. It stops handling records once the returned disable function is called, as
// the view can not be written to after the application stops.
func (lp *LogsPrimitive) Handler(levelHandler slog.Handler) (slog.Handler, func()) {
	disabled := &atomic.Bool{}
	handler := &viewHandler{
		Handler: log.NewTerminalTreeHandler(
			tview.ANSIWriter(lp.TextView),
			&log.TerminalHandlerOptions{
				// tview.TextView does not handle emojis correctly: drawing is corrupted.
				DisableGroupEmoji: true,
				ForceColor:        true,
			},
		),
		levelHandler: levelHandler,
		disabled:     disabled,
	}
	return handler, func() { disabled.Store(true) }
}

type viewHandler struct {
	slog.Handler
	levelHandler slog.Handler
	disabled     *atomic.Bool
}

func (h *viewHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.disabled.Load() {
		return nil
	}
	return h.Handler.Handle(ctx, r)
}

func (h *viewHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.disabled.Load() {
		return false
	}
	return h.levelHandler.Enabled(ctx, level)
}

func (h *viewHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &viewHandler{
		Handler:      h.Handler.WithAttrs(attrs),
		levelHandler: h.levelHandler.WithAttrs(attrs),
		disabled:     h.disabled,
	}
}

func (h *viewHandler) WithGroup(name string) slog.Handler {
	return &viewHandler{
		Handler:      h.Handler.WithGroup(name),
		levelHandler: h.levelHandler.WithGroup(name),
		disabled:     h.disabled,
	}
}
