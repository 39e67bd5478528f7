package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/young1lin/agentsearch/internal/render"
	"github.com/young1lin/agentsearch/internal/ui"
	"github.com/young1lin/agentsearch/pkg/logger"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// LineReader is the part of a readline instance the REPL uses
type LineReader interface {
	Readline() (string, error)
}

// REPL drives a widget controller from a terminal. Each entered line is
// an Enter key press in the query input.
type REPL struct {
	ctrl     *ui.Controller
	renderer *render.Renderer
	in       LineReader
	out      io.Writer
}

// NewREPL creates a REPL reading from in and writing to out
func NewREPL(ctrl *ui.Controller, renderer *render.Renderer, in LineReader, out io.Writer) *REPL {
	return &REPL{ctrl: ctrl, renderer: renderer, in: in, out: out}
}

// NewTerminal opens a readline instance with persistent history
func NewTerminal() (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%sSearch: %s", colorGreen, colorReset),
		HistoryFile:     historyFilePath(),
		HistoryLimit:    1000,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

// historyFilePath returns the history file path
func historyFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(homeDir, ".agentsearch")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

// Run reads lines until EOF, /exit or context cancellation
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintf(r.out, "%sType a query and press Enter. /retry repeats it, /new starts over, /exit quits.%s\n\n", colorGray, colorReset)

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := r.in.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				fmt.Fprintf(r.out, "%sType /exit to quit%s\n", colorYellow, colorReset)
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "/exit", "/quit", "/q":
			return nil
		case "/new":
			r.ctrl.NewSearch()
			fmt.Fprintf(r.out, "%sReady for a new query.%s\n", colorGray, colorReset)
		case "/retry":
			done, err := r.ctrl.Retry(ctx)
			r.await(ctx, done, err)
		default:
			done, err := r.ctrl.KeyDown(ctx, "Enter", line)
			r.await(ctx, done, err)
		}
	}
}

// await waits for settlement and prints the outcome
func (r *REPL) await(ctx context.Context, done <-chan struct{}, err error) {
	switch {
	case errors.Is(err, ui.ErrEmptyQuery):
		fmt.Fprintf(r.out, "%s%s%s\n", colorYellow, ui.NoticeEmptyQuery, colorReset)
		return
	case err != nil:
		fmt.Fprintf(r.out, "%s%v%s\n", colorYellow, err, colorReset)
		return
	}

	fmt.Fprintf(r.out, "%sSearching…%s\n", colorCyan, colorReset)
	select {
	case <-done:
	case <-ctx.Done():
		return
	}

	snapshot := r.ctrl.Snapshot()
	text, err := r.renderer.Text(snapshot.Results)
	if err != nil {
		logger.Warn("failed to render results for terminal", zap.Error(err))
		text = string(snapshot.Results)
	}
	fmt.Fprintf(r.out, "\n%s\n\n", strings.TrimSpace(text))
}
