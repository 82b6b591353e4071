package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
)

// printMarkdown writes md to w, styled when w is a terminal.
func printMarkdown(w io.Writer, md string) {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			if out, err := renderer.Render(md); err == nil {
				fmt.Fprint(w, out)
				return
			}
		}
	}
	fmt.Fprintln(w, strings.TrimRight(md, "\n"))
}

func newRunID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// runEvents mirrors run log status changes into the structured log.
type runEvents struct{}

func (runEvents) EmitStatusEvent(_ context.Context, runID, status string) error {
	log.Debug().Str("run_id", runID).Str("status", status).Msg("Run status")
	return nil
}

func (runEvents) EmitLogEvent(_ context.Context, runID, level, message string) error {
	log.Trace().Str("run_id", runID).Str("level", level).Msg(message)
	return nil
}
