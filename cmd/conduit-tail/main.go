// Package main implements conduit-tail, a terminal viewer for the
// daemon's SSE streams: the board change-event stream by default, or one
// process's conversation log with --process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

func streamURL(addr, process string) string {
	if process != "" {
		return fmt.Sprintf("http://%s/api/processes/%s/logs", addr, process)
	}
	return fmt.Sprintf("http://%s/api/events/stream", addr)
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8617", "daemon address")
	process := flag.String("process", "", "stream this execution process's logs instead of board events")
	flag.Parse()

	url := streamURL(*addr, *process)

	// Without a terminal, print the raw stream instead of drawing a UI.
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		if err := plainStream(context.Background(), url, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "conduit-tail: %v\n", err)
			os.Exit(1)
		}
		return
	}

	p := tea.NewProgram(newModel(url), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "conduit-tail: %v\n", err)
		os.Exit(1)
	}
}
