package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	Event string
	Data  string
}

// openStream connects to url and returns a channel of parsed events. The
// channel closes when the server ends the stream or ctx is done.
func openStream(ctx context.Context, url string) (<-chan sseEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream %s: HTTP %d", url, resp.StatusCode)
	}

	out := make(chan sseEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

		var event string
		var data []string
		flush := func() {
			if event == "" && len(data) == 0 {
				return
			}
			select {
			case out <- sseEvent{Event: event, Data: strings.Join(data, "\n")}:
			case <-ctx.Done():
			}
			event = ""
			data = nil
		}

		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				flush()
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = append(data, strings.TrimPrefix(line, "data: "))
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimPrefix(line, "data:"))
			}
		}
		flush()
	}()
	return out, nil
}

// plainStream prints each event to w as "event<TAB>data", one per line.
func plainStream(ctx context.Context, url string, w io.Writer) error {
	events, err := openStream(ctx, url)
	if err != nil {
		return err
	}
	for ev := range events {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", ev.Event, ev.Data); err != nil {
			return err
		}
	}
	return nil
}
