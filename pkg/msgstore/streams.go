package msgstore

import (
	"context"
	"fmt"

	"conduit/pkg/lines"
	"conduit/pkg/logmsg"
)

// HistoryPlusStream returns a channel that yields a snapshot of history
// at call time followed by every message pushed afterwards. The snapshot
// and the live subscription are captured under one critical section, so
// the join point has no duplicates and no gaps: a concurrent push lands
// either in the snapshot or in the live tail, never both.
//
// The channel closes when ctx is done or the store closes. History items
// always carry Lagged == 0; live items report per-subscriber lag.
func (s *Store) HistoryPlusStream(ctx context.Context) <-chan Delivery {
	s.mu.Lock()
	snapshot := make([]storedMsg, len(s.history))
	copy(snapshot, s.history)
	sub := s.subscribeLocked()
	s.mu.Unlock()

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer sub.Close()

		for _, sm := range snapshot {
			select {
			case out <- Delivery{Msg: sm.msg}:
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case d, ok := <-sub.ch:
				if !ok {
					return
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// StdoutLines returns the fused stream filtered to stdout chunks, framed
// into newline-terminated lines. The stream terminates at the first
// Finished marker; a trailing unterminated remainder is emitted as one
// final line.
func (s *Store) StdoutLines(ctx context.Context) <-chan string {
	return s.chunkLines(ctx, logmsg.KindStdout)
}

// StderrLines is StdoutLines for stderr chunks.
func (s *Store) StderrLines(ctx context.Context) <-chan string {
	return s.chunkLines(ctx, logmsg.KindStderr)
}

func (s *Store) chunkLines(ctx context.Context, kind logmsg.Kind) <-chan string {
	deliveries := s.HistoryPlusStream(ctx)
	out := make(chan string)

	go func() {
		defer close(out)
		var framer lines.Framer

		emit := func(line string) bool {
			select {
			case out <- line:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for d := range deliveries {
			switch d.Msg.Kind {
			case kind:
				for _, line := range framer.Push(d.Msg.Text) {
					if !emit(line) {
						return
					}
				}
			case logmsg.KindFinished:
				if rest, ok := framer.Flush(); ok {
					emit(rest)
				}
				return
			}
		}
		// Producer went away without Finished; drain the remainder.
		if rest, ok := framer.Flush(); ok {
			emit(rest)
		}
	}()
	return out
}

// ForwardResult is one item of an upstream typed message stream: either a
// message or an error.
type ForwardResult struct {
	Msg logmsg.Msg
	Err error
}

// SpawnForwarder copies a typed message stream into the store on a new
// goroutine, converting stream errors into Stderr messages. The returned
// channel closes when src is exhausted or ctx is done.
func (s *Store) SpawnForwarder(ctx context.Context, src <-chan ForwardResult) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case res, ok := <-src:
				if !ok {
					return
				}
				if res.Err != nil {
					s.PushStderr(fmt.Sprintf("stream error: %v", res.Err))
					continue
				}
				s.Push(res.Msg)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}
