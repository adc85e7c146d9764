package msgstore

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"conduit/pkg/logmsg"
)

func TestPushOrderingAndHistory(t *testing.T) {
	t.Parallel()

	s := New()
	defer s.Close()

	s.PushStdout("one")
	s.PushStderr("two")
	s.PushSessionID("abc")

	hist := s.GetHistory()
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	if hist[0].Kind != logmsg.KindStdout || hist[0].Text != "one" {
		t.Fatalf("hist[0] = %+v", hist[0])
	}
	if hist[1].Kind != logmsg.KindStderr || hist[1].Text != "two" {
		t.Fatalf("hist[1] = %+v", hist[1])
	}
	if hist[2].Kind != logmsg.KindSessionID || hist[2].Text != "abc" {
		t.Fatalf("hist[2] = %+v", hist[2])
	}
}

func TestEvictionPastByteCap(t *testing.T) {
	t.Parallel()

	// Room for roughly three small messages.
	s := newWithLimit(zap.NewNop(), 3*(64+10))
	defer s.Close()

	for i := 0; i < 10; i++ {
		s.PushStdout("0123456789")
	}

	m := s.Metrics()
	if m.TotalMessages >= 10 {
		t.Fatalf("no eviction happened: %d messages retained", m.TotalMessages)
	}
	if m.TotalBytes > 3*(64+10) {
		t.Fatalf("byte accounting exceeded cap: %d", m.TotalBytes)
	}

	// Newest survives, oldest went first.
	hist := s.GetHistory()
	if len(hist) == 0 || hist[len(hist)-1].Text != "0123456789" {
		t.Fatalf("unexpected tail of history: %+v", hist)
	}
}

func TestOversizedMessageStillStored(t *testing.T) {
	t.Parallel()

	s := newWithLimit(zap.NewNop(), 100)
	defer s.Close()

	big := make([]byte, 500)
	for i := range big {
		big[i] = 'x'
	}
	s.PushStdout(string(big))

	if got := len(s.GetHistory()); got != 1 {
		t.Fatalf("oversized message dropped: history length = %d", got)
	}
}

func TestSubscriberLag(t *testing.T) {
	t.Parallel()

	s := New()
	defer s.Close()

	sub := s.Subscribe()
	defer sub.Close()

	// Overflow the subscriber buffer without draining it.
	for i := 0; i < SubscriberBuffer+5; i++ {
		s.PushStdout("x")
	}

	// Drain the full buffer; none of these report lag.
	for i := 0; i < SubscriberBuffer; i++ {
		d := <-sub.C()
		if d.Lagged != 0 {
			t.Fatalf("delivery %d reported lag %d", i, d.Lagged)
		}
	}

	// The next successful delivery carries the drop count.
	s.PushStdout("after")
	d := <-sub.C()
	if d.Lagged != 5 {
		t.Fatalf("lag = %d, want 5", d.Lagged)
	}
	if d.Msg.Text != "after" {
		t.Fatalf("message after lag = %q", d.Msg.Text)
	}
}

func TestCloseEndsSubscribers(t *testing.T) {
	t.Parallel()

	s := New()
	sub := s.Subscribe()
	s.Close()

	if _, ok := <-sub.C(); ok {
		t.Fatal("subscriber channel still open after store close")
	}

	// Pushing after close is a silent no-op.
	s.PushStdout("late")
	if len(s.GetHistory()) != 0 {
		t.Fatal("push after close mutated history")
	}
}

func TestCleanupOldMessages(t *testing.T) {
	t.Parallel()

	s := New()
	defer s.Close()

	s.PushStdout("old")
	// Backdate the stored message.
	s.mu.Lock()
	s.history[0].timestamp = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()
	s.PushStdout("new")

	if cleaned := s.CleanupOldMessages(time.Hour); cleaned != 1 {
		t.Fatalf("cleaned = %d, want 1", cleaned)
	}
	hist := s.GetHistory()
	if len(hist) != 1 || hist[0].Text != "new" {
		t.Fatalf("history after cleanup: %+v", hist)
	}
}
