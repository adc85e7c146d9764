package lines_test

import (
	"reflect"
	"testing"

	"conduit/pkg/lines"
)

func TestPushSplitsAcrossChunks(t *testing.T) {
	t.Parallel()

	var f lines.Framer

	got := f.Push(`{"a`)
	if len(got) != 0 {
		t.Fatalf("partial chunk yielded lines: %v", got)
	}

	got = f.Push("\": 1}\n{\"b\"")
	want := []string{"{\"a\": 1}\n"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	got = f.Push(": 2}\n")
	want = []string{"{\"b\": 2}\n"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestPushMultipleLinesInOneChunk(t *testing.T) {
	t.Parallel()

	var f lines.Framer
	got := f.Push("one\ntwo\nthree")
	want := []string{"one\n", "two\n"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if !f.Pending() {
		t.Fatal("expected pending remainder")
	}
}

func TestFlushEmitsRemainder(t *testing.T) {
	t.Parallel()

	var f lines.Framer
	f.Push("tail without newline")

	rest, ok := f.Flush()
	if !ok {
		t.Fatal("expected remainder")
	}
	if rest != "tail without newline" {
		t.Fatalf("remainder = %q", rest)
	}

	if _, ok := f.Flush(); ok {
		t.Fatal("second flush should be empty")
	}
}

func TestEmptyLinesPassThrough(t *testing.T) {
	t.Parallel()

	var f lines.Framer
	got := f.Push("\n\nx\n")
	want := []string{"\n", "\n", "x\n"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCRLFNotNormalized(t *testing.T) {
	t.Parallel()

	var f lines.Framer
	got := f.Push("a\r\n")
	want := []string{"a\r\n"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
