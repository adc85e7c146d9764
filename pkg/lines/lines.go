// Package lines frames a stream of arbitrary-length text chunks into
// newline-terminated records. Chunk boundaries carry no meaning: a record
// may span many chunks and one chunk may contain many records.
package lines

import "strings"

// Framer accumulates pushed chunks and emits each maximal prefix
// terminated by '\n'. Empty lines pass through; CRLF is not normalized.
// The zero value is ready to use. Framer is not safe for concurrent use.
type Framer struct {
	buf strings.Builder
}

// Push appends chunk to the internal buffer and returns every complete
// line that became available, each including its trailing '\n'. The
// unterminated remainder stays buffered for the next Push.
func (f *Framer) Push(chunk string) []string {
	if chunk == "" {
		return nil
	}
	f.buf.WriteString(chunk)

	data := f.buf.String()
	last := strings.LastIndexByte(data, '\n')
	if last < 0 {
		return nil
	}

	var out []string
	rest := data[:last+1]
	for {
		i := strings.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		out = append(out, rest[:i+1])
		rest = rest[i+1:]
	}

	f.buf.Reset()
	f.buf.WriteString(data[last+1:])
	return out
}

// Flush returns the trailing unterminated remainder, if any, and resets
// the framer. Call it once at end of input.
func (f *Framer) Flush() (string, bool) {
	if f.buf.Len() == 0 {
		return "", false
	}
	rest := f.buf.String()
	f.buf.Reset()
	return rest, true
}

// Pending reports whether an unterminated remainder is buffered.
func (f *Framer) Pending() bool { return f.buf.Len() > 0 }
