// Package logmsg defines the typed log message that flows through a
// MsgStore: raw stdout/stderr chunks from a child process, JSON-patch
// documents produced by log normalization, out-of-band session IDs, and
// the terminal Finished marker.
package logmsg

import "encoding/json"

// Kind discriminates the Msg variants. The values double as SSE event
// names on the wire.
type Kind string

// Msg variants.
const (
	KindStdout    Kind = "stdout"
	KindStderr    Kind = "stderr"
	KindJSONPatch Kind = "json_patch"
	KindSessionID Kind = "session_id"
	KindFinished  Kind = "finished"
)

// Msg is one message in a conversation log stream. Exactly one payload
// field is populated, selected by Kind: Text for stdout/stderr chunks and
// session IDs, Patch for JSON-patch documents. Finished carries nothing.
type Msg struct {
	Kind  Kind
	Text  string
	Patch json.RawMessage
}

// Stdout wraps a raw stdout chunk.
func Stdout(s string) Msg { return Msg{Kind: KindStdout, Text: s} }

// Stderr wraps a raw stderr chunk.
func Stderr(s string) Msg { return Msg{Kind: KindStderr, Text: s} }

// SessionID wraps an agent-assigned session identifier.
func SessionID(id string) Msg { return Msg{Kind: KindSessionID, Text: id} }

// JSONPatch wraps a serialized RFC 6902 patch document (a JSON array of
// operations).
func JSONPatch(patch json.RawMessage) Msg { return Msg{Kind: KindJSONPatch, Patch: patch} }

// Finished is the terminal marker for stdout/stderr-derived streams.
func Finished() Msg { return Msg{Kind: KindFinished} }

// msgOverhead is the fixed per-message bookkeeping estimate added on top
// of payload length.
const msgOverhead = 64

// ApproxBytes returns an O(1) upper estimate of the message's in-memory
// footprint. It is used for history byte accounting; exactness is not
// required but the estimate must not double count.
func (m Msg) ApproxBytes() int {
	return msgOverhead + len(m.Text) + len(m.Patch)
}

// SSEEvent returns the server-sent-event name and data for this message.
// Patches serialize as their JSON document, Finished as an empty data
// field, everything else as its raw text.
func (m Msg) SSEEvent() (event, data string) {
	switch m.Kind {
	case KindJSONPatch:
		return string(m.Kind), string(m.Patch)
	case KindFinished:
		return string(m.Kind), ""
	default:
		return string(m.Kind), m.Text
	}
}
