package logs

import (
	"encoding/json"
	"fmt"
)

// PatchOp is one RFC 6902 operation. The pipeline only ever emits "add"
// operations targeting /entries/{i}.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Patch is an RFC 6902 patch document.
type Patch []PatchOp

// EntryPath returns the patch path for entry index i.
func EntryPath(i int) string {
	return fmt.Sprintf("/entries/%d", i)
}

// AddEntry builds the single-op patch that writes value at entry index i.
// The value is a NormalizedEntry for conversation streams and a DB change
// record for event streams.
func AddEntry(i int, value any) Patch {
	return Patch{{Op: "add", Path: EntryPath(i), Value: value}}
}

// Raw serializes the patch for transport inside a log message.
func (p Patch) Raw() (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal patch: %w", err)
	}
	return raw, nil
}
