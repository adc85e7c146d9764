// Package textdiff produces the unified diffs embedded in file-edit
// conversation entries. Output is deterministic for equal inputs.
package textdiff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// contextLines is the number of context lines around each hunk.
const contextLines = 3

// Unified returns a standard unified diff of filePath changing from
// oldText to newText, with `--- a/F` / `+++ b/F` headers. An empty string
// means no difference.
func Unified(filePath, oldText, newText string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: "a/" + filePath,
		ToFile:   "b/" + filePath,
		Context:  contextLines,
	}
	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return out
}

// Hunk returns the headerless hunk(s) for a single old→new replacement,
// suitable for concatenation with ConcatHunks.
func Hunk(oldText, newText string) string {
	diff := difflib.UnifiedDiff{
		A:       difflib.SplitLines(oldText),
		B:       difflib.SplitLines(newText),
		Context: contextLines,
	}
	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return out
}

// ConcatHunks joins headerless hunks under one `--- a/F` / `+++ b/F`
// header. Empty hunks are skipped; all-empty input yields an empty diff.
func ConcatHunks(filePath string, hunks []string) string {
	var kept []string
	for _, h := range hunks {
		if strings.TrimSpace(h) != "" {
			kept = append(kept, strings.TrimRight(h, "\n"))
		}
	}
	if len(kept) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("--- a/" + filePath + "\n")
	b.WriteString("+++ b/" + filePath + "\n")
	b.WriteString(strings.Join(kept, "\n"))
	b.WriteString("\n")
	return b.String()
}
