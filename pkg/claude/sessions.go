package claude

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoSession is returned when no resumable conversation file exists for
// a worktree.
var ErrNoSession = errors.New("no conversation sessions for directory")

// Conversation files can carry very long single lines (full tool outputs),
// so the scanner buffer is sized well past bufio's default.
const maxSessionLine = 4 * 1024 * 1024

// projectsDir returns the Claude CLI per-project conversation root,
// $HOME/.claude/projects.
func projectsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude", "projects"), nil
}

// normalizeDirName mirrors the CLI's project-directory naming: path
// separators and spaces both become dashes.
func normalizeDirName(dir string) string {
	return strings.NewReplacer("/", "-", " ", "-").Replace(dir)
}

// conversationFiles collects the .jsonl conversation files belonging to
// dir. Phase one matches project directories by the naming convention;
// when that finds nothing, phase two scans every project file for a "cwd"
// field equal to dir.
func conversationFiles(dir string) []string {
	root, err := projectsDir()
	if err != nil {
		return nil
	}
	projects, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	normalized := normalizeDirName(dir)
	var files []string
	for _, p := range projects {
		if !p.IsDir() || !strings.Contains(p.Name(), normalized) {
			continue
		}
		files = append(files, jsonlFiles(filepath.Join(root, p.Name()))...)
	}
	if len(files) > 0 {
		return files
	}

	for _, p := range projects {
		if !p.IsDir() {
			continue
		}
		for _, f := range jsonlFiles(filepath.Join(root, p.Name())) {
			if fileMatchesCwd(f, dir) {
				files = append(files, f)
			}
		}
	}
	return files
}

func jsonlFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".jsonl" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files
}

// scanJSONL runs fn over each parseable JSON line of path until fn
// returns true.
func scanJSONL(path string, fn func(map[string]json.RawMessage) bool) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxSessionLine)
	for sc.Scan() {
		var obj map[string]json.RawMessage
		if json.Unmarshal(sc.Bytes(), &obj) != nil {
			continue
		}
		if fn(obj) {
			return true
		}
	}
	return false
}

func stringField(obj map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

func fileMatchesCwd(path, dir string) bool {
	return scanJSONL(path, func(obj map[string]json.RawMessage) bool {
		cwd, ok := stringField(obj, "cwd")
		return ok && cwd == dir
	})
}

// sessionIDExists reports whether id appears in any conversation file for
// dir.
func sessionIDExists(dir, id string) bool {
	for _, f := range conversationFiles(dir) {
		found := scanJSONL(f, func(obj map[string]json.RawMessage) bool {
			sid, ok := stringField(obj, "sessionId")
			return ok && sid == id
		})
		if found {
			return true
		}
	}
	return false
}

// FindResumeSessionID returns the session ID recorded in the most
// recently modified conversation file for dir.
func FindResumeSessionID(dir string) (string, error) {
	files := conversationFiles(dir)
	if len(files) == 0 {
		return "", ErrNoSession
	}

	type candidate struct {
		path  string
		mtime int64
	}
	cands := make([]candidate, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		cands = append(cands, candidate{path: f, mtime: info.ModTime().UnixNano()})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].mtime > cands[j].mtime })

	for _, c := range cands {
		var id string
		scanJSONL(c.path, func(obj map[string]json.RawMessage) bool {
			sid, ok := stringField(obj, "sessionId")
			if ok && sid != "" {
				id = sid
				return true
			}
			return false
		})
		if id != "" {
			return id, nil
		}
	}
	return "", ErrNoSession
}
