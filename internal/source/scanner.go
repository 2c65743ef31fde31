package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Root is one configured directory of agent logs.
type Root struct {
	Name   string // source name reported on documents, e.g. "codex"
	Dir    string
	Format Format
}

// DefaultRoots returns the log directories of the supported agents under
// home.
func DefaultRoots(home string) []Root {
	return []Root{
		{Name: "claude", Dir: filepath.Join(home, ".claude", "projects"), Format: FormatClaude},
		{Name: "codex", Dir: filepath.Join(home, ".codex", "sessions"), Format: FormatCodex},
	}
}

// ScanRoots walks every root and concatenates the discovered files. Missing
// roots are skipped; the first hard error is returned with what was found.
func ScanRoots(roots []Root) ([]DiscoveredFile, error) {
	var (
		all  []DiscoveredFile
		errs []error
	)
	for _, r := range roots {
		files, err := ScanRoot(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("scanning %s: %w", r.Dir, err))
		}
		all = append(all, files...)
	}
	return all, errors.Join(errs...)
}

// ScanRoot walks one root and discovers its JSONL session files.
func ScanRoot(root Root) ([]DiscoveredFile, error) {
	info, err := os.Stat(root.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	var files []DiscoveredFile

	err = filepath.WalkDir(root.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally skip unreadable entries
		}
		if d.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}
		name := d.Name()
		if root.Format == FormatCodex && !strings.HasPrefix(name, "rollout-") {
			return nil
		}

		rel, _ := filepath.Rel(root.Dir, path)
		parts := strings.Split(rel, string(filepath.Separator))

		df := DiscoveredFile{
			Path:      path,
			Source:    root.Name,
			Format:    root.Format,
			SessionID: idFromFilename(path),
		}
		if fi, err := d.Info(); err == nil {
			df.ModTime = fi.ModTime()
			df.SizeBytes = fi.Size()
		}

		switch root.Format {
		case FormatClaude:
			if len(parts) < 2 {
				return nil
			}
			df.ProjectDir = parts[0]
			df.Repo = decodeProjectName(parts[0])
			// <project>/<session-uuid>/subagents/agent-<id>.jsonl
			if len(parts) >= 4 && parts[2] == "subagents" {
				df.IsSubagent = true
				df.SessionID = parts[1] + "/" + strings.TrimSuffix(name, ".jsonl")
			}
		case FormatCodex:
			// Codex files are dated YYYY/MM/DD; the repo comes from session_meta.
		default:
			if len(parts) >= 2 {
				df.Repo = parts[len(parts)-2]
			}
		}

		files = append(files, df)
		return nil
	})

	return files, err
}

// decodeProjectName extracts a human-readable project name from the encoded directory name.
// Claude Code encodes absolute paths by replacing "/" with "-", so:
//
//	"-Users-tayloreernisse-projects-gitlore" -> "gitlore"
//	"-Users-tayloreernisse-projects-my-cool-project" -> "my-cool-project"
//
// We find the last known path component ("projects", "repos", "src", "code", "home")
// and take everything after it. Falls back to the last non-empty segment.
func decodeProjectName(dirName string) string {
	parts := strings.Split(dirName, "-")

	knownParents := map[string]bool{
		"projects": true, "repos": true, "src": true,
		"code": true, "workspace": true, "dev": true,
	}

	for i := len(parts) - 2; i >= 0; i-- {
		if knownParents[strings.ToLower(parts[i])] {
			name := strings.Join(parts[i+1:], "-")
			if name != "" {
				return name
			}
		}
	}

	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}

	return dirName
}

// CountRepos returns the number of distinct repos in a set of discovered files.
func CountRepos(files []DiscoveredFile) int {
	seen := make(map[string]struct{})
	for _, f := range files {
		seen[f.Repo] = struct{}{}
	}
	return len(seen)
}
