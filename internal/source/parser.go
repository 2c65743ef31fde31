// Package source discovers agent session logs and parses them into
// normalized sessions.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

// ErrUnknownFormat is returned when no line of a non-empty file decodes as
// a known log record.
var ErrUnknownFormat = errors.New("unrecognized session format")

const (
	initialLineBuf = 256 * 1024
	maxLineBytes   = 64 * 1024 * 1024
	sniffLines     = 50
)

// ParseResult holds the output of parsing a single JSONL file.
type ParseResult struct {
	Session     *model.Session
	ParseErrors int
	Err         error
}

// ParseFile reads a JSONL session file and normalizes it into events.
// Lines that fail to decode are counted and skipped; a trailing partial
// line of a growing file ends up there too.
//
// Entry routing depends on the file format:
//   - claude  → top-level "type" (user / assistant / system / summary)
//   - codex   → top-level "type" plus payload "type" (response_item, event_msg, ...)
//   - generic → type/event field, then role, per line
func ParseFile(df DiscoveredFile) ParseResult {
	f, err := os.Open(df.Path)
	if err != nil {
		return ParseResult{Err: err}
	}
	defer func() { _ = f.Close() }()

	if df.ModTime.IsZero() || df.SizeBytes == 0 {
		if info, err := f.Stat(); err == nil {
			df.ModTime = info.ModTime()
			df.SizeBytes = info.Size()
		}
	}
	return Parse(f, df)
}

// ParsePath parses the file at path with no discovery metadata. forcedID,
// when set, overrides whatever id the log records. The context is checked
// before the file is opened.
func ParsePath(ctx context.Context, path, forcedID string) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	df := DiscoveredFile{Path: path, SessionID: forcedID}
	pr := ParseFile(df)
	if pr.Err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, pr.Err)
	}
	if forcedID != "" {
		pr.Session.ID = forcedID
	}
	return pr.Session, nil
}

// Parse normalizes a JSONL stream. df supplies the path, format hint and
// discovery metadata.
func Parse(r io.Reader, df DiscoveredFile) ParseResult {
	b := &builder{
		format: df.Format,
		s: &model.Session{
			ID:         df.SessionID,
			Source:     df.Source,
			Path:       df.Path,
			Repo:       df.Repo,
			ModifiedAt: df.ModTime,
			SizeBytes:  df.SizeBytes,
		},
	}

	var offset, lineStart int64
	split := func(data []byte, atEOF bool) (int, []byte, error) {
		adv, tok, err := bufio.ScanLines(data, atEOF)
		if tok != nil {
			lineStart = offset
		}
		offset += int64(adv)
		return adv, tok, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBuf), maxLineBytes)
	scanner.Split(split)

	var nonEmpty, decoded int
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		nonEmpty++
		if b.handleLine(line, lineStart) {
			decoded++
		} else {
			b.parseErrors++
		}
	}
	if err := scanner.Err(); err != nil {
		return ParseResult{Err: err}
	}
	if nonEmpty > 0 && decoded == 0 {
		return ParseResult{Err: ErrUnknownFormat, ParseErrors: b.parseErrors}
	}

	return ParseResult{Session: b.finish(), ParseErrors: b.parseErrors}
}

type builder struct {
	s           *model.Session
	format      Format
	parseErrors int
	cwd         string
	logID       string
	gitRepo     string
	lineTime    time.Time
	lineModel   string
	lineOffset  int64
	lineID      string
	lineEvents  int
}

func (b *builder) handleLine(line []byte, offset int64) bool {
	if b.format == "" {
		b.format = sniffFormat(line)
		if b.format == "" {
			return false
		}
	}
	b.lineTime, b.lineModel, b.lineID, b.lineEvents = time.Time{}, "", "", 0
	b.lineOffset = offset

	switch b.format {
	case FormatClaude:
		return b.claudeLine(line)
	case FormatCodex:
		return b.codexLine(line)
	default:
		return b.genericLine(line)
	}
}

func (b *builder) add(kind model.Role, text string, mod func(*model.Event)) {
	ev := model.Event{
		ID:        b.lineID,
		Kind:      kind,
		Text:      text,
		Model:     b.lineModel,
		Timestamp: b.lineTime,
		RawOffset: b.lineOffset,
	}
	if ev.ID == "" {
		ev.ID = strconv.Itoa(len(b.s.Events))
	} else if b.lineEvents > 0 {
		ev.ID += "#" + strconv.Itoa(b.lineEvents)
	}
	if mod != nil {
		mod(&ev)
	}
	b.lineEvents++
	b.s.Events = append(b.s.Events, ev)

	if !ev.Timestamp.IsZero() && (b.s.StartTime.IsZero() || ev.Timestamp.Before(b.s.StartTime)) {
		b.s.StartTime = ev.Timestamp
	}
	if b.s.Model == "" && ev.Model != "" && kind == model.RoleAssistant {
		b.s.Model = ev.Model
	}
}

func (b *builder) setTime(v any) {
	if t, ok := DecodeTime(v); ok {
		b.lineTime = t
	}
}

func (b *builder) finish() *model.Session {
	s := b.s
	if s.ID == "" {
		s.ID = b.logID
	}
	if s.ID == "" {
		s.ID = idFromFilename(s.Path)
	}
	if s.ID == "" {
		s.ID = ForcedID(s.Path)
	}
	if s.Repo == "" {
		s.Repo = repoName(b.gitRepo, b.cwd)
	}
	if s.StartTime.IsZero() {
		s.StartTime = s.ModifiedAt
	}
	return s
}

// ForcedID derives a stable id for a log that records none, so repeated
// parses of the same path agree.
func ForcedID(path string) string {
	if path == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

func idFromFilename(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if name == "" || name == "." {
		return ""
	}
	// Codex rollouts end with the session uuid: rollout-<timestamp>-<uuid>.
	if len(name) > 36 {
		if id, err := uuid.Parse(name[len(name)-36:]); err == nil {
			return id.String()
		}
	}
	return name
}

func repoName(gitURL, cwd string) string {
	if gitURL != "" {
		name := strings.TrimSuffix(filepath.Base(strings.TrimRight(gitURL, "/")), ".git")
		if i := strings.LastIndexByte(name, ':'); i >= 0 {
			name = name[i+1:]
		}
		if name != "" && name != "." {
			return name
		}
	}
	if cwd != "" {
		return filepath.Base(filepath.Clean(cwd))
	}
	return ""
}

func sniffFormat(line []byte) Format {
	switch extractTopLevelType(line) {
	case "session_meta", "response_item", "event_msg", "turn_context", "compacted":
		return FormatCodex
	case "user", "assistant", "system", "summary", "file-history-snapshot", "progress", "queue-operation":
		return FormatClaude
	}
	if json.Valid(line) && len(line) > 0 && line[0] == '{' {
		return FormatGeneric
	}
	return ""
}

// Head is metadata read from the first lines of a log without parsing it.
type Head struct {
	Format    Format
	StartTime time.Time
	Repo      string
}

// PeekHead byte-scans the first lines of path for its format, start time
// and working directory. Large logs are catalogued this way.
func PeekHead(path string) (Head, error) {
	var h Head
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, initialLineBuf), maxLineBytes)
	for i := 0; i < sniffLines && scanner.Scan(); i++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if h.Format == "" {
			h.Format = sniffFormat(line)
		}
		if h.StartTime.IsZero() {
			if t, ok := extractTimestampBytes(line); ok {
				h.StartTime = t
			}
		}
		if h.Repo == "" {
			if cwd := extractCwdBytes(line); cwd != "" {
				h.Repo = repoName("", cwd)
			}
		}
		if h.Format != "" && !h.StartTime.IsZero() && h.Repo != "" {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return h, err
	}
	if h.Format == "" {
		return h, ErrUnknownFormat
	}
	return h, nil
}

// summarizeInput renders tool input for display and search: the command or
// target when the input has an obvious one, compact JSON otherwise.
func summarizeInput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
		return string(raw)
	}
	for _, k := range []string{"command", "cmd", "file_path", "path", "pattern", "query", "url", "prompt", "description"} {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, " ")
			}
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// contentText flattens a string-or-blocks content field into plain text.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	parts := make([]string, 0, len(blocks))
	for _, bl := range blocks {
		switch {
		case bl.Text != "":
			parts = append(parts, bl.Text)
		case bl.Type == "image" || bl.Type == "input_image":
			parts = append(parts, "[image]")
		}
	}
	return strings.Join(parts, "\n")
}
