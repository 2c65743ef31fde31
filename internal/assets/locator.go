// Package assets finds base64 image payloads embedded in raw agent logs and
// ties each one to the user prompt it was attached to.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"sort"

	"github.com/jazzyalex/agent-sessions/internal/logging"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/source"
)

var log = logging.ForComponent(logging.CompAssets)

var (
	markDataURL  = []byte("data:image/")
	markBase64   = []byte(";base64,")
	markJSONData = []byte(`"data":"`)
	markMedia    = [][]byte{[]byte(`"media_type":"image/`), []byte(`"mime_type":"image/`)}
	markB64Type  = []byte(`"base64"`)

	// Payloads inside these fields are tool output, not user attachments.
	toolFields = [][]byte{
		[]byte(`"tool_result"`),
		[]byte(`"toolUseResult"`),
		[]byte(`"function_call_output"`),
		[]byte(`"custom_tool_call_output"`),
	}
)

const (
	// contextWindow bounds the look-behind for a JSON source's media type.
	contextWindow = 256
	// cancelEvery is how many candidates are examined between ctx checks.
	cancelEvery = 32
)

// Options bounds and tunes a scan.
type Options struct {
	// MatchBudget caps candidate spans examined per document.
	MatchBudget int
	// ByteBudget caps bytes decoded per candidate for signature checks.
	ByteBudget int

	MinPayloadChars int
	MinDecodedBytes int
	MaxDecodedBytes int

	// UserOffsets are the sorted raw offsets of the session's user events.
	// When nil they are detected from the raw bytes.
	UserOffsets []int64
}

// OptionsFrom builds scan options from the transcript options.
func OptionsFrom(o model.Options) Options {
	return Options{
		MatchBudget:     o.AssetScanMatchBudget,
		ByteBudget:      o.AssetScanByteBudget,
		MinPayloadChars: 100,
		MinDecodedBytes: 64,
		MaxDecodedBytes: 32 << 20,
	}
}

// UserOffsets collects the raw offsets of a parsed session's user events.
func UserOffsets(s *model.Session) []int64 {
	if s == nil {
		return nil
	}
	offs := make([]int64, 0, s.UserEventCount())
	for _, ev := range s.Events {
		if ev.Kind == model.RoleUser {
			offs = append(offs, ev.RawOffset)
		}
	}
	return offs
}

// Result is the outcome of scanning one document.
type Result struct {
	Assets     []model.InlineAsset
	Candidates int
	Rejected   int
	// Truncated is set when the match budget stopped the scan early.
	Truncated bool
}

// Scan locates inline image payloads in raw log bytes without parsing
// JSON. Candidates that fail validation or decoding are dropped. When ctx
// is cancelled mid-scan the assets found so far are returned with ctx's
// error.
func Scan(ctx context.Context, data []byte, opts Options) (Result, error) {
	var res Result
	if err := ctx.Err(); err != nil {
		return res, err
	}

	sc := scanner{data: data, nextURL: -1, nextJSON: -1}
	for {
		c, ok := sc.next()
		if !ok {
			break
		}
		if opts.MatchBudget > 0 && res.Candidates >= opts.MatchBudget {
			res.Truncated = true
			break
		}
		res.Candidates++
		if res.Candidates%cancelEvery == 0 {
			if err := ctx.Err(); err != nil {
				associate(data, res.Assets, opts.UserOffsets)
				return res, err
			}
		}

		asset, ok := validate(data, c, opts)
		if !ok {
			res.Rejected++
			continue
		}
		asset.Sequence = len(res.Assets)
		res.Assets = append(res.Assets, asset)
	}

	associate(data, res.Assets, opts.UserOffsets)
	return res, nil
}

// ScanFile scans the log at path. A file that cannot be read, including
// one that vanished or is mid-rotation, yields zero matches.
func ScanFile(ctx context.Context, path, sessionID string, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Debug("asset_scan_unreadable", "path", path, "err", err)
		return Result{}, nil
	}
	res, err := Scan(ctx, data, opts)
	for i := range res.Assets {
		res.Assets[i].SessionID = sessionID
		res.Assets[i].DocumentPath = path
	}
	return res, err
}

type candidate struct {
	marker    int // offset of the marker that introduced the payload
	start     int // payload start
	end       int // payload end (exclusive)
	mediaType string
	dataURL   bool
}

// scanner yields candidates in file order from two marker kinds.
type scanner struct {
	data     []byte
	pos      int
	nextURL  int
	nextJSON int
}

func (s *scanner) next() (candidate, bool) {
	for s.pos < len(s.data) {
		if s.nextURL < s.pos {
			s.nextURL = indexFrom(s.data, markDataURL, s.pos)
		}
		if s.nextJSON < s.pos {
			s.nextJSON = indexFrom(s.data, markJSONData, s.pos)
		}
		if s.nextURL == len(s.data) && s.nextJSON == len(s.data) {
			s.pos = len(s.data)
			return candidate{}, false
		}

		var c candidate
		var ok bool
		if s.nextURL <= s.nextJSON {
			c, ok = s.dataURL(s.nextURL)
			s.pos = s.nextURL + len(markDataURL)
		} else {
			c, ok = s.jsonSource(s.nextJSON)
			s.pos = s.nextJSON + len(markJSONData)
		}
		if ok {
			s.pos = c.end
			return c, true
		}
	}
	return candidate{}, false
}

// indexFrom returns the index of sep at or after from, or len(data).
func indexFrom(data, sep []byte, from int) int {
	i := bytes.Index(data[from:], sep)
	if i < 0 {
		return len(data)
	}
	return from + i
}

func (s *scanner) dataURL(at int) (candidate, bool) {
	i := at + len(markDataURL)
	j := i
	for j < len(s.data) && j-i < 32 && isMediaChar(s.data[j]) {
		j++
	}
	if j == i || !bytes.HasPrefix(s.data[j:], markBase64) {
		return candidate{}, false
	}
	start := j + len(markBase64)
	return candidate{
		marker:    at,
		start:     start,
		end:       payloadEnd(s.data, start),
		mediaType: "image/" + string(s.data[i:j]),
		dataURL:   true,
	}, true
}

func (s *scanner) jsonSource(at int) (candidate, bool) {
	lo := at - contextWindow
	if lo < 0 {
		lo = 0
	}
	window := s.data[lo:at]
	if !bytes.Contains(window, markB64Type) {
		return candidate{}, false
	}
	media := ""
	for _, m := range markMedia {
		if k := bytes.LastIndex(window, m); k >= 0 {
			rest := window[k+len(m):]
			n := 0
			for n < len(rest) && isMediaChar(rest[n]) {
				n++
			}
			media = "image/" + string(rest[:n])
			break
		}
	}
	if media == "" {
		return candidate{}, false
	}
	start := at + len(markJSONData)
	if bytes.HasPrefix(s.data[start:], markDataURL) {
		return candidate{}, false
	}
	return candidate{marker: at, start: start, end: payloadEnd(s.data, start), mediaType: media}, true
}

func isMediaChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '.' || b == '+' || b == '-'
}

func isBase64Char(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '+' || b == '/' || b == '='
}

func payloadEnd(data []byte, start int) int {
	i := start
	for i < len(data) && isBase64Char(data[i]) {
		i++
	}
	return i
}

func validate(data []byte, c candidate, opts Options) (model.InlineAsset, bool) {
	payload := data[c.start:c.end]
	if len(payload) < opts.MinPayloadChars {
		return model.InlineAsset{}, false
	}
	approx := approxDecodedLen(payload)
	if approx < opts.MinDecodedBytes || (opts.MaxDecodedBytes > 0 && approx > opts.MaxDecodedBytes) {
		return model.InlineAsset{}, false
	}
	if !plausibleContext(data, c) {
		return model.InlineAsset{}, false
	}
	sniffed, ok := decodeSignature(payload, opts.ByteBudget)
	if !ok {
		return model.InlineAsset{}, false
	}
	media := c.mediaType
	if sniffed != "" {
		media = sniffed
	}
	return model.InlineAsset{
		Span:        model.Span{Start: c.start, End: c.end},
		MediaType:   media,
		ApproxBytes: approx,
	}, true
}

// plausibleContext rejects payloads that are not a JSON string value of
// their own (a data URL quoted inside prose or code) and payloads on a log
// line that carries tool output.
func plausibleContext(data []byte, c candidate) bool {
	if c.dataURL {
		if c.marker == 0 || data[c.marker-1] != '"' {
			return false
		}
		if c.marker >= 2 && data[c.marker-2] == '\\' {
			return false
		}
	}
	lineStart := bytes.LastIndexByte(data[:c.marker], '\n') + 1
	prefix := data[lineStart:c.marker]
	for _, f := range toolFields {
		if bytes.Contains(prefix, f) {
			return false
		}
	}
	return true
}

func approxDecodedLen(payload []byte) int {
	n := len(payload) * 3 / 4
	for i := len(payload) - 1; i >= 0 && i >= len(payload)-2 && payload[i] == '='; i-- {
		n--
	}
	return n
}

// decodeSignature decodes at most budget bytes of the payload and checks
// for a known image signature. It returns the sniffed media type.
func decodeSignature(payload []byte, budget int) (string, bool) {
	if budget < 16 {
		budget = 16
	}
	chars := (budget + 2) / 3 * 4
	prefix := payload
	if len(prefix) > chars {
		prefix = prefix[:chars]
	}
	if len(prefix) != len(payload) {
		prefix = prefix[:len(prefix)-len(prefix)%4]
	}

	buf := make([]byte, base64.StdEncoding.DecodedLen(len(prefix)))
	n, err := base64.StdEncoding.Decode(buf, prefix)
	if err != nil {
		n, err = base64.RawStdEncoding.Decode(buf, bytes.TrimRight(prefix, "="))
		if err != nil {
			return "", false
		}
	}
	return sniffImage(buf[:n])
}

func sniffImage(b []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(b, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png", true
	case bytes.HasPrefix(b, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg", true
	case bytes.HasPrefix(b, []byte("GIF87a")), bytes.HasPrefix(b, []byte("GIF89a")):
		return "image/gif", true
	case len(b) >= 12 && bytes.Equal(b[:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return "image/webp", true
	}
	return "", false
}

// associate sets each asset's prompt ordinal: the nearest user event at or
// before the payload, else the first one after it.
func associate(data []byte, found []model.InlineAsset, userOffsets []int64) {
	if len(found) == 0 {
		return
	}
	offs := userOffsets
	if offs == nil {
		offs = detectUserOffsets(data)
	}
	for i := range found {
		found[i].PromptOrdinal = promptOrdinal(offs, int64(found[i].Span.Start))
	}
}

func promptOrdinal(offs []int64, at int64) int {
	if len(offs) == 0 {
		return -1
	}
	k := sort.Search(len(offs), func(i int) bool { return offs[i] > at })
	if k == 0 {
		return 0
	}
	return k - 1
}

func detectUserOffsets(data []byte) []int64 {
	var offs []int64
	for start := 0; start < len(data); {
		end := bytes.IndexByte(data[start:], '\n')
		if end < 0 {
			end = len(data)
		} else {
			end += start
		}
		if source.IsUserPromptLine(bytes.TrimSpace(data[start:end])) {
			offs = append(offs, int64(start))
		}
		start = end + 1
	}
	return offs
}
