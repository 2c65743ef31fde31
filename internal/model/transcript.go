package model

// Span is a half-open byte range [Start, End).
type Span struct {
	Start int
	End   int
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether offset falls inside the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// Block is a maximal run of events coalesced under one role classification.
// EndEvent is inclusive.
type Block struct {
	StartEvent int
	EndEvent   int
	Kind       Role
	GroupKey   string
	IsPreamble bool
}

// EventCount returns the number of events in the block.
func (b Block) EventCount() int { return b.EndEvent - b.StartEvent + 1 }

// Line is one renderable row. BlockIndex is a back-reference into the
// document's block list (-1 when none).
type Line struct {
	ID         int
	Role       Role
	Text       string
	BlockIndex int
	EventIndex int
}

// LineIndexEntry maps a line to the span of rendered text it covers.
type LineIndexEntry struct {
	LineID int
	Span   Span
}

// MatchOccurrence is a search hit resolved to a line.
type MatchOccurrence struct {
	Span   Span
	LineID int
}

// InlineAsset is a binary payload embedded as encoded text in a raw log.
type InlineAsset struct {
	SessionID    string
	DocumentPath string

	// Span covers the encoded payload in the raw file.
	Span Span

	// Sequence is the asset's position among the document's accepted assets.
	Sequence int

	// PromptOrdinal is the index of the associated user event among the
	// session's user events, or -1 when the file has no user events.
	PromptOrdinal int

	MediaType   string
	ApproxBytes int
}

// Options replaces ad hoc preference flags for transcript building and
// asset scanning.
type Options struct {
	SkipPreamble         bool
	DedupeToolGroups     bool
	AssetScanByteBudget  int
	AssetScanMatchBudget int
}

// DefaultOptions returns the options used when no config file exists.
func DefaultOptions() Options {
	return Options{
		SkipPreamble:         true,
		DedupeToolGroups:     false,
		AssetScanByteBudget:  64 * 1024,
		AssetScanMatchBudget: 64,
	}
}
