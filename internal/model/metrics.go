package model

import "time"

// SummaryStats holds the top-level aggregate across a catalog.
type SummaryStats struct {
	TotalSessions int
	TotalPrompts  int
	TotalBytes    int64
	ActiveDays    int
	Repos         int
	Sources       int

	SessionsPerDay float64
	PromptsPerDay  float64
}

// DailyStats holds metrics for a single calendar day.
type DailyStats struct {
	Date     time.Time
	Sessions int
	Prompts  int
	Bytes    int64
}

// RepoStats holds metrics for a single repository.
type RepoStats struct {
	Repo       string
	Sessions   int
	Prompts    int
	Bytes      int64
	LastActive time.Time
	Sources    []string
}
