// Package pipeline orchestrates catalog loading, caching, and aggregation.
package pipeline

import (
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

// Aggregate computes summary statistics from a catalog, filtered to
// documents within the given time range.
func Aggregate(docs []model.Document, since, until time.Time) model.SummaryStats {
	filtered := FilterByTime(docs, since, until)

	var stats model.SummaryStats
	activeDays := make(map[string]struct{})
	repos := make(map[string]struct{})
	sources := make(map[string]struct{})

	for _, d := range filtered {
		stats.TotalSessions++
		stats.TotalPrompts += d.Prompts
		stats.TotalBytes += d.SizeBytes
		repos[d.Repo] = struct{}{}
		sources[d.Source] = struct{}{}

		if t := d.Time(); !t.IsZero() {
			activeDays[t.Local().Format("2006-01-02")] = struct{}{}
		}
	}

	stats.ActiveDays = len(activeDays)
	stats.Repos = len(repos)
	stats.Sources = len(sources)
	if stats.ActiveDays > 0 {
		days := float64(stats.ActiveDays)
		stats.SessionsPerDay = float64(stats.TotalSessions) / days
		stats.PromptsPerDay = float64(stats.TotalPrompts) / days
	}
	return stats
}

// AggregateDays computes per-day statistics, most recent first. Every day
// in [since, until] is present so gaps show as zeros.
func AggregateDays(docs []model.Document, since, until time.Time) []model.DailyStats {
	filtered := FilterByTime(docs, since, until)

	dayMap := make(map[string]*model.DailyStats)
	for _, d := range filtered {
		t := d.Time()
		if t.IsZero() {
			continue
		}
		dayKey := t.Local().Format("2006-01-02")
		ds, ok := dayMap[dayKey]
		if !ok {
			day, _ := time.ParseInLocation("2006-01-02", dayKey, time.Local)
			ds = &model.DailyStats{Date: day}
			dayMap[dayKey] = ds
		}
		ds.Sessions++
		ds.Prompts += d.Prompts
		ds.Bytes += d.SizeBytes
	}

	if !since.IsZero() && !until.IsZero() {
		day := startOfDay(since)
		end := startOfDay(until)
		for !day.After(end) {
			dayKey := day.Format("2006-01-02")
			if _, ok := dayMap[dayKey]; !ok {
				dayMap[dayKey] = &model.DailyStats{Date: day}
			}
			day = day.AddDate(0, 0, 1)
		}
	}

	days := make([]model.DailyStats, 0, len(dayMap))
	for _, ds := range dayMap {
		days = append(days, *ds)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.After(days[j].Date)
	})
	return days
}

func startOfDay(t time.Time) time.Time {
	l := t.Local()
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.Local)
}

// AggregateRepos computes per-repo statistics, most recently active first.
func AggregateRepos(docs []model.Document, since, until time.Time) []model.RepoStats {
	filtered := FilterByTime(docs, since, until)

	repoMap := make(map[string]*model.RepoStats)
	sourceSets := make(map[string]map[string]struct{})
	for _, d := range filtered {
		rs, ok := repoMap[d.Repo]
		if !ok {
			rs = &model.RepoStats{Repo: d.Repo}
			repoMap[d.Repo] = rs
			sourceSets[d.Repo] = make(map[string]struct{})
		}
		rs.Sessions++
		rs.Prompts += d.Prompts
		rs.Bytes += d.SizeBytes
		if t := d.Time(); t.After(rs.LastActive) {
			rs.LastActive = t
		}
		sourceSets[d.Repo][d.Source] = struct{}{}
	}

	repos := make([]model.RepoStats, 0, len(repoMap))
	for name, rs := range repoMap {
		for s := range sourceSets[name] {
			rs.Sources = append(rs.Sources, s)
		}
		sort.Strings(rs.Sources)
		repos = append(repos, *rs)
	}
	sort.Slice(repos, func(i, j int) bool {
		if !repos[i].LastActive.Equal(repos[j].LastActive) {
			return repos[i].LastActive.After(repos[j].LastActive)
		}
		return repos[i].Repo < repos[j].Repo
	})
	return repos
}

// FilterByTime returns documents whose time falls within [since, until).
func FilterByTime(docs []model.Document, since, until time.Time) []model.Document {
	if since.IsZero() && until.IsZero() {
		return docs
	}

	var result []model.Document
	for _, d := range docs {
		t := d.Time()
		if t.IsZero() {
			continue
		}
		if !since.IsZero() && t.Before(since) {
			continue
		}
		if !until.IsZero() && !t.Before(until) {
			continue
		}
		result = append(result, d)
	}
	return result
}

// FilterByRepo returns documents whose repo contains the substring.
func FilterByRepo(docs []model.Document, repo string) []model.Document {
	return filter(docs, repo, func(d model.Document) string { return d.Repo })
}

// FilterByModel returns documents whose model contains the substring.
func FilterByModel(docs []model.Document, modelFilter string) []model.Document {
	return filter(docs, modelFilter, func(d model.Document) string { return d.Model })
}

// FilterBySource returns documents from the named source.
func FilterBySource(docs []model.Document, name string) []model.Document {
	if name == "" {
		return docs
	}
	var result []model.Document
	for _, d := range docs {
		if strings.EqualFold(d.Source, name) {
			result = append(result, d)
		}
	}
	return result
}

func filter(docs []model.Document, substr string, field func(model.Document) string) []model.Document {
	if substr == "" {
		return docs
	}
	var result []model.Document
	for _, d := range docs {
		if containsIgnoreCase(field(d), substr) {
			result = append(result, d)
		}
	}
	return result
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// SortByRecent orders documents newest first.
func SortByRecent(docs []model.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Time().After(docs[j].Time())
	})
}

// FindDocument returns the document whose id equals or uniquely starts
// with prefix.
func FindDocument(docs []model.Document, prefix string) (model.Document, bool) {
	var found []model.Document
	for _, d := range docs {
		if d.ID == prefix {
			return d, true
		}
		if prefix != "" && strings.HasPrefix(d.ID, prefix) {
			found = append(found, d)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return model.Document{}, false
}

type repoNames []string

func (r repoNames) String(i int) string { return r[i] }
func (r repoNames) Len() int            { return len(r) }

// SuggestRepos fuzzy-matches pattern against the catalog's repo names and
// returns at most limit names, best first.
func SuggestRepos(docs []model.Document, pattern string, limit int) []string {
	seen := make(map[string]struct{})
	var names repoNames
	for _, d := range docs {
		if d.Repo == "" {
			continue
		}
		if _, ok := seen[d.Repo]; ok {
			continue
		}
		seen[d.Repo] = struct{}{}
		names = append(names, d.Repo)
	}
	sort.Strings(names)

	matches := fuzzy.FindFrom(pattern, names)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, names[m.Index])
	}
	return out
}
