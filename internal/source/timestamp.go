package source

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// timestampKeys are the fields probed for an event time in generic logs.
var timestampKeys = []string{
	"timestamp", "time", "ts", "created", "created_at", "datetime", "date",
	"event_time", "eventTime", "iso_timestamp", "when", "at",
}

var fallbackLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05Z07:00",
	"2006/01/02 15:04:05",
}

// DecodeTime accepts epoch numbers in seconds, milliseconds or microseconds
// (as numbers or digit strings) and ISO-8601 strings.
func DecodeTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case float64:
		return decodeEpoch(x)
	case int64:
		return decodeEpoch(float64(x))
	case int:
		return decodeEpoch(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return decodeEpoch(f)
	case string:
		return decodeTimeString(x)
	}
	return time.Time{}, false
}

func decodeTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if isDigits(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, false
		}
		return decodeEpoch(f)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// decodeEpoch picks the unit by magnitude: above 1e14 is microseconds,
// above 1e11 milliseconds, otherwise seconds.
func decodeEpoch(v float64) (time.Time, bool) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	switch {
	case v > 1e14:
		return time.UnixMicro(int64(v)).UTC(), true
	case v > 1e11:
		return time.UnixMilli(int64(v)).UTC(), true
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// timestampOf probes obj and then its payload for a decodable time.
func timestampOf(obj map[string]any) (time.Time, bool) {
	for _, m := range []map[string]any{obj, asMap(obj["payload"])} {
		if m == nil {
			continue
		}
		for _, k := range timestampKeys {
			if v, ok := m[k]; ok {
				if t, ok := DecodeTime(v); ok {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
