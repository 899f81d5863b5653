// Package feed normalizes raw broker payloads into canonical records:
// executions, position snapshots, and open orders. It is the only place
// that inspects raw upstream structure.
package feed

import (
	"strconv"
	"strings"
	"time"
)

// ExtractList pulls the record list out of a raw payload regardless of
// whether it arrives as a status-wrapped envelope, a nested container, or
// a bare list. Unrecognized shapes yield an empty list.
func ExtractList(payload any) []map[string]any {
	switch v := payload.(type) {
	case nil:
		return nil
	case []any:
		return toRows(v)
	case map[string]any:
		if v["status"] == "success" {
			if rows := extractData(v["data"]); rows != nil {
				return rows
			}
		}
		if rows := extractData(v["data"]); rows != nil {
			return rows
		}
		// Some backends return the list at a top-level key
		for _, k := range []string{"positions", "orders", "trades", "executions", "holdings"} {
			if list, ok := v[k].([]any); ok {
				return toRows(list)
			}
		}
	}
	return nil
}

func extractData(data any) []map[string]any {
	switch d := data.(type) {
	case []any:
		return toRows(d)
	case map[string]any:
		for _, k := range []string{"trades", "orders", "executions", "positions", "holdings", "data"} {
			if list, ok := d[k].([]any); ok {
				return toRows(list)
			}
		}
	}
	return nil
}

func toRows(list []any) []map[string]any {
	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if row, ok := item.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// stringField returns the first non-empty string value among the keys,
// trimmed and upper-cased.
func stringField(row map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := row[k].(string); ok {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				return s
			}
		}
	}
	return ""
}

// rawString is stringField without case folding, for order ids.
func rawString(row map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := row[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			if v != 0 {
				return trimFloat(v)
			}
		}
	}
	return ""
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// floatField returns the first parseable numeric value among the keys.
func floatField(row map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := row[k].(type) {
		case float64:
			if v != 0 {
				return v
			}
		case string:
			if f, ok := parseFloat(v); ok && f != 0 {
				return f
			}
		}
	}
	return 0
}

var textLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02-01-2006 15:04:05",
}

// ParseTime resolves a raw timestamp: epoch seconds, epoch milliseconds,
// or one of the textual layouts. Values without a zone default to UTC.
func ParseTime(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case float64:
		if ts <= 0 {
			return time.Time{}, false
		}
		if ts > 1e12 {
			// epoch milliseconds
			return time.UnixMilli(int64(ts)).UTC(), true
		}
		return time.Unix(int64(ts), 0).UTC(), true
	case string:
		s := strings.TrimSpace(ts)
		if s == "" {
			return time.Time{}, false
		}
		if f, ok := parseFloat(s); ok {
			return ParseTime(f)
		}
		for _, layout := range textLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// rowTime resolves the first parseable timestamp among the conventional
// time keys of a row.
func rowTime(row map[string]any) (time.Time, bool) {
	for _, k := range []string{
		"time", "fill_timestamp", "exchange_timestamp", "exchange_time",
		"transaction_time", "order_timestamp", "order_time", "trade_time",
		"timestamp", "created_at", "updated_at",
	} {
		if v, ok := row[k]; ok {
			if t, ok := ParseTime(v); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
