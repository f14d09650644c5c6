package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Timestamps are stored as UTC unix nanoseconds so that ordering and
// "updated since" comparisons work on plain integers.

// Unix encodes t.
func Unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

// FromUnix decodes a value written by Unix.
func FromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// NullUnix encodes an optional timestamp.
func NullUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: Unix(*t), Valid: true}
}

// FromNullUnix decodes an optional timestamp.
func FromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := FromUnix(n.Int64)
	return &t
}

// NullString maps "" to NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// EncodeList stores a string list as a JSON array.
func EncodeList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(list)
	return string(b)
}

// DecodeList reads a JSON array written by EncodeList. Malformed input
// yields an empty list.
func DecodeList(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{}
	}
	return out
}
