package persistence

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"techdigest/internal/core"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// dateValue scans a DATE column from either driver into a "2006-01-02" string.
// lib/pq returns time.Time for DATE, go-sqlite3 returns the stored text.
type dateValue struct {
	s string
}

func (d *dateValue) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		d.s = v.Format(core.DateLayout)
	case string:
		d.s = trimDate(v)
	case []byte:
		d.s = trimDate(string(v))
	case nil:
		d.s = ""
	default:
		return fmt.Errorf("unsupported date type %T", src)
	}
	return nil
}

func trimDate(s string) string {
	if len(s) >= len(core.DateLayout) {
		return s[:len(core.DateLayout)]
	}
	return s
}

// stringList stores a []string as JSON text
type stringList []string

func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *stringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported list type %T", src)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("invalid list value: %w", err)
	}
	*l = out
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
