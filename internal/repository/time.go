package repository

import (
	"fmt"
	"time"
)

// nullTime scans timestamps from either driver: pgx yields time.Time, the
// SQLite driver may yield text.
type nullTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func (n *nullTime) Scan(v any) error {
	switch t := v.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = t.UTC(), true
		return nil
	case string:
		return n.parse(t)
	case []byte:
		return n.parse(string(t))
	case int64:
		n.Time, n.Valid = time.Unix(t, 0).UTC(), true
		return nil
	}
	return fmt.Errorf("unsupported time value %T", v)
}

func (n *nullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", s)
}
