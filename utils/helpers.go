package utils

import (
	"fmt"
	"strings"
	"time"
)

var sinceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseSince parses the optional lower bound of an analytics query. An empty
// value means no bound and returns nil. Values without a zone are read as UTC.
func ParseSince(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range sinceLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q: use RFC3339 or YYYY-MM-DD", raw)
}
