package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var dueParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// dateLayouts are tried before natural language.
var dateLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDue turns "2026-05-01", "tomorrow at 9am" or "next friday" into a
// time relative to now.
func parseDue(s string, now time.Time) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	r, err := dueParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid due date %q", s)
	}
	return r.Time, nil
}
