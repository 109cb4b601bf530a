package vtodo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/mschirtzinger/taskd/internal/schema"
)

const object = `BEGIN:VCALENDAR
BEGIN:VTODO
UID:1234
SUMMARY:Water plants
END:VTODO
END:VCALENDAR
`

func TestPutGetObject(t *testing.T) {
	c := New(t.TempDir(), log.New(io.Discard))
	ctx := context.Background()
	cal := &schema.Calendar{Account: "acc", UUID: "cal"}

	if err := c.PutObject(ctx, cal, "1234.ics", []byte(object)); err != nil {
		t.Fatalf("PutObject() failed: %v", err)
	}
	got, err := c.GetObject(ctx, cal, "1234.ics")
	if err != nil {
		t.Fatalf("GetObject() failed: %v", err)
	}
	if string(got) != object {
		t.Errorf("GetObject() = %q", got)
	}

	missing, err := c.GetObject(ctx, cal, "nope.ics")
	if err != nil || missing != nil {
		t.Errorf("GetObject(missing) = %q, %v, want nil, nil", missing, err)
	}
}

func TestInvalidNames(t *testing.T) {
	c := New(t.TempDir(), log.New(io.Discard))
	ctx := context.Background()

	tests := []struct {
		name   string
		cal    *schema.Calendar
		object string
	}{
		{name: "object traversal", cal: &schema.Calendar{Account: "acc", UUID: "cal"}, object: "../x.ics"},
		{name: "dot dot account", cal: &schema.Calendar{Account: "..", UUID: "cal"}, object: "x.ics"},
		{name: "empty object", cal: &schema.Calendar{Account: "acc", UUID: "cal"}, object: ""},
		{name: "slash in calendar", cal: &schema.Calendar{Account: "acc", UUID: "a/b"}, object: "x.ics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.PutObject(ctx, tt.cal, tt.object, nil); err == nil {
				t.Error("PutObject() accepted an invalid name")
			}
		})
	}
}

func TestPurge(t *testing.T) {
	root := t.TempDir()
	c := New(root, log.New(io.Discard))
	ctx := context.Background()

	work := &schema.Calendar{Account: "acc-1", UUID: "work"}
	home := &schema.Calendar{Account: "acc-1", UUID: "home"}
	other := &schema.Calendar{Account: "acc-2", UUID: "other"}
	for _, cal := range []*schema.Calendar{work, home, other} {
		if err := c.PutObject(ctx, cal, "a.ics", []byte(object)); err != nil {
			t.Fatalf("PutObject(%s) failed: %v", cal.UUID, err)
		}
	}

	if err := c.PurgeCalendar(ctx, work); err != nil {
		t.Fatalf("PurgeCalendar() failed: %v", err)
	}
	if data, _ := c.GetObject(ctx, work, "a.ics"); data != nil {
		t.Error("purged calendar still has objects")
	}
	if data, _ := c.GetObject(ctx, home, "a.ics"); data == nil {
		t.Error("sibling calendar purged")
	}

	if err := c.PurgeAccount(ctx, &schema.CalendarAccount{UUID: "acc-1"}); err != nil {
		t.Fatalf("PurgeAccount() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "acc-1")); !os.IsNotExist(err) {
		t.Errorf("account directory still present: %v", err)
	}
	if data, _ := c.GetObject(ctx, other, "a.ics"); data == nil {
		t.Error("other account purged")
	}

	// Purging what is already gone succeeds.
	if err := c.PurgeCalendar(ctx, work); err != nil {
		t.Errorf("second PurgeCalendar() failed: %v", err)
	}
}
