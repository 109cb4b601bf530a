// Package schema provides the data structures shared by the task store and
// the deletion and sync coordinators.
package schema

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Transitory flags are attached to a single mutation and never persisted.
const (
	// SuppressSync marks a mutation that must not echo back to a remote
	// backend, e.g. applying an update that was just received from it.
	SuppressSync = "suppress-sync"

	// ForceCalendarSync forces a calendar sync even when no calendar field
	// changed.
	ForceCalendarSync = "force-calendar-sync"
)

// Task is a single task row. Timestamps use the zero time for "unset".
type Task struct {
	// ===== Identification =====
	ID int64 `json:"id"`

	// ===== Content =====
	Title      string `json:"title"`
	Notes      string `json:"notes,omitempty"`
	Priority   int    `json:"priority"` // 0 high .. 3 none
	Recurrence string `json:"recurrence,omitempty"`

	// ===== Hierarchy =====
	// Parent is the relation A parent (local and calendar subtasks).
	// The relation B parent lives in the task list metadata.
	Parent    int64 `json:"parent,omitempty"`
	Order     int64 `json:"order,omitempty"`
	Collapsed bool  `json:"collapsed,omitempty"`

	// ===== Flags =====
	ReadOnly bool `json:"read_only,omitempty"`

	// ===== Timestamps =====
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	DueDate   time.Time `json:"due_date,omitempty"`
	HideUntil time.Time `json:"hide_until,omitempty"`
	Completed time.Time `json:"completed,omitempty"`
	Deleted   time.Time `json:"deleted,omitempty"`

	transitory map[string]bool
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.Priority < 0 || t.Priority > 3 {
		return fmt.Errorf("priority must be between 0 and 3 (got %d)", t.Priority)
	}
	if t.Parent != 0 && t.Parent == t.ID {
		return fmt.Errorf("task %d cannot be its own parent", t.ID)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	now := time.Now()
	if t.Created.IsZero() {
		t.Created = now
	}
	if t.Modified.IsZero() {
		t.Modified = now
	}
}

// IsCompleted reports whether the task has a completion timestamp.
func (t *Task) IsCompleted() bool { return !t.Completed.IsZero() }

// IsDeleted reports whether the task has been soft deleted.
func (t *Task) IsDeleted() bool { return !t.Deleted.IsZero() }

// IsRecurring reports whether the task carries a recurrence rule.
func (t *Task) IsRecurring() bool { return t.Recurrence != "" }

// SetTransitory attaches an ephemeral flag to this mutation.
func (t *Task) SetTransitory(flag string) {
	if t.transitory == nil {
		t.transitory = make(map[string]bool)
	}
	t.transitory[flag] = true
}

// HasTransitory reports whether flag was attached with SetTransitory.
func (t *Task) HasTransitory(flag string) bool {
	return t.transitory[flag]
}

// TransitoryFlags returns the attached flags in sorted order.
func (t *Task) TransitoryFlags() []string {
	return slices.Sorted(maps.Keys(t.transitory))
}

// Clone returns a copy that shares nothing mutable with t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.transitory = maps.Clone(t.transitory)
	return &c
}

// TaskListUpToDate reports whether none of the fields a remote task list
// backend stores changed between original and t. A nil original (new task)
// is never up to date.
func (t *Task) TaskListUpToDate(original *Task) bool {
	if t == original {
		return true
	}
	if original == nil {
		return false
	}
	return t.Title == original.Title &&
		t.DueDate.Equal(original.DueDate) &&
		t.Completed.Equal(original.Completed) &&
		t.Deleted.Equal(original.Deleted) &&
		t.Parent == original.Parent &&
		t.Notes == original.Notes &&
		t.Order == original.Order
}

// CalendarUpToDate reports whether none of the fields serialized into a
// calendar object changed between original and t.
func (t *Task) CalendarUpToDate(original *Task) bool {
	if t == original {
		return true
	}
	if original == nil {
		return false
	}
	return t.Title == original.Title &&
		t.Priority == original.Priority &&
		t.HideUntil.Equal(original.HideUntil) &&
		t.DueDate.Equal(original.DueDate) &&
		t.Completed.Equal(original.Completed) &&
		t.Deleted.Equal(original.Deleted) &&
		t.Notes == original.Notes &&
		t.Recurrence == original.Recurrence &&
		t.Parent == original.Parent &&
		t.Collapsed == original.Collapsed
}

// TaskView is the projection returned by filter queries.
type TaskView struct {
	ID        int64
	Title     string
	Completed bool
	ReadOnly  bool
	Hidden    bool
}

// IDs extracts the ids of tasks in order.
func IDs(tasks []*Task) []int64 {
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
