package schema

import "slices"

// SortField names a column a filter may order by.
type SortField string

const (
	SortDue      SortField = "due"
	SortPriority SortField = "priority"
	SortCreated  SortField = "created"
	SortModified SortField = "modified"
	SortTitle    SortField = "title"
)

// Filter selects tasks for display or bulk operations. The zero value
// matches every visible, incomplete task.
type Filter struct {
	// TaskList restricts to tasks in a remote task list (TaskList.RemoteID).
	TaskList string
	// Calendar restricts to tasks in a calendar (Calendar.UUID).
	Calendar string
	// Query matches title or notes, case-insensitively.
	Query string
	// ShowHidden includes tasks whose hide-until is in the future.
	ShowHidden bool
	// ShowCompleted includes completed tasks.
	ShowCompleted bool
	// OrderBy lists sort fields, most significant first.
	OrderBy []SortField
	// Limit restricts the number of results (0 = no limit).
	Limit int
}

// ShowHiddenAndCompleted returns a copy of f that also matches hidden and
// completed tasks.
func (f Filter) ShowHiddenAndCompleted() Filter {
	f.ShowHidden = true
	f.ShowCompleted = true
	f.OrderBy = slices.Clone(f.OrderBy)
	return f
}

// WithoutOrder returns a copy of f with no ordering clause.
func (f Filter) WithoutOrder() Filter {
	f.OrderBy = nil
	return f
}
