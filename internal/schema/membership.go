package schema

import "time"

// Relation identifies one of the two independent parent/child relations.
type Relation int

const (
	// RelationLocal is tasks.parent, used by local lists and calendars.
	RelationLocal Relation = iota
	// RelationTaskList is the parent recorded by the remote task list backend.
	RelationTaskList
)

// String returns a human-readable representation of the relation.
func (r Relation) String() string {
	switch r {
	case RelationLocal:
		return "local"
	case RelationTaskList:
		return "tasklist"
	default:
		return "unknown"
	}
}

// TaskListTask records that a task belongs to a remote task list.
type TaskListTask struct {
	Task     int64     `json:"task"`
	List     string    `json:"list"` // TaskList.RemoteID
	RemoteID string    `json:"remote_id,omitempty"`
	Parent   int64     `json:"parent,omitempty"` // relation B parent task id
	LastSync time.Time `json:"last_sync,omitempty"`
}

// CalendarTask records that a task belongs to a calendar.
type CalendarTask struct {
	Task     int64     `json:"task"`
	Calendar string    `json:"calendar"` // Calendar.UUID
	Object   string    `json:"object,omitempty"`
	RemoteID string    `json:"remote_id,omitempty"`
	ETag     string    `json:"etag,omitempty"`
	LastSync time.Time `json:"last_sync,omitempty"`
}
