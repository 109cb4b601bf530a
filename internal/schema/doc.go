// Package schema defines the task, container and filter types shared across
// taskd.
//
// # Hierarchy
//
// A task can have children under two independent relations:
//
//   - RelationLocal: tasks.parent, used by local lists and calendars
//   - RelationTaskList: the parent recorded by the remote task list backend
//
// A child may be reachable through only one of them, so anything that walks
// the hierarchy must consult both.
//
// # Containers
//
// Tasks live in containers of two families:
//
//   - TaskListAccount / TaskList: remote task list backend
//   - CalendarAccount / Calendar: calendar backends, plus the local
//     pseudo-account (AccountLocal) that owns local lists
//
// # Transitory flags
//
// SetTransitory attaches markers to a single mutation that are never
// persisted. SuppressSync keeps a mutation from triggering a sync;
// ForceCalendarSync forces a calendar sync even when nothing changed.
//
// # Change detection
//
// TaskListUpToDate and CalendarUpToDate compare only the fields each
// backend stores, so edits to unrelated fields do not schedule a sync.
package schema
