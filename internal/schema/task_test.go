package schema

import (
	"testing"
	"time"
)

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{
			name: "valid task",
			task: Task{ID: 1, Title: "Write report", Priority: 2},
		},
		{
			name:    "missing title",
			task:    Task{ID: 1},
			wantErr: true,
		},
		{
			name:    "priority out of range",
			task:    Task{ID: 1, Title: "x", Priority: 7},
			wantErr: true,
		},
		{
			name:    "own parent",
			task:    Task{ID: 4, Title: "x", Parent: 4},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransitoryFlags(t *testing.T) {
	task := &Task{ID: 1, Title: "x"}
	if task.HasTransitory(SuppressSync) {
		t.Fatal("new task should carry no transitory flags")
	}

	task.SetTransitory(SuppressSync)
	if !task.HasTransitory(SuppressSync) {
		t.Error("SuppressSync not set")
	}
	if task.HasTransitory(ForceCalendarSync) {
		t.Error("ForceCalendarSync unexpectedly set")
	}

	clone := task.Clone()
	clone.SetTransitory(ForceCalendarSync)
	if task.HasTransitory(ForceCalendarSync) {
		t.Error("Clone shares transitory flags with the original")
	}
	if got := clone.TransitoryFlags(); len(got) != 2 {
		t.Errorf("TransitoryFlags() = %v, want 2 flags", got)
	}
}

func TestTaskListUpToDate(t *testing.T) {
	due := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	base := &Task{ID: 1, Title: "Buy milk", DueDate: due, Priority: 2}

	tests := []struct {
		name   string
		mutate func(*Task)
		want   bool
	}{
		{name: "unchanged", mutate: func(*Task) {}, want: true},
		{name: "title", mutate: func(t *Task) { t.Title = "Buy oat milk" }, want: false},
		{name: "due", mutate: func(t *Task) { t.DueDate = due.Add(time.Hour) }, want: false},
		{name: "completed", mutate: func(t *Task) { t.Completed = due }, want: false},
		{name: "order", mutate: func(t *Task) { t.Order = 3 }, want: false},
		// Priority is not stored by the task list backend.
		{name: "priority only", mutate: func(t *Task) { t.Priority = 0 }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated := base.Clone()
			tt.mutate(updated)
			if got := updated.TaskListUpToDate(base); got != tt.want {
				t.Errorf("TaskListUpToDate() = %v, want %v", got, tt.want)
			}
		})
	}

	if base.TaskListUpToDate(nil) {
		t.Error("a new task must never be up to date")
	}
}

func TestCalendarUpToDate(t *testing.T) {
	base := &Task{ID: 1, Title: "Standup", Priority: 1}

	tests := []struct {
		name   string
		mutate func(*Task)
		want   bool
	}{
		{name: "unchanged", mutate: func(*Task) {}, want: true},
		{name: "priority", mutate: func(t *Task) { t.Priority = 0 }, want: false},
		{name: "recurrence", mutate: func(t *Task) { t.Recurrence = "FREQ=DAILY" }, want: false},
		{name: "collapsed", mutate: func(t *Task) { t.Collapsed = true }, want: false},
		{name: "hide until", mutate: func(t *Task) { t.HideUntil = time.Now() }, want: false},
		// Manual order is not part of the calendar object.
		{name: "order only", mutate: func(t *Task) { t.Order = 9 }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated := base.Clone()
			tt.mutate(updated)
			if got := updated.CalendarUpToDate(base); got != tt.want {
				t.Errorf("CalendarUpToDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterCopies(t *testing.T) {
	f := Filter{Calendar: "work", OrderBy: []SortField{SortDue, SortPriority}}

	all := f.ShowHiddenAndCompleted().WithoutOrder()
	if !all.ShowHidden || !all.ShowCompleted {
		t.Error("ShowHiddenAndCompleted() did not enable hidden and completed tasks")
	}
	if all.OrderBy != nil {
		t.Errorf("WithoutOrder() kept OrderBy = %v", all.OrderBy)
	}
	if all.Calendar != "work" {
		t.Errorf("Calendar = %q, want 'work'", all.Calendar)
	}

	if f.ShowHidden || f.ShowCompleted || len(f.OrderBy) != 2 {
		t.Error("original filter was modified")
	}
}

func TestParseAccountType(t *testing.T) {
	if got, err := ParseAccountType(" CalDAV "); err != nil || got != AccountCalDAV {
		t.Errorf("ParseAccountType() = %q, %v", got, err)
	}
	if _, err := ParseAccountType("exchange"); err == nil {
		t.Error("expected error for unknown account type")
	}
}
