package db

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/mschirtzinger/taskd/internal/schema"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.db")
}

// openTestDB opens a fresh database with the schema applied.
func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := Open(testDBPath(t), opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func mustCreate(t *testing.T, db *DB, task *schema.Task) int64 {
	t.Helper()
	id, err := db.CreateTask(context.Background(), task)
	if err != nil {
		t.Fatalf("CreateTask(%q) failed: %v", task.Title, err)
	}
	return id
}

func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if db.ChunkSize() != DefaultChunkSize {
		t.Errorf("ChunkSize() = %d, want %d", db.ChunkSize(), DefaultChunkSize)
	}
}

func TestInitSchema_Tables(t *testing.T) {
	db := openTestDB(t)

	tables := []string{
		"tasks", "alarms", "task_list_accounts", "task_lists", "task_list_tasks",
		"calendar_accounts", "calendars", "calendar_tasks",
	}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	// Initialize schema twice
	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

func TestCreateAndGetTask(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	due := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	id := mustCreate(t, db, &schema.Task{
		Title:      "Pay rent",
		Notes:      "before the 3rd",
		Priority:   1,
		Recurrence: "FREQ=MONTHLY",
		DueDate:    due,
		ReadOnly:   true,
	})

	got, err := db.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.Title != "Pay rent" || got.Notes != "before the 3rd" || got.Priority != 1 {
		t.Errorf("GetTask() = %+v", got)
	}
	if !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}
	if !got.ReadOnly || !got.IsRecurring() {
		t.Error("ReadOnly or Recurrence not persisted")
	}
	if got.Created.IsZero() || got.IsDeleted() {
		t.Errorf("Created = %v, Deleted = %v", got.Created, got.Deleted)
	}

	if _, err := db.GetTask(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask(999) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateTask(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := &schema.Task{Title: "Draft"}
	mustCreate(t, db, task)
	task.Title = "Final"
	task.Completed = time.Now()
	if err := db.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}

	got, _ := db.GetTask(ctx, task.ID)
	if got.Title != "Final" || !got.IsCompleted() {
		t.Errorf("GetTask() after update = %+v", got)
	}

	missing := &schema.Task{ID: 42, Title: "ghost"}
	if err := db.UpdateTask(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTask(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFetchTasks_ChunkedAndOrdered(t *testing.T) {
	db := openTestDB(t, WithChunkSize(2))
	ctx := context.Background()

	var ids []int64
	for range 7 {
		ids = append(ids, mustCreate(t, db, &schema.Task{Title: "t"}))
	}

	// Reverse order, duplicates and an unknown id.
	query := []int64{ids[6], ids[0], ids[3], ids[3], 10_000, ids[5], ids[1], ids[2], ids[4]}
	tasks, err := db.FetchTasks(ctx, query)
	if err != nil {
		t.Fatalf("FetchTasks() failed: %v", err)
	}
	if got := schema.IDs(tasks); !slices.Equal(got, ids) {
		t.Errorf("FetchTasks() ids = %v, want %v", got, ids)
	}
}

func TestGetChildren(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	parent := mustCreate(t, db, &schema.Task{Title: "parent"})
	child := mustCreate(t, db, &schema.Task{Title: "child", Parent: parent})
	grandchild := mustCreate(t, db, &schema.Task{Title: "grandchild", Parent: child})
	listChild := mustCreate(t, db, &schema.Task{Title: "list child"})

	if err := db.SetTaskList(ctx, &schema.TaskListTask{Task: listChild, List: "l1", Parent: parent}); err != nil {
		t.Fatalf("SetTaskList() failed: %v", err)
	}

	a, err := db.GetChildren(ctx, []int64{parent})
	if err != nil {
		t.Fatalf("GetChildren() failed: %v", err)
	}
	if !slices.Equal(a, []int64{child}) {
		t.Errorf("GetChildren() = %v, want [%d] (one hop only, not %d)", a, child, grandchild)
	}

	b, err := db.GetTaskListChildren(ctx, []int64{parent})
	if err != nil {
		t.Fatalf("GetTaskListChildren() failed: %v", err)
	}
	if !slices.Equal(b, []int64{listChild}) {
		t.Errorf("GetTaskListChildren() = %v, want [%d]", b, listChild)
	}

	none, err := db.GetChildren(ctx, nil)
	if err != nil || len(none) != 0 {
		t.Errorf("GetChildren(nil) = %v, %v", none, err)
	}
}

func TestMarkDeleted_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id := mustCreate(t, db, &schema.Task{Title: "old"})
	if err := db.MarkDeleted(ctx, []int64{id}); err != nil {
		t.Fatalf("MarkDeleted() failed: %v", err)
	}
	first, _ := db.GetTask(ctx, id)
	if !first.IsDeleted() {
		t.Fatal("task not marked deleted")
	}

	time.Sleep(5 * time.Millisecond)
	if err := db.MarkDeleted(ctx, []int64{id}); err != nil {
		t.Fatalf("second MarkDeleted() failed: %v", err)
	}
	second, _ := db.GetTask(ctx, id)
	if !second.Deleted.Equal(first.Deleted) {
		t.Errorf("Deleted changed from %v to %v", first.Deleted, second.Deleted)
	}
}

func TestTaskCounts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if total, deleted, err := db.TaskCounts(ctx); err != nil || total != 0 || deleted != 0 {
		t.Fatalf("TaskCounts() on empty db = %d, %d, %v", total, deleted, err)
	}

	a := mustCreate(t, db, &schema.Task{Title: "a"})
	mustCreate(t, db, &schema.Task{Title: "b"})
	mustCreate(t, db, &schema.Task{Title: "c"})
	if err := db.MarkDeleted(ctx, []int64{a}); err != nil {
		t.Fatalf("MarkDeleted() failed: %v", err)
	}

	total, deleted, err := db.TaskCounts(ctx)
	if err != nil {
		t.Fatalf("TaskCounts() failed: %v", err)
	}
	if total != 3 || deleted != 1 {
		t.Errorf("TaskCounts() = %d, %d, want 3, 1", total, deleted)
	}
}

func TestDeleteTasks(t *testing.T) {
	db := openTestDB(t, WithChunkSize(1))
	ctx := context.Background()

	keep := mustCreate(t, db, &schema.Task{Title: "keep"})
	drop := mustCreate(t, db, &schema.Task{Title: "drop"})
	if err := db.AddAlarm(ctx, drop, time.Now()); err != nil {
		t.Fatalf("AddAlarm() failed: %v", err)
	}
	_ = db.SetTaskList(ctx, &schema.TaskListTask{Task: drop, List: "l1"})
	_ = db.SetCalendar(ctx, &schema.CalendarTask{Task: drop, Calendar: "c1", Object: "drop.ics"})

	removed, err := db.DeleteTasks(ctx, []int64{drop, 777})
	if err != nil {
		t.Fatalf("DeleteTasks() failed: %v", err)
	}
	if !slices.Equal(removed, []int64{drop}) {
		t.Errorf("DeleteTasks() = %v, want [%d]", removed, drop)
	}

	if _, err := db.GetTask(ctx, drop); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted task still present: %v", err)
	}
	if n, _ := db.AlarmCount(ctx, drop); n != 0 {
		t.Errorf("AlarmCount() = %d, want 0", n)
	}
	if ok, _ := db.HasTaskListMetadata(ctx, drop); ok {
		t.Error("task list metadata survived DeleteTasks")
	}
	if _, err := db.GetTask(ctx, keep); err != nil {
		t.Errorf("unrelated task removed: %v", err)
	}
}

func TestQueryTasks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	open := mustCreate(t, db, &schema.Task{Title: "open", Priority: 2})
	done := mustCreate(t, db, &schema.Task{Title: "done", Priority: 0, Completed: time.Now()})
	hidden := mustCreate(t, db, &schema.Task{Title: "hidden", HideUntil: time.Now().Add(24 * time.Hour)})
	gone := mustCreate(t, db, &schema.Task{Title: "gone"})
	_ = db.MarkDeleted(ctx, []int64{gone})
	_ = db.SetCalendar(ctx, &schema.CalendarTask{Task: done, Calendar: "work"})

	tests := []struct {
		name   string
		filter schema.Filter
		want   []int64
	}{
		{name: "default", filter: schema.Filter{OrderBy: []schema.SortField{schema.SortCreated}}, want: []int64{open}},
		{
			name:   "everything",
			filter: schema.Filter{OrderBy: []schema.SortField{schema.SortCreated}}.ShowHiddenAndCompleted(),
			want:   []int64{open, done, hidden},
		},
		{
			name:   "calendar",
			filter: schema.Filter{Calendar: "work"}.ShowHiddenAndCompleted(),
			want:   []int64{done},
		},
		{
			name:   "by priority",
			filter: schema.Filter{ShowCompleted: true, OrderBy: []schema.SortField{schema.SortPriority}},
			want:   []int64{done, open},
		},
		{
			name:   "search",
			filter: schema.Filter{Query: "hid", ShowHidden: true},
			want:   []int64{hidden},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			views, err := db.QueryTasks(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryTasks() failed: %v", err)
			}
			var got []int64
			for _, v := range views {
				got = append(got, v.ID)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("QueryTasks() = %v, want %v", got, tt.want)
			}
		})
	}

	views, _ := db.QueryTasks(ctx, schema.Filter{}.ShowHiddenAndCompleted())
	for _, v := range views {
		if v.ID == done && !v.Completed {
			t.Error("completed task view not flagged Completed")
		}
		if v.ID == hidden && !v.Hidden {
			t.Error("hidden task view not flagged Hidden")
		}
	}
}

func TestRecurringParents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	root := mustCreate(t, db, &schema.Task{Title: "weekly review", Recurrence: "FREQ=WEEKLY"})
	mid := mustCreate(t, db, &schema.Task{Title: "mid", Parent: root})
	leaf := mustCreate(t, db, &schema.Task{Title: "leaf", Parent: mid, Completed: time.Now()})
	plain := mustCreate(t, db, &schema.Task{Title: "plain", Completed: time.Now()})
	listChild := mustCreate(t, db, &schema.Task{Title: "list child", Completed: time.Now()})
	_ = db.SetTaskList(ctx, &schema.TaskListTask{Task: listChild, List: "l1", Parent: root})

	got, err := db.HasRecurringAncestors(ctx, []int64{mid, leaf, plain, listChild})
	if err != nil {
		t.Fatalf("HasRecurringAncestors() failed: %v", err)
	}
	slices.Sort(got)
	if !slices.Equal(got, []int64{mid, leaf}) {
		t.Errorf("HasRecurringAncestors() = %v, want [%d %d]", got, mid, leaf)
	}

	got, err = db.HasRecurringTaskListParent(ctx, []int64{mid, leaf, plain, listChild})
	if err != nil {
		t.Fatalf("HasRecurringTaskListParent() failed: %v", err)
	}
	if !slices.Equal(got, []int64{listChild}) {
		t.Errorf("HasRecurringTaskListParent() = %v, want [%d]", got, listChild)
	}
}

func TestCleanup_KeepsLiveTasks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	live := mustCreate(t, db, &schema.Task{Title: "live"})
	dead := mustCreate(t, db, &schema.Task{Title: "dead"})
	_ = db.AddAlarm(ctx, live, time.Now())
	_ = db.AddAlarm(ctx, dead, time.Now())
	_ = db.MarkDeleted(ctx, []int64{dead})

	if err := db.Cleanup(ctx, []int64{live, dead}); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}
	if n, _ := db.AlarmCount(ctx, live); n != 1 {
		t.Errorf("live AlarmCount() = %d, want 1", n)
	}
	if n, _ := db.AlarmCount(ctx, dead); n != 0 {
		t.Errorf("dead AlarmCount() = %d, want 0", n)
	}
}

func TestDeleteCalendarAccount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	account := &schema.CalendarAccount{UUID: "acc-1", Name: "Home", Type: schema.AccountCalDAV}
	if err := db.CreateCalendarAccount(ctx, account); err != nil {
		t.Fatalf("CreateCalendarAccount() failed: %v", err)
	}
	for _, uuid := range []string{"cal-a", "cal-b"} {
		if err := db.CreateCalendar(ctx, &schema.Calendar{Account: "acc-1", UUID: uuid, Name: uuid}); err != nil {
			t.Fatalf("CreateCalendar(%s) failed: %v", uuid, err)
		}
	}

	a := mustCreate(t, db, &schema.Task{Title: "a"})
	b := mustCreate(t, db, &schema.Task{Title: "b"})
	other := mustCreate(t, db, &schema.Task{Title: "other"})
	_ = db.SetCalendar(ctx, &schema.CalendarTask{Task: a, Calendar: "cal-a"})
	_ = db.SetCalendar(ctx, &schema.CalendarTask{Task: b, Calendar: "cal-b"})

	ok, err := db.IsCalendarAccountType(ctx, a, schema.ICalendarTypes...)
	if err != nil || !ok {
		t.Errorf("IsCalendarAccountType() = %v, %v, want true", ok, err)
	}
	if ok, _ := db.IsCalendarAccountType(ctx, a, schema.AccountOpenTasks); ok {
		t.Error("IsCalendarAccountType(opentasks) = true for a caldav task")
	}

	removed, err := db.DeleteCalendarAccount(ctx, account)
	if err != nil {
		t.Fatalf("DeleteCalendarAccount() failed: %v", err)
	}
	slices.Sort(removed)
	if !slices.Equal(removed, []int64{a, b}) {
		t.Errorf("DeleteCalendarAccount() = %v, want [%d %d]", removed, a, b)
	}

	if _, err := db.GetCalendarAccount(ctx, "acc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("account still present: %v", err)
	}
	if _, err := db.GetCalendar(ctx, "cal-b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("calendar still present: %v", err)
	}
	if _, err := db.GetTask(ctx, other); err != nil {
		t.Errorf("unrelated task removed: %v", err)
	}
}

func TestDeleteTaskListAccount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	account := &schema.TaskListAccount{Account: "me@example.com"}
	if err := db.CreateTaskListAccount(ctx, account); err != nil {
		t.Fatalf("CreateTaskListAccount() failed: %v", err)
	}
	list := &schema.TaskList{Account: account.Account, RemoteID: "list-1", Title: "Errands"}
	if err := db.CreateTaskList(ctx, list); err != nil {
		t.Fatalf("CreateTaskList() failed: %v", err)
	}

	id := mustCreate(t, db, &schema.Task{Title: "errand"})
	_ = db.SetTaskList(ctx, &schema.TaskListTask{Task: id, List: "list-1"})

	if ok, _ := db.HasTaskListMetadata(ctx, id); !ok {
		t.Fatal("HasTaskListMetadata() = false after SetTaskList")
	}
	accounts, err := db.TaskListAccounts(ctx)
	if err != nil || len(accounts) != 1 {
		t.Fatalf("TaskListAccounts() = %v, %v", accounts, err)
	}

	removed, err := db.DeleteTaskListAccount(ctx, account)
	if err != nil {
		t.Fatalf("DeleteTaskListAccount() failed: %v", err)
	}
	if !slices.Equal(removed, []int64{id}) {
		t.Errorf("DeleteTaskListAccount() = %v, want [%d]", removed, id)
	}
	if lists, _ := db.TaskListsForAccount(ctx, account.Account); len(lists) != 0 {
		t.Errorf("TaskListsForAccount() = %v, want none", lists)
	}
	if accounts, _ := db.TaskListAccounts(ctx); len(accounts) != 0 {
		t.Errorf("TaskListAccounts() = %v, want none", accounts)
	}
}

func TestCalendarAccountsByType(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, a := range []*schema.CalendarAccount{
		{UUID: "u1", Name: "A", Type: schema.AccountCalDAV},
		{UUID: "u2", Name: "B", Type: schema.AccountOpenTasks},
		{UUID: "u3", Name: "C", Type: schema.AccountLocal},
	} {
		if err := db.CreateCalendarAccount(ctx, a); err != nil {
			t.Fatalf("CreateCalendarAccount(%s) failed: %v", a.UUID, err)
		}
	}

	all, _ := db.CalendarAccounts(ctx)
	if len(all) != 3 {
		t.Errorf("CalendarAccounts() = %d accounts, want 3", len(all))
	}
	device, _ := db.CalendarAccounts(ctx, schema.DeviceSyncTypes...)
	if len(device) != 1 || device[0].UUID != "u2" {
		t.Errorf("CalendarAccounts(device) = %v", device)
	}
}

func TestChunkedMap(t *testing.T) {
	var calls int
	out, err := ChunkedMap([]int64{1, 2, 3, 4, 5}, 2, func(chunk []int64) ([]int64, error) {
		calls++
		if len(chunk) > 2 {
			t.Errorf("chunk of %d ids, want at most 2", len(chunk))
		}
		return chunk, nil
	})
	if err != nil {
		t.Fatalf("ChunkedMap() failed: %v", err)
	}
	if calls != 3 || !slices.Equal(out, []int64{1, 2, 3, 4, 5}) {
		t.Errorf("ChunkedMap() = %v in %d calls", out, calls)
	}

	wantErr := errors.New("boom")
	if _, err := ChunkedMap([]int64{1, 2, 3}, 1, func([]int64) ([]int64, error) { return nil, wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("ChunkedMap() error = %v, want %v", err, wantErr)
	}
}
