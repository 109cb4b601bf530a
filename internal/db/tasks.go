package db

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mschirtzinger/taskd/internal/schema"
)

const taskColumns = `id, title, notes, priority, recurrence, parent, sort_order,
	collapsed, read_only, created, modified, due_date, hide_until, completed, deleted`

// CreateTask inserts a new task and sets task.ID.
func (db *DB) CreateTask(ctx context.Context, task *schema.Task) (int64, error) {
	task.SetDefaults()
	if err := task.Validate(); err != nil {
		return 0, fmt.Errorf("invalid task: %w", err)
	}

	query := `
	INSERT INTO tasks (
		title, notes, priority, recurrence, parent, sort_order,
		collapsed, read_only, created, modified, due_date, hide_until,
		completed, deleted
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := db.conn.ExecContext(ctx, query,
		task.Title,
		task.Notes,
		task.Priority,
		task.Recurrence,
		task.Parent,
		task.Order,
		boolToInt(task.Collapsed),
		boolToInt(task.ReadOnly),
		millis(task.Created),
		millis(task.Modified),
		millis(task.DueDate),
		millis(task.HideUntil),
		millis(task.Completed),
		millis(task.Deleted),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read task id: %w", err)
	}
	task.ID = id
	return id, nil
}

// UpdateTask writes every persisted field of task and bumps Modified.
func (db *DB) UpdateTask(ctx context.Context, task *schema.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	task.Modified = time.Now()

	query := `
	UPDATE tasks SET
		title = ?, notes = ?, priority = ?, recurrence = ?, parent = ?,
		sort_order = ?, collapsed = ?, read_only = ?, modified = ?,
		due_date = ?, hide_until = ?, completed = ?, deleted = ?
	WHERE id = ?
	`

	res, err := db.conn.ExecContext(ctx, query,
		task.Title,
		task.Notes,
		task.Priority,
		task.Recurrence,
		task.Parent,
		task.Order,
		boolToInt(task.Collapsed),
		boolToInt(task.ReadOnly),
		millis(task.Modified),
		millis(task.DueDate),
		millis(task.HideUntil),
		millis(task.Completed),
		millis(task.Deleted),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", task.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", task.ID, ErrNotFound)
	}
	return nil
}

// GetTask retrieves a single task by id, deleted or not.
func (db *DB) GetTask(ctx context.Context, id int64) (*schema.Task, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return task, nil
}

// FetchTasks returns the tasks with the given ids, ordered by id. Unknown
// ids are skipped. Arbitrarily large id sets are fetched in chunks.
func (db *DB) FetchTasks(ctx context.Context, ids []int64) ([]*schema.Task, error) {
	tasks, err := ChunkedMap(Unique(ids), db.chunkSize, func(chunk []int64) ([]*schema.Task, error) {
		in, args := inClause(chunk)
		rows, err := db.conn.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id IN (`+in+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tasks: %w", err)
		}
		defer rows.Close()
		return scanTasks(rows)
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(tasks, func(a, b *schema.Task) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return tasks, nil
}

// GetChildren returns the direct children of ids under relation A.
func (db *DB) GetChildren(ctx context.Context, ids []int64) ([]int64, error) {
	return db.selectIDs(ctx, db.conn, `SELECT id FROM tasks WHERE parent IN (%s)`, ids)
}

// GetTaskListChildren returns the direct children of ids under relation B.
func (db *DB) GetTaskListChildren(ctx context.Context, ids []int64) ([]int64, error) {
	return db.selectIDs(ctx, db.conn, `SELECT task FROM task_list_tasks WHERE parent IN (%s)`, ids)
}

// MarkDeleted soft-deletes ids. Tasks that are already deleted keep their
// original deletion timestamp, so repeated calls are no-ops.
func (db *DB) MarkDeleted(ctx context.Context, ids []int64) error {
	now := time.Now().UnixMilli()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return chunkedExec(Unique(ids), db.chunkSize, func(chunk []int64) error {
			in, args := inClause(chunk)
			query := `UPDATE tasks SET modified = ?, deleted = ? WHERE deleted = 0 AND id IN (` + in + `)`
			if _, err := tx.ExecContext(ctx, query, append([]any{now, now}, args...)...); err != nil {
				return fmt.Errorf("failed to mark tasks deleted: %w", err)
			}
			return nil
		})
	})
}

// DeleteTasks permanently removes ids together with their alarms and
// container metadata. It returns the ids that existed.
func (db *DB) DeleteTasks(ctx context.Context, ids []int64) ([]int64, error) {
	var removed []int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = db.deleteTasks(ctx, tx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (db *DB) deleteTasks(ctx context.Context, q querier, ids []int64) ([]int64, error) {
	ids = Unique(ids)
	existing, err := db.selectIDs(ctx, q, `SELECT id FROM tasks WHERE id IN (%s)`, ids)
	if err != nil {
		return nil, err
	}

	statements := []string{
		`DELETE FROM alarms WHERE task IN (%s)`,
		`DELETE FROM task_list_tasks WHERE task IN (%s)`,
		`DELETE FROM calendar_tasks WHERE task IN (%s)`,
		`DELETE FROM tasks WHERE id IN (%s)`,
	}
	err = chunkedExec(ids, db.chunkSize, func(chunk []int64) error {
		in, args := inClause(chunk)
		for _, stmt := range statements {
			if _, err := q.ExecContext(ctx, fmt.Sprintf(stmt, in), args...); err != nil {
				return fmt.Errorf("failed to delete tasks: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(existing)
	return existing, nil
}

// QueryTasks returns views of the non-deleted tasks matching filter.
func (db *DB) QueryTasks(ctx context.Context, filter schema.Filter) ([]schema.TaskView, error) {
	now := time.Now().UnixMilli()
	conditions := []string{"t.deleted = 0"}
	args := []any{now}

	if !filter.ShowCompleted {
		conditions = append(conditions, "t.completed = 0")
	}
	if !filter.ShowHidden {
		conditions = append(conditions, "t.hide_until <= ?")
		args = append(args, now)
	}
	if filter.TaskList != "" {
		conditions = append(conditions, "t.id IN (SELECT task FROM task_list_tasks WHERE list = ?)")
		args = append(args, filter.TaskList)
	}
	if filter.Calendar != "" {
		conditions = append(conditions, "t.id IN (SELECT task FROM calendar_tasks WHERE calendar = ?)")
		args = append(args, filter.Calendar)
	}
	if filter.Query != "" {
		conditions = append(conditions, "(t.title LIKE ? OR t.notes LIKE ?)")
		like := "%" + filter.Query + "%"
		args = append(args, like, like)
	}

	query := `
	SELECT t.id, t.title, t.completed > 0, t.read_only, t.hide_until > ?
	FROM tasks t
	WHERE ` + strings.Join(conditions, " AND ")

	if order := orderClause(filter.OrderBy); order != "" {
		query += " ORDER BY " + order
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var views []schema.TaskView
	for rows.Next() {
		var v schema.TaskView
		if err := rows.Scan(&v.ID, &v.Title, &v.Completed, &v.ReadOnly, &v.Hidden); err != nil {
			return nil, fmt.Errorf("failed to scan task view: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return views, nil
}

var sortColumns = map[schema.SortField]string{
	schema.SortDue:      "CASE WHEN t.due_date = 0 THEN 1 ELSE 0 END, t.due_date",
	schema.SortPriority: "t.priority",
	schema.SortCreated:  "t.created",
	schema.SortModified: "t.modified DESC",
	schema.SortTitle:    "t.title COLLATE NOCASE",
}

func orderClause(fields []schema.SortField) string {
	var parts []string
	for _, f := range fields {
		if col, ok := sortColumns[f]; ok {
			parts = append(parts, col)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(append(parts, "t.id"), ", ")
}

// HasRecurringAncestors returns the ids that have an incomplete recurring
// ancestor under relation A, at any depth.
func (db *DB) HasRecurringAncestors(ctx context.Context, ids []int64) ([]int64, error) {
	query := `
	WITH RECURSIVE ancestors (descendant, ancestor) AS (
		SELECT id, parent FROM tasks WHERE id IN (%s) AND parent > 0

		UNION

		SELECT a.descendant, t.parent
		FROM ancestors a
		JOIN tasks t ON t.id = a.ancestor
		WHERE t.parent > 0
	)
	SELECT DISTINCT a.descendant
	FROM ancestors a
	JOIN tasks t ON t.id = a.ancestor
	WHERE t.recurrence != '' AND t.completed = 0
	`
	return db.selectIDs(ctx, db.conn, query, ids)
}

// HasRecurringTaskListParent returns the ids whose relation B parent is an
// incomplete recurring task.
func (db *DB) HasRecurringTaskListParent(ctx context.Context, ids []int64) ([]int64, error) {
	query := `
	SELECT m.task
	FROM task_list_tasks m
	JOIN tasks p ON p.id = m.parent
	WHERE m.task IN (%s) AND m.parent > 0
	  AND p.recurrence != '' AND p.completed = 0
	`
	return db.selectIDs(ctx, db.conn, query, ids)
}

// AddAlarm schedules a reminder for a task.
func (db *DB) AddAlarm(ctx context.Context, taskID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO alarms (task, time) VALUES (?, ?)`, taskID, millis(at))
	if err != nil {
		return fmt.Errorf("failed to add alarm for task %d: %w", taskID, err)
	}
	return nil
}

// AlarmCount returns the number of alarms attached to a task.
func (db *DB) AlarmCount(ctx context.Context, taskID int64) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM alarms WHERE task = ?`, taskID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count alarms: %w", err)
	}
	return count, nil
}

// Cleanup removes leftover per-task state for ids whose task is deleted or
// no longer exists. Live tasks are left alone, so a stale cleanup job for a
// restored task does no harm.
func (db *DB) Cleanup(ctx context.Context, ids []int64) error {
	return chunkedExec(Unique(ids), db.chunkSize, func(chunk []int64) error {
		in, args := inClause(chunk)
		query := `DELETE FROM alarms WHERE task IN (` + in + `)
			AND task NOT IN (SELECT id FROM tasks WHERE deleted = 0)`
		if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to clean up alarms: %w", err)
		}
		return nil
	})
}

// TaskCounts returns the number of stored tasks and how many of them are
// soft-deleted and still waiting for a sync to purge them.
func (db *DB) TaskCounts(ctx context.Context) (total, deleted int, err error) {
	err = db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(deleted > 0), 0) FROM tasks").Scan(&total, &deleted)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return total, deleted, nil
}

// selectIDs runs a single-column id query whose %s is an IN list, once per
// chunk of ids.
func (db *DB) selectIDs(ctx context.Context, q querier, query string, ids []int64) ([]int64, error) {
	return ChunkedMap(Unique(ids), db.chunkSize, func(chunk []int64) ([]int64, error) {
		in, args := inClause(chunk)
		rows, err := q.QueryContext(ctx, fmt.Sprintf(query, in), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query ids: %w", err)
		}
		defer rows.Close()
		return scanIDs(rows)
	})
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ids: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*schema.Task, error) {
	var task schema.Task
	var collapsed, readOnly int
	var created, modified, due, hide, completed, deleted int64

	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Notes,
		&task.Priority,
		&task.Recurrence,
		&task.Parent,
		&task.Order,
		&collapsed,
		&readOnly,
		&created,
		&modified,
		&due,
		&hide,
		&completed,
		&deleted,
	)
	if err != nil {
		return nil, err
	}

	task.Collapsed = collapsed != 0
	task.ReadOnly = readOnly != 0
	task.Created = fromMillis(created)
	task.Modified = fromMillis(modified)
	task.DueDate = fromMillis(due)
	task.HideUntil = fromMillis(hide)
	task.Completed = fromMillis(completed)
	task.Deleted = fromMillis(deleted)
	return &task, nil
}

// scanTasks is a helper function to scan multiple tasks from query results.
func scanTasks(rows *sql.Rows) ([]*schema.Task, error) {
	var tasks []*schema.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}
