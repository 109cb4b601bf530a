package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mschirtzinger/taskd/internal/schema"
)

// ===== Task list family =====

// CreateTaskListAccount inserts a task list account and sets its ID.
func (db *DB) CreateTaskListAccount(ctx context.Context, account *schema.TaskListAccount) error {
	if account.Account == "" {
		return fmt.Errorf("invalid task list account: account is required")
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO task_list_accounts (account, error) VALUES (?, ?)`,
		account.Account, account.Error)
	if err != nil {
		return fmt.Errorf("failed to create task list account %s: %w", account.Account, err)
	}
	account.ID, _ = res.LastInsertId()
	return nil
}

// GetTaskListAccount looks up a task list account by name.
func (db *DB) GetTaskListAccount(ctx context.Context, name string) (*schema.TaskListAccount, error) {
	var a schema.TaskListAccount
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, account, error FROM task_list_accounts WHERE account = ?`, name).
		Scan(&a.ID, &a.Account, &a.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task list account %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task list account %s: %w", name, err)
	}
	return &a, nil
}

// TaskListAccounts returns every task list account.
func (db *DB) TaskListAccounts(ctx context.Context) ([]*schema.TaskListAccount, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, account, error FROM task_list_accounts ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("failed to query task list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*schema.TaskListAccount
	for rows.Next() {
		var a schema.TaskListAccount
		if err := rows.Scan(&a.ID, &a.Account, &a.Error); err != nil {
			return nil, fmt.Errorf("failed to scan task list account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task list accounts: %w", err)
	}
	return accounts, nil
}

// CreateTaskList inserts a task list and sets its ID.
func (db *DB) CreateTaskList(ctx context.Context, list *schema.TaskList) error {
	if err := list.Validate(); err != nil {
		return fmt.Errorf("invalid task list: %w", err)
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO task_lists (account, remote_id, title) VALUES (?, ?, ?)`,
		list.Account, list.RemoteID, list.Title)
	if err != nil {
		return fmt.Errorf("failed to create task list %s: %w", list.RemoteID, err)
	}
	list.ID, _ = res.LastInsertId()
	return nil
}

// GetTaskList looks up a task list by remote id.
func (db *DB) GetTaskList(ctx context.Context, remoteID string) (*schema.TaskList, error) {
	var l schema.TaskList
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, account, remote_id, title FROM task_lists WHERE remote_id = ?`, remoteID).
		Scan(&l.ID, &l.Account, &l.RemoteID, &l.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task list %s: %w", remoteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task list %s: %w", remoteID, err)
	}
	return &l, nil
}

// TaskListsForAccount returns the lists owned by a task list account.
func (db *DB) TaskListsForAccount(ctx context.Context, account string) ([]*schema.TaskList, error) {
	return db.taskListsForAccount(ctx, db.conn, account)
}

func (db *DB) taskListsForAccount(ctx context.Context, q querier, account string) ([]*schema.TaskList, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, account, remote_id, title FROM task_lists WHERE account = ? ORDER BY title`, account)
	if err != nil {
		return nil, fmt.Errorf("failed to query task lists: %w", err)
	}
	defer rows.Close()

	var lists []*schema.TaskList
	for rows.Next() {
		var l schema.TaskList
		if err := rows.Scan(&l.ID, &l.Account, &l.RemoteID, &l.Title); err != nil {
			return nil, fmt.Errorf("failed to scan task list: %w", err)
		}
		lists = append(lists, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task lists: %w", err)
	}
	return lists, nil
}

// SetTaskList records that a task belongs to a task list, replacing any
// previous membership.
func (db *DB) SetTaskList(ctx context.Context, m *schema.TaskListTask) error {
	query := `
	INSERT INTO task_list_tasks (task, list, remote_id, parent, last_sync)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(task) DO UPDATE SET
		list = excluded.list,
		remote_id = excluded.remote_id,
		parent = excluded.parent,
		last_sync = excluded.last_sync
	`
	_, err := db.conn.ExecContext(ctx, query, m.Task, m.List, m.RemoteID, m.Parent, millis(m.LastSync))
	if err != nil {
		return fmt.Errorf("failed to set task list for task %d: %w", m.Task, err)
	}
	return nil
}

// HasTaskListMetadata reports whether a task belongs to any task list.
func (db *DB) HasTaskListMetadata(ctx context.Context, taskID int64) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_list_tasks WHERE task = ?`, taskID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query task list metadata: %w", err)
	}
	return count > 0, nil
}

// DeleteTaskList removes a task list and every task in it, returning the
// removed task ids.
func (db *DB) DeleteTaskList(ctx context.Context, list *schema.TaskList) ([]int64, error) {
	var removed []int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = db.deleteTaskList(ctx, tx, list.RemoteID)
		return err
	})
	return removed, err
}

func (db *DB) deleteTaskList(ctx context.Context, q querier, remoteID string) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT task FROM task_list_tasks WHERE list = ?`, remoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks in list %s: %w", remoteID, err)
	}
	ids, err := scanIDs(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	removed, err := db.deleteTasks(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM task_lists WHERE remote_id = ?`, remoteID); err != nil {
		return nil, fmt.Errorf("failed to delete task list %s: %w", remoteID, err)
	}
	return removed, nil
}

// DeleteTaskListAccount removes an account, its lists and their tasks,
// returning the removed task ids.
func (db *DB) DeleteTaskListAccount(ctx context.Context, account *schema.TaskListAccount) ([]int64, error) {
	var removed []int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		lists, err := db.taskListsForAccount(ctx, tx, account.Account)
		if err != nil {
			return err
		}
		for _, list := range lists {
			ids, err := db.deleteTaskList(ctx, tx, list.RemoteID)
			if err != nil {
				return err
			}
			removed = append(removed, ids...)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_list_accounts WHERE account = ?`, account.Account); err != nil {
			return fmt.Errorf("failed to delete task list account %s: %w", account.Account, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// ===== Calendar family =====

// CreateCalendarAccount inserts a calendar account and sets its ID.
func (db *DB) CreateCalendarAccount(ctx context.Context, account *schema.CalendarAccount) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("invalid calendar account: %w", err)
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO calendar_accounts (uuid, name, type, url) VALUES (?, ?, ?, ?)`,
		account.UUID, account.Name, string(account.Type), account.URL)
	if err != nil {
		return fmt.Errorf("failed to create calendar account %s: %w", account.UUID, err)
	}
	account.ID, _ = res.LastInsertId()
	return nil
}

// GetCalendarAccount looks up a calendar account by uuid.
func (db *DB) GetCalendarAccount(ctx context.Context, uuid string) (*schema.CalendarAccount, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, uuid, name, type, url FROM calendar_accounts WHERE uuid = ?`, uuid)
	a, err := scanCalendarAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calendar account %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar account %s: %w", uuid, err)
	}
	return a, nil
}

// CalendarAccounts returns the calendar accounts of the given types, or
// every account when no type is given.
func (db *DB) CalendarAccounts(ctx context.Context, types ...schema.AccountType) ([]*schema.CalendarAccount, error) {
	query := `SELECT id, uuid, name, type, url FROM calendar_accounts`
	var args []any
	if len(types) > 0 {
		query += ` WHERE type IN (` + strings.TrimSuffix(strings.Repeat("?,", len(types)), ",") + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY name`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*schema.CalendarAccount
	for rows.Next() {
		a, err := scanCalendarAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calendar accounts: %w", err)
	}
	return accounts, nil
}

func scanCalendarAccount(row rowScanner) (*schema.CalendarAccount, error) {
	var a schema.CalendarAccount
	var typ string
	if err := row.Scan(&a.ID, &a.UUID, &a.Name, &typ, &a.URL); err != nil {
		return nil, err
	}
	a.Type = schema.AccountType(typ)
	return &a, nil
}

// CreateCalendar inserts a calendar and sets its ID.
func (db *DB) CreateCalendar(ctx context.Context, cal *schema.Calendar) error {
	if err := cal.Validate(); err != nil {
		return fmt.Errorf("invalid calendar: %w", err)
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO calendars (account, uuid, name, url) VALUES (?, ?, ?, ?)`,
		cal.Account, cal.UUID, cal.Name, cal.URL)
	if err != nil {
		return fmt.Errorf("failed to create calendar %s: %w", cal.UUID, err)
	}
	cal.ID, _ = res.LastInsertId()
	return nil
}

// GetCalendar looks up a calendar by uuid.
func (db *DB) GetCalendar(ctx context.Context, uuid string) (*schema.Calendar, error) {
	var c schema.Calendar
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, account, uuid, name, url FROM calendars WHERE uuid = ?`, uuid).
		Scan(&c.ID, &c.Account, &c.UUID, &c.Name, &c.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calendar %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar %s: %w", uuid, err)
	}
	return &c, nil
}

// CalendarsForAccount returns the calendars owned by an account.
func (db *DB) CalendarsForAccount(ctx context.Context, account string) ([]*schema.Calendar, error) {
	return db.calendarsForAccount(ctx, db.conn, account)
}

func (db *DB) calendarsForAccount(ctx context.Context, q querier, account string) ([]*schema.Calendar, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, account, uuid, name, url FROM calendars WHERE account = ? ORDER BY name`, account)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendars: %w", err)
	}
	defer rows.Close()

	var cals []*schema.Calendar
	for rows.Next() {
		var c schema.Calendar
		if err := rows.Scan(&c.ID, &c.Account, &c.UUID, &c.Name, &c.URL); err != nil {
			return nil, fmt.Errorf("failed to scan calendar: %w", err)
		}
		cals = append(cals, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calendars: %w", err)
	}
	return cals, nil
}

// SetCalendar records that a task belongs to a calendar, replacing any
// previous membership.
func (db *DB) SetCalendar(ctx context.Context, m *schema.CalendarTask) error {
	query := `
	INSERT INTO calendar_tasks (task, calendar, object, remote_id, etag, last_sync)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(task) DO UPDATE SET
		calendar = excluded.calendar,
		object = excluded.object,
		remote_id = excluded.remote_id,
		etag = excluded.etag,
		last_sync = excluded.last_sync
	`
	_, err := db.conn.ExecContext(ctx, query,
		m.Task, m.Calendar, m.Object, m.RemoteID, m.ETag, millis(m.LastSync))
	if err != nil {
		return fmt.Errorf("failed to set calendar for task %d: %w", m.Task, err)
	}
	return nil
}

// IsCalendarAccountType reports whether a task belongs to a calendar whose
// account has one of the given types.
func (db *DB) IsCalendarAccountType(ctx context.Context, taskID int64, types ...schema.AccountType) (bool, error) {
	if len(types) == 0 {
		return false, nil
	}
	args := []any{taskID}
	for _, t := range types {
		args = append(args, string(t))
	}
	query := `
	SELECT COUNT(*)
	FROM calendar_tasks ct
	JOIN calendars c ON c.uuid = ct.calendar
	JOIN calendar_accounts a ON a.uuid = c.account
	WHERE ct.task = ? AND a.type IN (` + strings.TrimSuffix(strings.Repeat("?,", len(types)), ",") + `)`

	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query calendar account type: %w", err)
	}
	return count > 0, nil
}

// DeleteCalendar removes a calendar and every task in it, returning the
// removed task ids.
func (db *DB) DeleteCalendar(ctx context.Context, cal *schema.Calendar) ([]int64, error) {
	var removed []int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = db.deleteCalendar(ctx, tx, cal.UUID)
		return err
	})
	return removed, err
}

func (db *DB) deleteCalendar(ctx context.Context, q querier, uuid string) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT task FROM calendar_tasks WHERE calendar = ?`, uuid)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks in calendar %s: %w", uuid, err)
	}
	ids, err := scanIDs(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	removed, err := db.deleteTasks(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM calendars WHERE uuid = ?`, uuid); err != nil {
		return nil, fmt.Errorf("failed to delete calendar %s: %w", uuid, err)
	}
	return removed, nil
}

// DeleteCalendarAccount removes an account, its calendars and their tasks,
// returning the removed task ids.
func (db *DB) DeleteCalendarAccount(ctx context.Context, account *schema.CalendarAccount) ([]int64, error) {
	var removed []int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		cals, err := db.calendarsForAccount(ctx, tx, account.UUID)
		if err != nil {
			return err
		}
		for _, cal := range cals {
			ids, err := db.deleteCalendar(ctx, tx, cal.UUID)
			if err != nil {
				return err
			}
			removed = append(removed, ids...)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM calendar_accounts WHERE uuid = ?`, account.UUID); err != nil {
			return fmt.Errorf("failed to delete calendar account %s: %w", account.UUID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
