package schema

import (
	"fmt"
	"slices"
	"strings"
)

// AccountType identifies the protocol behind a calendar account.
type AccountType string

const (
	AccountCalDAV    AccountType = "caldav"
	AccountLocal     AccountType = "local"
	AccountOpenTasks AccountType = "opentasks"
	AccountTasks     AccountType = "tasks"
	AccountEtebase   AccountType = "etebase"
)

var (
	// CalendarSyncTypes are the account types served by the calendar sync
	// backend family.
	CalendarSyncTypes = []AccountType{AccountCalDAV, AccountTasks, AccountEtebase}

	// DeviceSyncTypes are the account types served by the device-level
	// task provider family.
	DeviceSyncTypes = []AccountType{AccountOpenTasks}

	// ICalendarTypes are all account types whose tasks are serialized as
	// iCalendar objects.
	ICalendarTypes = []AccountType{AccountCalDAV, AccountTasks, AccountEtebase, AccountOpenTasks}
)

// IsValid reports whether t is a known account type.
func (t AccountType) IsValid() bool {
	return t == AccountLocal || slices.Contains(ICalendarTypes, t)
}

// ParseAccountType converts user input to an AccountType.
func ParseAccountType(s string) (AccountType, error) {
	t := AccountType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid account type: %q", s)
	}
	return t, nil
}

// TaskListAccount is an account of the remote task list backend family.
type TaskListAccount struct {
	ID      int64  `json:"id"`
	Account string `json:"account"` // e.g. the e-mail address
	Error   string `json:"error,omitempty"`
}

// TaskList is a list inside a TaskListAccount.
type TaskList struct {
	ID       int64  `json:"id"`
	Account  string `json:"account"`
	RemoteID string `json:"remote_id"`
	Title    string `json:"title"`
}

// CalendarAccount is an account of the calendar backend family, or the
// local pseudo-account that owns local lists.
type CalendarAccount struct {
	ID   int64       `json:"id"`
	UUID string      `json:"uuid"`
	Name string      `json:"name"`
	Type AccountType `json:"type"`
	URL  string      `json:"url,omitempty"`
}

// Calendar is a task collection inside a CalendarAccount.
type Calendar struct {
	ID      int64  `json:"id"`
	Account string `json:"account"` // CalendarAccount.UUID
	UUID    string `json:"uuid"`
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
}

// Validate checks if the TaskList has valid field values.
func (l *TaskList) Validate() error {
	if l.Account == "" {
		return fmt.Errorf("account is required")
	}
	if l.RemoteID == "" {
		return fmt.Errorf("remote_id is required")
	}
	return nil
}

// Validate checks if the Calendar has valid field values.
func (c *Calendar) Validate() error {
	if c.Account == "" {
		return fmt.Errorf("account is required")
	}
	if c.UUID == "" {
		return fmt.Errorf("uuid is required")
	}
	if strings.ContainsAny(c.UUID, `/\`) {
		return fmt.Errorf("invalid calendar uuid: %q", c.UUID)
	}
	return nil
}

// Validate checks if the CalendarAccount has valid field values.
func (a *CalendarAccount) Validate() error {
	if a.UUID == "" {
		return fmt.Errorf("uuid is required")
	}
	if strings.ContainsAny(a.UUID, `/\`) {
		return fmt.Errorf("invalid account uuid: %q", a.UUID)
	}
	if !a.Type.IsValid() {
		return fmt.Errorf("invalid account type: %q", a.Type)
	}
	return nil
}
