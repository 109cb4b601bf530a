// Package notify tells observers that tasks or lists changed.
//
// A Server pushes JSON messages to websocket clients (the daemon); a
// Logger only logs (one-shot CLI runs); Multi fans out to several.
package notify

import (
	"time"

	"github.com/charmbracelet/log"
)

// Notifier receives change notifications.
type Notifier interface {
	NotifyTasksChanged()
	NotifyListsChanged()
}

// SyncNotifier additionally receives sync events.
type SyncNotifier interface {
	Notifier
	NotifySyncStatus(active bool)
	NotifySyncComplete(urgent bool, d time.Duration, err error)
}

// Logger is a Notifier that writes notifications to a log.
type Logger struct {
	logger *log.Logger
}

// NewLogger creates a logging notifier.
func NewLogger(logger *log.Logger) *Logger {
	if logger == nil {
		logger = log.Default()
	}
	return &Logger{logger: logger.WithPrefix("notify")}
}

func (l *Logger) NotifyTasksChanged() { l.logger.Debug("tasks changed") }
func (l *Logger) NotifyListsChanged() { l.logger.Debug("lists changed") }

func (l *Logger) NotifySyncStatus(active bool) {
	l.logger.Debug("sync status", "active", active)
}

func (l *Logger) NotifySyncComplete(urgent bool, d time.Duration, err error) {
	if err != nil {
		l.logger.Warn("sync failed", "urgent", urgent, "duration", d, "err", err)
		return
	}
	l.logger.Debug("sync complete", "urgent", urgent, "duration", d)
}

// Multi forwards every notification to each of its notifiers in order.
type Multi []SyncNotifier

func (m Multi) NotifyTasksChanged() {
	for _, n := range m {
		n.NotifyTasksChanged()
	}
}

func (m Multi) NotifyListsChanged() {
	for _, n := range m {
		n.NotifyListsChanged()
	}
}

func (m Multi) NotifySyncStatus(active bool) {
	for _, n := range m {
		n.NotifySyncStatus(active)
	}
}

func (m Multi) NotifySyncComplete(urgent bool, d time.Duration, err error) {
	for _, n := range m {
		n.NotifySyncComplete(urgent, d, err)
	}
}
