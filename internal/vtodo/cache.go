// Package vtodo keeps offline copies of remote calendar objects on disk.
//
// Objects live in <root>/<account uuid>/<calendar uuid>/<object>, so a
// calendar or a whole account can be dropped with one directory removal.
package vtodo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mschirtzinger/taskd/internal/schema"
)

// Cache is the on-disk object cache.
type Cache struct {
	root   string
	logger *log.Logger
}

// New returns a cache rooted at dir. The directory is created lazily.
func New(dir string, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{root: dir, logger: logger.WithPrefix("vtodo")}
}

// Root returns the cache directory.
func (c *Cache) Root() string {
	return c.root
}

func (c *Cache) calendarDir(cal *schema.Calendar) (string, error) {
	if err := cal.Validate(); err != nil {
		return "", fmt.Errorf("invalid calendar: %w", err)
	}
	if err := validName(cal.Account); err != nil {
		return "", err
	}
	return filepath.Join(c.root, cal.Account, cal.UUID), nil
}

func (c *Cache) objectPath(cal *schema.Calendar, object string) (string, error) {
	dir, err := c.calendarDir(cal)
	if err != nil {
		return "", err
	}
	if err := validName(object); err != nil {
		return "", err
	}
	return filepath.Join(dir, object), nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid cache name: %q", name)
	}
	return nil
}

// PutObject stores data as object in cal.
func (c *Cache) PutObject(_ context.Context, cal *schema.Calendar, object string, data []byte) error {
	path, err := c.objectPath(cal, object)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Write then rename so readers never see a partial object.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", object, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to store %s: %w", object, err)
	}
	return nil
}

// GetObject returns the cached object, or nil if it is not cached.
func (c *Cache) GetObject(_ context.Context, cal *schema.Calendar, object string) ([]byte, error) {
	path, err := c.objectPath(cal, object)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", object, err)
	}
	return data, nil
}

// PurgeCalendar removes every cached object of cal.
func (c *Cache) PurgeCalendar(_ context.Context, cal *schema.Calendar) error {
	dir, err := c.calendarDir(cal)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to purge calendar %s: %w", cal.UUID, err)
	}
	c.logger.Debug("purged calendar", "calendar", cal.UUID)
	return nil
}

// PurgeAccount removes every cached object of every calendar of account.
func (c *Cache) PurgeAccount(_ context.Context, account *schema.CalendarAccount) error {
	if err := validName(account.UUID); err != nil {
		return err
	}
	dir := filepath.Join(c.root, account.UUID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to purge account %s: %w", account.UUID, err)
	}
	c.logger.Debug("purged account", "account", account.UUID)
	return nil
}
