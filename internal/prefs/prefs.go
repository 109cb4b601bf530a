// Package prefs persists small user-visible flags such as the
// sync-ongoing indicator in a YAML file.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Well-known keys.
const (
	KeySyncOngoing = "sync_ongoing"
	KeyLastSync    = "last_sync"
)

// Prefs is a YAML-backed key/value store. Every write is flushed to disk.
type Prefs struct {
	path   string
	mu     sync.Mutex
	values map[string]any
}

// Open loads prefs from path. A missing file yields empty prefs.
func Open(path string) (*Prefs, error) {
	p := &Prefs{path: path, values: map[string]any{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p.values); err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", path, err)
	}
	if p.values == nil {
		p.values = map[string]any{}
	}
	return p, nil
}

// Path returns the backing file.
func (p *Prefs) Path() string {
	return p.path
}

// Bool returns the boolean stored at key, or def if there is none.
func (p *Prefs) Bool(key string, def bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[key].(bool)
	if !ok {
		return def
	}
	return v
}

// SetBool stores a boolean at key.
func (p *Prefs) SetBool(key string, v bool) error {
	return p.set(key, v)
}

// Time returns the time stored at key, or the zero time.
func (p *Prefs) Time(key string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch v := p.values[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}

// SetTime stores t at key.
func (p *Prefs) SetTime(key string, t time.Time) error {
	return p.set(key, t.UTC())
}

func (p *Prefs) set(key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, had := p.values[key]
	p.values[key] = v
	if err := p.flush(); err != nil {
		if had {
			p.values[key] = prev
		} else {
			delete(p.values, key)
		}
		return err
	}
	return nil
}

func (p *Prefs) flush() error {
	data, err := yaml.Marshal(p.values)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("create prefs directory: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}
