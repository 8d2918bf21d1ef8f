// Package audit writes the simulation audit trail.
//
// Every call opens the file, appends and closes it again, so a crash
// mid-batch leaves every earlier row on disk.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"linkmind/internal/codec"
)

// Log is an append-only CSV audit file
type Log struct {
	mu   sync.Mutex
	path string
}

// NewLog returns a log writing to path. The file is created lazily.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Path returns the file location
func (l *Log) Path() string {
	return l.path
}

// Truncate empties the file and writes the header row
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ensureDir(l.path); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("truncate audit log: %w", err)
	}

	if err := codec.WriteAuditRows(f, true); err != nil {
		f.Close()
		return err
	}
	return closeLog(f)
}

// Append writes rows, adding the header first when the file is new or empty
func (l *Log) Append(rows ...codec.AuditRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ensureDir(l.path); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}

	if err := codec.WriteAuditRows(f, info.Size() == 0, rows...); err != nil {
		f.Close()
		return err
	}
	return closeLog(f)
}

// closeLog returns the close error instead of dropping it
func closeLog(f *os.File) error {
	if err := f.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	return nil
}
