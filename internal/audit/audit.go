// Package audit provides an append-only JSON-lines log of tool invocations.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/happyclaw/supervisor/internal/types"
)

// Logger writes newline-delimited JSON audit entries to <dataDir>/audit.log.
type Logger struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open creates (or appends to) the audit log under dataDir.
func Open(dataDir string) (*Logger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create data dir: %w", err)
	}

	path := filepath.Join(dataDir, "audit.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}

	return &Logger{path: path, file: f}, nil
}

// Log appends entry to the log. It guarantees the entry has reached the
// filesystem (via an explicit Sync) before returning.
func (l *Logger) Log(entry types.AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	return l.file.Sync()
}

// Close closes the underlying file handle.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Read returns up to limit entries, newest-first. Malformed lines are
// silently skipped for forward-compatibility with future schemas.
//
// sinceUnixMilli, if non-zero, excludes entries strictly older than it.
// limit <= 0 means unbounded.
func (l *Logger) Read(sinceUnixMilli int64, limit int) ([]types.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Sync(); err != nil {
		return nil, err
	}

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: reopen log: %w", err)
	}
	defer f.Close()

	var all []types.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry types.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // malformed line: skip, forward-compatible
		}
		if sinceUnixMilli != 0 && entry.Timestamp.UnixMilli() < sinceUnixMilli {
			continue
		}
		all = append(all, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Reverse to newest-first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
