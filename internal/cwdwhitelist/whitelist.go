// Package cwdwhitelist canonicalizes and validates session working
// directories against an allow-list.
package cwdwhitelist

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/happyclaw/supervisor/internal/types"
)

// Whitelist holds a set of canonicalized absolute directories. An empty
// whitelist allows every path.
type Whitelist struct {
	allowed []string
}

// New canonicalizes and stores every path in paths. Paths that fail to
// resolve (e.g. contain an unreadable symlink) are canonicalized with
// filepath.Abs/Clean only, on a best-effort basis.
func New(paths ...string) *Whitelist {
	w := &Whitelist{allowed: make([]string, 0, len(paths))}
	for _, p := range paths {
		w.allowed = append(w.allowed, canonicalize(p))
	}
	return w
}

func canonicalize(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	abs = filepath.Clean(abs)

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs
}

// Check reports whether p is allowed: true iff the whitelist is empty, or
// the canonical form of p equals an allowed path or is nested under one.
func (w *Whitelist) Check(p string) bool {
	if len(w.allowed) == 0 {
		return true
	}

	candidate := canonicalize(p)
	for _, allow := range w.allowed {
		if candidate == allow {
			return true
		}
		if strings.HasPrefix(candidate, allow+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// Assert returns a *types.PathDeniedError if p is not allowed, nil otherwise.
func (w *Whitelist) Assert(p string) error {
	if w.Check(p) {
		return nil
	}
	return &types.PathDeniedError{Path: p}
}

// Canonical returns the canonical form of p, the same form used internally
// for comparison. Callers should store this, not the raw input, as a
// session's cwd.
func Canonical(p string) string {
	return canonicalize(p)
}
