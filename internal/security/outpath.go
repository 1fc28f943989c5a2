// Package security keeps files written on behalf of a request inside the
// directory they were meant for.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDir is returned for a path that resolves outside its directory.
var ErrOutsideDir = errors.New("path escapes output directory")

// canonical resolves symlinks in path. When path does not exist yet, the
// nearest existing ancestor is resolved instead and the rest re-appended, so
// a symlinked parent cannot smuggle a new file elsewhere.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rest := ""
	for dir := abs; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

// WithinDir returns nil when path, after cleaning and symlink resolution,
// lies inside dir. dir itself must exist.
func WithinDir(path, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	target, err := canonical(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s is not inside %s", ErrOutsideDir, path, dir)
	}
	return nil
}

// OutputPath joins a sanitised name onto dir and checks the result stays
// there.
func OutputPath(dir, name string) (string, error) {
	p := filepath.Join(dir, SanitizeFilename(name))
	if err := WithinDir(p, dir); err != nil {
		return "", err
	}
	return p, nil
}

const maxFilenameLen = 128

// SanitizeFilename reduces s to ASCII letters, digits, '.', '_' and '-', with
// each run of anything else collapsed to one underscore.
func SanitizeFilename(s string) string {
	var b strings.Builder
	under := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '_' || r == '-'
		switch {
		case ok:
			b.WriteRune(r)
			under = false
		case !under:
			b.WriteByte('_')
			under = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
