// Package fsutil maps request paths onto the served root and refuses any
// path that would leave it.
package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
)

var (
	// ErrAccessDenied means the path escapes the root or could not be
	// canonicalised. Resolution fails closed.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound means the path is inside the root but does not exist.
	ErrNotFound = errors.New("not found")
)

// Kind classifies a resolved path.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	if k == KindDir {
		return "directory"
	}
	return "file"
}

// Resolved is a request path that exists inside the root.
type Resolved struct {
	Kind Kind
	Abs  string // canonical absolute path, symlinks resolved
	Rel  string // slash-separated path relative to root, "" for the root itself
	Info fs.FileInfo
}

// IsDir reports whether the path is a directory.
func (r Resolved) IsDir() bool { return r.Kind == KindDir }

// CleanRelPath takes a user path like "", ".", "/a/b", "a//b", and returns a
// slash-based, no-leading-slash relative path ("" means root). ".." segments
// are clamped at the root, so only use it on paths already known to be safe
// or where clamping is the wanted behaviour (index keys).
func CleanRelPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "." || p == "/" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// ParentRel returns the relative path of rel's parent directory. The root's
// children have parent "".
func ParentRel(rel string) string {
	rel = CleanRelPath(rel)
	if rel == "" {
		return ""
	}
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// Within reports whether candidate is root or a descendant of it. It compares
// path segments, so "/a/bc" is not within "/a/b".
func Within(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// JoinWithinRoot returns the absolute path for an index-relative path. It
// rejects escapes rather than clamping them.
func JoinWithinRoot(rootAbs, rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", ErrAccessDenied
	}
	rel = strings.ReplaceAll(rel, "\\", "/")
	if strings.HasPrefix(rel, "/") || hasVolume(rel) {
		return "", ErrAccessDenied
	}
	abs := filepath.Join(rootAbs, filepath.FromSlash(rel))
	if !Within(filepath.Clean(rootAbs), abs) {
		return "", ErrAccessDenied
	}
	return abs, nil
}

// Resolve maps requestPath onto root and classifies the result.
//
// root must be absolute. Absolute-path injection, ".." escapes, NUL bytes
// and symlinks that lead outside root all yield ErrAccessDenied, as does any
// canonicalisation failure other than the path not existing.
func Resolve(root, requestPath string) (Resolved, error) {
	candidate, err := JoinWithinRoot(root, requestPath)
	if err != nil {
		return Resolved{}, err
	}

	real, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return Resolved{}, ErrNotFound
		}
		return Resolved{}, ErrAccessDenied
	}
	if !Within(root, real) {
		// root itself may live behind a symlink.
		realRoot, err := filepath.EvalSymlinks(root)
		if err != nil || !Within(realRoot, real) {
			return Resolved{}, ErrAccessDenied
		}
	}

	info, err := os.Stat(real)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Resolved{}, ErrNotFound
		}
		return Resolved{}, ErrAccessDenied
	}

	rel, err := filepath.Rel(filepath.Clean(root), candidate)
	if err != nil {
		return Resolved{}, ErrAccessDenied
	}
	rel = CleanRelPath(filepath.ToSlash(rel))

	r := Resolved{Abs: real, Rel: rel, Info: info}
	switch {
	case info.IsDir():
		r.Kind = KindDir
	case info.Mode().IsRegular():
		r.Kind = KindFile
	default:
		// Devices, sockets and pipes are never served.
		return Resolved{}, ErrAccessDenied
	}
	return r, nil
}

func hasVolume(p string) bool {
	return len(p) >= 2 && p[1] == ':' && ((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}
