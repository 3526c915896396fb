// Package pathlock arbitrates read/write access to paths under a single
// logical tree, where directories and files are locked independently but
// a write on a directory conflicts with any lock inside it, and a read on
// a descendant conflicts with a write on any ancestor.
//
// Locking is strictly non-blocking: an acquisition either succeeds
// immediately or fails immediately, never waits. Callers that want to
// retry on conflict must do so themselves, outside of this package.
package pathlock

import (
	"strings"
	"sync"
)

// PathLocker is the lock manager for a single path namespace.
//
// Its zero value is ready to use. All methods are safe for concurrent
// use by multiple goroutines.
type PathLocker struct {
	mtx sync.Mutex
	set lockSet
}

// lockSet is the mutable state described in spec: four multisets of
// canonical paths. filesRead and dirsRead may contain the same path
// more than once (shared readers); the write sets never do.
type lockSet struct {
	filesRead  []string
	filesWrite []string
	dirsRead   []string
	dirsWrite  []string
}

// Lock is a scoped acquisition returned by a successful *Lock call. It
// must be released exactly once, normally via a deferred Unlock.
type Lock struct {
	locker *PathLocker
	path   string
	isDir  bool
	write  bool
	once   sync.Once
}

// Path returns the canonical path this lock covers.
func (l *Lock) Path() string { return l.path }

// IsWrite reports whether this is a write (exclusive) lock.
func (l *Lock) IsWrite() bool { return l.write }

// Unlock releases the lock. It is idempotent: calling it more than once
// has no effect beyond the first call.
func (l *Lock) Unlock() {
	l.once.Do(func() {
		l.locker.release(l)
	})
}

// lcp returns the longest-common-prefix path of two cleaned, absolute,
// slash-separated paths, interpreted as their deepest common ancestor
// directory.
func lcp(a, b string) string {
	if a == b {
		return a
	}
	as := splitPath(a)
	bs := splitPath(b)
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	i := 0
	for i < n && as[i] == bs[i] {
		i++
	}
	if i == 0 {
		return "/"
	}
	return "/" + strings.Join(as[:i], "/")
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// isAncestorOrSelf reports whether lcp(a, b) == a, i.e. a is b itself or
// an ancestor directory of b.
func isAncestorOrSelf(a, b string) bool {
	return lcp(a, b) == a
}

// --- admission predicates -------------------------------------------------
//
// Pure functions over the current lockSet; they never mutate state. Each
// mirrors one bullet list in spec.md section 4.2.

func canRLockFile(s *lockSet, f string) bool {
	for _, wf := range s.filesWrite {
		if wf == f {
			return false
		}
	}
	for _, wd := range s.dirsWrite {
		if isAncestorOrSelf(wd, f) {
			return false
		}
	}
	return true
}

func canWLockFile(s *lockSet, f string) bool {
	for _, rf := range s.filesRead {
		if rf == f {
			return false
		}
	}
	for _, rd := range s.dirsRead {
		if isAncestorOrSelf(rd, f) {
			return false
		}
	}
	for _, wd := range s.dirsWrite {
		if isAncestorOrSelf(wd, f) {
			return false
		}
	}
	return true
}

func canRLockDir(s *lockSet, d string) bool {
	for _, wf := range s.filesWrite {
		if isAncestorOrSelf(d, wf) {
			return false
		}
	}
	for _, wd := range s.dirsWrite {
		// covers both "descendant dir write-locked (includes d == wd)"
		// and "ancestor dir write-locked" via the two directions of LCP.
		if isAncestorOrSelf(d, wd) || isAncestorOrSelf(wd, d) {
			return false
		}
	}
	return true
}

func canWLockDir(s *lockSet, d string) bool {
	if !canRLockDir(s, d) {
		return false
	}
	for _, rf := range s.filesRead {
		if isAncestorOrSelf(d, rf) {
			return false
		}
	}
	for _, rd := range s.dirsRead {
		if isAncestorOrSelf(d, rd) || isAncestorOrSelf(rd, d) {
			return false
		}
	}
	return true
}

// --- public API --------------------------------------------------------

// RLockFile attempts to take a shared read lock on the file at path.
// path must already be canonical (absolute, normalized).
func (l *PathLocker) RLockFile(path string) (*Lock, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !canRLockFile(&l.set, path) {
		return nil, BusyPath(path)
	}
	l.set.filesRead = append(l.set.filesRead, path)
	return &Lock{locker: l, path: path, isDir: false, write: false}, nil
}

// WLockFile attempts to take an exclusive write lock on the file at path.
func (l *PathLocker) WLockFile(path string) (*Lock, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !canWLockFile(&l.set, path) {
		return nil, BusyPath(path)
	}
	l.set.filesWrite = append(l.set.filesWrite, path)
	return &Lock{locker: l, path: path, isDir: false, write: true}, nil
}

// RLockDir attempts to take a shared read lock on the directory at path.
func (l *PathLocker) RLockDir(path string) (*Lock, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !canRLockDir(&l.set, path) {
		return nil, BusyPath(path)
	}
	l.set.dirsRead = append(l.set.dirsRead, path)
	return &Lock{locker: l, path: path, isDir: true, write: false}, nil
}

// WLockDir attempts to take an exclusive write lock on the directory at
// path. Holding it blocks any lock acquisition anywhere in path's
// subtree.
func (l *PathLocker) WLockDir(path string) (*Lock, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !canWLockDir(&l.set, path) {
		return nil, BusyPath(path)
	}
	l.set.dirsWrite = append(l.set.dirsWrite, path)
	return &Lock{locker: l, path: path, isDir: true, write: true}, nil
}

// release removes exactly one occurrence of the lock's path from the
// matching set. Called at most once per Lock, from Lock.Unlock.
func (l *PathLocker) release(lock *Lock) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	switch {
	case !lock.isDir && !lock.write:
		l.set.filesRead = removeOne(l.set.filesRead, lock.path)
	case !lock.isDir && lock.write:
		l.set.filesWrite = removeOne(l.set.filesWrite, lock.path)
	case lock.isDir && !lock.write:
		l.set.dirsRead = removeOne(l.set.dirsRead, lock.path)
	case lock.isDir && lock.write:
		l.set.dirsWrite = removeOne(l.set.dirsWrite, lock.path)
	}
}

func removeOne(set []string, path string) []string {
	for i, p := range set {
		if p == path {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}

// Idle reports whether every set is empty, the precondition for a clean
// shutdown.
func (l *PathLocker) Idle() bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	s := &l.set
	return len(s.filesRead) == 0 && len(s.filesWrite) == 0 &&
		len(s.dirsRead) == 0 && len(s.dirsWrite) == 0
}
