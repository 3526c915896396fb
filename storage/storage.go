// Package storage composes pathlock and pathresolver with the host
// filesystem into the service's public operations: create, copy, move,
// remove, list, and stream files and directories under a single data
// root.
//
// Every mutating operation follows the same two-phase shape: a probe
// phase under short-lived read locks discovers which ancestor directory
// must be write-locked to safely create a path, then a commit phase
// takes that lock, re-checks preconditions, and performs the syscall.
// Between the two phases the filesystem may change; the commit phase's
// precondition re-check is what makes that safe.
package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/nodermann/offlinecloud/apierr"
	"github.com/nodermann/offlinecloud/obslog"
	"github.com/nodermann/offlinecloud/pathlock"
	"github.com/nodermann/offlinecloud/pathresolver"
)

// Storage is the service's filesystem operations layer, confined to a
// single data root.
type Storage struct {
	resolver *pathresolver.Resolver
	locks    *pathlock.PathLocker
	log      obslog.Log
}

// New creates a Storage rooted at root, creating root on disk if it
// doesn't already exist.
func New(root string, log obslog.Log) (*Storage, error) {
	if log == nil {
		log = obslog.NoLog{}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve data root %q", root)
	}
	abs = filepath.Clean(abs)
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data root %q", abs)
	}
	return &Storage{
		resolver: pathresolver.New(abs),
		locks:    &pathlock.PathLocker{},
		log:      log,
	}, nil
}

// Root returns the absolute data root this Storage is confined to.
func (s *Storage) Root() string { return s.resolver.Root() }

// TrimRoot removes the data root prefix from a real path, producing the
// client-visible form used in responses.
func (s *Storage) TrimRoot(path string) string { return s.resolver.TrimRoot(path) }

// Idle reports whether every lock has been released, the precondition
// for a clean shutdown.
func (s *Storage) Idle() bool { return s.locks.Idle() }

func (s *Storage) exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Storage) statPath(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// toBusyErr converts a pathlock admission failure into the apierr
// taxonomy; any other error is wrapped as internal.
func toBusyErr(err error) error {
	if bpe, ok := err.(*pathlock.BusyPathError); ok {
		return apierr.BusyPath(bpe.Path)
	}
	return apierr.Internal(errors.Wrap(err, "acquire lock"))
}

type lockFunc func() (*pathlock.Lock, error)

// acquireAll takes locks in order, releasing everything already
// acquired if any acquisition fails.
func acquireAll(fns ...lockFunc) ([]*pathlock.Lock, error) {
	acquired := make([]*pathlock.Lock, 0, len(fns))
	for _, fn := range fns {
		lk, err := fn()
		if err != nil {
			releaseAll(acquired)
			return nil, err
		}
		acquired = append(acquired, lk)
	}
	return acquired, nil
}

func releaseAll(locks []*pathlock.Lock) {
	for _, lk := range locks {
		lk.Unlock()
	}
}

// lockForCreate runs the probe phase for an operation that creates
// target: it takes read locks (via probeLocks, typically covering src
// and/or dest), resolves the nearest existing ancestor of target, then
// releases the probe locks. It reports which path the commit phase must
// write-lock: target itself if its parent already exists on disk, or the
// ancestor directory otherwise.
func (s *Storage) lockForCreate(target string, probeLocks ...lockFunc) (ancestor string, lockLeaf bool, err error) {
	acquired, err := acquireAll(probeLocks...)
	if err != nil {
		return "", false, toBusyErr(err)
	}
	ancestor, aerr := s.resolver.ResolveNonexistentRoot(target, s.exists)
	releaseAll(acquired)
	if aerr != nil {
		return "", false, aerr
	}
	return ancestor, ancestor == filepath.Dir(target), nil
}

// DirEntry is one entry returned by ListDir.
type DirEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

func pathType(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	if info.IsDir() {
		return "d"
	}
	if info.Mode().IsRegular() {
		return "f"
	}
	return "?"
}

// ListDir lists the immediate children of the directory at path.
func (s *Storage) ListDir(path string) ([]DirEntry, error) {
	real, err := s.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}

	lock, err := s.locks.RLockDir(real)
	if err != nil {
		return nil, toBusyErr(err)
	}
	defer lock.Unlock()

	info, statErr := s.statPath(real)
	if os.IsNotExist(statErr) {
		return nil, apierr.NotFound(path)
	}
	if statErr != nil {
		return nil, apierr.Internal(errors.Wrap(statErr, "stat dir"))
	}
	if !info.IsDir() {
		return nil, apierr.NotADir(path)
	}

	entries, err := os.ReadDir(real)
	if err != nil {
		return nil, apierr.Internal(errors.Wrap(err, "read dir"))
	}

	result := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		full := filepath.Join(real, e.Name())
		result = append(result, DirEntry{
			Path: s.resolver.TrimRoot(full),
			Type: pathType(full),
		})
	}
	return result, nil
}

// NewFile creates a zero-length file at path, creating any missing
// ancestor directories.
func (s *Storage) NewFile(path string) error {
	real, err := s.resolver.Resolve(path)
	if err != nil {
		return err
	}
	parent := filepath.Dir(real)

	ancestor, lockLeaf, err := s.lockForCreate(real,
		func() (*pathlock.Lock, error) { return s.locks.RLockFile(real) },
	)
	if err != nil {
		return err
	}

	var commitLocks []*pathlock.Lock
	if lockLeaf {
		commitLocks, err = acquireAll(func() (*pathlock.Lock, error) { return s.locks.WLockFile(real) })
	} else {
		commitLocks, err = acquireAll(func() (*pathlock.Lock, error) { return s.locks.WLockDir(ancestor) })
	}
	if err != nil {
		return toBusyErr(err)
	}
	defer releaseAll(commitLocks)

	if s.exists(real) {
		return apierr.AlreadyExists(path)
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return apierr.Internal(errors.Wrap(err, "create parent directories"))
	}
	f, err := os.OpenFile(real, os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return apierr.Internal(errors.Wrap(err, "create file"))
	}
	if err := f.Close(); err != nil {
		return apierr.Internal(errors.Wrap(err, "close new file"))
	}
	s.log.Log(obslog.TopicFS, "new_file", obslog.M{"path": path})
	return nil
}

// NewDir creates a directory at path and any missing ancestors.
func (s *Storage) NewDir(path string) error {
	real, err := s.resolver.Resolve(path)
	if err != nil {
		return err
	}
	parent := filepath.Dir(real)

	ancestor, lockLeaf, err := s.lockForCreate(real,
		func() (*pathlock.Lock, error) { return s.locks.RLockDir(real) },
	)
	if err != nil {
		return err
	}

	var commitLocks []*pathlock.Lock
	if lockLeaf {
		commitLocks, err = acquireAll(func() (*pathlock.Lock, error) { return s.locks.WLockDir(real) })
	} else {
		commitLocks, err = acquireAll(func() (*pathlock.Lock, error) { return s.locks.WLockDir(ancestor) })
	}
	if err != nil {
		return toBusyErr(err)
	}
	defer releaseAll(commitLocks)

	if s.exists(real) {
		return apierr.AlreadyExists(path)
	}
	_ = parent
	if err := os.MkdirAll(real, 0o755); err != nil {
		return apierr.Internal(errors.Wrap(err, "create directory"))
	}
	s.log.Log(obslog.TopicFS, "new_dir", obslog.M{"path": path})
	return nil
}

// CopyFile copies the file at src to dest, which must not already exist.
func (s *Storage) CopyFile(src, dest string) error {
	realSrc, realDest, destParent, err := s.resolveSrcDest(src, dest)
	if err != nil {
		return err
	}

	ancestor, lockLeaf, err := s.lockForCreate(realDest,
		func() (*pathlock.Lock, error) { return s.locks.RLockFile(realSrc) },
		func() (*pathlock.Lock, error) { return s.locks.RLockFile(realDest) },
	)
	if err != nil {
		return err
	}

	var commitLocks []*pathlock.Lock
	if lockLeaf {
		commitLocks, err = acquireAll(
			func() (*pathlock.Lock, error) { return s.locks.RLockFile(realSrc) },
			func() (*pathlock.Lock, error) { return s.locks.WLockFile(realDest) },
		)
	} else {
		commitLocks, err = acquireAll(
			func() (*pathlock.Lock, error) { return s.locks.RLockFile(realSrc) },
			func() (*pathlock.Lock, error) { return s.locks.WLockDir(ancestor) },
		)
	}
	if err != nil {
		return toBusyErr(err)
	}
	defer releaseAll(commitLocks)

	info, statErr := s.statPath(realSrc)
	if os.IsNotExist(statErr) {
		return apierr.NotFound(src)
	}
	if statErr != nil {
		return apierr.Internal(errors.Wrap(statErr, "stat src"))
	}
	if !info.Mode().IsRegular() {
		return apierr.NotAFile(src)
	}
	if s.exists(realDest) {
		return apierr.AlreadyExists(dest)
	}

	if err := os.MkdirAll(destParent, 0o755); err != nil {
		return apierr.Internal(errors.Wrap(err, "create dest parent"))
	}
	if err := copyFileContents(realSrc, realDest); err != nil {
		return apierr.Internal(errors.Wrap(err, "copy file"))
	}
	s.log.Log(obslog.TopicFS, "copy_file", obslog.M{"src": src, "dest": dest})
	return nil
}

// CopyDir recursively copies the directory tree at src to dest, which
// must not already exist. The source subtree is write-locked for the
// duration of the copy so the snapshot being copied cannot be mutated
// concurrently.
func (s *Storage) CopyDir(src, dest string) error {
	realSrc, realDest, destParent, err := s.resolveSrcDest(src, dest)
	if err != nil {
		return err
	}

	ancestor, lockLeaf, err := s.lockForCreate(realDest,
		func() (*pathlock.Lock, error) { return s.locks.RLockDir(realSrc) },
		func() (*pathlock.Lock, error) { return s.locks.RLockDir(realDest) },
	)
	if err != nil {
		return err
	}

	var commitLocks []*pathlock.Lock
	if lockLeaf {
		commitLocks, err = acquireAll(
			func() (*pathlock.Lock, error) { return s.locks.WLockDir(realSrc) },
			func() (*pathlock.Lock, error) { return s.locks.WLockDir(realDest) },
		)
	} else {
		commitLocks, err = acquireAll(
			func() (*pathlock.Lock, error) { return s.locks.WLockDir(realSrc) },
			func() (*pathlock.Lock, error) { return s.locks.WLockDir(ancestor) },
		)
	}
	if err != nil {
		return toBusyErr(err)
	}
	defer releaseAll(commitLocks)

	info, statErr := s.statPath(realSrc)
	if os.IsNotExist(statErr) {
		return apierr.NotFound(src)
	}
	if statErr != nil {
		return apierr.Internal(errors.Wrap(statErr, "stat src"))
	}
	if !info.IsDir() {
		return apierr.NotADir(src)
	}
	if s.exists(realDest) {
		return apierr.AlreadyExists(dest)
	}

	if err := os.MkdirAll(destParent, 0o755); err != nil {
		return apierr.Internal(errors.Wrap(err, "create dest parent"))
	}
	if err := os.Mkdir(realDest, 0o755); err != nil {
		return apierr.Internal(errors.Wrap(err, "create dest dir"))
	}
	if err := copyDirContents(realSrc, realDest); err != nil {
		return apierr.Internal(errors.Wrap(err, "copy dir"))
	}
	s.log.Log(obslog.TopicFS, "copy_dir", obslog.M{"src": src, "dest": dest})
	return nil
}

// MoveFile moves the file at src to dest, which must not already exist.
func (s *Storage) MoveFile(src, dest string) error {
	realSrc, realDest, destParent, err := s.resolveSrcDest(src, dest)
	if err != nil {
		return err
	}

	ancestor, lockLeaf, err := s.lockForCreate(realDest,
		func() (*pathlock.Lock, error) { return s.locks.RLockFile(realSrc) },
		func() (*pathlock.Lock, error) { return s.locks.RLockFile(realDest) },
	)
	if err != nil {
		return err
	}

	var commitLocks []*pathlock.Lock
	if lockLeaf {
		commitLocks, err = acquireAll(
			func() (*pathlock.Lock, error) { return s.locks.WLockFile(realSrc) },
			func() (*pathlock.Lock, error) { return s.locks.WLockFile(realDest) },
		)
	} else {
		commitLocks, err = acquireAll(
			func() (*pathlock.Lock, error) { return s.locks.WLockFile(realSrc) },
			func() (*pathlock.Lock, error) { return s.locks.WLockDir(ancestor) },
		)
	}
	if err != nil {
		return toBusyErr(err)
	}
	defer releaseAll(commitLocks)

	info, statErr := s.statPath(realSrc)
	if os.IsNotExist(statErr) {
		return apierr.NotFound(src)
	}
	if statErr != nil {
		return apierr.Internal(errors.Wrap(statErr, "stat src"))
	}
	if !info.Mode().IsRegular() {
		return apierr.NotAFile(src)
	}
	if s.exists(realDest) {
		return apierr.AlreadyExists(dest)
	}

	if err := os.MkdirAll(destParent, 0o755); err != nil {
		return apierr.Internal(errors.Wrap(err, "create dest parent"))
	}
	if err := os.Rename(realSrc, realDest); err != nil {
		return apierr.Internal(errors.Wrap(err, "move file"))
	}
	s.log.Log(obslog.TopicFS, "move_file", obslog.M{"src": src, "dest": dest})
	return nil
}

// MoveDir moves the directory at src to dest, which must not already
// exist.
func (s *Storage) MoveDir(src, dest string) error {
	realSrc, realDest, destParent, err := s.resolveSrcDest(src, dest)
	if err != nil {
		return err
	}

	ancestor, lockLeaf, err := s.lockForCreate(realDest,
		func() (*pathlock.Lock, error) { return s.locks.RLockDir(realSrc) },
		func() (*pathlock.Lock, error) { return s.locks.RLockDir(realDest) },
	)
	if err != nil {
		return err
	}

	var commitLocks []*pathlock.Lock
	if lockLeaf {
		commitLocks, err = acquireAll(
			func() (*pathlock.Lock, error) { return s.locks.WLockDir(realSrc) },
			func() (*pathlock.Lock, error) { return s.locks.WLockDir(realDest) },
		)
	} else {
		commitLocks, err = acquireAll(
			func() (*pathlock.Lock, error) { return s.locks.WLockDir(realSrc) },
			func() (*pathlock.Lock, error) { return s.locks.WLockDir(ancestor) },
		)
	}
	if err != nil {
		return toBusyErr(err)
	}
	defer releaseAll(commitLocks)

	info, statErr := s.statPath(realSrc)
	if os.IsNotExist(statErr) {
		return apierr.NotFound(src)
	}
	if statErr != nil {
		return apierr.Internal(errors.Wrap(statErr, "stat src"))
	}
	if !info.IsDir() {
		return apierr.NotADir(src)
	}
	if s.exists(realDest) {
		return apierr.AlreadyExists(dest)
	}

	if err := os.MkdirAll(destParent, 0o755); err != nil {
		return apierr.Internal(errors.Wrap(err, "create dest parent"))
	}
	if err := os.Rename(realSrc, realDest); err != nil {
		return apierr.Internal(errors.Wrap(err, "move dir"))
	}
	s.log.Log(obslog.TopicFS, "move_dir", obslog.M{"src": src, "dest": dest})
	return nil
}

// resolveSrcDest resolves both src and dest and rejects SameSrcDest.
func (s *Storage) resolveSrcDest(src, dest string) (realSrc, realDest, destParent string, err error) {
	realSrc, err = s.resolver.Resolve(src)
	if err != nil {
		return "", "", "", err
	}
	realDest, err = s.resolver.Resolve(dest)
	if err != nil {
		return "", "", "", err
	}
	if realSrc == realDest {
		return "", "", "", apierr.SameSrcDest(src, dest)
	}
	return realSrc, realDest, filepath.Dir(realDest), nil
}

// SaveMultipartFile creates path and fills it from body, holding the
// write lock for the duration of the stream. If body returns an error
// partway through, the partially-written file is removed before the
// error propagates.
func (s *Storage) SaveMultipartFile(path string, body io.Reader) error {
	real, err := s.resolver.Resolve(path)
	if err != nil {
		return err
	}
	parent := filepath.Dir(real)

	ancestor, lockLeaf, err := s.lockForCreate(real,
		func() (*pathlock.Lock, error) { return s.locks.RLockFile(real) },
	)
	if err != nil {
		return err
	}

	var commitLocks []*pathlock.Lock
	if lockLeaf {
		commitLocks, err = acquireAll(func() (*pathlock.Lock, error) { return s.locks.WLockFile(real) })
	} else {
		commitLocks, err = acquireAll(func() (*pathlock.Lock, error) { return s.locks.WLockDir(ancestor) })
	}
	if err != nil {
		return toBusyErr(err)
	}
	defer releaseAll(commitLocks)

	if s.exists(real) {
		return apierr.AlreadyExists(path)
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return apierr.Internal(errors.Wrap(err, "create parent directories"))
	}

	if err := saveStream(real, body); err != nil {
		return apierr.Internal(errors.Wrap(err, "save upload"))
	}
	s.log.Log(obslog.TopicFS, "save_multipart_file", obslog.M{"path": path})
	return nil
}

// RemoveFile deletes the file at path.
func (s *Storage) RemoveFile(path string) error {
	real, err := s.resolver.Resolve(path)
	if err != nil {
		return err
	}

	lock, err := s.locks.WLockFile(real)
	if err != nil {
		return toBusyErr(err)
	}
	defer lock.Unlock()

	info, statErr := s.statPath(real)
	if os.IsNotExist(statErr) {
		return apierr.NotFound(path)
	}
	if statErr != nil {
		return apierr.Internal(errors.Wrap(statErr, "stat path"))
	}
	if !info.Mode().IsRegular() {
		return apierr.NotAFile(path)
	}
	if err := os.Remove(real); err != nil {
		return apierr.Internal(errors.Wrap(err, "remove file"))
	}
	s.log.Log(obslog.TopicFS, "remove_file", obslog.M{"path": path})
	return nil
}

// RemoveDir recursively deletes the directory at path.
func (s *Storage) RemoveDir(path string) error {
	real, err := s.resolver.Resolve(path)
	if err != nil {
		return err
	}

	lock, err := s.locks.WLockDir(real)
	if err != nil {
		return toBusyErr(err)
	}
	defer lock.Unlock()

	info, statErr := s.statPath(real)
	if os.IsNotExist(statErr) {
		return apierr.NotFound(path)
	}
	if statErr != nil {
		return apierr.Internal(errors.Wrap(statErr, "stat path"))
	}
	if !info.IsDir() {
		return apierr.NotADir(path)
	}
	if err := os.RemoveAll(real); err != nil {
		return apierr.Internal(errors.Wrap(err, "remove dir"))
	}
	s.log.Log(obslog.TopicFS, "remove_dir", obslog.M{"path": path})
	return nil
}
