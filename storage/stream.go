package storage

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/nodermann/offlinecloud/apierr"
)

// chunkSize is the buffer size used for every streamed copy in this
// package, matching the chunk size the upload and download routes were
// built around.
const chunkSize = 256 * 1024

func copyFileContents(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open src")
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "create dest")
	}

	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		out.Close()
		os.Remove(dest)
		return errors.Wrap(err, "copy contents")
	}
	return out.Close()
}

// copyDirContents recursively copies every file and subdirectory under
// src into dest, which must already exist.
func copyDirContents(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFileContents(path, target)
	})
}

// saveStream writes body to a new file at path, holding nothing but the
// file handle open; the file is removed if the stream fails partway
// through.
func saveStream(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create file")
	}
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(f, body, buf); err != nil {
		f.Close()
		os.Remove(path)
		return errors.Wrap(err, "write body")
	}
	return f.Close()
}

// lockedReadCloser releases lock when the underlying file is closed, so
// callers can treat it as an ordinary io.ReadCloser without knowing
// about locking.
type lockedReadCloser struct {
	f    *os.File
	lock interface{ Unlock() }
}

func (l *lockedReadCloser) Read(p []byte) (int, error) { return l.f.Read(p) }

func (l *lockedReadCloser) Close() error {
	err := l.f.Close()
	l.lock.Unlock()
	return err
}

// OpenReadStream opens the file at path for reading, holding a read
// lock on it until the returned ReadCloser is closed.
func (s *Storage) OpenReadStream(path string) (io.ReadCloser, error) {
	real, err := s.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}

	lock, err := s.locks.RLockFile(real)
	if err != nil {
		return nil, toBusyErr(err)
	}

	info, statErr := s.statPath(real)
	if os.IsNotExist(statErr) {
		lock.Unlock()
		return nil, apierr.NotFound(path)
	}
	if statErr != nil {
		lock.Unlock()
		return nil, apierr.Internal(errors.Wrap(statErr, "stat file"))
	}
	if !info.Mode().IsRegular() {
		lock.Unlock()
		return nil, apierr.NotAFile(path)
	}

	f, err := os.Open(real)
	if err != nil {
		lock.Unlock()
		return nil, apierr.Internal(errors.Wrap(err, "open file"))
	}
	return &lockedReadCloser{f: f, lock: lock}, nil
}

// OpenZipStream streams the directory tree at path as a zip archive,
// holding a read lock on the directory for the lifetime of the stream.
// The archive is produced incrementally through an in-memory pipe, so
// the whole tree never needs to exist on disk or in memory at once.
func (s *Storage) OpenZipStream(path string) (io.ReadCloser, error) {
	real, err := s.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}

	lock, err := s.locks.RLockDir(real)
	if err != nil {
		return nil, toBusyErr(err)
	}

	info, statErr := s.statPath(real)
	if os.IsNotExist(statErr) {
		lock.Unlock()
		return nil, apierr.NotFound(path)
	}
	if statErr != nil {
		lock.Unlock()
		return nil, apierr.Internal(errors.Wrap(statErr, "stat dir"))
	}
	if !info.IsDir() {
		lock.Unlock()
		return nil, apierr.NotADir(path)
	}

	pr, pw := io.Pipe()
	go func() {
		defer lock.Unlock()
		zw := zip.NewWriter(pw)
		walkErr := filepath.WalkDir(real, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(real, p)
			if err != nil || rel == "." {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			w, err := zw.Create(filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(w, f)
			return err
		})
		if walkErr == nil {
			walkErr = zw.Close()
		}
		pw.CloseWithError(walkErr)
	}()
	return pr, nil
}
