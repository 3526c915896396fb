package pathlock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func assertIdle(t *testing.T, l *PathLocker) {
	t.Helper()
	assert.True(t, l.Idle(), "lock set must drain to empty")
}

func TestWritesInsideWLockedDirConflict(t *testing.T) {
	a := assert.New(t)
	l := &PathLocker{}
	defer assertIdle(t, l)

	lockA, err := l.WLockDir("/a")
	a.NoError(err)

	_, err = l.WLockDir("/a/1")
	a.Error(err)
	a.Equal(`"/a/1" is busy`, err.Error())

	_, err = l.WLockDir("/")
	a.Error(err)
	a.Equal(`"/" is busy`, err.Error())

	lockA.Unlock()

	lockA1, err := l.WLockDir("/a/1")
	a.NoError(err)
	lockA1.Unlock()
}

func TestReadersCoexistWritersDont(t *testing.T) {
	a := assert.New(t)
	l := &PathLocker{}
	defer assertIdle(t, l)

	r1, err := l.RLockDir("/a/b")
	a.NoError(err)
	r2, err := l.RLockDir("/a/b")
	a.NoError(err)
	r3, err := l.RLockDir("/a")
	a.NoError(err)
	r4, err := l.RLockDir("/a/b/c")
	a.NoError(err)

	_, err = l.WLockDir("/a")
	a.Error(err)

	r1.Unlock()
	r2.Unlock()
	r3.Unlock()
	r4.Unlock()
}

func TestDisjointSubtreesNeverConflict(t *testing.T) {
	a := assert.New(t)
	l := &PathLocker{}
	defer assertIdle(t, l)

	wa, err := l.WLockDir("/a")
	a.NoError(err)
	wb, err := l.WLockDir("/b")
	a.NoError(err)
	rc, err := l.RLockFile("/c/f")
	a.NoError(err)

	wa.Unlock()
	wb.Unlock()
	rc.Unlock()
}

func TestRLockFileDeniedByAncestorWrite(t *testing.T) {
	a := assert.New(t)
	l := &PathLocker{}
	defer assertIdle(t, l)

	wd, err := l.WLockDir("/a/b")
	a.NoError(err)

	_, err = l.RLockFile("/a/b/c/f")
	a.Error(err)

	rOther, err := l.RLockFile("/a/c")
	a.NoError(err)
	rOther.Unlock()

	wd.Unlock()

	rf, err := l.RLockFile("/a/b/c/f")
	a.NoError(err)
	rf.Unlock()
}

func TestWLockFileDeniedByReaders(t *testing.T) {
	a := assert.New(t)
	l := &PathLocker{}
	defer assertIdle(t, l)

	rf, err := l.RLockFile("/a/f")
	a.NoError(err)

	_, err = l.WLockFile("/a/f")
	a.Error(err)

	rf.Unlock()

	wf, err := l.WLockFile("/a/f")
	a.NoError(err)
	wf.Unlock()
}

func TestWLockDirDeniedByDescendantFileRead(t *testing.T) {
	a := assert.New(t)
	l := &PathLocker{}
	defer assertIdle(t, l)

	rf, err := l.RLockFile("/a/b/f")
	a.NoError(err)

	_, err = l.WLockDir("/a")
	a.Error(err)

	rf.Unlock()

	wd, err := l.WLockDir("/a")
	a.NoError(err)
	wd.Unlock()
}

func TestReleaseRemovesExactlyOneOccurrence(t *testing.T) {
	a := assert.New(t)
	l := &PathLocker{}
	defer assertIdle(t, l)

	r1, err := l.RLockFile("/x")
	a.NoError(err)
	r2, err := l.RLockFile("/x")
	a.NoError(err)

	r1.Unlock()

	// one reader remains: write is still denied.
	_, err = l.WLockFile("/x")
	a.Error(err)

	r2.Unlock()

	w, err := l.WLockFile("/x")
	a.NoError(err)
	w.Unlock()
}

func TestUnlockIsIdempotent(t *testing.T) {
	a := assert.New(t)
	l := &PathLocker{}
	defer assertIdle(t, l)

	lk, err := l.WLockFile("/idempotent")
	a.NoError(err)
	lk.Unlock()
	lk.Unlock()
	lk.Unlock()
}

func TestRootDirLockable(t *testing.T) {
	a := assert.New(t)
	l := &PathLocker{}
	defer assertIdle(t, l)

	r, err := l.RLockDir("/")
	a.NoError(err)
	r.Unlock()

	w, err := l.WLockDir("/")
	a.NoError(err)
	w.Unlock()
}

func TestLCPHelper(t *testing.T) {
	a := assert.New(t)
	a.Equal("/a/b", lcp("/a/b/c", "/a/b/d"))
	a.Equal("/", lcp("/a", "/b"))
	a.Equal("/a/b", lcp("/a/b", "/a/b/c"))
	a.True(isAncestorOrSelf("/a/b", "/a/b/c/d"))
	a.True(isAncestorOrSelf("/a/b", "/a/b"))
	a.False(isAncestorOrSelf("/a/b", "/a/c"))
}
