package pathlock

import "fmt"

// BusyPathError reports that an admission predicate denied a lock
// acquisition. It is always returned synchronously; pathlock never
// blocks waiting for a conflicting lock to release.
type BusyPathError struct {
	Path string
}

func (e *BusyPathError) Error() string {
	return fmt.Sprintf("%q is busy", e.Path)
}

// BusyPath constructs a *BusyPathError for path.
func BusyPath(path string) *BusyPathError {
	return &BusyPathError{Path: path}
}
