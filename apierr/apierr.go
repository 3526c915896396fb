// Package apierr defines the closed error taxonomy that Storage and the
// HTTP transport communicate through. Every error that can cross the
// Storage boundary is a *Error with one of the Kind constants below; the
// HTTP layer's single error-handling middleware is the only place that
// turns a Kind into a status code and a response body.
package apierr

import "fmt"

// Kind names one class of failure in the taxonomy. It never changes
// meaning across releases; add new kinds, don't repurpose old ones.
type Kind string

const (
	KindDangerousPath         Kind = "DangerousPath"
	KindBusyPath              Kind = "BusyPath"
	KindNotFound              Kind = "NotFound"
	KindAlreadyExists         Kind = "AlreadyExists"
	KindNotAFile              Kind = "NotAFile"
	KindNotADir               Kind = "NotADir"
	KindSameSrcDest           Kind = "SameSrcDest"
	KindMissingQueryParameter Kind = "MissingQueryParameter"
	KindInvalidQueryParameter Kind = "InvalidQueryParameter"
	KindMissingJSONKey        Kind = "MissingJsonKey"
	KindInvalidJSONKey        Kind = "InvalidJsonKey"
	KindMissingMultipart      Kind = "MissingMultipart"
	KindInvalidMultipart      Kind = "InvalidMultipart"
	KindInternal              Kind = "Internal"
)

// Error is the single error type Storage and the HTTP layer exchange.
type Error struct {
	Kind Kind
	// Path and Dest carry the offending path(s), when the kind is
	// path-related. Name carries a query/JSON/multipart key name for the
	// input-shape kinds.
	Path string
	Dest string
	Name string
	// Err is the underlying cause, set only for KindInternal.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindDangerousPath:
		return fmt.Sprintf("%q is a dangerous path", e.Path)
	case KindBusyPath:
		return fmt.Sprintf("%q is busy", e.Path)
	case KindNotFound:
		return fmt.Sprintf("%q not found", e.Path)
	case KindAlreadyExists:
		return fmt.Sprintf("%q already exists", e.Path)
	case KindNotAFile:
		return fmt.Sprintf("%q is not a file", e.Path)
	case KindNotADir:
		return fmt.Sprintf("%q is not a dir", e.Path)
	case KindSameSrcDest:
		return fmt.Sprintf("%q and %q are the same", e.Path, e.Dest)
	case KindMissingQueryParameter:
		return fmt.Sprintf("missing query parameter %q", e.Name)
	case KindInvalidQueryParameter:
		return fmt.Sprintf("invalid query parameter %q", e.Name)
	case KindMissingJSONKey:
		return fmt.Sprintf("missing json key %q", e.Name)
	case KindInvalidJSONKey:
		return fmt.Sprintf("invalid json key %q", e.Name)
	case KindMissingMultipart:
		return fmt.Sprintf("missing multipart value %q", e.Name)
	case KindInvalidMultipart:
		return fmt.Sprintf("invalid multipart value %q", e.Name)
	case KindInternal:
		if e.Err != nil {
			return fmt.Sprintf("internal error: %s: %s", kindName(e.Err), e.Err.Error())
		}
		return "internal error"
	default:
		return string(e.Kind)
	}
}

// Unwrap exposes the underlying cause for errors.Is/errors.As, when set.
func (e *Error) Unwrap() error { return e.Err }

func kindName(err error) string {
	return fmt.Sprintf("%T", err)
}

func DangerousPath(path string) *Error { return &Error{Kind: KindDangerousPath, Path: path} }
func BusyPath(path string) *Error      { return &Error{Kind: KindBusyPath, Path: path} }
func NotFound(path string) *Error      { return &Error{Kind: KindNotFound, Path: path} }
func AlreadyExists(path string) *Error { return &Error{Kind: KindAlreadyExists, Path: path} }
func NotAFile(path string) *Error      { return &Error{Kind: KindNotAFile, Path: path} }
func NotADir(path string) *Error       { return &Error{Kind: KindNotADir, Path: path} }

func SameSrcDest(src, dest string) *Error {
	return &Error{Kind: KindSameSrcDest, Path: src, Dest: dest}
}

func MissingQueryParameter(name string) *Error {
	return &Error{Kind: KindMissingQueryParameter, Name: name}
}

func InvalidQueryParameter(name string) *Error {
	return &Error{Kind: KindInvalidQueryParameter, Name: name}
}

func MissingJSONKey(name string) *Error { return &Error{Kind: KindMissingJSONKey, Name: name} }
func InvalidJSONKey(name string) *Error { return &Error{Kind: KindInvalidJSONKey, Name: name} }

func MissingMultipart(name string) *Error {
	return &Error{Kind: KindMissingMultipart, Name: name}
}

func InvalidMultipart(name string) *Error {
	return &Error{Kind: KindInvalidMultipart, Name: name}
}

// Internal wraps an unexpected error from a lower layer. err should
// already have been annotated with github.com/pkg/errors.Wrap by the
// caller if extra context is useful.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Err: err}
}
