// Package pathresolver joins client-supplied paths onto a server-owned
// data root, rejecting anything that would escape it, and locates the
// nearest existing ancestor of a path that may not exist yet.
//
// Every client path must be run through Resolve before any other
// component touches it; it is the sole point where path confinement is
// enforced.
package pathresolver

import (
	"path/filepath"
	"strings"

	"github.com/nodermann/offlinecloud/apierr"
)

// Resolver resolves client-visible paths against a fixed data root.
type Resolver struct {
	root string
}

// New returns a Resolver rooted at root. root must already be an
// absolute, cleaned path.
func New(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

// Root returns the absolute data root this resolver is confined to.
func (r *Resolver) Root() string {
	return r.root
}

// commonPrefix returns the longest common path-segment prefix of a and
// b, the same notion of ancestor the pathlock package uses.
func commonPrefix(a, b string) string {
	as := strings.Split(strings.Trim(filepath.ToSlash(a), "/"), "/")
	bs := strings.Split(strings.Trim(filepath.ToSlash(b), "/"), "/")
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

// Resolve strips leading and trailing separators from clientPath, joins
// it onto the data root and normalizes the result. It fails with
// apierr.DangerousPath if the normalized path is not the root itself and
// does not have the root as its longest-common-prefix with itself.
func (r *Resolver) Resolve(clientPath string) (string, error) {
	trimmed := strings.Trim(clientPath, "/")
	real := filepath.Clean(filepath.Join(r.root, trimmed))
	if real != r.root && commonPrefix(r.root, real) != r.root {
		return "", apierr.DangerousPath(clientPath)
	}
	return real, nil
}

// ResolveNonexistentRoot returns the nearest existing ancestor of path by
// walking up the parent chain while each candidate does not exist on
// disk. path must already be a canonical (resolved) path under the data
// root. If the walk would move strictly above the data root, it fails
// with apierr.DangerousPath.
//
// This is the hook that lets an operation creating a leaf inside a chain
// of missing ancestors lock the one existing ancestor, rather than a
// path that doesn't exist yet.
func (r *Resolver) ResolveNonexistentRoot(path string, exists func(string) bool) (string, error) {
	candidate := path
	for !exists(candidate) {
		parent := filepath.Dir(candidate)
		if len(parent) < len(r.root) {
			return "", apierr.DangerousPath(path)
		}
		candidate = parent
	}
	return candidate, nil
}

// TrimRoot removes the root prefix from a real path, producing the
// client-visible form used in responses. The result always begins with
// "/".
func (r *Resolver) TrimRoot(path string) string {
	trimmed := strings.TrimPrefix(path, r.root)
	trimmed = filepath.ToSlash(trimmed)
	if trimmed == "" {
		return "/"
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return trimmed
}
