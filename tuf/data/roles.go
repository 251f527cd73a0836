// Package data defines the wire types shared by every TUF role: keys,
// delegation role specs, and the signed payload kinds (root, targets,
// snapshot, timestamp).
package data

import (
	"fmt"
	"path"
	"strings"
)

// Canonical role names. Any other name denotes a delegated role.
const (
	CanonicalRootRole      = "root"
	CanonicalTargetsRole   = "targets"
	CanonicalSnapshotRole  = "snapshot"
	CanonicalTimestampRole = "timestamp"
)

// ValidTopLevelRoles lists the reserved top-level role names.
var ValidTopLevelRoles = map[string]struct{}{
	CanonicalRootRole:      {},
	CanonicalTargetsRole:   {},
	CanonicalSnapshotRole:  {},
	CanonicalTimestampRole: {},
}

// ErrInvalidRole is returned when a role specification fails validation.
type ErrInvalidRole struct {
	Role   string
	Reason string
}

func (e ErrInvalidRole) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("tuf: invalid role %q", e.Role)
	}
	return fmt.Sprintf("tuf: invalid role %q: %s", e.Role, e.Reason)
}

// ErrNoSuchRole is returned when an operation references a role that does
// not exist in the loaded or staged delegation graph.
type ErrNoSuchRole struct {
	Role string
}

func (e ErrNoSuchRole) Error() string {
	return fmt.Sprintf("tuf: no such role: %s", e.Role)
}

// ValidRole reports whether name is a reserved top-level role or a
// well-formed delegated role path rooted at "targets".
func ValidRole(name string) bool {
	if _, ok := ValidTopLevelRoles[name]; ok {
		return true
	}
	return IsDelegation(name)
}

// IsDelegation reports whether name is a syntactically valid delegated
// role path: it must live strictly below "targets/", contain no empty,
// whitespace-padded, or traversal path segments, and stay under 255 bytes.
func IsDelegation(name string) bool {
	if !strings.HasPrefix(name, CanonicalTargetsRole+"/") {
		return false
	}
	if len(name) >= 255 {
		return false
	}
	if strings.TrimSpace(name) != name {
		return false
	}
	if path.Clean(name) != name {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || strings.TrimSpace(seg) != seg {
			return false
		}
	}
	return true
}

// RoleSpec is a parent's declaration of a child role's authorized keys,
// threshold, path scope, and terminating flag. It appears inside a parent
// payload's Delegations.Roles list, where list order defines preauthority.
type RoleSpec struct {
	Name             string   `json:"name"`
	KeyIDs           []string `json:"keyids"`
	Threshold        int      `json:"threshold"`
	Terminating      bool     `json:"terminating"`
	Paths            []string `json:"paths,omitempty"`
	PathHashPrefixes []string `json:"path_hash_prefixes,omitempty"`
}

// NewRole constructs a RoleSpec, validating that the threshold is at least
// 1 and that paths and path-hash-prefixes are not both supplied (TUF forbids
// mixing the two path-matching schemes on a single role). It does not
// compare the threshold with the number of key IDs; IsValid does that.
func NewRole(name string, threshold int, keyIDs, paths, pathHashPrefixes []string) (*RoleSpec, error) {
	if threshold < 1 {
		return nil, ErrInvalidRole{Role: name, Reason: "threshold must be >= 1"}
	}
	if len(paths) > 0 && len(pathHashPrefixes) > 0 {
		return nil, ErrInvalidRole{Role: name, Reason: "cannot specify both paths and path_hash_prefixes"}
	}
	return &RoleSpec{
		Name:             name,
		KeyIDs:           append([]string{}, keyIDs...),
		Threshold:        threshold,
		Paths:            append([]string{}, paths...),
		PathHashPrefixes: append([]string{}, pathHashPrefixes...),
	}, nil
}

// IsValid reports whether the role's threshold can be satisfied by its
// declared key set.
func (r *RoleSpec) IsValid() bool {
	return r.Threshold >= 1 && r.Threshold <= len(r.KeyIDs)
}

// IsDelegation reports whether this role specification names a delegated
// (non-top-level) role.
func (r *RoleSpec) IsDelegation() bool {
	return IsDelegation(r.Name)
}

// AddKeys appends any key IDs not already present, preserving order.
func (r *RoleSpec) AddKeys(keyIDs []string) {
	r.KeyIDs = mergeStrSlices(r.KeyIDs, keyIDs)
}

// RemoveKeys drops the given key IDs from the role's authorized set.
func (r *RoleSpec) RemoveKeys(keyIDs []string) {
	r.KeyIDs = subtractStrSlices(r.KeyIDs, keyIDs)
}

// AddPaths appends path globs, failing if the role already uses
// path-hash-prefix matching.
func (r *RoleSpec) AddPaths(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if len(r.PathHashPrefixes) > 0 {
		return ErrInvalidRole{Role: r.Name, Reason: "role already uses path_hash_prefixes"}
	}
	r.Paths = mergeStrSlices(r.Paths, paths)
	return nil
}

// RemovePaths drops path globs from the role's scope.
func (r *RoleSpec) RemovePaths(paths []string) {
	r.Paths = subtractStrSlices(r.Paths, paths)
}

// AddPathHashPrefixes appends path-hash prefixes, failing if the role
// already uses path globs.
func (r *RoleSpec) AddPathHashPrefixes(prefixes []string) error {
	if len(prefixes) == 0 {
		return nil
	}
	if len(r.Paths) > 0 {
		return ErrInvalidRole{Role: r.Name, Reason: "role already uses paths"}
	}
	r.PathHashPrefixes = mergeStrSlices(r.PathHashPrefixes, prefixes)
	return nil
}

// RemovePathHashPrefixes drops path-hash prefixes from the role's scope.
func (r *RoleSpec) RemovePathHashPrefixes(prefixes []string) {
	r.PathHashPrefixes = subtractStrSlices(r.PathHashPrefixes, prefixes)
}

// CheckPaths reports whether path matches one of the role's path globs.
func (r *RoleSpec) CheckPaths(p string) bool {
	for _, pattern := range r.Paths {
		if ok, err := path.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}

// CheckPrefixes reports whether pathHex (the hex-encoded sha256 digest of
// a target path) matches one of the role's path-hash prefixes.
func (r *RoleSpec) CheckPrefixes(pathHex string) bool {
	for _, prefix := range r.PathHashPrefixes {
		if strings.HasPrefix(pathHex, prefix) {
			return true
		}
	}
	return false
}

func mergeStrSlices(orig, add []string) []string {
	out := append([]string{}, orig...)
	have := make(map[string]struct{}, len(orig))
	for _, s := range orig {
		have[s] = struct{}{}
	}
	for _, s := range add {
		if _, ok := have[s]; !ok {
			out = append(out, s)
			have[s] = struct{}{}
		}
	}
	return out
}

func subtractStrSlices(orig, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, s := range remove {
		drop[s] = struct{}{}
	}
	out := make([]string, 0, len(orig))
	for _, s := range orig {
		if _, ok := drop[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
