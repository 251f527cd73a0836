package loader

import "fmt"

// ErrRootChainBroken is returned when the prior-root chain walk cannot
// validate version n+1 against the keys trusted by version n.
type ErrRootChainBroken struct {
	FromVersion, ToVersion uint64
	Reason                 string
}

func (e ErrRootChainBroken) Error() string {
	return fmt.Sprintf("tuf: root chain broken between version %d and %d: %s", e.FromVersion, e.ToVersion, e.Reason)
}

// ErrCyclicDelegation is returned when the preorder delegation walk would
// visit the same role a second time.
type ErrCyclicDelegation struct {
	Role string
}

func (e ErrCyclicDelegation) Error() string {
	return fmt.Sprintf("tuf: cyclic delegation detected at role %s", e.Role)
}

// ErrPinnedHashMismatch is returned when a fetched file's digest does not
// match the hash pinned for it by its parent (snapshot pinning targets,
// timestamp pinning snapshot).
type ErrPinnedHashMismatch struct {
	Role string
}

func (e ErrPinnedHashMismatch) Error() string {
	return fmt.Sprintf("tuf: %s does not match the hash pinned by its parent", e.Role)
}

// ErrMetaTooLarge is returned when a fetched file exceeds the configured
// byte limit for its role, checked before the bytes are ever parsed.
type ErrMetaTooLarge struct {
	Role  string
	Limit int64
}

func (e ErrMetaTooLarge) Error() string {
	return fmt.Sprintf("tuf: %s exceeds configured size limit of %d bytes", e.Role, e.Limit)
}
