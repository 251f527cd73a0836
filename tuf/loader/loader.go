// Package loader builds a verified, in-memory view of a TUF repository:
// it walks the chain of root metadata from whatever version is locally
// trusted up to the latest the remote publishes, descends
// timestamp -> snapshot -> targets by pinned hash, and then performs a
// preorder walk of the delegation graph rooted at targets, verifying
// every file's signatures and expiry along the way.
package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/theupdateframework/delegation/config"
	"github.com/theupdateframework/delegation/tuf/data"
	"github.com/theupdateframework/delegation/tuf/keys"
	"github.com/theupdateframework/delegation/tuf/signed"
	"github.com/theupdateframework/delegation/tuf/store"
)

// payload is the constraint every role payload pointer type satisfies,
// matching signed.Verify's requirements.
type payload interface {
	ExpiresAt() time.Time
	VersionNumber() uint64
}

// Repository is the verified view the loader hands to the editor and
// refresh components: the current root, snapshot, and timestamp, plus
// every targets-family role reached during the delegation walk, and the
// key/role registry accumulated while verifying them.
type Repository struct {
	Root      *data.Signed[*data.RootPayload]
	Snapshot  *data.Signed[*data.SnapshotPayload]
	Timestamp *data.Signed[*data.TimestampPayload]
	Targets   map[string]*data.Signed[*data.TargetsPayload]
	DB        *keys.DB
}

// Loader walks a repository's metadata from a Fetcher, enforcing the
// verification order above.
type Loader struct {
	fetcher     store.Fetcher
	cfg         *config.Configuration
	trustedRoot *data.Signed[*data.RootPayload] // last locally trusted root, nil on first bootstrap

	// consistentSnapshot is set from the verified root's own declaration
	// once loadRootChain returns, and controls whether snapshot and every
	// targets-family role are fetched by their pinned version-prefixed
	// name or by their bare role name. Root itself is always fetched by
	// explicit version during the chain walk, and timestamp is always
	// fetched unversioned, regardless of this flag.
	consistentSnapshot bool
}

// New constructs a Loader against fetcher, using cfg's per-role byte
// limits and expiration policy. trustedRoot is the last root this caller
// already trusts, or nil to bootstrap trust from whatever root version 1
// the fetcher serves (only safe when that root arrived over a side
// channel the caller already trusts, e.g. pinned at install time).
func New(fetcher store.Fetcher, cfg *config.Configuration, trustedRoot *data.Signed[*data.RootPayload]) *Loader {
	return &Loader{fetcher: fetcher, cfg: cfg, trustedRoot: trustedRoot}
}

// Load performs the full verification walk and returns the resulting
// Repository, or the first typed error encountered.
func (l *Loader) Load() (*Repository, error) {
	db := keys.NewDB()

	root, err := l.loadRootChain(db)
	if err != nil {
		return nil, err
	}
	l.consistentSnapshot = root.Signed.ConsistentSnapshot

	timestamp, err := fetchAndVerifyTop[*data.TimestampPayload](l, data.CanonicalTimestampRole, db, 0)
	if err != nil {
		return nil, errors.Wrap(err, "loading timestamp")
	}

	snapMeta, ok := timestamp.Signed.Meta[data.CanonicalSnapshotRole]
	if !ok {
		return nil, errors.New("tuf: timestamp does not pin a snapshot version")
	}
	snapshot, err := fetchAndVerifyPinned[*data.SnapshotPayload](l, data.CanonicalSnapshotRole, db, snapMeta)
	if err != nil {
		return nil, errors.Wrap(err, "loading snapshot")
	}

	targetsMeta, ok := snapshot.Signed.Meta[data.CanonicalTargetsRole]
	if !ok {
		return nil, errors.New("tuf: snapshot does not pin a targets version")
	}
	topTargets, err := fetchAndVerifyPinned[*data.TargetsPayload](l, data.CanonicalTargetsRole, db, targetsMeta)
	if err != nil {
		return nil, errors.Wrap(err, "loading targets")
	}
	if err := seedDelegationRoles(db, topTargets.Signed); err != nil {
		return nil, err
	}

	all := map[string]*data.Signed[*data.TargetsPayload]{data.CanonicalTargetsRole: topTargets}
	visited := map[string]bool{data.CanonicalTargetsRole: true}
	for _, d := range topTargets.Signed.Delegations.Roles {
		if err := l.walkDelegation(db, snapshot, d.Name, visited, all); err != nil {
			return nil, err
		}
	}

	return &Repository{Root: root, Snapshot: snapshot, Timestamp: timestamp, Targets: all, DB: db}, nil
}

// loadRootChain verifies l.trustedRoot (or bootstraps from version 1) and
// walks forward one version at a time, requiring each root.N+1.json to be
// signed by a threshold of version N's root keys, until the fetcher has no
// further version to offer.
func (l *Loader) loadRootChain(db *keys.DB) (*data.Signed[*data.RootPayload], error) {
	current := l.trustedRoot
	var currentVersion uint64
	if current != nil {
		currentVersion = current.Signed.Version
		if err := seedRootRoles(db, current.Signed); err != nil {
			return nil, err
		}
		if err := verifyWithPolicy(l, data.CanonicalRootRole, current, 0, db); err != nil {
			return nil, errors.Wrap(err, "verifying trusted root against its own keys")
		}
	}

	for {
		nextVersion := currentVersion + 1
		next, err := l.fetchRootVersion(nextVersion)
		if err != nil {
			if _, ok := err.(roleNotFound); ok {
				break
			}
			return nil, err
		}

		if current != nil {
			// next must already be signed by a threshold of the
			// CURRENT trusted key set before we let it replace that
			// set — otherwise an attacker holding only the new root's
			// keys could forge an arbitrary successor.
			if err := signed.Verify(next, data.CanonicalRootRole, 0, db); err != nil {
				return nil, ErrRootChainBroken{FromVersion: currentVersion, ToVersion: nextVersion, Reason: err.Error()}
			}
		}

		if err := seedRootRoles(db, next.Signed); err != nil {
			return nil, err
		}
		if err := signed.Verify(next, data.CanonicalRootRole, nextVersion, db); err != nil {
			return nil, errors.Wrapf(err, "verifying root version %d against its own keys", nextVersion)
		}

		current = next
		currentVersion = nextVersion
		logrus.Debugf("advanced trusted root to version %d", currentVersion)
	}

	if current == nil {
		return nil, errors.New("tuf: no root metadata available to bootstrap trust from")
	}
	return current, nil
}

type roleNotFound struct{ role string }

func (e roleNotFound) Error() string { return "role not found: " + e.role }

func (l *Loader) fetchRootVersion(version uint64) (*data.Signed[*data.RootPayload], error) {
	name := data.CanonicalRootRole
	if version > 0 {
		name = strconv.FormatUint(version, 10) + "." + data.CanonicalRootRole
	}
	raw, err := l.fetcher.Fetch(name, l.cfg.LimitFor(data.CanonicalRootRole))
	if err != nil {
		if _, ok := errors.Cause(err).(store.ErrMetaNotFound); ok {
			return nil, roleNotFound{role: name}
		}
		return nil, err
	}
	var s data.Signed[*data.RootPayload]
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", name)
	}
	return &s, nil
}

// seedRootRoles registers every key and every top-level role declared in a
// root payload into db, so subsequent Verify calls for any top-level role
// (including a later root version) can resolve them.
func seedRootRoles(db *keys.DB, root *data.RootPayload) error {
	for _, k := range root.Keys {
		db.AddKey(k)
	}
	for name, rr := range root.Roles {
		spec, err := data.NewRole(name, rr.Threshold, rr.KeyIDs, nil, nil)
		if err != nil {
			return err
		}
		if err := db.AddRole(spec); err != nil {
			return err
		}
	}
	return nil
}

// seedDelegationRoles registers a targets payload's delegated key set and
// role specs, used both for the top-level targets role and for every
// delegation encountered during the walk.
func seedDelegationRoles(db *keys.DB, t *data.TargetsPayload) error {
	if t.Delegations == nil {
		return nil
	}
	for _, k := range t.Delegations.Keys {
		db.AddKey(k)
	}
	for _, r := range t.Delegations.Roles {
		if err := db.AddRole(r); err != nil {
			return err
		}
	}
	return nil
}

// fetchAndVerifyTop fetches a role with no parent-pinned hash expectation
// (timestamp, the pin source for everything beneath it; root versions are
// fetched separately by fetchRootVersion).
func fetchAndVerifyTop[T payload](l *Loader, role string, db *keys.DB, minVersion uint64) (*data.Signed[T], error) {
	limit := l.cfg.LimitFor(role)
	raw, err := l.fetcher.Fetch(role, limit)
	if err != nil {
		return nil, translateOversized(role, limit, err)
	}
	var s data.Signed[T]
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", role)
	}
	if err := verifyWithPolicy(l, role, &s, minVersion, db); err != nil {
		return nil, err
	}
	return &s, nil
}

// fetchAndVerifyPinned fetches a role whose size and content hash are
// pinned by its parent's MetaFile entry (snapshot pins targets-family
// roles, timestamp pins snapshot). When the verified root declares
// consistent_snapshot, the file is addressed by its pinned version
// (e.g. "5.targets") rather than by bare role name, matching the layout
// the Outbound Writer produces for the same root.
func fetchAndVerifyPinned[T payload](l *Loader, role string, db *keys.DB, pin *data.MetaFile) (*data.Signed[T], error) {
	limit := l.cfg.LimitFor(role)
	if pin.Length > 0 && pin.Length < limit {
		limit = pin.Length
	}
	raw, err := l.fetcher.Fetch(l.fetchName(role, pin.Version), limit)
	if err != nil {
		return nil, translateOversized(role, limit, err)
	}
	if err := checkPinnedHash(role, raw, pin.Hashes); err != nil {
		return nil, err
	}
	var s data.Signed[T]
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", role)
	}
	if err := verifyWithPolicy(l, role, &s, pin.Version, db); err != nil {
		return nil, err
	}
	return &s, nil
}

// verifyWithPolicy runs signed.Verify, downgrading a pure expiry failure
// to a logged warning when the loader's expiration policy is lenient.
func verifyWithPolicy[T payload](l *Loader, role string, s *data.Signed[T], minVersion uint64, db *keys.DB) error {
	err := signed.Verify(s, role, minVersion, db)
	if err == nil {
		return nil
	}
	if _, ok := err.(signed.ErrExpired); ok && l.cfg.Expiration == config.ExpirationLenient {
		logrus.Warnf("accepting expired %s under lenient expiration policy", role)
		return nil
	}
	return err
}

// fetchName returns the name a pinned role's file is addressed by,
// honoring consistentSnapshot.
func (l *Loader) fetchName(role string, version uint64) string {
	if !l.consistentSnapshot {
		return role
	}
	return strconv.FormatUint(version, 10) + "." + role
}

// translateOversized restates a Fetcher's transport-level size violation as
// the loader's own ErrMetaTooLarge, so callers working against this
// package's error types don't need to reach into tuf/store's to recognize
// an oversized-metadata rejection regardless of which Fetcher served it.
func translateOversized(role string, limit int64, err error) error {
	if _, ok := errors.Cause(err).(store.ErrMaliciousServer); ok {
		return errors.WithStack(ErrMetaTooLarge{Role: role, Limit: limit})
	}
	return err
}

func checkPinnedHash(role string, raw []byte, hashes data.Hashes) error {
	want, ok := hashes["sha256"]
	if !ok {
		return nil
	}
	got := sha256.Sum256(raw)
	if hex.EncodeToString(got[:]) != want {
		return errors.WithStack(ErrPinnedHashMismatch{Role: role})
	}
	return nil
}

// walkDelegation performs one preorder step: fetch roleName (whose
// targets-family metadata is pinned in snapshot, exactly like the
// top-level targets role), verify it, record it, then recurse into its
// own delegations, rejecting a second visit to any role name.
func (l *Loader) walkDelegation(db *keys.DB, snapshot *data.Signed[*data.SnapshotPayload], roleName string, visited map[string]bool, all map[string]*data.Signed[*data.TargetsPayload]) error {
	if visited[roleName] {
		return errors.WithStack(ErrCyclicDelegation{Role: roleName})
	}
	visited[roleName] = true

	pin, ok := snapshot.Signed.Meta[roleName]
	if !ok {
		return errors.Errorf("tuf: snapshot does not pin delegated role %s", roleName)
	}
	targets, err := fetchAndVerifyPinned[*data.TargetsPayload](l, roleName, db, pin)
	if err != nil {
		return errors.Wrapf(err, "loading delegated role %s", roleName)
	}
	if err := seedDelegationRoles(db, targets.Signed); err != nil {
		return err
	}
	all[roleName] = targets

	for _, d := range targets.Signed.Delegations.Roles {
		if err := l.walkDelegation(db, snapshot, d.Name, visited, all); err != nil {
			return err
		}
	}
	return nil
}
