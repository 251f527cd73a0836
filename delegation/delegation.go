// Package delegation composes the loader, editor, signer, refresh, and
// store components into the operations a caller (the cmd/delegation CLI
// or a program embedding this module) actually wants: creating a
// delegated role, adding or removing its keys, removing it, and updating
// its target file list, each ending in a freshly signed, persisted set of
// metadata files. This mirrors how client.go's Publish composes
// bootstrapClient, applyChangelist, SignTargets/SignSnapshot, and
// remote.SetMultiMeta into one call.
package delegation

import (
	"strconv"
	"time"

	cjson "github.com/docker/go/canonical/json"
	"github.com/pkg/errors"

	"github.com/theupdateframework/delegation/config"
	"github.com/theupdateframework/delegation/tuf/data"
	"github.com/theupdateframework/delegation/tuf/loader"
	"github.com/theupdateframework/delegation/tuf/refresh"
	"github.com/theupdateframework/delegation/tuf/signed"
	"github.com/theupdateframework/delegation/tuf/store"
)

// consistentName returns the name a role's file is written/addressed
// under, honoring the loaded root's consistent_snapshot declaration:
// version-prefixed (e.g. "5.targets") when enabled, bare otherwise.
// Timestamp is never version-prefixed regardless of this setting, since
// it is the fixed entry point every client polls.
func consistentName(repo *loader.Repository, role string, version uint64) string {
	if role == data.CanonicalTimestampRole || !repo.Root.Signed.ConsistentSnapshot {
		return role
	}
	return strconv.FormatUint(version, 10) + "." + role
}

// marshalForWrite canonicalizes a signed envelope the same way every
// other component in this module computes digests over one, so the bytes
// written to disk are exactly the bytes a later pinned-hash check will
// recompute against.
func marshalForWrite[T any](s *data.Signed[T]) ([]byte, error) {
	raw, err := cjson.MarshalCanonical(s)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalizing signed envelope for write")
	}
	return raw, nil
}

// Context bundles everything every operation in this package needs: where
// to read the current repository state from, where to write staged
// output, the signer to use, and whether a snapshot/timestamp refresh
// should run as part of the same call.
type Context struct {
	Cfg *config.Configuration

	// Source is where the current repository's metadata is read from —
	// typically a store.FilesystemStore rooted at Cfg.TrustDir, or an
	// HTTPStore against Cfg.MetadataBaseURL for a first pull.
	Source store.Fetcher

	// Output is where freshly signed metadata is written. It is also
	// consulted as a Fetcher by callers that want to re-load what was
	// just staged without a round trip through Source.
	Output interface {
		store.Fetcher
		store.Writer
	}

	Signer signed.Signer

	// SignAll mirrors the CLI's --sign-all flag: when true, every
	// operation also runs a snapshot/timestamp refresh
	// so the repository stays immediately verifiable; when false, only
	// the edited role's file is written and the caller is responsible
	// for a separate refresh before publishing.
	SignAll bool

	// TrustedRoot is the last root this caller already trusts, passed
	// straight through to loader.New.
	TrustedRoot *data.Signed[*data.RootPayload]

	// Version pins the edited role's exact published version (the CLI's
	// -v flag); zero means "current version + 1".
	Version uint64

	// SnapshotExpires and TimestampExpires set the refreshed snapshot's
	// and timestamp's expiry explicitly (the CLI's --snapshot-expires/
	// --timestamp-expires flags); zero means Cfg.DefaultExpiry from now.
	SnapshotExpires  time.Time
	TimestampExpires time.Time

	// SnapshotVersion and TimestampVersion pin the refreshed snapshot's
	// and timestamp's exact published version (the CLI's update verb
	// takes explicit overrides); zero means "increment from the prior
	// published version".
	SnapshotVersion  uint64
	TimestampVersion uint64
}

// Result is what every operation in this package returns: the freshly
// signed role file plus, when SignAll was set, the refreshed snapshot and
// timestamp.
type Result struct {
	Role      string
	Targets   *data.Signed[*data.TargetsPayload]
	Snapshot  *data.Signed[*data.SnapshotPayload]
	Timestamp *data.Signed[*data.TimestampPayload]
}

// StandaloneRole is what CreateRole emits: a signed envelope for a
// brand-new role that has never touched the main repository, bundled
// with the public keys it was signed with. A signed envelope alone only
// carries key IDs in its signature list, not the public key material a
// parent's delegation needs to verify against — so AddRole takes the
// bundle, not the bare envelope, the same way a child's key set has to
// travel alongside its metadata in UpdateDelegations.
type StandaloneRole struct {
	Role *data.Signed[*data.TargetsPayload]
	Keys []*data.Key
}

func (c *Context) load() (*loader.Repository, error) {
	return loader.New(c.Source, c.Cfg, c.TrustedRoot).Load()
}

// expiryFor returns expires if the caller supplied one, else the
// configured default pushed out from now.
func (c *Context) expiryFor(expires time.Time) time.Time {
	if !expires.IsZero() {
		return expires
	}
	return time.Now().Add(c.Cfg.DefaultExpiry)
}

// signingKeyIDs resolves the key IDs authorized to sign role, consulting
// the loaded repository's key/role registry.
func signingKeyIDs(repo *loader.Repository, role string) ([]string, error) {
	spec, err := repo.DB.GetRole(role)
	if err != nil {
		return nil, err
	}
	return spec.KeyIDs, nil
}

// finish writes the edited role file, writes any roles named in extra
// (e.g. a brand-new child role add-role is wiring in for the first time,
// which never had a prior on-disk file of its own), removes any role
// named in prune (the orphans a recursive remove-role leaves behind),
// optionally runs a refresh, and assembles the Result — the tail shared
// by every operation below. extra's entries are folded into the refresh's
// updated set the same as role itself, so a newly added child is pinned
// in the refreshed snapshot and not just present on disk.
func (c *Context) finish(repo *loader.Repository, role string, signedRole *data.Signed[*data.TargetsPayload], prune []string, extra map[string]*data.Signed[*data.TargetsPayload]) (*Result, error) {
	raw, err := marshalForWrite(signedRole)
	if err != nil {
		return nil, err
	}
	if err := c.Output.SetMeta(consistentName(repo, role, signedRole.Signed.Version), raw); err != nil {
		return nil, errors.Wrapf(err, "writing %s", role)
	}
	for name, s := range extra {
		extraRaw, err := marshalForWrite(s)
		if err != nil {
			return nil, err
		}
		if err := c.Output.SetMeta(consistentName(repo, name, s.Signed.Version), extraRaw); err != nil {
			return nil, errors.Wrapf(err, "writing %s", name)
		}
	}
	// Under consistent_snapshot, a recursively removed subtree's prior
	// versioned files stay on disk for clients mid-download; only its
	// snapshot.Meta entry (dropped via refresh.Inputs.Remove below) stops
	// advertising them. Without consistent_snapshot there is only ever one
	// file per role, so the orphan is deleted outright.
	if !repo.Root.Signed.ConsistentSnapshot {
		for _, orphan := range prune {
			if err := c.Output.RemoveMeta(orphan); err != nil {
				return nil, errors.Wrapf(err, "removing orphaned role %s", orphan)
			}
		}
	}

	result := &Result{Role: role, Targets: signedRole}
	if !c.SignAll {
		return result, nil
	}

	snapshotKeyIDs, err := signingKeyIDs(repo, data.CanonicalSnapshotRole)
	if err != nil {
		return nil, err
	}
	timestampKeyIDs, err := signingKeyIDs(repo, data.CanonicalTimestampRole)
	if err != nil {
		return nil, err
	}

	updated := map[string]*data.Signed[*data.TargetsPayload]{role: signedRole}
	for name, s := range extra {
		updated[name] = s
	}
	snapshot, timestamp, err := refresh.Refresh(refresh.Inputs{
		Snapshot:              repo.Snapshot,
		SnapshotSigner:        c.Signer,
		SnapshotKeyIDs:        snapshotKeyIDs,
		TimestampSigner:       c.Signer,
		TimestampKeyIDs:       timestampKeyIDs,
		Expires:               c.expiryFor(c.SnapshotExpires),
		TimestampExpires:      c.expiryFor(c.TimestampExpires),
		PriorTimestampVersion: repo.Timestamp.Signed.Version,
		SnapshotVersion:       c.SnapshotVersion,
		TimestampVersion:      c.TimestampVersion,
		Remove:                prune,
	}, updated)
	if err != nil {
		return nil, errors.Wrap(err, "refreshing snapshot/timestamp")
	}

	snapRaw, err := marshalForWrite(snapshot)
	if err != nil {
		return nil, err
	}
	if err := c.Output.SetMeta(consistentName(repo, data.CanonicalSnapshotRole, snapshot.Signed.Version), snapRaw); err != nil {
		return nil, errors.Wrap(err, "writing snapshot")
	}
	tsRaw, err := marshalForWrite(timestamp)
	if err != nil {
		return nil, err
	}
	if err := c.Output.SetMeta(data.CanonicalTimestampRole, tsRaw); err != nil {
		return nil, errors.Wrap(err, "writing timestamp")
	}

	result.Snapshot = snapshot
	result.Timestamp = timestamp
	return result, nil
}
