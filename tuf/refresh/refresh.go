// Package refresh recomputes and signs the snapshot and timestamp roles
// after one or more targets-family roles have been edited, the same
// bookkeeping a TufRepo's UpdateSnapshot/SignSnapshot/SignTimestamp
// perform after every AddTargets/UpdateDelegations call.
package refresh

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	cjson "github.com/docker/go/canonical/json"
	"github.com/pkg/errors"

	"github.com/theupdateframework/delegation/tuf/data"
	"github.com/theupdateframework/delegation/tuf/signed"
)

// ErrMissingTopLevelKeys is returned when a refresh is attempted without
// both a snapshot and a timestamp signer available, since this module
// never emits one without the other — a snapshot that updates but whose
// timestamp still points at the old version is a state no client should
// ever observe.
type ErrMissingTopLevelKeys struct {
	Missing []string
}

func (e ErrMissingTopLevelKeys) Error() string {
	return "tuf: refresh requires signing keys for: " + joinRoles(e.Missing)
}

func joinRoles(roles []string) string {
	out := ""
	for i, r := range roles {
		if i > 0 {
			out += ", "
		}
		out += r
	}
	return out
}

// Inputs bundles everything a refresh pass needs: the current snapshot
// (to be updated in place with fresh Meta entries) and the signers and
// key IDs authorized for snapshot and timestamp.
type Inputs struct {
	Snapshot        *data.Signed[*data.SnapshotPayload]
	SnapshotSigner  signed.Signer
	SnapshotKeyIDs  []string
	TimestampSigner signed.Signer
	TimestampKeyIDs []string
	Expires         time.Time
	TimestampExpires time.Time

	// PriorTimestampVersion is the version of the timestamp being
	// superseded, so the fresh one can be strictly greater, rather than
	// always restarting at 1.
	PriorTimestampVersion uint64

	// SnapshotVersion and TimestampVersion let a caller pin an exact
	// published version (the CLI's update verb takes explicit
	// --snapshot-version/--timestamp-version overrides) — zero means
	// "increment from the current/prior version" instead.
	SnapshotVersion  uint64
	TimestampVersion uint64

	// Remove names roles to drop from the snapshot's Meta map before
	// recording Updated — the entries a recursive remove-role orphaned.
	Remove []string
}

// Refresh records name -> updated-role in the snapshot's Meta map for
// every role in updated, bumps and re-signs the snapshot, builds a fresh
// timestamp pointing at the new snapshot, and signs that too. It fails
// fast via ErrMissingTopLevelKeys if either signer cannot produce at
// least one signature, rather than emitting a half-updated pair.
func Refresh(in Inputs, updated map[string]*data.Signed[*data.TargetsPayload]) (*data.Signed[*data.SnapshotPayload], *data.Signed[*data.TimestampPayload], error) {
	if len(in.SnapshotKeyIDs) == 0 || len(in.TimestampKeyIDs) == 0 {
		var missing []string
		if len(in.SnapshotKeyIDs) == 0 {
			missing = append(missing, data.CanonicalSnapshotRole)
		}
		if len(in.TimestampKeyIDs) == 0 {
			missing = append(missing, data.CanonicalTimestampRole)
		}
		return nil, nil, ErrMissingTopLevelKeys{Missing: missing}
	}

	if in.Snapshot.Signed.Meta == nil {
		in.Snapshot.Signed.Meta = make(map[string]*data.MetaFile)
	}
	for _, role := range in.Remove {
		delete(in.Snapshot.Signed.Meta, role)
	}
	for role, t := range updated {
		meta, err := metaFor(t)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "computing snapshot entry for %s", role)
		}
		in.Snapshot.Signed.Meta[role] = meta
	}

	if in.SnapshotVersion > 0 {
		in.Snapshot.Signed.Version = in.SnapshotVersion
	} else {
		in.Snapshot.Signed.Version++
	}
	in.Snapshot.Signed.Expires = in.Expires
	snapshotSigned, err := signed.Marshal(in.Snapshot.Signed, in.SnapshotSigner, in.SnapshotKeyIDs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "signing snapshot")
	}
	if len(snapshotSigned.Signatures) == 0 {
		return nil, nil, ErrMissingTopLevelKeys{Missing: []string{data.CanonicalSnapshotRole}}
	}

	snapshotMeta, err := metaFor(snapshotSigned)
	if err != nil {
		return nil, nil, errors.Wrap(err, "computing timestamp entry for snapshot")
	}

	timestampVersion := in.TimestampVersion
	if timestampVersion == 0 {
		timestampVersion = in.PriorTimestampVersion + 1
	}
	timestampPayload := &data.TimestampPayload{
		Type:    "timestamp",
		Version: timestampVersion,
		Expires: in.TimestampExpires,
		Meta:    map[string]*data.MetaFile{data.CanonicalSnapshotRole: snapshotMeta},
	}
	timestampSigned, err := signed.Marshal(timestampPayload, in.TimestampSigner, in.TimestampKeyIDs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "signing timestamp")
	}
	if len(timestampSigned.Signatures) == 0 {
		return nil, nil, ErrMissingTopLevelKeys{Missing: []string{data.CanonicalTimestampRole}}
	}

	return snapshotSigned, timestampSigned, nil
}

// metaFor computes a MetaFile entry (version, length, sha256) over a
// signed envelope's canonical bytes, the same content a verifier will
// recompute to check the pin.
func metaFor[T interface{ VersionNumber() uint64 }](s *data.Signed[T]) (*data.MetaFile, error) {
	canonical, err := cjson.MarshalCanonical(s)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(canonical)
	return &data.MetaFile{
		Version: s.Signed.VersionNumber(),
		Length:  int64(len(canonical)),
		Hashes:  data.Hashes{"sha256": hex.EncodeToString(digest[:])},
	}, nil
}
