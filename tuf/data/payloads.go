package data

import "time"

// ExpiresAt and VersionNumber let callers in tuf/signed check expiry and
// rollback protection generically across every payload kind.

// ExpiresAt returns the payload's declared expiry.
func (p *RootPayload) ExpiresAt() time.Time { return p.Expires }

// VersionNumber returns the payload's version.
func (p *RootPayload) VersionNumber() uint64 { return p.Version }

// ExpiresAt returns the payload's declared expiry.
func (p *TargetsPayload) ExpiresAt() time.Time { return p.Expires }

// VersionNumber returns the payload's version.
func (p *TargetsPayload) VersionNumber() uint64 { return p.Version }

// ExpiresAt returns the payload's declared expiry.
func (p *SnapshotPayload) ExpiresAt() time.Time { return p.Expires }

// VersionNumber returns the payload's version.
func (p *SnapshotPayload) VersionNumber() uint64 { return p.Version }

// ExpiresAt returns the payload's declared expiry.
func (p *TimestampPayload) ExpiresAt() time.Time { return p.Expires }

// VersionNumber returns the payload's version.
func (p *TimestampPayload) VersionNumber() uint64 { return p.Version }

// Signature pairs a signing key's ID with its signature over the
// canonical bytes of some Signed's payload.
type Signature struct {
	KeyID     string `json:"keyid"`
	Method    string `json:"method"`
	Signature string `json:"sig"`
}

// Signed is the generic envelope every role file takes on the wire:
// a role-kind-specific payload plus an ordered list of signatures.
// Payload kinds share this wrapper shape but have disjoint schemas,
// hence the generic parameter rather than a shared base struct.
type Signed[T any] struct {
	Signed     T           `json:"signed"`
	Signatures []Signature `json:"signatures"`
}

// Hashes maps a hash algorithm name (e.g. "sha256") to its hex digest.
type Hashes map[string]string

// FileMeta describes a file's integrity metadata: its length and the set
// of hash digests a verifier should recompute and compare.
type FileMeta struct {
	Length int64            `json:"length"`
	Hashes Hashes           `json:"hashes"`
	Custom map[string][]byte `json:"custom,omitempty"`
}

// Delegations is the keys-and-roles section of a targets payload that
// describes the children it delegates to.
type Delegations struct {
	Keys  KeySet      `json:"keys"`
	Roles []*RoleSpec `json:"roles"`
}

// NewDelegations returns an empty Delegations block.
func NewDelegations() *Delegations {
	return &Delegations{Keys: KeySet{}, Roles: []*RoleSpec{}}
}

// RootRole declares one top-level role's authorized keys and threshold,
// as recorded in the root payload.
type RootRole struct {
	KeyIDs    []string `json:"keyids"`
	Threshold int      `json:"threshold"`
}

// RootPayload is the signed content of root.json: the keys and role
// declarations that bootstrap trust in every other top-level role.
type RootPayload struct {
	Type               string               `json:"_type"`
	ConsistentSnapshot bool                 `json:"consistent_snapshot"`
	Version            uint64               `json:"version"`
	Expires            time.Time            `json:"expires"`
	Keys               KeySet               `json:"keys"`
	Roles              map[string]*RootRole `json:"roles"`
}

// TargetsPayload is the signed content of targets.json or any delegated
// role's metadata file.
type TargetsPayload struct {
	Type        string               `json:"_type"`
	Version     uint64               `json:"version"`
	Expires     time.Time            `json:"expires"`
	Targets     map[string]*FileMeta `json:"targets"`
	Delegations *Delegations         `json:"delegations,omitempty"`
}

// NewTargetsPayload returns an empty, unversioned targets payload ready
// for the editor to populate.
func NewTargetsPayload() *TargetsPayload {
	return &TargetsPayload{
		Type:        "targets",
		Targets:     map[string]*FileMeta{},
		Delegations: NewDelegations(),
	}
}

// SnapshotPayload is the signed content of snapshot.json: a version
// pointer for every other metadata file except timestamp.json.
type SnapshotPayload struct {
	Type    string               `json:"_type"`
	Version uint64               `json:"version"`
	Expires time.Time            `json:"expires"`
	Meta    map[string]*MetaFile `json:"meta"`
}

// TimestampPayload is the signed content of timestamp.json: a pointer at
// the current snapshot.
type TimestampPayload struct {
	Type    string               `json:"_type"`
	Version uint64               `json:"version"`
	Expires time.Time            `json:"expires"`
	Meta    map[string]*MetaFile `json:"meta"`
}

// MetaFile records the version and (for snapshot entries) the length and
// hashes of another metadata file.
type MetaFile struct {
	Version uint64  `json:"version"`
	Length  int64   `json:"length,omitempty"`
	Hashes  Hashes  `json:"hashes,omitempty"`
}
