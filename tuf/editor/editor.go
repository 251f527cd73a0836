// Package editor implements the Targets Editor: a type scoped to exactly
// one role's payload that stages AddRole/RemoveRole/AddKey/RemoveKey/
// UpdateTargets mutations and produces a freshly signed, version-bumped
// file, mirroring how a single TufRepo method mutated one role's Signed
// data in place before re-signing it.
package editor

import (
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/theupdateframework/delegation/tuf/data"
	"github.com/theupdateframework/delegation/tuf/signed"
)

// Editor owns exactly one delegated (or top-level targets) role's payload
// for the duration of one operation. Every mutating method here changes
// only that payload; a caller composing several edits calls them in
// sequence and then Sign once at the end.
type Editor struct {
	Role    string
	payload *data.TargetsPayload
	dirty   bool
}

// FromRepo scopes an Editor to role's existing payload as loaded from a
// Repository, so that mutations build on the currently published content.
func FromRepo(role string, existing *data.Signed[*data.TargetsPayload]) *Editor {
	return &Editor{Role: role, payload: clonePayload(existing.Signed)}
}

// Create scopes a brand new Editor to role, with an empty targets map and
// no delegations, for a role that does not yet exist in the repository.
func Create(role string) *Editor {
	return &Editor{Role: role, payload: data.NewTargetsPayload()}
}

func clonePayload(p *data.TargetsPayload) *data.TargetsPayload {
	clone := &data.TargetsPayload{
		Type:    p.Type,
		Version: p.Version,
		Expires: p.Expires,
		Targets: make(map[string]*data.FileMeta, len(p.Targets)),
	}
	for k, v := range p.Targets {
		clone.Targets[k] = v
	}
	if p.Delegations == nil {
		clone.Delegations = data.NewDelegations()
		return clone
	}
	clone.Delegations = &data.Delegations{
		Keys:  make(data.KeySet, len(p.Delegations.Keys)),
		Roles: append([]*data.RoleSpec{}, p.Delegations.Roles...),
	}
	for id, k := range p.Delegations.Keys {
		clone.Delegations.Keys[id] = k
	}
	return clone
}

// AddRole declares a new child delegation under this Editor's role,
// appending it after any existing roles — list order is precedence order
// for path-matching, so a freshly added role is consulted last unless the
// caller reorders it. A spec whose name is already delegated replaces that
// entry in place, keeping its position. Any key referenced by keyIDs that
// is not already known to this role's key set must be registered first
// via AddKey.
func (e *Editor) AddRole(spec *data.RoleSpec) error {
	if !spec.IsDelegation() {
		return data.ErrInvalidRole{Role: spec.Name, Reason: "not a delegated role name"}
	}
	if !spec.IsValid() {
		return data.ErrInvalidRole{Role: spec.Name, Reason: "threshold exceeds declared keys"}
	}
	for _, id := range spec.KeyIDs {
		if _, ok := e.payload.Delegations.Keys[id]; !ok {
			return errors.Errorf("tuf: role %s references key %s not yet added to %s", spec.Name, id, e.Role)
		}
	}
	for i, existing := range e.payload.Delegations.Roles {
		if existing.Name == spec.Name {
			e.payload.Delegations.Roles[i] = spec
			e.dirty = true
			return nil
		}
	}
	e.payload.Delegations.Roles = append(e.payload.Delegations.Roles, spec)
	e.dirty = true
	return nil
}

// RemoveRole drops a child delegation entirely, and garbage collects any
// key that no longer appears in any remaining role's key ID list — a key
// survives iff at least one surviving delegation still references it.
//
// An Editor only ever holds its own role's payload, never a child's, so it
// cannot by itself tell whether the child being removed has delegations of
// its own. childHasDelegations carries that fact in from the caller (which
// has the loaded repository available); when recursive is false and
// childHasDelegations is true, the removal is rejected rather than silently
// orphaning the child's own delegation subtree. A caller dropping the whole
// subtree (recursive=true) is additionally responsible for purging the
// descendant roles' files and snapshot entries — an Editor's scope never
// reaches past its own role.
func (e *Editor) RemoveRole(name string, recursive, childHasDelegations bool) error {
	if !recursive && childHasDelegations {
		return errors.Errorf("tuf: %s has its own delegations; remove recursively to drop the whole subtree", name)
	}
	kept := e.payload.Delegations.Roles[:0]
	found := false
	for _, r := range e.payload.Delegations.Roles {
		if r.Name == name {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return errors.WithStack(data.ErrNoSuchRole{Role: name})
	}
	e.payload.Delegations.Roles = kept
	e.gcKeys()
	e.dirty = true
	return nil
}

// AddKey registers a public key in this role's delegation key set, making
// it available for AddRole calls to reference. It does not by itself
// authorize the key for any existing role — use AddKeyToRole for that.
func (e *Editor) AddKey(k *data.Key) {
	e.payload.Delegations.Keys.Add(k)
	e.dirty = true
}

// AddKeyToRole registers k in this role's key set (if not already present)
// and appends its ID to childName's authorized key list, raising the
// number of keys able to satisfy that child's threshold. This is the
// standalone add-key operation; AddRole instead populates a brand-new
// child's key list wholesale when the delegation is first created.
func (e *Editor) AddKeyToRole(childName string, k *data.Key) error {
	for _, r := range e.payload.Delegations.Roles {
		if r.Name == childName {
			e.payload.Delegations.Keys.Add(k)
			r.AddKeys([]string{k.ID()})
			e.dirty = true
			return nil
		}
	}
	return errors.WithStack(data.ErrNoSuchRole{Role: childName})
}

// RemoveKey removes a key ID from every child role's key list (and, if
// given, restricts the removal to a single named child role), then runs
// the same garbage collection RemoveRole does. A key ID that ends up
// referenced by no surviving role is dropped from the key set entirely.
func (e *Editor) RemoveKey(keyID string, onlyRole string) error {
	touched := false
	for _, r := range e.payload.Delegations.Roles {
		if onlyRole != "" && r.Name != onlyRole {
			continue
		}
		before := len(r.KeyIDs)
		r.RemoveKeys([]string{keyID})
		if len(r.KeyIDs) != before {
			touched = true
		}
	}
	if !touched {
		return errors.Errorf("tuf: key %s is not referenced by any matching role under %s", keyID, e.Role)
	}
	e.gcKeys()
	e.dirty = true
	return nil
}

func (e *Editor) gcKeys() {
	referenced := make(map[string]struct{})
	for _, r := range e.payload.Delegations.Roles {
		for _, id := range r.KeyIDs {
			referenced[id] = struct{}{}
		}
	}
	for id := range e.payload.Delegations.Keys {
		if _, ok := referenced[id]; !ok {
			delete(e.payload.Delegations.Keys, id)
		}
	}
}

// UpdateTargets walks dir and replaces the payload's targets map with one
// entry per regular file found, computing length and sha256 hashes the
// same way an AddTargets call computes a data.FileMeta per changelist
// entry — except rooted at a directory scan rather than a staged
// changelist, since this editor has no changelist concept.
func (e *Editor) UpdateTargets(dir string) error {
	fresh := make(map[string]*data.FileMeta)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		meta, err := fileMeta(path)
		if err != nil {
			return err
		}
		fresh[filepath.ToSlash(rel)] = meta
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "scanning %s", dir)
	}
	e.payload.Targets = fresh
	e.dirty = true
	return nil
}

func fileMeta(path string) (*data.FileMeta, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(b)
	return &data.FileMeta{
		Length: int64(len(b)),
		Hashes: data.Hashes{"sha256": hex.EncodeToString(digest[:])},
	}, nil
}

// ReplaceContent overwrites the staged targets map and delegations with
// an externally produced payload's, keeping this Editor's own version and
// expiry bookkeeping (Sign still bumps version and sets expiry) — used to
// import a role's content computed by another invocation entirely.
func (e *Editor) ReplaceContent(imported *data.TargetsPayload) {
	e.payload.Targets = imported.Targets
	e.payload.Delegations = imported.Delegations
	e.dirty = true
}

// SetStartingVersion pre-sets the staged version so a subsequent Sign
// (which always increments by one) lands on a caller-chosen version —
// used by standalone role creation, where the CLI's -v flag names the
// exact version the emitted file should carry rather than "current + 1".
func (e *Editor) SetStartingVersion(v uint64) {
	if v > 0 {
		e.payload.Version = v - 1
	}
}

// Version returns the payload's current staged version.
func (e *Editor) Version() uint64 { return e.payload.Version }

// Expires returns the payload's current staged expiry.
func (e *Editor) Expires() time.Time { return e.payload.Expires }

// Dirty reports whether any mutating method has been called since
// FromRepo/Create.
func (e *Editor) Dirty() bool { return e.dirty }

// Sign bumps the version, sets the expiry, and produces a freshly signed
// envelope for this role using signer for the key IDs the role's own spec
// in the parent's delegation declares as authorized. Signing is always
// the final step of an edit — every AddRole/AddKey/RemoveRole/RemoveKey/
// UpdateTargets call above only stages the in-memory payload.
func (e *Editor) Sign(signer signed.Signer, authorizedKeyIDs []string, expires time.Time) (*data.Signed[*data.TargetsPayload], error) {
	e.payload.Version++
	e.payload.Expires = expires
	return signed.Marshal(e.payload, signer, authorizedKeyIDs)
}
