package delegation

import (
	"time"

	"github.com/pkg/errors"

	"github.com/theupdateframework/delegation/tuf/data"
	"github.com/theupdateframework/delegation/tuf/editor"
	"github.com/theupdateframework/delegation/tuf/loader"
	"github.com/theupdateframework/delegation/tuf/signed"
)

// CreateRole produces a standalone signed envelope for a brand-new role:
// an empty targets map, no child delegations, signed by c.Signer under
// keyIDs. It never loads or mutates the main repository — the result is
// meant to be handed to a later AddRole call as its child argument,
// mirroring the two-phase create-role/add-role split, where create-role
// "does not touch the main repository".
func (c *Context) CreateRole(name string, signingKeys []*data.Key, keyIDs []string, version uint64, expires time.Time) (*StandaloneRole, error) {
	e := editor.Create(name)
	e.SetStartingVersion(version)
	signedRole, err := e.Sign(c.Signer, keyIDs, c.expiryFor(expires))
	if err != nil {
		return nil, errors.Wrapf(err, "creating standalone role %s", name)
	}
	return &StandaloneRole{Role: signedRole, Keys: signingKeys}, nil
}

// AddRole loads the main repository, opens an editor on parentRole,
// registers child's declared keys into parentRole's key set, inserts the
// delegation (name, threshold, paths, terminating taken from spec —
// spec.KeyIDs is ignored and replaced with child.Keys' IDs), and signs
// parentRole with the caller's keys. This is the second half of the
// create-role/add-role split: child was produced standalone by a prior
// CreateRole call (possibly by a different caller entirely) and is only
// now being wired into the working repository.
//
// child.Role — the standalone signed envelope CreateRole produced — is
// itself written to the output store and folded into the refreshed
// snapshot's pinned entries alongside parentRole, not merely referenced
// for its keys: a delegation that names a child with no corresponding
// file on disk and no snapshot pin reloads as CyclicDelegation's sibling
// failure, "snapshot does not pin delegated role", so the child's own
// metadata has to ship in the same call that wires it in.
func (c *Context) AddRole(parentRole string, spec *data.RoleSpec, child *StandaloneRole, expires time.Time) (*Result, error) {
	repo, e, err := c.existingEditor(parentRole)
	if err != nil {
		return nil, err
	}

	keyIDs := make([]string, 0, len(child.Keys))
	for _, k := range child.Keys {
		e.AddKey(k)
		keyIDs = append(keyIDs, k.ID())
	}
	spec.KeyIDs = keyIDs

	if err := e.AddRole(spec); err != nil {
		return nil, errors.Wrap(err, "adding role")
	}

	if c.Version > 0 {
		e.SetStartingVersion(c.Version)
	}
	parentKeyIDs, err := signingKeyIDs(repo, parentRole)
	if err != nil {
		return nil, err
	}
	signedParent, err := e.Sign(c.Signer, parentKeyIDs, c.expiryFor(expires))
	if err != nil {
		return nil, errors.Wrapf(err, "signing %s", parentRole)
	}
	if err := checkThreshold(repo, parentRole, signedParent, parentKeyIDs); err != nil {
		return nil, err
	}

	extra := map[string]*data.Signed[*data.TargetsPayload]{spec.Name: child.Role}
	return c.finish(repo, parentRole, signedParent, nil, extra)
}

// ImportRole replaces role's staged target map and delegations wholesale
// with an externally produced payload (fetched by the caller from an
// arbitrary import URL) and signs the result, backing the CLI's generic
// `update` verb: unlike UpdateDelegatedTargets, which rebuilds the target
// map from a local directory scan, this accepts content computed
// elsewhere (another invocation, another signer's working copy) verbatim.
func (c *Context) ImportRole(role string, imported *data.TargetsPayload, expires time.Time) (*Result, error) {
	repo, err := c.load()
	if err != nil {
		return nil, err
	}
	var e *editor.Editor
	if existing, ok := repo.Targets[role]; ok {
		e = editor.FromRepo(role, existing)
	} else {
		e = editor.Create(role)
	}
	e.ReplaceContent(imported)
	return c.signAndFinish(repo, e, role, expires)
}

// AddKey authorizes a new public key for childRole, an existing
// delegation of parentRole, and re-signs parentRole.
func (c *Context) AddKey(parentRole, childRole string, key *data.Key, expires time.Time) (*Result, error) {
	repo, e, err := c.existingEditor(parentRole)
	if err != nil {
		return nil, err
	}
	if err := e.AddKeyToRole(childRole, key); err != nil {
		return nil, err
	}
	return c.signAndFinish(repo, e, parentRole, expires)
}

// RemoveKey drops keyID from every role under parentRole (or just
// childRole, if non-empty) and garbage collects the key set. childRole
// may name any delegated role, not only an immediate child of "targets"
// — the only role this never applies to is "root" itself, since root key
// rotation is out of scope.
func (c *Context) RemoveKey(parentRole, childRole, keyID string, expires time.Time) (*Result, error) {
	if parentRole == data.CanonicalRootRole {
		return nil, errors.New("tuf: root key rotation is not supported by this editor")
	}
	repo, e, err := c.existingEditor(parentRole)
	if err != nil {
		return nil, err
	}
	if err := e.RemoveKey(keyID, childRole); err != nil {
		return nil, err
	}
	return c.signAndFinish(repo, e, parentRole, expires)
}

// RemoveRole deletes a delegated role entirely from parentRole. With
// recursive=false, the call is rejected if childRole's own payload
// declares any delegations of its own, since dropping only the edge would
// silently orphan a subtree a caller has not asked to remove. With
// recursive=true, every role reachable only through the removed edge is
// also purged — its file deleted from the output store (the
// version-prefixed files stay when the root declares consistent_snapshot)
// and, when SignAll is set, its entry dropped from the refreshed snapshot.
func (c *Context) RemoveRole(parentRole, childRole string, recursive bool, expires time.Time) (*Result, error) {
	repo, e, err := c.existingEditor(parentRole)
	if err != nil {
		return nil, err
	}

	child, childLoaded := repo.Targets[childRole]
	childHasDelegations := childLoaded && child.Signed.Delegations != nil && len(child.Signed.Delegations.Roles) > 0

	if err := e.RemoveRole(childRole, recursive, childHasDelegations); err != nil {
		return nil, err
	}

	prune := []string{childRole}
	if recursive && childLoaded {
		prune = append(prune, descendantRoles(repo.Targets, child.Signed)...)
	}

	if c.Version > 0 {
		e.SetStartingVersion(c.Version)
	}
	keyIDs, err := signingKeyIDs(repo, parentRole)
	if err != nil {
		return nil, err
	}
	signedRole, err := e.Sign(c.Signer, keyIDs, c.expiryFor(expires))
	if err != nil {
		return nil, errors.Wrapf(err, "signing %s", parentRole)
	}
	if err := checkThreshold(repo, parentRole, signedRole, keyIDs); err != nil {
		return nil, err
	}
	return c.finish(repo, parentRole, signedRole, prune, nil)
}

// descendantRoles walks a payload's delegation graph (as loaded into
// all) and returns every role name reachable below it, so a recursive
// remove-role can purge the whole subtree rather than just its immediate
// edge.
func descendantRoles(all map[string]*data.Signed[*data.TargetsPayload], p *data.TargetsPayload) []string {
	var out []string
	if p.Delegations == nil {
		return out
	}
	for _, r := range p.Delegations.Roles {
		out = append(out, r.Name)
		if child, ok := all[r.Name]; ok {
			out = append(out, descendantRoles(all, child.Signed)...)
		}
	}
	return out
}

// UpdateDelegatedTargets rescans scanDir and replaces role's target file
// list, then signs it.
func (c *Context) UpdateDelegatedTargets(role, scanDir string, expires time.Time) (*Result, error) {
	repo, e, err := c.existingEditor(role)
	if err != nil {
		return nil, err
	}
	if err := e.UpdateTargets(scanDir); err != nil {
		return nil, errors.Wrap(err, "updating targets")
	}
	return c.signAndFinish(repo, e, role, expires)
}

// existingEditor loads the repository and scopes an Editor to role's
// current payload, failing if role has never been published.
func (c *Context) existingEditor(role string) (*loader.Repository, *editor.Editor, error) {
	repo, err := c.load()
	if err != nil {
		return nil, nil, err
	}
	existing, ok := repo.Targets[role]
	if !ok {
		return nil, nil, errors.WithStack(data.ErrNoSuchRole{Role: role})
	}
	return repo, editor.FromRepo(role, existing), nil
}

// signAndFinish resolves parentRole's authorized signing keys, pins an
// explicit version if c.Version was set, signs the staged payload, and
// runs the shared write/refresh tail.
func (c *Context) signAndFinish(repo *loader.Repository, e *editor.Editor, role string, expires time.Time) (*Result, error) {
	if c.Version > 0 {
		e.SetStartingVersion(c.Version)
	}
	keyIDs, err := signingKeyIDs(repo, role)
	if err != nil {
		return nil, err
	}
	signedRole, err := e.Sign(c.Signer, keyIDs, c.expiryFor(expires))
	if err != nil {
		return nil, errors.Wrapf(err, "signing %s", role)
	}
	if err := checkThreshold(repo, role, signedRole, keyIDs); err != nil {
		return nil, err
	}
	return c.finish(repo, role, signedRole, nil, nil)
}

// checkThreshold fails fast when a just-produced envelope does not meet
// role's declared threshold of distinct authorized signatures — the same
// check Verify performs on load, run here so a caller's own --key set
// being insufficient is reported immediately rather than only on the next
// reload of whatever this call would otherwise have written.
func checkThreshold(repo *loader.Repository, role string, signedRole *data.Signed[*data.TargetsPayload], authorizedKeyIDs []string) error {
	spec, err := repo.DB.GetRole(role)
	if err != nil {
		return err
	}
	return signed.CheckThreshold(role, signedRole.Signatures, authorizedKeyIDs, spec.Threshold)
}
