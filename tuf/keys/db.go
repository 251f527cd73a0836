// Package keys provides the in-memory registry that resolves role names to
// the RoleSpecs and Keys that authorize them, built up while the loader
// walks a repository's signed metadata.
package keys

import (
	"github.com/pkg/errors"

	"github.com/theupdateframework/delegation/tuf/data"
)

// DB is a role/key registry scoped to one loaded repository. The loader
// populates it role by role as it descends the delegation graph; the
// signer and editor consult it to resolve a role's current keys and
// threshold without re-parsing payloads.
type DB struct {
	keys  map[string]*data.Key
	roles map[string]*data.RoleSpec
}

// NewDB returns an empty registry.
func NewDB() *DB {
	return &DB{
		keys:  make(map[string]*data.Key),
		roles: make(map[string]*data.RoleSpec),
	}
}

// AddKey registers a public key under its own ID, keeping the first-seen
// copy if it was already known (mirrors data.KeySet.Add's collision rule).
func (db *DB) AddKey(k *data.Key) {
	if _, ok := db.keys[k.ID()]; !ok {
		db.keys[k.ID()] = k
	}
}

// GetKey returns the key registered under id, or nil if none is known.
func (db *DB) GetKey(id string) *data.Key {
	return db.keys[id]
}

// AddRole registers a role specification, replacing any prior declaration
// of the same role name. A later AddRole call models a more specific
// (deeper-walked) delegation superseding an ancestor's stale copy.
func (db *DB) AddRole(r *data.RoleSpec) error {
	if !data.ValidRole(r.Name) {
		return data.ErrInvalidRole{Role: r.Name, Reason: "not a valid top-level or delegated role name"}
	}
	if !r.IsValid() {
		return data.ErrInvalidRole{Role: r.Name, Reason: "threshold exceeds available keys"}
	}
	db.roles[r.Name] = r
	return nil
}

// GetRole returns the role specification for name, or ErrNoSuchRole.
func (db *DB) GetRole(name string) (*data.RoleSpec, error) {
	r, ok := db.roles[name]
	if !ok {
		return nil, errors.WithStack(data.ErrNoSuchRole{Role: name})
	}
	return r, nil
}

// RoleKeys resolves a role's key IDs to the actual Key values registered in
// the DB, erroring if any referenced key is unknown — this is how a
// dangling keyid (one never delivered in any ancestor's Delegations.Keys)
// is caught before it can be used to "satisfy" a threshold.
func (db *DB) RoleKeys(name string) ([]*data.Key, error) {
	r, err := db.GetRole(name)
	if err != nil {
		return nil, err
	}
	out := make([]*data.Key, 0, len(r.KeyIDs))
	for _, id := range r.KeyIDs {
		k := db.GetKey(id)
		if k == nil {
			return nil, errors.Errorf("tuf: role %s references unknown key %s", name, id)
		}
		out = append(out, k)
	}
	return out, nil
}

// Roles returns the names of every role currently registered.
func (db *DB) Roles() []string {
	out := make([]string, 0, len(db.roles))
	for name := range db.roles {
		out = append(out, name)
	}
	return out
}
