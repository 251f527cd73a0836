package editor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theupdateframework/delegation/tuf/data"
)

type fakeSigner struct{ keyIDs []string }

func (f fakeSigner) Sign(keyIDs []string, canonical []byte) ([]data.Signature, error) {
	var sigs []data.Signature
	want := make(map[string]struct{}, len(f.keyIDs))
	for _, id := range f.keyIDs {
		want[id] = struct{}{}
	}
	for _, id := range keyIDs {
		if _, ok := want[id]; ok {
			sigs = append(sigs, data.Signature{KeyID: id, Method: "ed25519", Signature: "00"})
		}
	}
	return sigs, nil
}

func TestCreateStartsAtVersionOne(t *testing.T) {
	e := Create("targets/releases")
	e.SetStartingVersion(0)
	signed, err := e.Sign(fakeSigner{}, nil, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), signed.Signed.Version)
}

func TestSetStartingVersionPinsExactVersion(t *testing.T) {
	e := Create("targets/releases")
	e.SetStartingVersion(170)
	signed, err := e.Sign(fakeSigner{}, nil, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(170), signed.Signed.Version)
}

func TestAddRoleRejectsUnknownKey(t *testing.T) {
	e := Create("targets")
	spec, err := data.NewRole("targets/a", 1, []string{"missing"}, nil, nil)
	require.NoError(t, err)
	err = e.AddRole(spec)
	assert.Error(t, err)
}

func TestAddRoleThenAddKeyToRole(t *testing.T) {
	e := Create("targets")
	k1 := data.NewKey(data.KeyTypeEd25519, "ed25519", "aa")
	e.AddKey(k1)

	spec, err := data.NewRole("targets/a", 1, []string{k1.ID()}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.AddRole(spec))

	k2 := data.NewKey(data.KeyTypeEd25519, "ed25519", "bb")
	require.NoError(t, e.AddKeyToRole("targets/a", k2))

	assert.ElementsMatch(t, []string{k1.ID(), k2.ID()}, e.payload.Delegations.Roles[0].KeyIDs)
	assert.Contains(t, e.payload.Delegations.Keys, k2.ID())
}

func TestAddKeyToRoleFailsForUnknownRole(t *testing.T) {
	e := Create("targets")
	k := data.NewKey(data.KeyTypeEd25519, "ed25519", "aa")
	err := e.AddKeyToRole("targets/nope", k)
	assert.Error(t, err)
}

func TestRemoveRoleNonRecursiveRejectsRoleWithDelegations(t *testing.T) {
	e := Create("targets")
	k1 := data.NewKey(data.KeyTypeEd25519, "ed25519", "aa")
	e.AddKey(k1)
	spec, err := data.NewRole("targets/a", 1, []string{k1.ID()}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.AddRole(spec))

	err = e.RemoveRole("targets/a", false, true)
	assert.Error(t, err)
}

func TestRemoveRoleRecursiveSucceedsWithDelegations(t *testing.T) {
	e := Create("targets")
	k1 := data.NewKey(data.KeyTypeEd25519, "ed25519", "aa")
	e.AddKey(k1)
	spec, err := data.NewRole("targets/a", 1, []string{k1.ID()}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.AddRole(spec))

	require.NoError(t, e.RemoveRole("targets/a", true, true))
	assert.Empty(t, e.payload.Delegations.Roles)
	assert.NotContains(t, e.payload.Delegations.Keys, k1.ID())
}

func TestRemoveRoleGCsOrphanedKeys(t *testing.T) {
	e := Create("targets")
	k1 := data.NewKey(data.KeyTypeEd25519, "ed25519", "aa")
	k2 := data.NewKey(data.KeyTypeEd25519, "ed25519", "bb")
	e.AddKey(k1)
	e.AddKey(k2)

	specA, err := data.NewRole("targets/a", 1, []string{k1.ID()}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.AddRole(specA))
	specB, err := data.NewRole("targets/b", 1, []string{k1.ID(), k2.ID()}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.AddRole(specB))

	require.NoError(t, e.RemoveRole("targets/a", false, false))

	assert.Contains(t, e.payload.Delegations.Keys, k1.ID(), "k1 still referenced by targets/b")
	assert.Contains(t, e.payload.Delegations.Keys, k2.ID())
}

func TestRemoveKeyGCsUnreferencedKey(t *testing.T) {
	e := Create("targets")
	k1 := data.NewKey(data.KeyTypeEd25519, "ed25519", "aa")
	e.AddKey(k1)
	spec, err := data.NewRole("targets/a", 1, []string{k1.ID()}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.AddRole(spec))

	require.NoError(t, e.RemoveKey(k1.ID(), "targets/a"))
	assert.Empty(t, e.payload.Delegations.Roles[0].KeyIDs)
	assert.NotContains(t, e.payload.Delegations.Keys, k1.ID())
}

func TestRemoveKeyFailsWhenNotReferenced(t *testing.T) {
	e := Create("targets")
	err := e.RemoveKey("nope", "")
	assert.Error(t, err)
}

func TestUpdateTargetsScansDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("world"), 0644))

	e := Create("targets/releases")
	require.NoError(t, e.UpdateTargets(dir))

	assert.Contains(t, e.payload.Targets, "a.txt")
	assert.Contains(t, e.payload.Targets, "sub/b.txt")
	assert.Equal(t, int64(5), e.payload.Targets["a.txt"].Length)
	assert.NotEmpty(t, e.payload.Targets["a.txt"].Hashes["sha256"])
}

func TestFromRepoClonesIndependently(t *testing.T) {
	original := data.NewTargetsPayload()
	original.Targets["a"] = &data.FileMeta{Length: 1}
	signedOriginal := &data.Signed[*data.TargetsPayload]{Signed: original}

	e := FromRepo("targets", signedOriginal)
	e.payload.Targets["b"] = &data.FileMeta{Length: 2}

	assert.NotContains(t, original.Targets, "b", "mutating the editor's clone must not affect the source payload")
}

func TestReplaceContentOverwritesTargetsAndDelegations(t *testing.T) {
	e := Create("targets/releases")
	imported := &data.TargetsPayload{
		Targets:     map[string]*data.FileMeta{"x": {Length: 9}},
		Delegations: data.NewDelegations(),
	}
	e.ReplaceContent(imported)
	assert.Contains(t, e.payload.Targets, "x")
	assert.True(t, e.Dirty())
}
