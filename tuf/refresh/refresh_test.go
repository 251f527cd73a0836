package refresh

import (
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

func baseInputs() Inputs {
	return Inputs{
		Snapshot: &data.Signed[*data.SnapshotPayload]{
			Signed: &data.SnapshotPayload{Type: "snapshot", Version: 4, Meta: map[string]*data.MetaFile{}},
		},
		SnapshotSigner:        fakeSigner{keyIDs: []string{"snap1"}},
		SnapshotKeyIDs:        []string{"snap1"},
		TimestampSigner:       fakeSigner{keyIDs: []string{"ts1"}},
		TimestampKeyIDs:       []string{"ts1"},
		Expires:               time.Now().Add(time.Hour),
		TimestampExpires:      time.Now().Add(time.Hour),
		PriorTimestampVersion: 9,
	}
}

func updatedTargets() map[string]*data.Signed[*data.TargetsPayload] {
	return map[string]*data.Signed[*data.TargetsPayload]{
		"targets": {Signed: &data.TargetsPayload{Type: "targets", Version: 3}},
	}
}

func TestRefreshFailsWithoutSnapshotKeys(t *testing.T) {
	in := baseInputs()
	in.SnapshotKeyIDs = nil
	_, _, err := Refresh(in, updatedTargets())
	require.Error(t, err)
	assert.IsType(t, ErrMissingTopLevelKeys{}, err)
}

func TestRefreshFailsWithoutTimestampKeys(t *testing.T) {
	in := baseInputs()
	in.TimestampKeyIDs = nil
	_, _, err := Refresh(in, updatedTargets())
	require.Error(t, err)
}

func TestRefreshIncrementsVersionsByDefault(t *testing.T) {
	in := baseInputs()
	snapshot, timestamp, err := Refresh(in, updatedTargets())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), snapshot.Signed.Version)
	assert.Equal(t, uint64(10), timestamp.Signed.Version)
}

func TestRefreshHonorsExplicitVersionOverrides(t *testing.T) {
	in := baseInputs()
	in.SnapshotVersion = 250
	in.TimestampVersion = 310
	snapshot, timestamp, err := Refresh(in, updatedTargets())
	require.NoError(t, err)
	assert.Equal(t, uint64(250), snapshot.Signed.Version)
	assert.Equal(t, uint64(310), timestamp.Signed.Version)
}

func TestRefreshRecordsUpdatedRoleInSnapshotMeta(t *testing.T) {
	in := baseInputs()
	snapshot, _, err := Refresh(in, updatedTargets())
	require.NoError(t, err)
	meta, ok := snapshot.Signed.Meta["targets"]
	require.True(t, ok)
	assert.Equal(t, uint64(3), meta.Version)
}

func TestRefreshPrunesRemovedRoles(t *testing.T) {
	in := baseInputs()
	in.Snapshot.Signed.Meta["targets/orphan"] = &data.MetaFile{Version: 1}
	in.Remove = []string{"targets/orphan"}

	snapshot, _, err := Refresh(in, updatedTargets())
	require.NoError(t, err)
	assert.NotContains(t, snapshot.Signed.Meta, "targets/orphan")
}

func TestRefreshTimestampPointsAtFreshSnapshot(t *testing.T) {
	in := baseInputs()
	snapshot, timestamp, err := Refresh(in, updatedTargets())
	require.NoError(t, err)
	meta, ok := timestamp.Signed.Meta["snapshot"]
	require.True(t, ok)
	assert.Equal(t, snapshot.Signed.Version, meta.Version)
}
