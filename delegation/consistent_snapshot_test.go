package delegation_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theupdateframework/delegation/config"
	"github.com/theupdateframework/delegation/delegation"
	"github.com/theupdateframework/delegation/tuf/data"
	"github.com/theupdateframework/delegation/tuf/signed"
	"github.com/theupdateframework/delegation/tuf/store"
)

// newConsistentFixture builds a minimal one-role repository whose root
// declares consistent_snapshot: true, so every targets-family file and
// the snapshot itself live at a version-prefixed path on disk
// ("1.targets.json", not "targets.json") while timestamp.json stays bare.
// It returns the built Context alongside the store's backing directory,
// so a test can assert on the exact filenames written.
func newConsistentFixture(t *testing.T) (*delegation.Context, string) {
	t.Helper()
	future := time.Now().Add(24 * time.Hour)

	rootPriv, rootKey := genKey(t)
	targetsPriv, targetsKey := genKey(t)
	snapshotPriv, snapshotKey := genKey(t)
	timestampPriv, timestampKey := genKey(t)

	signer := memSigner{
		rootKey.ID():      rootPriv,
		targetsKey.ID():   targetsPriv,
		snapshotKey.ID():  snapshotPriv,
		timestampKey.ID(): timestampPriv,
	}

	rootPayload := &data.RootPayload{
		Type:               "root",
		ConsistentSnapshot: true,
		Version:            1,
		Expires:            future,
		Keys: data.KeySet{
			rootKey.ID():      rootKey,
			targetsKey.ID():   targetsKey,
			snapshotKey.ID():  snapshotKey,
			timestampKey.ID(): timestampKey,
		},
		Roles: map[string]*data.RootRole{
			data.CanonicalRootRole:      {KeyIDs: []string{rootKey.ID()}, Threshold: 1},
			data.CanonicalTargetsRole:   {KeyIDs: []string{targetsKey.ID()}, Threshold: 1},
			data.CanonicalSnapshotRole:  {KeyIDs: []string{snapshotKey.ID()}, Threshold: 1},
			data.CanonicalTimestampRole: {KeyIDs: []string{timestampKey.ID()}, Threshold: 1},
		},
	}
	rootSigned, err := signed.Marshal[*data.RootPayload](rootPayload, signer, []string{rootKey.ID()})
	require.NoError(t, err)

	topPayload := data.NewTargetsPayload()
	topPayload.Version = 1
	topPayload.Expires = future
	topSigned, err := signed.Marshal[*data.TargetsPayload](topPayload, signer, []string{targetsKey.ID()})
	require.NoError(t, err)

	snapshotPayload := &data.SnapshotPayload{
		Type:    "snapshot",
		Version: 1,
		Expires: future,
		Meta:    map[string]*data.MetaFile{"targets": metaFor(t, topSigned)},
	}
	snapshotSigned, err := signed.Marshal[*data.SnapshotPayload](snapshotPayload, signer, []string{snapshotKey.ID()})
	require.NoError(t, err)

	timestampPayload := &data.TimestampPayload{
		Type:    "timestamp",
		Version: 1,
		Expires: future,
		Meta:    map[string]*data.MetaFile{"snapshot": metaFor(t, snapshotSigned)},
	}
	timestampSigned, err := signed.Marshal[*data.TimestampPayload](timestampPayload, signer, []string{timestampKey.ID()})
	require.NoError(t, err)

	dir := t.TempDir()
	fsStore, err := store.NewFilesystemStore(dir, "json")
	require.NoError(t, err)

	writeSigned(t, fsStore, "1.targets", topSigned)
	writeSigned(t, fsStore, "1.snapshot", snapshotSigned)
	writeSigned(t, fsStore, "timestamp", timestampSigned)

	cfg, err := config.Load(strings.NewReader("{}"))
	require.NoError(t, err)

	ctx := &delegation.Context{
		Cfg:         cfg,
		Source:      fsStore,
		Output:      fsStore,
		Signer:      signer,
		SignAll:     true,
		TrustedRoot: rootSigned,
	}
	return ctx, dir
}

func TestConsistentSnapshotReadsAndWritesVersionPrefixedNames(t *testing.T) {
	ctx, dir := newConsistentFixture(t)
	expires := time.Now().Add(time.Hour)

	scanDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scanDir, "hello.txt"), []byte("hi"), 0644))

	result, err := ctx.UpdateDelegatedTargets("targets", scanDir, expires)
	require.NoError(t, err)
	require.Equal(t, uint64(2), result.Targets.Signed.Version)
	require.NotNil(t, result.Snapshot)
	require.Equal(t, uint64(2), result.Snapshot.Signed.Version)

	// The fresh targets and snapshot land at their version-prefixed names;
	// the prior version-1 files are left in place since a consistent
	// snapshot must keep serving clients already pinned to them, and
	// timestamp.json itself is never version-prefixed.
	requireExists(t, filepath.Join(dir, "2.targets.json"))
	requireExists(t, filepath.Join(dir, "2.snapshot.json"))
	requireExists(t, filepath.Join(dir, "1.targets.json"))
	requireExists(t, filepath.Join(dir, "1.snapshot.json"))
	requireExists(t, filepath.Join(dir, "timestamp.json"))
}

func requireExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.NoError(t, err, "expected %s to exist", path)
}
