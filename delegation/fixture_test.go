package delegation_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cjson "github.com/docker/go/canonical/json"
	"github.com/stretchr/testify/require"

	"github.com/theupdateframework/delegation/config"
	"github.com/theupdateframework/delegation/delegation"
	"github.com/theupdateframework/delegation/tuf/data"
	"github.com/theupdateframework/delegation/tuf/loader"
	"github.com/theupdateframework/delegation/tuf/signed"
	"github.com/theupdateframework/delegation/tuf/store"
)

// memSigner is an in-memory multi-key Signer, standing in for the CLI's
// multiSigner-over-keysource.Local stack in tests that only care about the
// operations layer's behavior, not key file persistence.
type memSigner map[string]ed25519.PrivateKey

func (m memSigner) Sign(keyIDs []string, canonical []byte) ([]data.Signature, error) {
	var sigs []data.Signature
	for _, id := range keyIDs {
		priv, ok := m[id]
		if !ok {
			continue
		}
		sigs = append(sigs, data.Signature{
			KeyID:     id,
			Method:    data.KeyTypeEd25519,
			Signature: hex.EncodeToString(ed25519.Sign(priv, canonical)),
		})
	}
	return sigs, nil
}

func genKey(t *testing.T) (ed25519.PrivateKey, *data.Key) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, data.NewKey(data.KeyTypeEd25519, "ed25519", hex.EncodeToString(pub))
}

func metaFor[T interface{ VersionNumber() uint64 }](t *testing.T, s *data.Signed[T]) *data.MetaFile {
	t.Helper()
	canonical, err := cjson.MarshalCanonical(s)
	require.NoError(t, err)
	digest := sha256.Sum256(canonical)
	return &data.MetaFile{Version: s.Signed.VersionNumber(), Length: int64(len(canonical)), Hashes: data.Hashes{"sha256": hex.EncodeToString(digest[:])}}
}

// fixture is a small, fully verifiable three-level repository:
// targets -> targets/releases -> targets/releases/qa, each delegation
// scoped to a distinct key, rooted at an in-memory trusted root.
type fixture struct {
	store   *store.FilesystemStore
	ctx     *delegation.Context
	signer  memSigner
	rootKey *data.Key

	targetsKey, snapshotKey, timestampKey *data.Key
	releasesKey, qaKey, qaKey2            *data.Key
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	future := time.Now().Add(24 * time.Hour)

	rootPriv, rootKey := genKey(t)
	targetsPriv, targetsKey := genKey(t)
	snapshotPriv, snapshotKey := genKey(t)
	timestampPriv, timestampKey := genKey(t)
	releasesPriv, releasesKey := genKey(t)
	qaPriv, qaKey := genKey(t)
	qaPriv2, qaKey2 := genKey(t)

	signer := memSigner{
		rootKey.ID():      rootPriv,
		targetsKey.ID():   targetsPriv,
		snapshotKey.ID():  snapshotPriv,
		timestampKey.ID(): timestampPriv,
		releasesKey.ID():  releasesPriv,
		qaKey.ID():        qaPriv,
		qaKey2.ID():       qaPriv2,
	}

	rootPayload := &data.RootPayload{
		Type:    "root",
		Version: 1,
		Expires: future,
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

	qaPayload := data.NewTargetsPayload()
	qaPayload.Version = 1
	qaPayload.Expires = future
	qaSigned, err := signed.Marshal[*data.TargetsPayload](qaPayload, signer, []string{qaKey.ID(), qaKey2.ID()})
	require.NoError(t, err)

	releasesPayload := data.NewTargetsPayload()
	releasesPayload.Version = 1
	releasesPayload.Expires = future
	releasesPayload.Delegations.Keys.Add(qaKey)
	releasesPayload.Delegations.Keys.Add(qaKey2)
	releasesPayload.Delegations.Roles = append(releasesPayload.Delegations.Roles, &data.RoleSpec{
		Name: "targets/releases/qa", KeyIDs: []string{qaKey.ID(), qaKey2.ID()}, Threshold: 1,
	})
	releasesSigned, err := signed.Marshal[*data.TargetsPayload](releasesPayload, signer, []string{releasesKey.ID()})
	require.NoError(t, err)

	topPayload := data.NewTargetsPayload()
	topPayload.Version = 1
	topPayload.Expires = future
	topPayload.Delegations.Keys.Add(releasesKey)
	topPayload.Delegations.Roles = append(topPayload.Delegations.Roles, &data.RoleSpec{
		Name: "targets/releases", KeyIDs: []string{releasesKey.ID()}, Threshold: 1, Paths: []string{"release/*"},
	})
	topSigned, err := signed.Marshal[*data.TargetsPayload](topPayload, signer, []string{targetsKey.ID()})
	require.NoError(t, err)

	snapshotPayload := &data.SnapshotPayload{
		Type:    "snapshot",
		Version: 1,
		Expires: future,
		Meta: map[string]*data.MetaFile{
			"targets":              metaFor(t, topSigned),
			"targets/releases":     metaFor(t, releasesSigned),
			"targets/releases/qa":  metaFor(t, qaSigned),
		},
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

	fsStore, err := store.NewFilesystemStore(t.TempDir(), "json")
	require.NoError(t, err)

	writeSigned(t, fsStore, "targets", topSigned)
	writeSigned(t, fsStore, "targets/releases", releasesSigned)
	writeSigned(t, fsStore, "targets/releases/qa", qaSigned)
	writeSigned(t, fsStore, "snapshot", snapshotSigned)
	writeSigned(t, fsStore, "timestamp", timestampSigned)

	cfg, err := config.Load(strings.NewReader("{}"))
	require.NoError(t, err)

	ctx := &delegation.Context{
		Cfg:         cfg,
		Source:      fsStore,
		Output:      fsStore,
		Signer:      signer,
		TrustedRoot: rootSigned,
	}

	return &fixture{
		store: fsStore, ctx: ctx, signer: signer, rootKey: rootKey,
		targetsKey: targetsKey, snapshotKey: snapshotKey, timestampKey: timestampKey,
		releasesKey: releasesKey, qaKey: qaKey, qaKey2: qaKey2,
	}
}

func writeSigned[T any](t *testing.T, s *store.FilesystemStore, name string, signedVal *data.Signed[T]) {
	t.Helper()
	raw, err := cjson.MarshalCanonical(signedVal)
	require.NoError(t, err)
	require.NoError(t, s.SetMeta(name, raw))
}

// loadRepo re-runs the verification walk against the fixture's current
// stored state, for tests that need to inspect the registry a later
// operation would see rather than the envelope an earlier one returned.
func loadRepo(t *testing.T, f *fixture) (*loader.Repository, error) {
	t.Helper()
	return loader.New(f.store, f.ctx.Cfg, f.ctx.TrustedRoot).Load()
}

func writeFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0644))
}
