package keysource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theupdateframework/delegation/tuf/data"
)

func TestLocalImportSignRoundTrip(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocal(dir, nil)
	require.NoError(t, err)

	key, pkcs8, err := GenerateKeyPair(data.KeyTypeEd25519)
	require.NoError(t, err)
	require.NoError(t, local.Import(key.ID(), key.Type, pkcs8))

	sigs, err := local.Sign([]string{key.ID(), "unrelated"}, []byte("payload bytes"))
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, key.ID(), sigs[0].KeyID)
}

func TestLocalPublicKeyMatchesGeneratedID(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocal(dir, nil)
	require.NoError(t, err)

	key, pkcs8, err := GenerateKeyPair(data.KeyTypeEd25519)
	require.NoError(t, err)
	require.NoError(t, local.Import(key.ID(), key.Type, pkcs8))

	reconstructed, err := local.PublicKey(key.ID())
	require.NoError(t, err)
	assert.Equal(t, key.ID(), reconstructed.ID())
}

func TestLocalListKeyIDs(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocal(dir, nil)
	require.NoError(t, err)

	ids, err := local.ListKeyIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	key, pkcs8, err := GenerateKeyPair(data.KeyTypeEd25519)
	require.NoError(t, err)
	require.NoError(t, local.Import(key.ID(), key.Type, pkcs8))

	ids, err = local.ListKeyIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{key.ID()}, ids)
}

func TestLocalSignSkipsUnknownKeyID(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocal(dir, nil)
	require.NoError(t, err)

	sigs, err := local.Sign([]string{"does-not-exist"}, []byte("payload"))
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestLocalEncryptedKeyRequiresPassphrase(t *testing.T) {
	dir := t.TempDir()
	calls := 0
	retriever := func(keyName, alias string, createNew bool, attempts int) (string, bool, error) {
		calls++
		return "correct horse battery staple", false, nil
	}
	local, err := NewLocal(dir, retriever)
	require.NoError(t, err)

	key, pkcs8, err := GenerateKeyPair(data.KeyTypeEd25519)
	require.NoError(t, err)
	require.NoError(t, local.Import(key.ID(), key.Type, pkcs8))
	assert.Equal(t, 1, calls, "Import should have prompted once for the new key's passphrase")

	reopened, err := NewLocal(dir, retriever)
	require.NoError(t, err)
	sigs, err := reopened.Sign([]string{key.ID()}, []byte("payload"))
	require.NoError(t, err)
	require.Len(t, sigs, 1)
}
