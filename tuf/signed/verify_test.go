package signed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theupdateframework/delegation/tuf/data"
	"github.com/theupdateframework/delegation/tuf/keys"
)

func dbWithRole(t *testing.T, role string, threshold int, keyIDs ...string) *keys.DB {
	t.Helper()
	db := keys.NewDB()
	require.NoError(t, db.AddRole(&data.RoleSpec{Name: role, Threshold: threshold, KeyIDs: keyIDs}))
	return db
}

func TestVerifyMeetsThreshold(t *testing.T) {
	signer, key := newTestSigner(t)
	db := dbWithRole(t, "targets/a", 1, key.ID())
	db.AddKey(key)

	payload := &testPayload{Version: 1, Expires: time.Now().Add(time.Hour)}
	s, err := Marshal[*testPayload](payload, signer, []string{key.ID()})
	require.NoError(t, err)

	assert.NoError(t, Verify[*testPayload](s, "targets/a", 0, db))
}

func TestVerifyFailsBelowThreshold(t *testing.T) {
	signer, key := newTestSigner(t)
	db := dbWithRole(t, "targets/a", 2, key.ID())
	db.AddKey(key)

	payload := &testPayload{Version: 1, Expires: time.Now().Add(time.Hour)}
	s, err := Marshal[*testPayload](payload, signer, []string{key.ID()})
	require.NoError(t, err)

	err = Verify[*testPayload](s, "targets/a", 0, db)
	require.Error(t, err)
	assert.IsType(t, ErrRoleThreshold{}, err)
}

func TestVerifyIgnoresUnauthorizedSignature(t *testing.T) {
	signer, key := newTestSigner(t)
	other, otherKey := newTestSigner(t)
	db := dbWithRole(t, "targets/a", 1, key.ID())
	db.AddKey(key)
	db.AddKey(otherKey)

	payload := &testPayload{Version: 1, Expires: time.Now().Add(time.Hour)}
	s, err := Marshal[*testPayload](payload, other, []string{otherKey.ID()})
	require.NoError(t, err)
	_ = signer

	err = Verify[*testPayload](s, "targets/a", 0, db)
	require.Error(t, err)
	assert.IsType(t, ErrRoleThreshold{}, err)
}

func TestVerifyFailsOnExpiredPayload(t *testing.T) {
	signer, key := newTestSigner(t)
	db := dbWithRole(t, "targets/a", 1, key.ID())
	db.AddKey(key)

	payload := &testPayload{Version: 1, Expires: time.Now().Add(-time.Hour)}
	s, err := Marshal[*testPayload](payload, signer, []string{key.ID()})
	require.NoError(t, err)

	err = Verify[*testPayload](s, "targets/a", 0, db)
	require.Error(t, err)
	assert.IsType(t, ErrExpired{}, err)
}

func TestVerifyFailsOnRollback(t *testing.T) {
	signer, key := newTestSigner(t)
	db := dbWithRole(t, "targets/a", 1, key.ID())
	db.AddKey(key)

	payload := &testPayload{Version: 5, Expires: time.Now().Add(time.Hour)}
	s, err := Marshal[*testPayload](payload, signer, []string{key.ID()})
	require.NoError(t, err)

	err = Verify[*testPayload](s, "targets/a", 10, db)
	require.Error(t, err)
	assert.IsType(t, ErrLowVersion{}, err)
}
