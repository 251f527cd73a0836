package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDelegation(t *testing.T) {
	assert.True(t, IsDelegation("targets/releases"))
	assert.True(t, IsDelegation("targets/releases/qa"))
	assert.False(t, IsDelegation("targets"))
	assert.False(t, IsDelegation("root"))
	assert.False(t, IsDelegation("targets/../root"))
	assert.False(t, IsDelegation("targets/ releases"))
	assert.False(t, IsDelegation("targets//releases"))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole("root"))
	assert.True(t, ValidRole("targets"))
	assert.True(t, ValidRole("targets/releases"))
	assert.False(t, ValidRole("bogus"))
}

func TestNewRoleRejectsBadThreshold(t *testing.T) {
	_, err := NewRole("targets/a", 0, nil, nil, nil)
	require.Error(t, err)
}

func TestNewRoleRejectsMixedPathSchemes(t *testing.T) {
	_, err := NewRole("targets/a", 1, nil, []string{"a/*"}, []string{"ab"})
	require.Error(t, err)
}

func TestRoleSpecIsValid(t *testing.T) {
	r, err := NewRole("targets/a", 2, []string{"k1", "k2"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, r.IsValid())

	r.Threshold = 3
	assert.False(t, r.IsValid())
}

func TestRoleSpecAddRemoveKeys(t *testing.T) {
	r, err := NewRole("targets/a", 1, []string{"k1"}, nil, nil)
	require.NoError(t, err)

	r.AddKeys([]string{"k1", "k2"})
	assert.Equal(t, []string{"k1", "k2"}, r.KeyIDs)

	r.RemoveKeys([]string{"k1"})
	assert.Equal(t, []string{"k2"}, r.KeyIDs)
}

func TestRoleSpecPathSchemeExclusivity(t *testing.T) {
	r, err := NewRole("targets/a", 1, nil, []string{"a/*"}, nil)
	require.NoError(t, err)

	err = r.AddPathHashPrefixes([]string{"ab"})
	assert.Error(t, err)

	r2, err := NewRole("targets/b", 1, nil, nil, []string{"ab"})
	require.NoError(t, err)
	err = r2.AddPaths([]string{"a/*"})
	assert.Error(t, err)
}

func TestRoleSpecCheckPaths(t *testing.T) {
	r, err := NewRole("targets/a", 1, nil, []string{"release/*"}, nil)
	require.NoError(t, err)
	assert.True(t, r.CheckPaths("release/foo.tar"))
	assert.False(t, r.CheckPaths("other/foo.tar"))
}

func TestRoleSpecCheckPrefixes(t *testing.T) {
	r, err := NewRole("targets/a", 1, nil, nil, []string{"ab", "cd"})
	require.NoError(t, err)
	assert.True(t, r.CheckPrefixes("ab1234"))
	assert.True(t, r.CheckPrefixes("cdabcd"))
	assert.False(t, r.CheckPrefixes("ef0000"))
}
