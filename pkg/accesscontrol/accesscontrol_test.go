package accesscontrol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var authority = strings.Repeat("ab", 32)

func TestEnforcerGrantsAuthority(t *testing.T) {
	e, err := NewEnforcer(strings.ToUpper(authority), "")
	require.NoError(t, err)

	for _, act := range []string{ActionIssue, ActionRenew, ActionSetStatus} {
		ok, err := e.Enforce(authority, ObjectLicense, act)
		require.NoError(t, err)
		require.True(t, ok, act)
	}

	ok, err := e.Enforce(authority, ObjectLicense, "delete")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = e.Enforce(strings.Repeat("cd", 32), ObjectLicense, ActionIssue)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEnforcerLoadsPolicyFile(t *testing.T) {
	e, err := NewEnforcer(authority, "testdata/policy.csv")
	require.NoError(t, err)

	other := strings.Repeat("11", 32)
	ok, err := e.Enforce(other, ObjectLicense, ActionRenew)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Enforce(other, ObjectLicense, ActionIssue)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = e.Enforce(authority, ObjectLicense, ActionIssue)
	require.NoError(t, err)
	require.True(t, ok)
}
