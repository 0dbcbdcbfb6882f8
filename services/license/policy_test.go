package license

import (
	"context"
	"testing"

	"license-authority/pkg/config"
	"license-authority/pkg/featureflags"

	"github.com/stretchr/testify/require"
)

func TestDurationPolicy(t *testing.T) {
	ctx := context.Background()

	on := NewDurationPolicy(&fakeFlags{enabled: map[string]bool{FlagEnforcePositiveDuration: true}})
	require.NoError(t, on.CheckIssueDuration(ctx, authorityA, 1))
	require.ErrorIs(t, on.CheckIssueDuration(ctx, authorityA, 0), ErrInvalidDuration)
	require.ErrorIs(t, on.CheckIssueDuration(ctx, authorityA, -5), ErrInvalidDuration)

	off := NewDurationPolicy(&fakeFlags{})
	require.NoError(t, off.CheckIssueDuration(ctx, authorityA, 0))

	require.NoError(t, AllowAnyDuration{}.CheckIssueDuration(ctx, authorityA, -1))
}

func TestDurationPolicyWithoutFlagsmith(t *testing.T) {
	flags := featureflags.ProvideFeatureFlag(featureflags.FeatureParams{Config: &config.Config{}})
	require.False(t, flags.IsEnabled(context.Background(), authorityA.String(), FlagEnforcePositiveDuration))

	p := NewDurationPolicy(flags)
	require.NoError(t, p.CheckIssueDuration(context.Background(), authorityA, 0))
}
