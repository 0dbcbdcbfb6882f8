package license

import (
	"context"

	"license-authority/pkg/featureflags"
)

// FlagEnforcePositiveDuration switches issuance to rejecting durations <= 0.
const FlagEnforcePositiveDuration = "enforce_positive_duration"

// DurationPolicy gates the duration of a new license.
type DurationPolicy interface {
	CheckIssueDuration(ctx context.Context, authority Identity, durationSeconds int64) error
}

type flagDurationPolicy struct {
	flags featureflags.FeatureFlag
}

func NewDurationPolicy(flags featureflags.FeatureFlag) DurationPolicy {
	return &flagDurationPolicy{flags: flags}
}

func (p *flagDurationPolicy) CheckIssueDuration(ctx context.Context, authority Identity, durationSeconds int64) error {
	if durationSeconds > 0 || p.flags == nil {
		return nil
	}
	if p.flags.IsEnabled(ctx, authority.String(), FlagEnforcePositiveDuration) {
		return ErrInvalidDuration
	}
	return nil
}

// AllowAnyDuration is the policy used when feature flags are not wired.
type AllowAnyDuration struct{}

func (AllowAnyDuration) CheckIssueDuration(context.Context, Identity, int64) error {
	return nil
}
