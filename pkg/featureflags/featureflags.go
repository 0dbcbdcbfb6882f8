package featureflags

import (
	"context"

	"license-authority/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

type FeatureFlag interface {
	Features(ctx context.Context) ([]flagsmith.Flag, error)
	Flags(ctx context.Context, identifier string, traits ...*flagsmith.Trait) (flagsmith.Flags, error)
	// IsEnabled reports whether feature is on for identifier. Lookup failures
	// and an unconfigured client count as off.
	IsEnabled(ctx context.Context, identifier, feature string) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		zap.L().Info("flagsmith api key not set, feature flags disabled")
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithAnalytics(),
	}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Features(ctx context.Context) ([]flagsmith.Flag, error) {
	if s.client == nil {
		return nil, nil
	}

	flags, err := s.client.GetEnvironmentFlags()
	if err != nil {
		return nil, err
	}

	return flags.AllFlags(), nil
}

func (s *featureflag) Flags(ctx context.Context, identifier string, traits ...*flagsmith.Trait) (flagsmith.Flags, error) {
	if s.client == nil {
		return flagsmith.Flags{}, nil
	}

	var traitSlice []*flagsmith.Trait
	if len(traits) > 0 {
		traitSlice = traits
	}

	return s.client.GetIdentityFlags(identifier, traitSlice)
}

func (s *featureflag) IsEnabled(ctx context.Context, identifier, feature string) bool {
	if s.client == nil {
		return false
	}

	flags, err := s.Flags(ctx, identifier)
	if err != nil {
		zap.L().Warn("failed to fetch feature flags", zap.String("feature", feature), zap.Error(err))
		return false
	}

	enabled, err := flags.IsFeatureEnabled(feature)
	if err != nil {
		return false
	}
	return enabled
}
