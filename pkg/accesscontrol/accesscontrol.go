package accesscontrol

import (
	"fmt"
	"strings"

	"license-authority/pkg/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ObjectLicense = "license"

	ActionIssue     = "issue"
	ActionRenew     = "renew"
	ActionSetStatus = "set_status"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

var Module = fx.Module("accesscontrol", fx.Provide(ProvideEnforcer))

// Enforcer is satisfied by *casbin.Enforcer.
type Enforcer interface {
	Enforce(rvals ...interface{}) (bool, error)
}

// NewEnforcer builds the enforcer. policyPath, when set, is a casbin CSV
// policy file loaded on top of the grants for authority.
func NewEnforcer(authority, policyPath string) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var e *casbin.Enforcer
	if policyPath != "" {
		e, err = casbin.NewEnforcer(m, fileadapter.NewAdapter(policyPath))
	} else {
		e, err = casbin.NewEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("access control: %w", err)
	}

	// Grants for the configured authority live in memory only.
	e.EnableAutoSave(false)

	authority = strings.ToLower(strings.TrimSpace(authority))
	if authority != "" {
		for _, act := range []string{ActionIssue, ActionRenew, ActionSetStatus} {
			if _, err := e.AddPolicy(authority, ObjectLicense, act); err != nil {
				return nil, fmt.Errorf("access control: grant %s: %w", act, err)
			}
		}
	}

	return e, nil
}

func ProvideEnforcer(cfg *config.Config) (Enforcer, error) {
	e, err := NewEnforcer(cfg.Authority.Key, cfg.AccessControl.Policy)
	if err != nil {
		zap.L().Error("failed to build access control enforcer", zap.Error(err))
		return nil, err
	}
	return e, nil
}
