package secretmanager

import (
	"os"
	"time"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// Enabled reports whether a Vault address is configured in the environment.
func Enabled() bool {
	return os.Getenv("VAULT_ADDR") != ""
}

// ProvideVault builds a client from VAULT_ADDR and VAULT_TOKEN.
func ProvideVault() (*vault.Client, error) {
	client, err := vault.New(
		vault.WithEnvironment(),
		vault.WithRequestTimeout(10*time.Second),
	)
	if err != nil {
		zap.L().Error("failed to create vault client", zap.Error(err))
		return nil, err
	}

	return client, nil
}
