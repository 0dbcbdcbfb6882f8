package rediskey

import "fmt"

// License keys (global convention across services)
const (
	LicensePrefix = "license"
	FencePrefix   = "license-fence"
	NoncePrefix   = "authority-nonce"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildLicenseKey returns "license:{address}"
func BuildLicenseKey(address string) string {
	return NamespaceKey(LicensePrefix, address)
}

// BuildLicenseFenceKey returns "license-fence:{address}"
func BuildLicenseFenceKey(address string) string {
	return NamespaceKey(FencePrefix, address)
}

// BuildNonceKey returns "authority-nonce:{authority}:{nonce}"
func BuildNonceKey(authority, nonce string) string {
	return NamespaceKey(NoncePrefix, authority+":"+nonce)
}
