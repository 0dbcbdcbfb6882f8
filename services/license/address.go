package license

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const addressSeed = "license"

// Identity is an Ed25519 public key in lowercase hex.
type Identity string

func ParseIdentity(s string) (Identity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}
	return Identity(s), nil
}

// IdentityFromKey renders a raw public key as an Identity.
func IdentityFromKey(pub ed25519.PublicKey) Identity {
	return Identity(hex.EncodeToString(pub))
}

func (i Identity) String() string {
	return string(i)
}

// PublicKey decodes the identity. Callers are expected to hold a parsed value.
func (i Identity) PublicKey() (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(string(i))
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, ErrInvalidIdentity
	}
	return ed25519.PublicKey(b), nil
}

// DeriveAddress maps (owner, softwareID) to its single license slot:
// hex(sha256("license" || owner || le64(softwareID))).
func DeriveAddress(owner Identity, softwareID uint64) (string, error) {
	key, err := owner.PublicKey()
	if err != nil {
		return "", err
	}

	var sid [8]byte
	binary.LittleEndian.PutUint64(sid[:], softwareID)

	h := sha256.New()
	h.Write([]byte(addressSeed))
	h.Write(key)
	h.Write(sid[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ParseSoftwareID accepts a decimal id. Storage columns are signed 64-bit, so
// ids above math.MaxInt64 are refused.
func ParseSoftwareID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSoftwareID, s)
	}
	return id, ValidateSoftwareID(id)
}

func ValidateSoftwareID(id uint64) error {
	if id > math.MaxInt64 {
		return fmt.Errorf("%w: %d", ErrInvalidSoftwareID, id)
	}
	return nil
}

func validAddress(address string) bool {
	if len(address) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(address)
	return err == nil
}

func formatSoftwareID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
