package license

import (
	"math"
)

// The functions in this file are the state transitions of a license. They do
// no I/O: the caller supplies the trusted time and the verified caller
// identity, and persists the returned record. Every transition returns a new
// value and leaves its input untouched, so a failed operation never changes a
// record.

// IssueParams describes a new license.
type IssueParams struct {
	Owner           Identity
	SoftwareID      uint64
	DurationSeconds int64
	Authority       Identity
	Now             int64
}

// Issue creates the license for a free slot. The slot check itself belongs
// to storage. Non-positive durations are accepted and yield a license that is
// already expired.
func Issue(p IssueParams) (*License, error) {
	if err := ValidateSoftwareID(p.SoftwareID); err != nil {
		return nil, err
	}

	address, err := DeriveAddress(p.Owner, p.SoftwareID)
	if err != nil {
		return nil, err
	}
	if _, err := p.Authority.PublicKey(); err != nil {
		return nil, err
	}

	expiration, ok := addSeconds(p.Now, p.DurationSeconds)
	if !ok {
		return nil, ErrTimestampOverflow
	}

	return &License{
		ID:                  address,
		Owner:               p.Owner,
		Authority:           p.Authority,
		SoftwareID:          p.SoftwareID,
		PurchaseTimestamp:   p.Now,
		ExpirationTimestamp: expiration,
		IsActive:            true,
	}, nil
}

// Renew extends the license from whichever is later, its current expiration
// or now, and reactivates it.
func Renew(l *License, caller Identity, durationSeconds, now int64) (*License, error) {
	if err := authorize(l, caller); err != nil {
		return nil, err
	}
	if durationSeconds < 0 {
		return nil, ErrInvalidDuration
	}

	base := l.ExpirationTimestamp
	if now > base {
		base = now
	}

	expiration, ok := addSeconds(base, durationSeconds)
	if !ok {
		return nil, ErrTimestampOverflow
	}

	next := *l
	next.ExpirationTimestamp = expiration
	next.PurchaseTimestamp = now
	next.IsActive = true
	return &next, nil
}

// SetActiveStatus flips the active flag. Time fields are left as they are.
func SetActiveStatus(l *License, caller Identity, status bool) (*License, error) {
	if err := authorize(l, caller); err != nil {
		return nil, err
	}

	next := *l
	next.IsActive = status
	return &next, nil
}

// CheckValidity reports why a license cannot be used at now. Inactive wins
// over expired when both hold.
func CheckValidity(l *License, now int64) error {
	if !l.IsActive {
		return ErrLicenseNotActive
	}
	if now >= l.ExpirationTimestamp {
		return ErrLicenseExpired
	}
	return nil
}

// IsValid is CheckValidity as a predicate.
func IsValid(l *License, now int64) bool {
	return CheckValidity(l, now) == nil
}

// VerifyAddress confirms the record sits at the address its own owner and
// software id derive to.
func VerifyAddress(l *License) error {
	address, err := DeriveAddress(l.Owner, l.SoftwareID)
	if err != nil {
		return err
	}
	if address != l.ID {
		return ErrAddressMismatch
	}
	return nil
}

func authorize(l *License, caller Identity) error {
	if caller == "" || caller != l.Authority {
		return ErrUnauthorizedAuthority
	}
	return nil
}

func addSeconds(base, delta int64) (int64, bool) {
	if delta > 0 && base > math.MaxInt64-delta {
		return 0, false
	}
	if delta < 0 && base < math.MinInt64-delta {
		return 0, false
	}
	return base + delta, true
}
