package license

import (
	"errors"

	"license-authority/pkg/errutil"
)

var (
	ErrUnauthorizedAuthority = errors.New("Only the authorized service wallet can perform this action.")
	ErrDuplicateLicense      = errors.New("A license already exists for this owner and software id.")
	ErrLicenseNotActive      = errors.New("The license is not marked as active.")
	ErrLicenseExpired        = errors.New("The license has expired.")
	ErrLicenseNotFound       = errors.New("The license does not exist.")
	ErrInvalidDuration       = errors.New("The duration is not allowed for this operation.")
	ErrTimestampOverflow     = errors.New("The resulting timestamp is out of range.")
	ErrInvalidIdentity       = errors.New("The identity must be a hex encoded ed25519 public key.")
	ErrInvalidSoftwareID     = errors.New("The software id is out of range.")
	ErrInvalidAddress        = errors.New("The license address is malformed.")
	ErrAddressMismatch       = errors.New("The license record does not match its address.")
)

// toBaseError maps a domain sentinel to its transport error. Unknown errors
// become internal errors; errors already shaped by errutil pass through.
func toBaseError(err error) error {
	if err == nil {
		return nil
	}

	var be errutil.BaseError
	if errors.As(err, &be) {
		return err
	}

	switch {
	case errors.Is(err, ErrUnauthorizedAuthority):
		return errutil.Forbidden(ErrUnauthorizedAuthority.Error(), err, errutil.WithReason("UnauthorizedAuthority"))
	case errors.Is(err, ErrDuplicateLicense):
		return errutil.Conflict(ErrDuplicateLicense.Error(), err, errutil.WithReason("DuplicateLicense"))
	case errors.Is(err, ErrLicenseNotActive):
		return errutil.Forbidden(ErrLicenseNotActive.Error(), err, errutil.WithReason("LicenseNotActive"))
	case errors.Is(err, ErrLicenseExpired):
		return errutil.Forbidden(ErrLicenseExpired.Error(), err, errutil.WithReason("LicenseExpired"))
	case errors.Is(err, ErrLicenseNotFound):
		return errutil.NotFound(ErrLicenseNotFound.Error(), err, errutil.WithReason("LicenseNotFound"))
	case errors.Is(err, ErrInvalidDuration):
		return errutil.BadRequest(ErrInvalidDuration.Error(), err, errutil.WithReason("InvalidDuration"))
	case errors.Is(err, ErrTimestampOverflow):
		return errutil.BadRequest(ErrTimestampOverflow.Error(), err, errutil.WithReason("TimestampOverflow"))
	case errors.Is(err, ErrInvalidIdentity):
		return errutil.BadRequest(ErrInvalidIdentity.Error(), err, errutil.WithReason("InvalidIdentity"))
	case errors.Is(err, ErrInvalidSoftwareID):
		return errutil.BadRequest(ErrInvalidSoftwareID.Error(), err, errutil.WithReason("InvalidSoftwareId"))
	case errors.Is(err, ErrInvalidAddress):
		return errutil.BadRequest(ErrInvalidAddress.Error(), err, errutil.WithReason("InvalidAddress"))
	case errors.Is(err, ErrAddressMismatch):
		return errutil.Internal(ErrAddressMismatch.Error(), err, errutil.WithReason("AddressMismatch"))
	default:
		return errutil.Internal("internal error", err)
	}
}

func badCursor(err error) error {
	return errutil.BadRequest("The pagination cursor is invalid.", err, errutil.WithReason("InvalidCursor"))
}
