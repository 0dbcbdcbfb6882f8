package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status CoreStatus
		http   int
		grpc   codes.Code
	}{
		{StatusBadRequest, http.StatusBadRequest, codes.InvalidArgument},
		{StatusValidationFailed, http.StatusUnprocessableEntity, codes.InvalidArgument},
		{StatusUnauthorized, http.StatusUnauthorized, codes.Unauthenticated},
		{StatusForbidden, http.StatusForbidden, codes.PermissionDenied},
		{StatusNotFound, http.StatusNotFound, codes.NotFound},
		{StatusConflict, http.StatusConflict, codes.AlreadyExists},
		{StatusTooManyRequests, http.StatusTooManyRequests, codes.ResourceExhausted},
		{StatusServiceUnavailable, http.StatusServiceUnavailable, codes.Unavailable},
		{StatusInternal, http.StatusInternalServerError, codes.Internal},
		{StatusUnknown, http.StatusInternalServerError, codes.Unknown},
	}

	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			require.Equal(t, tc.http, tc.status.HTTPStatus())
			require.Equal(t, tc.grpc, tc.status.GRPCCode())
		})
	}
}

func TestBaseErrorWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Forbidden("not allowed", cause, WithReason("UnauthorizedAuthority"))

	require.ErrorIs(t, err, cause)
	require.Equal(t, "[FORBIDDEN] UnauthorizedAuthority: not allowed: boom", err.Error())

	var be BaseError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &be))
	require.Equal(t, StatusForbidden, be.Status())
	require.Equal(t, "UnauthorizedAuthority", be.Reason)
}

func TestBaseErrorOmitsDuplicateCauseText(t *testing.T) {
	err := NotFound("license not found", errors.New("license not found"))
	require.Equal(t, "[NOT_FOUND] license not found", err.Error())
}

func TestBaseErrorURL(t *testing.T) {
	be := BadRequest("bad input", nil,
		WithReason("InvalidIdentity"),
		WithDetails(Detail{Field: "owner", Message: "must be hex"}),
	).(BaseError)

	require.Equal(t,
		"details%5Bowner%5D=must+be+hex&error_code=BAD_REQUEST&error_message=bad+input&error_reason=InvalidIdentity",
		be.URL())
}

func TestToGRPCError(t *testing.T) {
	require.NoError(t, ToGRPCError(nil))

	err := ToGRPCError(Conflict("duplicate", nil, WithReason("DuplicateLicense")))
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.AlreadyExists, st.Code())
	require.Equal(t, "duplicate", st.Message())
	require.Len(t, st.Details(), 1)
	info, ok := st.Details()[0].(*errdetails.ErrorInfo)
	require.True(t, ok)
	require.Equal(t, "DuplicateLicense", info.Reason)
	require.Equal(t, ErrorDomain, info.Domain)

	st, _ = status.FromError(ToGRPCError(context.DeadlineExceeded))
	require.Equal(t, codes.DeadlineExceeded, st.Code())

	st, _ = status.FromError(ToGRPCError(errors.New("plain")))
	require.Equal(t, codes.Internal, st.Code())

	original := status.Error(codes.NotFound, "gone")
	require.Equal(t, original, ToGRPCError(original))
}
