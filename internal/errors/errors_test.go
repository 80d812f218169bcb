package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsMapHTTPStatus(t *testing.T) {
	cases := []struct {
		err    *ServiceError
		code   Code
		status int
	}{
		{InvalidAccount("bad key"), CodeInvalidAccount, http.StatusBadRequest},
		{SequenceFetch(stderrors.New("rpc down")), CodeSequenceFetch, http.StatusBadGateway},
		{Unauthorized("no token"), CodeUnauthorized, http.StatusUnauthorized},
		{InvalidToken(nil), CodeInvalidToken, http.StatusUnauthorized},
		{NotFound("missing"), CodeNotFound, http.StatusNotFound},
		{RateLimited("slow down"), CodeRateLimited, http.StatusTooManyRequests},
		{BadRequest("malformed"), CodeBadRequest, http.StatusBadRequest},
		{Internal("boom", nil), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code)
		assert.Equal(t, tc.status, tc.err.HTTPStatus)
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := SequenceFetch(cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "SEQUENCE_FETCH_FAILED")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWithDetails(t *testing.T) {
	err := BadRequest("invalid field").WithDetails("field", "nonce").WithDetails("value", 7)

	require.NotNil(t, err.Details)
	assert.Equal(t, "nonce", err.Details["field"])
	assert.Equal(t, 7, err.Details["value"])
}

func TestGetServiceError(t *testing.T) {
	svcErr := NotFound("submission")
	wrapped := fmt.Errorf("handler: %w", svcErr)

	got := GetServiceError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeNotFound, got.Code)

	assert.Nil(t, GetServiceError(stderrors.New("plain")))
	assert.Nil(t, GetServiceError(nil))
}
