package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	plain := Validation("bad input")
	assert.Equal(t, "bad input", plain.Error())

	wrapped := Upstream(fmt.Errorf("dial tcp: refused"), "graph query failed")
	assert.Equal(t, "graph query failed: dial tcp: refused", wrapped.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindUpstream, "ignored"))
}

func TestUpstreamNilCause(t *testing.T) {
	// An upstream failure with no wrapped cause (a bare 5xx from a
	// provider) still yields a usable error.
	err := Upstreamf(nil, "identity provider error (%d)", 503).
		WithContext("provider_code", "BACKEND_ERROR")

	assert.NotNil(t, err)
	assert.Equal(t, KindUpstream, GetKind(err))
	assert.Equal(t, "identity provider error (503)", err.Error())
	assert.Equal(t, "BACKEND_ERROR", err.Context["provider_code"])
	assert.Nil(t, err.Unwrap())
}

func TestUnwrapAndIs(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Upstream(cause, "identity provider unreachable")

	assert.ErrorIs(t, err, cause)
	assert.True(t, stderrors.Is(err, New(KindUpstream, "anything")))
	assert.False(t, stderrors.Is(err, New(KindValidation, "anything")))
}

func TestGetKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"authentication", Authentication("x"), KindAuthentication},
		{"authorization", Authorization("x"), KindAuthorization},
		{"validation", Validationf("bad %s", "field"), KindValidation},
		{"not found", NotFoundf("bug %s", "42"), KindNotFound},
		{"upstream", Upstream(fmt.Errorf("down"), "x"), KindUpstream},
		{"internal", Internal(nil, "x"), KindInternal},
		{"foreign error defaults to internal", fmt.Errorf("plain"), KindInternal},
		{"nil defaults to internal", nil, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetKind(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(KindAuthentication))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(KindAuthorization))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(KindValidation))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(KindNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(KindUpstream))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindInternal))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "authentication_error", KindString(KindAuthentication))
	assert.Equal(t, "authorization_error", KindString(KindAuthorization))
	assert.Equal(t, "validation_error", KindString(KindValidation))
	assert.Equal(t, "not_found", KindString(KindNotFound))
	assert.Equal(t, "upstream_unavailable", KindString(KindUpstream))
	assert.Equal(t, "internal_error", KindString(KindInternal))
}

func TestWithContext(t *testing.T) {
	err := Validation("weak password").WithContext("provider_code", "WEAK_PASSWORD")
	assert.Equal(t, "WEAK_PASSWORD", err.Context["provider_code"])
}
