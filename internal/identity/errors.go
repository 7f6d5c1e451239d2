package identity

import (
	"encoding/json"
	"strings"

	apperrors "github.com/easyfix/easyfix-go/internal/errors"
)

// providerError is the error envelope the Identity Toolkit API returns.
type providerError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapProviderError converts an Identity Toolkit error response into the
// service taxonomy. The provider sometimes appends detail after the code
// ("WEAK_PASSWORD : Password should be at least 6 characters"), so codes
// are matched by prefix.
func mapProviderError(status int, body []byte) *apperrors.Error {
	var pe providerError
	code := ""
	if err := json.Unmarshal(body, &pe); err == nil {
		code = pe.Error.Message
	}

	switch {
	case strings.HasPrefix(code, "EMAIL_EXISTS"):
		return apperrors.Validation("email already in use").WithContext("provider_code", code)
	case strings.HasPrefix(code, "WEAK_PASSWORD"):
		return apperrors.Validation("password too weak").WithContext("provider_code", code)
	case strings.HasPrefix(code, "EMAIL_NOT_FOUND"),
		strings.HasPrefix(code, "INVALID_PASSWORD"),
		strings.HasPrefix(code, "INVALID_LOGIN_CREDENTIALS"),
		strings.HasPrefix(code, "USER_DISABLED"):
		return apperrors.Authentication("invalid credentials").WithContext("provider_code", code)
	case strings.HasPrefix(code, "INVALID_ID_TOKEN"),
		strings.HasPrefix(code, "TOKEN_EXPIRED"),
		strings.HasPrefix(code, "CREDENTIAL_TOO_OLD_LOGIN_AGAIN"),
		strings.HasPrefix(code, "USER_NOT_FOUND"):
		return apperrors.Authentication("invalid or expired token").WithContext("provider_code", code)
	case status >= 500:
		return apperrors.Upstreamf(nil, "identity provider error (%d)", status).
			WithContext("provider_code", code)
	default:
		return apperrors.Internal(nil, "unexpected identity provider response").
			WithContext("provider_code", code).
			WithContext("status", status)
	}
}
