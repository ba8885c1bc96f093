package firebase

import (
	"encoding/json"
	"strings"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

// Identity Toolkit error codes, as returned in error.message.
const (
	codeEmailExists          = "EMAIL_EXISTS"
	codeWeakPassword         = "WEAK_PASSWORD"
	codeInvalidEmail         = "INVALID_EMAIL"
	codeMissingEmail         = "MISSING_EMAIL"
	codeMissingPassword      = "MISSING_PASSWORD"
	codeEmailNotFound        = "EMAIL_NOT_FOUND"
	codeInvalidPassword      = "INVALID_PASSWORD"
	codeInvalidCredentials   = "INVALID_LOGIN_CREDENTIALS"
	codeInvalidIDPResponse   = "INVALID_IDP_RESPONSE"
	codeUserDisabled         = "USER_DISABLED"
	codeTooManyAttempts      = "TOO_MANY_ATTEMPTS_TRY_LATER"
	codeOperationNotAllowed  = "OPERATION_NOT_ALLOWED"
	codeInvalidIDToken       = "INVALID_ID_TOKEN"
	codeTokenExpired         = "TOKEN_EXPIRED"
	codeUserNotFound         = "USER_NOT_FOUND"
	codeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"
	codeInvalidAPIKeyMessage = "API key not valid"
)

type mappedError struct {
	code    string
	message string
}

var toolkitErrors = map[string]mappedError{
	codeEmailExists:         {storefront.CodeEmailAlreadyInUse, "The email address is already in use by another account."},
	codeWeakPassword:        {storefront.CodeWeakPassword, "Password should be at least 6 characters."},
	codeInvalidEmail:        {"auth/invalid-email", "The email address is badly formatted."},
	codeMissingEmail:        {"auth/missing-email", "An email address must be provided."},
	codeMissingPassword:     {"auth/missing-password", "A password must be provided."},
	codeEmailNotFound:       {"auth/user-not-found", "There is no user record corresponding to this identifier."},
	codeInvalidPassword:     {"auth/wrong-password", "The password is invalid."},
	codeInvalidCredentials:  {"auth/invalid-credential", "The supplied credentials are incorrect."},
	codeInvalidIDPResponse:  {"auth/invalid-credential", "The supplied auth credential is malformed or has expired."},
	codeUserDisabled:        {"auth/user-disabled", "The user account has been disabled by an administrator."},
	codeTooManyAttempts:     {"auth/too-many-requests", "Too many unsuccessful attempts. Please try again later."},
	codeOperationNotAllowed: {storefront.CodeOperationNotAllowed, "This sign-in method is not enabled."},
	codeInvalidIDToken:      {"auth/invalid-user-token", "Your session is no longer valid. Please sign in again."},
	codeTokenExpired:        {"auth/user-token-expired", "Your session has expired. Please sign in again."},
	codeUserNotFound:        {"auth/user-not-found", "There is no user record corresponding to this identifier."},
	codeInvalidRefreshToken: {"auth/invalid-user-token", "Your session is no longer valid. Please sign in again."},
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// providerError maps an Identity Toolkit error body to a ProviderError.
func providerError(data []byte) *storefront.ProviderError {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Message == "" {
		return &storefront.ProviderError{
			Code:    storefront.CodeInternal,
			Message: "The identity service returned an unexpected response.",
		}
	}

	// Messages look like "WEAK_PASSWORD : Password should be at least 6 characters".
	raw := body.Error.Message
	code := raw
	if i := strings.Index(raw, " : "); i >= 0 {
		code = raw[:i]
	}
	code = strings.TrimSpace(code)

	if m, ok := toolkitErrors[code]; ok {
		return &storefront.ProviderError{Code: m.code, Message: m.message}
	}
	if strings.Contains(raw, codeInvalidAPIKeyMessage) {
		return &storefront.ProviderError{Code: "auth/invalid-api-key", Message: "The identity service API key is not valid."}
	}
	return &storefront.ProviderError{Code: storefront.CodeInternal, Message: raw}
}
