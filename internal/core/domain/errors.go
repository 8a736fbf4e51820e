package domain

import (
	"errors"
	"fmt"
)

// Token lifecycle errors
var (
	ErrNotAuthenticated     = errors.New("domain not authenticated")
	ErrRefreshFailed        = errors.New("token refresh failed")
	ErrAuthenticationFailed = errors.New("authentication failed and token refresh unsuccessful")
	ErrMissingClientConfig  = errors.New("CLIENT_ID and CLIENT_SECRET must be configured")
)

// Transport errors
var (
	ErrTimeout     = errors.New("request timeout - Bitrix24 API is not responding")
	ErrUnreachable = errors.New("network error - unable to connect to Bitrix24")
)

// Resource errors
var (
	ErrNotFound        = errors.New("resource not found")
	ErrValidation      = errors.New("invalid input")
	ErrContactNotFound = fmt.Errorf("contact %w", ErrNotFound)
)

// RemoteAPIError is a business error reported by Bitrix24 itself, either inside
// a 200 envelope or alongside a non-2xx status.
type RemoteAPIError struct {
	Method      string
	Code        string
	Description string
	StatusCode  int
}

func (e *RemoteAPIError) Error() string {
	desc := e.Description
	if desc == "" {
		desc = e.Code
	}
	return fmt.Sprintf("Bitrix24 API Error: %s", desc)
}

// ValidationError wraps ErrValidation with a caller facing message.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
