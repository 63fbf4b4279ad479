package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"

	"github.com/upb/vision-gateway/cognito"
	"github.com/upb/vision-gateway/services/graphql"
	"github.com/upb/vision-gateway/services/providers"
	"github.com/upb/vision-gateway/services/storage"
	"github.com/upb/vision-gateway/session"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	ErrInvalidInput     = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrUnauthorized     = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrForbidden        = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInternal         = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrUpstreamError    = NewDomainError(ErrorTypeExternal, "upstream service error", nil)
	ErrUpstreamTimeout  = NewDomainError(ErrorTypeExternal, "upstream service timeout", nil)
	ErrUpstreamThrottle = NewDomainError(ErrorTypeRateLimit, "upstream service throttled the request", nil)
)

// AWS error codes grouped by the HTTP outcome they map to.
var (
	unauthorizedCodes = map[string]bool{
		"NotAuthorizedException":                    true,
		"UnrecognizedClientException":               true,
		"ExpiredTokenException":                     true,
		"InvalidIdentityPoolConfigurationException": true,
	}
	forbiddenCodes = map[string]bool{
		"AccessDenied":          true,
		"AccessDeniedException": true,
		"Forbidden":             true,
	}
	notFoundCodes = map[string]bool{
		"NoSuchBucket":              true,
		"NoSuchKey":                 true,
		"NotFound":                  true,
		"ResourceNotFoundException": true,
		"UserNotFoundException":     true,
	}
	validationCodes = map[string]bool{
		"ValidationException":       true,
		"InvalidParameterException": true,
		"InvalidArgument":           true,
	}
	throttleCodes = map[string]bool{
		"ThrottlingException":           true,
		"TooManyRequestsException":      true,
		"SlowDown":                      true,
		"LimitExceededException":        true,
		"ServiceQuotaExceededException": true,
	}
)

// Classify turns an error returned by the facade or a capability into a
// DomainError so handlers can map it to a response. Errors that already are
// domain errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	switch {
	case errors.Is(err, cognito.ErrUserUnauthenticated),
		errors.Is(err, cognito.ErrTokenRefresh),
		errors.Is(err, cognito.ErrNoCredentials):
		return NewDomainError(ErrorTypeUnauthorized, "authentication required", err)

	case errors.Is(err, cognito.ErrChallengeRequired):
		return NewDomainError(ErrorTypeUnauthorized, "additional sign-in step required", err)

	case errors.Is(err, graphql.ErrInvalidQuery),
		errors.Is(err, graphql.ErrUnsupportedAuthMode),
		errors.Is(err, storage.ErrInvalidAccessLevel):
		return NewDomainError(ErrorTypeValidation, "invalid request", err)

	case errors.Is(err, graphql.ErrNotConfigured),
		errors.Is(err, graphql.ErrMissingAPIKey),
		errors.Is(err, storage.ErrNotConfigured),
		errors.Is(err, session.ErrContextDestroyed),
		errors.Is(err, session.ErrMissingTokenProvider):
		return NewDomainError(ErrorTypeInternal, "service misconfigured", err)

	case errors.Is(err, context.DeadlineExceeded):
		return NewDomainError(ErrorTypeExternal, ErrUpstreamTimeout.Message, err)

	case errors.Is(err, providers.ErrEmptyResponse):
		return NewDomainError(ErrorTypeExternal, "model returned no content", err)
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		switch statusErr.HTTPStatusCode() {
		case http.StatusUnauthorized:
			return NewDomainError(ErrorTypeUnauthorized, "upstream rejected credentials", err)
		case http.StatusForbidden:
			return NewDomainError(ErrorTypeForbidden, ErrForbidden.Message, err)
		case http.StatusTooManyRequests:
			return NewDomainError(ErrorTypeRateLimit, ErrUpstreamThrottle.Message, err)
		}
		return NewDomainError(ErrorTypeExternal, ErrUpstreamError.Message, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		var classified *DomainError
		switch {
		case unauthorizedCodes[code]:
			classified = NewDomainError(ErrorTypeUnauthorized, apiErr.ErrorMessage(), err)
		case forbiddenCodes[code]:
			classified = NewDomainError(ErrorTypeForbidden, apiErr.ErrorMessage(), err)
		case notFoundCodes[code]:
			classified = NewDomainError(ErrorTypeNotFound, apiErr.ErrorMessage(), err)
		case validationCodes[code]:
			classified = NewDomainError(ErrorTypeValidation, apiErr.ErrorMessage(), err)
		case throttleCodes[code]:
			classified = NewDomainError(ErrorTypeRateLimit, ErrUpstreamThrottle.Message, err)
		default:
			classified = NewDomainError(ErrorTypeExternal, ErrUpstreamError.Message, err)
		}
		return classified.WithDetail("code", code)
	}

	return NewDomainError(ErrorTypeInternal, ErrInternal.Message, err)
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return GetErrorType(err) == ErrorTypeRateLimit
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsExternalError checks if an error is an external service error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external service error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
