// Package apierrors defines the small set of structured error codes returned in API responses.
package apierrors

// Code identifies the class of an API error for machine consumption. String-typed so responses stay stable across
// releases even if numeric HTTP status codes are reused for different purposes.
type Code string

const (
	ValidationError    Code = "VALIDATION_ERROR"
	InvalidBody        Code = "INVALID_BODY"
	Unauthorized       Code = "UNAUTHORIZED"
	TokenExpired       Code = "TOKEN_EXPIRED"
	Forbidden          Code = "FORBIDDEN"
	NotFound           Code = "NOT_FOUND"
	AlreadyJoined      Code = "ALREADY_JOINED"
	RateLimited        Code = "RATE_LIMITED"
	PayloadTooLarge    Code = "PAYLOAD_TOO_LARGE"
	ServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	InternalError      Code = "INTERNAL_ERROR"
)
