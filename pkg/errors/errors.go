// Package errors defines GravyValet's error taxonomy (spec §7): a single
// concrete error type carrying a classification, a developer-facing
// message, and an optional wrapped cause, plus the mapping from that
// classification to an HTTP status code.
package errors

import (
	"fmt"
	"net/http"
)

// Type classifies an error the way an OperationInvocation's error.kind does.
type Type string

// The error taxonomy from spec §7.
const (
	InvalidArguments     Type = "invalid_arguments"
	Unauthorized         Type = "unauthorized"
	Forbidden            Type = "forbidden"
	CredentialError      Type = "credential_error"
	ProviderError        Type = "provider_error"
	InvalidRelativeURL   Type = "invalid_relative_url"
	Timeout              Type = "timeout"
	Cancelled            Type = "cancelled"
	DibsDenied           Type = "dibs_denied"
	UnexpectedAddonError Type = "unexpected_addon_error"
)

// Error is the concrete error value propagated up to the Invocation Engine
// and, eventually, recorded on the OperationInvocation's error field.
type Error struct {
	Type    Type
	Message string
	Cause   error

	// ProviderStatus is the upstream provider's HTTP status, set only for
	// ProviderError.
	ProviderStatus int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given type.
func New(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

func NewInvalidArguments(message string, cause error) *Error {
	return New(InvalidArguments, message, cause)
}

func NewUnauthorized(message string, cause error) *Error {
	return New(Unauthorized, message, cause)
}

func NewForbidden(message string, cause error) *Error {
	return New(Forbidden, message, cause)
}

func NewCredentialError(message string, cause error) *Error {
	return New(CredentialError, message, cause)
}

// NewProviderError records the provider's own status alongside the message.
func NewProviderError(message string, providerStatus int, cause error) *Error {
	return &Error{Type: ProviderError, Message: message, Cause: cause, ProviderStatus: providerStatus}
}

func NewInvalidRelativeURL(message string, cause error) *Error {
	return New(InvalidRelativeURL, message, cause)
}

func NewTimeout(message string, cause error) *Error {
	return New(Timeout, message, cause)
}

func NewCancelled(message string, cause error) *Error {
	return New(Cancelled, message, cause)
}

func NewDibsDenied(message string, cause error) *Error {
	return New(DibsDenied, message, cause)
}

func NewUnexpectedAddonError(message string, cause error) *Error {
	return New(UnexpectedAddonError, message, cause)
}

// Code maps an error to its HTTP status per SPEC_FULL.md §7. Errors that
// are not *Error map to 500, since an unclassified error is, by
// definition, unexpected.
func Code(err error) int {
	var e *Error
	if !asError(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Type {
	case InvalidArguments:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case CredentialError:
		return http.StatusUnauthorized
	case ProviderError:
		return http.StatusBadGateway
	case InvalidRelativeURL:
		return http.StatusInternalServerError
	case Timeout:
		return http.StatusGatewayTimeout
	case Cancelled:
		return 499 // client closed request; no stdlib constant exists
	case DibsDenied:
		return http.StatusConflict
	case UnexpectedAddonError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// asError is a small helper around errors.As that avoids importing the
// stdlib "errors" package under a name that collides with this package.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
