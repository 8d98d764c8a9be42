package auth

import (
	"fmt"
	"net/http"
)

// Kind classifies an authentication failure.
type Kind string

const (
	KindConfigurationMissing Kind = "configuration_missing"
	KindProviderError        Kind = "provider_error"
	KindMissingCode          Kind = "missing_code"
	KindStateMismatch        Kind = "state_mismatch"
	KindTokenExchangeFailed  Kind = "token_exchange_failed"
	KindProfileFetchFailed   Kind = "profile_fetch_failed"
	KindProviderUnavailable  Kind = "provider_unavailable"
)

// StatusCode maps a failure kind to the HTTP status shown to the requester.
func (k Kind) StatusCode() int {
	switch k {
	case KindConfigurationMissing:
		return http.StatusInternalServerError
	case KindProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// SecurityRelevant reports whether the failure is a rejected request rather
// than a provider-side problem. These are never retried automatically.
func (k Kind) SecurityRelevant() bool {
	return k == KindStateMismatch || k == KindMissingCode
}

// Error is an authentication failure. Two errors match with errors.Is when
// their kinds are equal, so the package-level sentinels can be used as targets.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// StatusCode returns the HTTP status for this failure.
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

var (
	ErrConfigurationMissing = &Error{Kind: KindConfigurationMissing}
	ErrProviderError        = &Error{Kind: KindProviderError}
	ErrMissingCode          = &Error{Kind: KindMissingCode}
	ErrStateMismatch        = &Error{Kind: KindStateMismatch}
	ErrTokenExchangeFailed  = &Error{Kind: KindTokenExchangeFailed}
	ErrProfileFetchFailed   = &Error{Kind: KindProfileFetchFailed}
	ErrProviderUnavailable  = &Error{Kind: KindProviderUnavailable}
)

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}
