package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies provider and storage failures so retry, cooldown, and
// blacklist decisions don't depend on matching error text.
type ErrorKind string

const (
	ErrKindTransient  ErrorKind = "transient"
	ErrKindRateLimit  ErrorKind = "rate_limit"
	ErrKindBlacklist  ErrorKind = "blacklist"
	ErrKindValidation ErrorKind = "validation"
	ErrKindStorage    ErrorKind = "storage"
)

// FetchError is the structured error providers and gateways should return.
type FetchError struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError builds a FetchError wrapping err.
func NewFetchError(kind ErrorKind, provider, message string, err error) *FetchError {
	return &FetchError{Kind: kind, Provider: provider, Message: message, Err: err}
}

// rate-limit and entitlement phrases used as a fallback for providers with no
// structured error contract
var (
	rateLimitPhrases = []string{"rate limit", "too many requests", "429", "throttl"}
	blacklistPhrases = []string{"subscription", "paid plan", "premium", "upgrade required", "not entitled", "402"}
)

// Classify returns the ErrorKind for err. A typed FetchError wins; otherwise
// the error text is matched against known rate-limit and entitlement phrases,
// defaulting to transient.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrKindTransient
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(msg, phrase) {
			return ErrKindRateLimit
		}
	}
	for _, phrase := range blacklistPhrases {
		if strings.Contains(msg, phrase) {
			return ErrKindBlacklist
		}
	}
	return ErrKindTransient
}
