// Package resilience decides what happens after a failure: which category
// it belongs to, whether a write is queued for later, and which notice the
// student sees.
package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/pkg/circuitbreaker"
)

var (
	networkTokens = []string{
		"network", "fetch", "connection", "connect:", "dial tcp", "timeout",
		"timed out", "unreachable", "no such host", "broken pipe", "eof",
		"offline", "reset by peer", "refused",
	}
	validationTokens = []string{
		"validation", "invalid", "required", "must be", "out of range",
		"malformed", "violates check constraint",
	}
	authTokens = []string{
		"unauthorized", "unauthenticated", "authentication", "jwt", "token expired",
		"session expired", "forbidden", "permission denied", "not logged in",
	}
)

// Classify resolves the category of err. A valid hint wins; then the tag
// attached where the error was raised; then known error kinds; and finally
// a substring match over the message in the order network, validation,
// authentication. Message matching is best-effort and only a fallback for
// untagged errors.
func Classify(err error, hint shared.Category) shared.Category {
	if hint != "" && hint.IsValid() {
		return hint
	}
	if err == nil {
		return shared.CategoryUnknown
	}

	if cat, ok := shared.CategoryOf(err); ok {
		return cat
	}

	switch {
	case shared.IsValidation(err):
		return shared.CategoryValidation
	case errors.Is(err, shared.ErrUnauthorized):
		return shared.CategoryAuthentication
	case errors.Is(err, shared.ErrServiceUnavailable),
		errors.Is(err, shared.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, circuitbreaker.ErrCircuitOpen),
		errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return shared.CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, networkTokens):
		return shared.CategoryNetwork
	case containsAny(msg, validationTokens):
		return shared.CategoryValidation
	case containsAny(msg, authTokens):
		return shared.CategoryAuthentication
	}
	return shared.CategoryUnknown
}

// IsNetwork reports whether err classifies as a connectivity failure.
func IsNetwork(err error) bool {
	return err != nil && Classify(err, "") == shared.CategoryNetwork
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
