package oauth

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyInProgress = errors.New("oauth: authorization already in progress")
	ErrInvalidState      = errors.New("oauth: redirect state does not match")
	ErrMissingCode       = errors.New("oauth: redirect carried no authorization code")
	ErrNotAuthorized     = errors.New("oauth: not authorized")
	ErrNotStarted        = errors.New("oauth: no authorization attempt started")
	ErrClosed            = errors.New("oauth: flow closed")

	// ErrRedirect matches any *RedirectError.
	ErrRedirect = errors.New("oauth: provider denied authorization")
	// ErrTokenExchange matches any *TokenExchangeError.
	ErrTokenExchange = errors.New("oauth: token exchange failed")
)

// RedirectError carries the error the provider put on the redirect.
type RedirectError struct {
	Code        string
	Description string
}

func (e *RedirectError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth: provider returned %s: %s", e.Code, e.Description)
	}
	return "oauth: provider returned " + e.Code
}

func (e *RedirectError) Is(target error) bool { return target == ErrRedirect }

// TokenExchangeError wraps a failed authorization code exchange.
type TokenExchangeError struct {
	Err error
}

func (e *TokenExchangeError) Error() string { return "oauth: token exchange failed: " + e.Err.Error() }

func (e *TokenExchangeError) Unwrap() error { return e.Err }

func (e *TokenExchangeError) Is(target error) bool { return target == ErrTokenExchange }
