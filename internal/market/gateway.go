// Package market provides the market data gateway for NIFTY option chains.
package market

import (
	"context"
	"errors"
	"fmt"

	"vizbot/internal/models"
)

// ErrUnauthorized indicates a missing or expired access token. Callers map it
// to the re-authorization flow.
var ErrUnauthorized = errors.New("market data: unauthorized")

// ErrUpstream indicates a network failure, timeout, or open circuit breaker.
var ErrUpstream = errors.New("market data: upstream unavailable")

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Gateway defines the market data operations the bot depends on.
type Gateway interface {
	// LoginURL returns the authorization dialog URL for the manual code flow.
	LoginURL() string

	// ExchangeAuthCode exchanges a copy-pasted authorization code for an
	// access token.
	ExchangeAuthCode(ctx context.Context, code string) (string, error)

	// ListExpiries returns the available NIFTY 50 expiries, soonest first.
	ListExpiries(ctx context.Context, accessToken string) ([]models.Expiry, error)

	// GetOptionChain returns the option chain snapshot for one expiry.
	GetOptionChain(ctx context.Context, accessToken, expiry string) (*models.OptionChain, error)
}
