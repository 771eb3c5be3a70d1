package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"vizbot/internal/models"
	"vizbot/pkg/utils"
)

// niftyInstrumentKey identifies the NIFTY 50 index on Upstox.
const niftyInstrumentKey = "NSE_INDEX|Nifty 50"

// UpstoxClient implements Gateway against the Upstox v2 HTTP API.
type UpstoxClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker
	baseURL     string
	apiKey      string
	apiSecret   string
	redirectURI string
	lotSize     int
	logger      zerolog.Logger
}

// UpstoxConfig holds configuration for the Upstox client.
type UpstoxConfig struct {
	BaseURL     string
	APIKey      string
	APISecret   string
	RedirectURI string
	Timeout     time.Duration
	LotSize     int
	Logger      zerolog.Logger
}

// NewUpstoxClient creates a new Upstox market data client.
func NewUpstoxClient(cfg UpstoxConfig) *UpstoxClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.upstox.com/v2"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "upstox",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &UpstoxClient{
		client:      &http.Client{Timeout: timeout},
		breaker:     breaker,
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		redirectURI: cfg.RedirectURI,
		lotSize:     cfg.LotSize,
		logger:      cfg.Logger,
	}
}

// LoginURL returns the Upstox authorization dialog URL.
func (u *UpstoxClient) LoginURL() string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", u.apiKey)
	q.Set("redirect_uri", u.redirectURI)
	return u.baseURL + "/login/authorization/dialog?" + q.Encode()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// ExchangeAuthCode exchanges an authorization code for an access token.
func (u *UpstoxClient) ExchangeAuthCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", u.apiKey)
	form.Set("client_secret", u.apiSecret)
	form.Set("redirect_uri", u.redirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		u.baseURL+"/login/authorization/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var token tokenResponse
	if err := u.do(req, &token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned empty access token")
	}
	return token.AccessToken, nil
}

type contractResponse struct {
	Data []struct {
		Expiry  string `json:"expiry"`
		LotSize int    `json:"lot_size"`
	} `json:"data"`
}

// ListExpiries returns available NIFTY 50 expiries, soonest first.
func (u *UpstoxClient) ListExpiries(ctx context.Context, accessToken string) ([]models.Expiry, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}

	q := url.Values{}
	q.Set("instrument_key", niftyInstrumentKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		u.baseURL+"/option/contract?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building contract request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	var contracts contractResponse
	if err := u.do(req, &contracts); err != nil {
		return nil, err
	}

	now := time.Now()
	seen := make(map[string]bool)
	var dates []time.Time
	for _, c := range contracts.Data {
		if seen[c.Expiry] {
			continue
		}
		seen[c.Expiry] = true
		d, err := time.Parse(models.ExpiryDateLayout, c.Expiry)
		if err != nil || d.Before(now.Truncate(24*time.Hour)) {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	expiries := make([]models.Expiry, 0, len(dates))
	for _, d := range dates {
		expiries = append(expiries, models.MakeExpiry(d, now))
	}
	return expiries, nil
}

type chainResponse struct {
	Data []struct {
		StrikePrice         float64   `json:"strike_price"`
		UnderlyingSpotPrice float64   `json:"underlying_spot_price"`
		CallOptions         *chainLeg `json:"call_options"`
		PutOptions          *chainLeg `json:"put_options"`
	} `json:"data"`
}

type chainLeg struct {
	MarketData struct {
		LTP    float64 `json:"ltp"`
		OI     int64   `json:"oi"`
		Volume int64   `json:"volume"`
	} `json:"market_data"`
	OptionGreeks struct {
		Delta float64 `json:"delta"`
		Gamma float64 `json:"gamma"`
		Theta float64 `json:"theta"`
		Vega  float64 `json:"vega"`
		IV    float64 `json:"iv"`
	} `json:"option_greeks"`
}

// GetOptionChain returns the NIFTY option chain for one expiry.
func (u *UpstoxClient) GetOptionChain(ctx context.Context, accessToken, expiry string) (*models.OptionChain, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}

	q := url.Values{}
	q.Set("instrument_key", niftyInstrumentKey)
	q.Set("expiry_date", expiry)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		u.baseURL+"/option/chain?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building chain request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	var raw chainResponse
	if err := u.do(req, &raw); err != nil {
		return nil, err
	}

	chain := &models.OptionChain{
		Symbol:  "NIFTY",
		Expiry:  expiry,
		LotSize: u.lotSize,
		Strikes: make([]models.OptionStrike, 0, len(raw.Data)),
	}
	for _, row := range raw.Data {
		if row.UnderlyingSpotPrice > 0 {
			chain.SpotPrice = row.UnderlyingSpotPrice
		}
		chain.Strikes = append(chain.Strikes, models.OptionStrike{
			Strike: row.StrikePrice,
			Call:   legToOptionData(row.CallOptions),
			Put:    legToOptionData(row.PutOptions),
		})
	}
	sort.Slice(chain.Strikes, func(i, j int) bool {
		return chain.Strikes[i].Strike < chain.Strikes[j].Strike
	})
	return chain, nil
}

func legToOptionData(leg *chainLeg) *models.OptionData {
	if leg == nil {
		return nil
	}
	return &models.OptionData{
		LTP:    leg.MarketData.LTP,
		OI:     leg.MarketData.OI,
		Volume: leg.MarketData.Volume,
		IV:     leg.OptionGreeks.IV,
		Greeks: models.OptionGreeks{
			Delta: leg.OptionGreeks.Delta,
			Gamma: leg.OptionGreeks.Gamma,
			Theta: leg.OptionGreeks.Theta,
			Vega:  leg.OptionGreeks.Vega,
		},
	}
}

// do executes a request through the circuit breaker and decodes the response.
// Transient upstream failures are retried with backoff; auth and client
// errors are not.
func (u *UpstoxClient) do(req *http.Request, target interface{}) error {
	start := time.Now()

	retryCfg := utils.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		Retryable: func(err error) bool {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return false
			}
			return errors.Is(err, ErrUpstream)
		},
	}

	err := utils.Retry(req.Context(), retryCfg, func() error {
		attempt := req.Clone(req.Context())
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return fmt.Errorf("rewinding request body: %w", err)
			}
			attempt.Body = body
		}

		_, err := u.breaker.Execute(func() (interface{}, error) {
			resp, err := u.client.Do(attempt)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
			if err != nil {
				return nil, fmt.Errorf("%w: reading response: %v", ErrUpstream, err)
			}

			switch {
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return nil, fmt.Errorf("%w: %v", ErrUnauthorized, &APIError{Status: resp.StatusCode, Body: string(body)})
			case resp.StatusCode >= 500:
				return nil, fmt.Errorf("%w: %v", ErrUpstream, &APIError{Status: resp.StatusCode, Body: string(body)})
			case resp.StatusCode >= 400:
				return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
			}

			if err := json.Unmarshal(body, target); err != nil {
				return nil, fmt.Errorf("decoding response: %w", err)
			}
			return nil, nil
		})
		return err
	})

	u.logRequest(req, time.Since(start), err)

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return fmt.Errorf("%w: circuit open", ErrUpstream)
		}
		return err
	}
	return nil
}

func (u *UpstoxClient) logRequest(req *http.Request, duration time.Duration, err error) {
	event := u.logger.Debug().
		Str("event", "api_call").
		Str("method", req.Method).
		Str("endpoint", req.URL.Path).
		Dur("duration", duration)
	if err != nil {
		event.Err(err).Msg("Upstox request failed")
	} else {
		event.Msg("Upstox request completed")
	}
}

// Ensure UpstoxClient implements Gateway.
var _ Gateway = (*UpstoxClient)(nil)
