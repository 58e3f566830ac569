// Package captcha checks reCAPTCHA responses against the siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the reCAPTCHA settings
type Config struct {
	Secret    string        `env:"CAPTCHA_SECRET"`
	VerifyURL string        `env:"CAPTCHA_VERIFY_URL" envDefault:"https://www.google.com/recaptcha/api/siteverify"`
	Timeout   time.Duration `env:"CAPTCHA_TIMEOUT" envDefault:"10s"`
}

// Result is the siteverify answer
type Result struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
}

// ErrRejected is returned when the provider does not accept the response.
var ErrRejected = errors.New("captcha rejected")

// ErrMissing is returned for an empty response token.
var ErrMissing = errors.New(`param "g-recaptcha-response" not provided`)

// Verifier calls the siteverify endpoint
type Verifier struct {
	cfg    Config
	client *http.Client
}

// NewVerifier creates a verifier. A nil client gets one bounded by cfg.Timeout.
func NewVerifier(cfg Config, client *http.Client) *Verifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Verifier{cfg: cfg, client: client}
}

// Check returns the provider's verdict on a response token
func (v *Verifier) Check(ctx context.Context, response string) (*Result, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, ErrMissing
	}

	form := url.Values{"secret": {v.cfg.Secret}, "response": {response}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call captcha provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("captcha provider returned status %d", resp.StatusCode)
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode captcha response: %w", err)
	}
	return &result, nil
}

// Verify succeeds only when the provider accepts the response token
func (v *Verifier) Verify(ctx context.Context, response string) error {
	result, err := v.Check(ctx, response)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(result.ErrorCodes, ", "))
	}
	return nil
}
