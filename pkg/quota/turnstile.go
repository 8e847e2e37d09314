package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pagesmith/pagesmith/pkg/render"
)

// DefaultTurnstileEndpoint is the challenge service's verification endpoint.
const DefaultTurnstileEndpoint = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Verifier checks a bot-verification token for a client IP.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// TurnstileVerifier verifies tokens against the Turnstile siteverify API.
type TurnstileVerifier struct {
	secret     string
	endpoint   string
	httpClient *http.Client
}

// NewTurnstileVerifier creates a verifier for the given shared secret
func NewTurnstileVerifier(secret string, timeout time.Duration) *TurnstileVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TurnstileVerifier{
		secret:   secret,
		endpoint: DefaultTurnstileEndpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Verify posts the token and client IP to the challenge service. A network
// or server failure is an upstream error, distinct from a token that
// verified as false.
func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, &render.UpstreamUnavailableError{Service: "bot verification", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &render.UpstreamUnavailableError{
			Service: "bot verification",
			Err:     fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	var result struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode verification response: %w", err)
	}
	return result.Success, nil
}
