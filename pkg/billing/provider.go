package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// CheckoutSession is the expanded view of a completed checkout, fetched from
// the provider when the webhook payload arrives without line items.
type CheckoutSession struct {
	ID          string
	CustomerRef string
	Email       string
	PriceRef    string
	TeamRef     string
	UserRef     string
}

// Customer is the provider's customer record, used to recover a billing
// email when the checkout payload carries none.
type Customer struct {
	Ref   string
	Email string
}

// ProviderClient performs read-only lookups against the payment provider.
// Webhook handling never writes provider state.
type ProviderClient interface {
	GetCheckoutSession(ctx context.Context, sessionRef string) (*CheckoutSession, error)
	GetCustomer(ctx context.Context, customerRef string) (*Customer, error)
}

// HTTPProviderClient is a ProviderClient over the provider's REST API.
type HTTPProviderClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProviderClient creates a provider client for the given API base URL
func NewHTTPProviderClient(baseURL, apiKey string, timeout time.Duration) *HTTPProviderClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProviderClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetCheckoutSession fetches a checkout session with line items expanded
func (c *HTTPProviderClient) GetCheckoutSession(ctx context.Context, sessionRef string) (*CheckoutSession, error) {
	endpoint := fmt.Sprintf("%s/v1/checkout/sessions/%s?expand[]=line_items", c.baseURL, url.PathEscape(sessionRef))

	var wire wireCheckoutSession
	if err := c.get(ctx, endpoint, &wire); err != nil {
		return nil, fmt.Errorf("failed to fetch checkout session %s: %w", sessionRef, err)
	}

	session := &CheckoutSession{
		ID:          wire.ID,
		CustomerRef: wire.Customer,
		Email:       wire.CustomerEmail.Email,
		TeamRef:     wire.Metadata["team_id"],
		UserRef:     wire.Metadata["user_id"],
	}
	if session.UserRef == "" {
		session.UserRef = wire.ClientRefID
	}
	if len(wire.LineItems.Data) > 0 {
		session.PriceRef = wire.LineItems.Data[0].Price.ID
	}
	return session, nil
}

// GetCustomer fetches a customer record
func (c *HTTPProviderClient) GetCustomer(ctx context.Context, customerRef string) (*Customer, error) {
	endpoint := fmt.Sprintf("%s/v1/customers/%s", c.baseURL, url.PathEscape(customerRef))

	var wire struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := c.get(ctx, endpoint, &wire); err != nil {
		return nil, fmt.Errorf("failed to fetch customer %s: %w", customerRef, err)
	}

	return &Customer{Ref: wire.ID, Email: wire.Email}, nil
}

func (c *HTTPProviderClient) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}
