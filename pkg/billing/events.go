package billing

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies a billing event the webhook endpoint knows how to
// handle. The set is closed: the router dispatches by kind and anything
// outside this set is acknowledged and dropped.
type EventKind string

const (
	KindCheckoutCompleted    EventKind = "checkout-completed"
	KindCheckoutExpired      EventKind = "checkout-expired"
	KindSubscriptionUpdated  EventKind = "subscription-updated"
	KindSubscriptionDeleted  EventKind = "subscription-deleted"
	KindInvoicePaid          EventKind = "invoice-paid"
	KindInvoicePaymentFailed EventKind = "invoice-payment-failed"
	KindUnknown              EventKind = "unknown"
)

// wireKinds maps the provider's event type strings onto the closed kind set.
var wireKinds = map[string]EventKind{
	"checkout.session.completed":    KindCheckoutCompleted,
	"checkout.session.expired":      KindCheckoutExpired,
	"customer.subscription.updated": KindSubscriptionUpdated,
	"customer.subscription.deleted": KindSubscriptionDeleted,
	"invoice.paid":                  KindInvoicePaid,
	"invoice.payment_failed":        KindInvoicePaymentFailed,
}

// Event is the normalized form of an inbound billing notification. Only the
// fields that matter for team resolution and entitlement changes survive
// parsing; everything else in the provider payload is dropped.
type Event struct {
	ID   string
	Kind EventKind

	// Resolution hints, any of which may be empty.
	TeamRef     string // explicit team hint set in checkout metadata
	UserRef     string // internal user ID set in checkout metadata
	CustomerRef string // provider customer reference
	Email       string // payer's billing email

	// Entitlement data.
	PriceRef    string // provider price reference for the purchased plan
	CheckoutRef string // checkout session reference, for provider lookups
}

// wireEvent is the provider's envelope: an ID, a type string, and a payload
// object whose shape depends on the type.
type wireEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type wireCheckoutSession struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	ClientRefID   string            `json:"client_reference_id"`
	Subscription  string            `json:"subscription"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
	CustomerEmail struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	LineItems struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"line_items"`
}

type wireSubscription struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
	Items    struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type wireInvoice struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	CustomerEmail string `json:"customer_email"`
	Lines         struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"lines"`
}

// ParseEvent decodes a verified webhook body into an Event. Unknown event
// types parse successfully with Kind set to KindUnknown so the caller can
// acknowledge and ignore them.
func ParseEvent(body []byte) (*Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse event envelope: %w", err)
	}
	if wire.Type == "" {
		return nil, fmt.Errorf("event %q has no type", wire.ID)
	}

	kind, ok := wireKinds[wire.Type]
	if !ok {
		return &Event{ID: wire.ID, Kind: KindUnknown}, nil
	}

	event := &Event{ID: wire.ID, Kind: kind}

	switch kind {
	case KindCheckoutCompleted, KindCheckoutExpired:
		var session wireCheckoutSession
		if err := json.Unmarshal(wire.Data.Object, &session); err != nil {
			return nil, fmt.Errorf("failed to parse checkout session in event %q: %w", wire.ID, err)
		}
		event.CheckoutRef = session.ID
		event.CustomerRef = session.Customer
		event.Email = session.CustomerEmail.Email
		event.TeamRef = session.Metadata["team_id"]
		event.UserRef = session.Metadata["user_id"]
		if event.UserRef == "" {
			event.UserRef = session.ClientRefID
		}
		if len(session.LineItems.Data) > 0 {
			event.PriceRef = session.LineItems.Data[0].Price.ID
		}

	case KindSubscriptionUpdated, KindSubscriptionDeleted:
		var sub wireSubscription
		if err := json.Unmarshal(wire.Data.Object, &sub); err != nil {
			return nil, fmt.Errorf("failed to parse subscription in event %q: %w", wire.ID, err)
		}
		event.CustomerRef = sub.Customer
		event.TeamRef = sub.Metadata["team_id"]
		event.UserRef = sub.Metadata["user_id"]
		if len(sub.Items.Data) > 0 {
			event.PriceRef = sub.Items.Data[0].Price.ID
		}

	case KindInvoicePaid, KindInvoicePaymentFailed:
		var inv wireInvoice
		if err := json.Unmarshal(wire.Data.Object, &inv); err != nil {
			return nil, fmt.Errorf("failed to parse invoice in event %q: %w", wire.ID, err)
		}
		event.CustomerRef = inv.Customer
		event.Email = inv.CustomerEmail
		if len(inv.Lines.Data) > 0 {
			event.PriceRef = inv.Lines.Data[0].Price.ID
		}
	}

	return event, nil
}
