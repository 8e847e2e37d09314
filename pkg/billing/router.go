package billing

import (
	"context"
	"fmt"

	"github.com/pagesmith/pagesmith/pkg/credits"
	"github.com/pagesmith/pagesmith/pkg/observability"
	"github.com/pagesmith/pagesmith/pkg/plans"
	"github.com/pagesmith/pagesmith/pkg/teams"
)

// Outcome is the terminal state of a dispatched event.
type Outcome string

const (
	// OutcomeApplied means the event mutated team state.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the event was acknowledged without effect, either
	// because its kind is informational or because a guard rejected it.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeUnresolved means no team could be found for the event's
	// identity hints. Logged for manual reconciliation, never retried.
	OutcomeUnresolved Outcome = "unresolved"
)

// Router applies verified billing events to team state. One handler per
// event kind; the dispatch table is exhaustive over EventKind.
type Router struct {
	teams    teams.Service
	ledger   credits.Ledger
	catalog  *plans.Catalog
	resolver *Resolver
	provider ProviderClient
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewRouter creates a router over the given collaborators. provider may be
// nil, in which case thin checkout payloads cannot be expanded.
func NewRouter(
	teamService teams.Service,
	ledger credits.Ledger,
	catalog *plans.Catalog,
	resolver *Resolver,
	provider ProviderClient,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		teams:    teamService,
		ledger:   ledger,
		catalog:  catalog,
		resolver: resolver,
		provider: provider,
		logger:   logger,
		metrics:  metrics,
	}
}

// Dispatch routes a parsed event to its handler and returns the terminal
// outcome. An error return means the handler failed mid-apply; the caller
// still acknowledges the delivery because resets and conditional updates are
// safe to reapply on the provider's own schedule.
func (r *Router) Dispatch(ctx context.Context, event *Event) (Outcome, error) {
	var outcome Outcome
	var err error

	switch event.Kind {
	case KindCheckoutCompleted:
		outcome, err = r.handleCheckoutCompleted(ctx, event)
	case KindSubscriptionDeleted:
		outcome, err = r.handleSubscriptionDeleted(ctx, event)
	case KindInvoicePaid:
		outcome, err = r.handleInvoicePaid(ctx, event)
	case KindCheckoutExpired, KindSubscriptionUpdated, KindInvoicePaymentFailed:
		// Informational only. Expired checkouts never paid, transient
		// subscription states must not change entitlements, and payment
		// failures are handled by the provider's own dunning flow.
		outcome = OutcomeIgnored
	default:
		outcome = OutcomeIgnored
	}

	if r.metrics != nil {
		r.metrics.WebhookEventsTotal.WithLabelValues(string(event.Kind), string(outcome)).Inc()
	}
	return outcome, err
}

// handleCheckoutCompleted grants the purchased plan: stores the customer and
// price refs, flips the paid flag, and resets the balance to the plan's
// allowance.
func (r *Router) handleCheckoutCompleted(ctx context.Context, event *Event) (Outcome, error) {
	// Checkout webhooks often arrive without line items. Expand through
	// the provider before resolving so the price and email are usable.
	if (event.PriceRef == "" || event.Email == "") && r.provider != nil && event.CheckoutRef != "" {
		session, err := r.provider.GetCheckoutSession(ctx, event.CheckoutRef)
		if err != nil {
			return OutcomeIgnored, fmt.Errorf("failed to expand checkout session: %w", err)
		}
		if event.PriceRef == "" {
			event.PriceRef = session.PriceRef
		}
		if event.CustomerRef == "" {
			event.CustomerRef = session.CustomerRef
		}
		if event.TeamRef == "" {
			event.TeamRef = session.TeamRef
		}
		if event.UserRef == "" {
			event.UserRef = session.UserRef
		}
		if event.Email == "" {
			event.Email = session.Email
		}
	}
	if event.Email == "" && r.provider != nil && event.CustomerRef != "" {
		customer, err := r.provider.GetCustomer(ctx, event.CustomerRef)
		if err == nil {
			event.Email = customer.Email
		}
	}

	teamID, err := r.resolver.Resolve(ctx, event)
	if err != nil {
		if IsUnresolvedIdentity(err) {
			r.logger.WithError(err).WithField("event_id", event.ID).
				Error("checkout completed for unresolvable identity, needs manual reconciliation")
			return OutcomeUnresolved, nil
		}
		return OutcomeIgnored, err
	}

	plan, ok := r.catalog.PlanForPriceRef(event.PriceRef)
	if !ok {
		r.logger.WithFields(map[string]interface{}{
			"event_id":  event.ID,
			"price_ref": event.PriceRef,
			"team_id":   teamID,
		}).Warn("checkout completed for unknown price ref, ignoring")
		return OutcomeIgnored, nil
	}

	hasPaid := plan.Paid()
	update := teams.BillingUpdate{
		PriceRef: &event.PriceRef,
		HasPaid:  &hasPaid,
	}
	if event.CustomerRef != "" {
		update.CustomerRef = &event.CustomerRef
	}
	if err := r.teams.UpdateBilling(ctx, teamID, update); err != nil {
		return OutcomeIgnored, fmt.Errorf("failed to update billing for team %s: %w", teamID, err)
	}
	if event.CustomerRef != "" {
		// The ref may have just been repointed at this team; a stale cache
		// entry would keep resolving it to the previous owner.
		r.resolver.Invalidate(event.CustomerRef)
	}

	if _, err := r.ledger.Reset(ctx, teamID, plan.Credits); err != nil {
		return OutcomeIgnored, fmt.Errorf("failed to reset credits for team %s: %w", teamID, err)
	}
	if r.metrics != nil {
		r.metrics.CreditResetsTotal.WithLabelValues(plan.Name).Inc()
	}

	r.logger.WithFields(map[string]interface{}{
		"event_id": event.ID,
		"team_id":  teamID,
		"plan":     plan.Name,
		"credits":  plan.Credits,
	}).Info("checkout completed, plan granted")
	return OutcomeApplied, nil
}

// handleSubscriptionDeleted downgrades the team to the free tier.
func (r *Router) handleSubscriptionDeleted(ctx context.Context, event *Event) (Outcome, error) {
	if event.CustomerRef == "" {
		return OutcomeUnresolved, nil
	}

	team, err := r.teams.GetTeamByCustomerRef(ctx, event.CustomerRef)
	if err != nil {
		if teams.IsNotFound(err) {
			r.logger.WithField("customer_ref", event.CustomerRef).
				Error("subscription deleted for unknown customer, needs manual reconciliation")
			return OutcomeUnresolved, nil
		}
		return OutcomeIgnored, err
	}

	free := r.catalog.FreeTier()
	hasPaid := false
	if err := r.teams.UpdateBilling(ctx, team.ID, teams.BillingUpdate{
		PriceRef: &free.PriceRef,
		HasPaid:  &hasPaid,
	}); err != nil {
		return OutcomeIgnored, fmt.Errorf("failed to downgrade team %s: %w", team.ID, err)
	}

	if _, err := r.ledger.Reset(ctx, team.ID, free.Credits); err != nil {
		return OutcomeIgnored, fmt.Errorf("failed to reset credits for team %s: %w", team.ID, err)
	}
	if r.metrics != nil {
		r.metrics.CreditResetsTotal.WithLabelValues(free.Name).Inc()
	}

	r.logger.WithFields(map[string]interface{}{
		"event_id": event.ID,
		"team_id":  team.ID,
	}).Info("subscription deleted, team downgraded to free tier")
	return OutcomeApplied, nil
}

// handleInvoicePaid renews the period allowance, guarded against invoices
// for a plan the team has since moved away from.
func (r *Router) handleInvoicePaid(ctx context.Context, event *Event) (Outcome, error) {
	if event.CustomerRef == "" {
		return OutcomeUnresolved, nil
	}

	team, err := r.teams.GetTeamByCustomerRef(ctx, event.CustomerRef)
	if err != nil {
		if teams.IsNotFound(err) {
			r.logger.WithField("customer_ref", event.CustomerRef).
				Error("invoice paid for unknown customer, needs manual reconciliation")
			return OutcomeUnresolved, nil
		}
		return OutcomeIgnored, err
	}

	// Stale-plan guard: an invoice for anything other than the currently
	// stored price ref must not reset credits.
	if team.PlanPriceRef == nil || *team.PlanPriceRef != event.PriceRef {
		r.logger.WithFields(map[string]interface{}{
			"event_id":    event.ID,
			"team_id":     team.ID,
			"invoice_ref": event.PriceRef,
		}).Info("invoice price ref does not match stored plan, ignoring")
		return OutcomeIgnored, nil
	}

	plan, ok := r.catalog.PlanForPriceRef(event.PriceRef)
	if !ok {
		return OutcomeIgnored, nil
	}

	hasPaid := plan.Paid()
	if err := r.teams.UpdateBilling(ctx, team.ID, teams.BillingUpdate{HasPaid: &hasPaid}); err != nil {
		return OutcomeIgnored, fmt.Errorf("failed to update paid flag for team %s: %w", team.ID, err)
	}

	if _, err := r.ledger.Reset(ctx, team.ID, plan.Credits); err != nil {
		return OutcomeIgnored, fmt.Errorf("failed to reset credits for team %s: %w", team.ID, err)
	}
	if r.metrics != nil {
		r.metrics.CreditResetsTotal.WithLabelValues(plan.Name).Inc()
	}

	r.logger.WithFields(map[string]interface{}{
		"event_id": event.ID,
		"team_id":  team.ID,
		"plan":     plan.Name,
	}).Info("invoice paid, period allowance reset")
	return OutcomeApplied, nil
}
