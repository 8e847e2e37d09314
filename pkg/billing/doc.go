// Package billing receives signed events from the payment provider and
// applies them to team entitlements.
//
// An inbound delivery moves through a fixed pipeline: signature
// verification, payload parsing into a closed set of event kinds, team
// resolution from the event's identity hints, then a per-kind handler that
// updates the team's plan refs and resets its credit allowance. Signature
// failure is the only condition reported back as an error status; every
// other terminal state acknowledges the delivery, because the provider's
// redelivery loop cannot fix an event whose team does not exist.
//
// Credit grants always reset the balance to the plan's absolute allowance,
// never add to it, so redelivered or overlapping period-start events are
// harmless.
package billing
