// Package escalation decides whether a decision is worth a paid model call
// and makes the call when it is.
//
// Every operation has a deterministic answer that costs nothing: the rule
// classifier's choice, or a template report. The Router only replaces that
// answer with a model result when the ledger grants budget, the rate limiter
// has capacity, the provider answers within the tier timeout, and the reply
// parses. Any other path returns the deterministic answer with the reason it
// was used, so callers never see a provider or budget error.
//
// The flow for one call is:
//
//	CheckBudget -> rate limiter -> Reserve (tier 3 only) -> provider call
//	    -> parse reply -> record usage -> Outcome
//
// Usage is recorded for every attempt that reached a provider. A failed
// attempt records zero cost; a reply that fails to parse still owes its
// tokens.
package escalation
