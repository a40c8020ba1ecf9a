// Package engine is the entry point the HTTP layer and the CLI call.
//
// Engine combines the rule classifier, the escalation router, the budget
// ledger and the learner store. Only two conditions reach callers as
// errors: a referenced learner, streak or task that does not exist
// (ErrNotFound) and malformed input (ErrValidation). Budget exhaustion and
// provider trouble are absorbed by the router and show up as a lower tier
// in the response.
package engine
