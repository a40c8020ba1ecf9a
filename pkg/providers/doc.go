// Package providers is the model provider layer used by the escalation
// router for tier-2 and tier-3 calls.
//
// # Overview
//
// Every adapter implements Provider, a single blocking completion call.
// Requests and responses are provider-agnostic; each adapter transforms
// them to and from its wire format.
//
//  1. Provider - the interface the router depends on
//  2. HTTPProvider - pooled HTTP transport shared by the adapters
//  3. Adapters - anthropic, openai and generic (OpenAI-compatible)
//  4. providerfactory - builds adapters from configuration
//
// # Errors
//
// HTTP and transport failures map onto a typed error family so the router
// can classify an outcome without inspecting strings:
//
//   - *TimeoutError: the call's context deadline passed
//   - *RateLimitError: HTTP 429, with Retry-After when present
//   - *AuthError: HTTP 401 or 403
//   - *ProviderError: any other non-2xx status or network failure
//   - *ParseError: the response body could not be decoded
//
// Classify groups them into a Failure (timeout, rate_limited, auth,
// bad_request, unavailable) and unwraps through fmt.Errorf chains.
//
// Clients never retry.
package providers
