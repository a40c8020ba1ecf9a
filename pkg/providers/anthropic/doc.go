// Package anthropic implements the providers.Provider adapter for
// Anthropic's Messages API, the default backend for both paid tiers.
//
// System messages are lifted into the request's system field and the
// remaining turns must alternate user/assistant starting with user.
// Only text content blocks are read from the response.
package anthropic
