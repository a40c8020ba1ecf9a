// Package generic adapts self-hosted OpenAI-compatible servers, so a
// deployment can point a tier at a local model.
package generic
