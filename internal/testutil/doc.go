// Package testutil holds test doubles shared across packages: a mock
// provider HTTP server, a scripted in-process provider and a settable clock.
package testutil
