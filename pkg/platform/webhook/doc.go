// Package webhook implements the outbound delivery pipeline (C6-C8):
// an endpoint registry, a signed-HTTP delivery engine with a
// priority-queue worker pool, and the retry/circuit-breaker/
// rate-limiter policies that govern it. A receiver-side verifier for
// the same signature scheme lives alongside it for plugins that both
// send and receive webhooks.
package webhook
