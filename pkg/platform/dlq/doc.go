// Package dlq holds failed event handlings and webhook deliveries for
// inspection and replay. InMemoryQueue is the retryable tier;
// PoisonPillDetector flags content that keeps failing regardless of
// how many times it is redelivered.
package dlq
