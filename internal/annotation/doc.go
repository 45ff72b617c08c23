// Package annotation implements the per-item annotation worker: it waits for
// a rate limit token, calls the vision service with the fixed annotation
// prompt, retries transient failures with exponential backoff, validates the
// returned candidates and stores them.
//
// A failing item is always finalized as failed with its last error and
// attempt count; it never aborts the job it belongs to.
package annotation
