// Package batch orchestrates annotation jobs.
//
// A Manager splits a submission into one item per image and runs it in the
// background on a fixed pool of workers that consume an unbuffered channel.
// Job counters are updated under a per-job mutex and persisted as a
// consistent snapshot after every item, so progress readers never see an
// item counted twice or lost.
//
// Job state machine:
//
//	pending -> processing -> completed | cancelled | failed
//
// Per-item failures only increment the failed counter; a job whose items all
// failed still completes. failed is reserved for job-level faults such as a
// setup error. Cancellation is cooperative: it is checked when a worker claims
// its next item, so items already running finish and no new item starts.
package batch
