// Package feedback records reviewer decisions about annotation candidates.
//
// Events are validated, appended to the feedback log and then published as
// feedback.recorded so the pattern learner can fold them in. Publishing
// happens after the append; a failing subscriber never loses a stored event.
package feedback
