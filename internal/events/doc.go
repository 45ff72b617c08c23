// Package events provides the in-process event bus that decouples pipeline
// components.
//
// Feedback capture publishes feedback.recorded after an event is stored and
// the pattern learner subscribes to it; the batch manager publishes
// batch.finished when a job reaches a terminal status. Emitters never know
// which handlers consume an event.
package events
