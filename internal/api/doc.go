// Package api exposes batch control and the review surface over HTTP. It
// adapts requests to the batch manager, review service, pattern learner and
// image catalog, and maps their errors to status codes without leaking
// internal details.
package api
