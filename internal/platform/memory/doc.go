// Package memory provides in-process implementations of the store
// interfaces. They back the service when no database URL is configured and
// serve as fakes in tests. Every method returns copies, so callers never
// share state with the store.
package memory
