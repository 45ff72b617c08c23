// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the batch, feedback and learning services, which run unchanged against
// the in-memory and PostgreSQL implementations.
package store
