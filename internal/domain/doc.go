// Package domain contains the core business entities of the annotation
// pipeline: batch jobs and their items, AI-proposed annotation candidates,
// reviewer feedback events and the learned per-(species, term) patterns.
// It is independent of any storage engine, transport or vision vendor.
package domain
