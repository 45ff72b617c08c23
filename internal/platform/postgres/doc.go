// Package postgres implements the store interfaces on PostgreSQL through the
// pgx database/sql driver. The schema ships with the binary as embedded goose
// migrations.
package postgres
