// Package repository provides a generic, bun-backed repository that stages
// inserts, updates, partial updates, upserts and deletes in a unit of work and
// commits them in a single transaction, plus a lazy, immutable query builder
// for listing, counting and paging.
package repository
