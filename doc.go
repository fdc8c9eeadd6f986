// Package querykit composes a repository and the ordering utilities into a
// query service: saving with optional insert-if-absent semantics, full and
// partial updates, deletion by id or filter, lookups, existence checks, counts
// and paged, sorted, eagerly loaded listings for any entity type.
package querykit
