// Package database opens and manages the bun persistence context used by the
// repositories: configuration loading, dialect selection for mysql, postgres
// and sqlite, health checks, query logging and metrics hooks, SQL error
// classification, and table bootstrap for registered models.
package database
