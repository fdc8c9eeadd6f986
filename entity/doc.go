// Package entity defines the base contract shared by every persisted record:
// a generated identifier, a manual sort hint, creation and update timestamps,
// and a closed state enumeration.
package entity
