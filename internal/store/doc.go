// Package store provides the in-memory known-set of broadcast values.
// The set is append-only for the life of the process: values are never
// removed or mutated, only observed and added.
package store
