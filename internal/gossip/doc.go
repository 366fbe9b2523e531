// Package gossip implements the dissemination engine: it decides which
// values are gossiped to which neighbors, tracks per-(neighbor, value)
// acknowledgment state, and retries unacknowledged sends on a periodic
// tick until an ack arrives.
//
// Retries have no attempt cap. A send lost to a partition is
// indistinguishable from a dropped ack, and both are repaired the same
// way: the next tick after the entry's deadline re-sends it. Memory stays
// bounded because the table holds at most one entry per (neighbor, value)
// pair regardless of how many times it has been retried.
package gossip
