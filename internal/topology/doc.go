// Package topology tracks the gossip neighbor set assigned by the harness.
// The set is replaced as a whole on every topology message, never mutated
// incrementally. Until a topology message arrives the neighbor set is empty;
// the node still stores broadcasts and answers reads in that state, it just
// cannot propagate.
package topology
