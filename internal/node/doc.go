// Package node wires the broadcast node together: it owns the node's
// identity and roster, maps inbound message types onto the message store,
// topology manager, and dissemination engine, and produces the replies the
// harness expects.
package node
