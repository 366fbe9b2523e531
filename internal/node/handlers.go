package node

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/shrirambalaji/gossip-protocols/internal/maelstrom"
	"github.com/shrirambalaji/gossip-protocols/internal/telemetry"
)

type initBody struct {
	maelstrom.MessageBody
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

type topologyBody struct {
	maelstrom.MessageBody
	Topology map[string][]string `json:"topology"`
}

type broadcastBody struct {
	maelstrom.MessageBody
	Message *int64 `json:"message"`
}

type readOkBody struct {
	maelstrom.MessageBody
	Messages []int64 `json:"messages"`
}

// gossipBody is shared by gossip and gossip_ok. The ack carries the value
// back so the sender can correlate it to a pending (neighbor, value) entry
// no matter which retransmission actually landed.
type gossipBody struct {
	maelstrom.MessageBody
	Message *int64 `json:"message"`
}

func (n *Node) handleInit(msg maelstrom.Message) error {
	var body initBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return maelstrom.NewRPCError(maelstrom.ErrMalformedRequest, fmt.Sprintf("parse init: %v", err))
	}
	if body.NodeID == "" {
		return maelstrom.NewRPCError(maelstrom.ErrMalformedRequest, "init is missing node_id")
	}

	n.mu.Lock()
	if n.id != "" {
		n.mu.Unlock()
		return maelstrom.NewRPCError(maelstrom.ErrMalformedRequest, "node is already initialized")
	}
	n.id = body.NodeID
	n.roster = append([]string(nil), body.NodeIDs...)
	n.mu.Unlock()

	n.tr.Init(body.NodeID)
	n.log.Info("node initialized",
		zap.String("id", body.NodeID),
		zap.Int("roster_size", len(body.NodeIDs)))

	return n.tr.Reply(msg, maelstrom.MessageBody{Type: "init_ok"})
}

func (n *Node) handleTopology(msg maelstrom.Message) error {
	if err := n.requireInit(); err != nil {
		return err
	}
	var body topologyBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return maelstrom.NewRPCError(maelstrom.ErrMalformedRequest, fmt.Sprintf("parse topology: %v", err))
	}

	neighbors := body.Topology[n.ID()]
	n.topo.SetNeighbors(neighbors)
	n.log.Info("topology replaced", zap.Strings("neighbors", neighbors))

	return n.tr.Reply(msg, maelstrom.MessageBody{Type: "topology_ok"})
}

func (n *Node) handleBroadcast(msg maelstrom.Message) error {
	if err := n.requireInit(); err != nil {
		return err
	}
	var body broadcastBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return maelstrom.NewRPCError(maelstrom.ErrMalformedRequest, fmt.Sprintf("parse broadcast: %v", err))
	}
	if body.Message == nil {
		return maelstrom.NewRPCError(maelstrom.ErrMalformedRequest, "broadcast is missing message")
	}

	telemetry.BroadcastValues.Inc()
	n.accept(*body.Message)

	return n.tr.Reply(msg, maelstrom.MessageBody{Type: "broadcast_ok"})
}

func (n *Node) handleRead(msg maelstrom.Message) error {
	if err := n.requireInit(); err != nil {
		return err
	}
	return n.tr.Reply(msg, readOkBody{
		MessageBody: maelstrom.MessageBody{Type: "read_ok"},
		Messages:    n.store.Snapshot(),
	})
}

func (n *Node) handleGossip(msg maelstrom.Message) error {
	if err := n.requireInit(); err != nil {
		return err
	}
	var body gossipBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return maelstrom.NewRPCError(maelstrom.ErrMalformedRequest, fmt.Sprintf("parse gossip: %v", err))
	}
	if body.Message == nil {
		return maelstrom.NewRPCError(maelstrom.ErrMalformedRequest, "gossip is missing message")
	}

	telemetry.GossipReceived.Inc()

	// Ack unconditionally, duplicates included. The ack confirms transport
	// delivery, not novelty.
	ack := gossipBody{
		MessageBody: maelstrom.MessageBody{Type: "gossip_ok"},
		Message:     body.Message,
	}
	if err := n.tr.Reply(msg, ack); err != nil {
		n.log.Warn("gossip ack failed", zap.String("dest", msg.Src), zap.Error(err))
	}

	n.accept(*body.Message)
	return nil
}

// handleGossipOk consumes acknowledgments from peers. Acks are one-way;
// malformed ones are dropped rather than answered.
func (n *Node) handleGossipOk(msg maelstrom.Message) error {
	var body gossipBody
	if err := json.Unmarshal(msg.Body, &body); err != nil || body.Message == nil {
		n.log.Warn("dropping malformed gossip_ok", zap.String("src", msg.Src))
		return nil
	}
	n.engine.OnAck(msg.Src, *body.Message)
	return nil
}

// accept records v and, on first sight, fans it out to the current
// neighbors. Both broadcast requests and peer gossip land here.
func (n *Node) accept(v int64) {
	if n.store.Record(v) {
		n.engine.OnNewValue(v)
	}
}

func (n *Node) requireInit() error {
	if n.ID() == "" {
		return maelstrom.NewRPCError(maelstrom.ErrTemporarilyUnavailable, "node is not initialized")
	}
	return nil
}
