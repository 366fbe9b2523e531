// Package it provides an in-process cluster harness. Several node cores
// are wired together over an in-memory transport with per-link drop
// control, so dissemination, retry, and partition healing can be exercised
// deterministically without the external harness.
package it

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shrirambalaji/gossip-protocols/internal/config"
	"github.com/shrirambalaji/gossip-protocols/internal/maelstrom"
	"github.com/shrirambalaji/gossip-protocols/internal/node"
)

// clientID is the synthetic client all harness-driven requests come from.
const clientID = "c1"

type link struct {
	from string
	to   string
}

// Cluster is a set of node cores joined by an in-memory network.
// Delivery is synchronous: a Send or Reply runs the destination handler
// before returning, which makes test outcomes deterministic.
type Cluster struct {
	mu         sync.Mutex
	transports map[string]*transport
	nodes      map[string]*node.Node
	inbox      map[string][]maelstrom.Message
	dropped    map[link]bool
	nextMsgID  int
}

// NewCluster creates and initializes a cluster with the given node ids.
// Every node has received its init message by the time this returns; no
// topology is set yet.
func NewCluster(ids []string, cfg config.Config) (*Cluster, error) {
	logger := zap.NewNop()

	c := &Cluster{
		transports: make(map[string]*transport),
		nodes:      make(map[string]*node.Node),
		inbox:      make(map[string][]maelstrom.Message),
		dropped:    make(map[link]bool),
	}

	for _, id := range ids {
		tr := &transport{cluster: c, id: id, handlers: make(map[string]maelstrom.HandlerFunc)}
		n := node.New(tr, cfg, logger)
		n.Register()
		c.transports[id] = tr
		c.nodes[id] = n
	}

	for _, id := range ids {
		c.request(id, map[string]any{
			"type":     "init",
			"node_id":  id,
			"node_ids": ids,
		})
		if c.nodes[id].ID() != id {
			return nil, fmt.Errorf("node %s did not initialize", id)
		}
	}
	return c, nil
}

// Node returns the core for the given id.
func (c *Cluster) Node(id string) *node.Node {
	return c.nodes[id]
}

// SetTopology delivers a topology message carrying adj to every node.
func (c *Cluster) SetTopology(adj map[string][]string) {
	for id := range c.nodes {
		c.request(id, map[string]any{
			"type":     "topology",
			"topology": adj,
		})
	}
}

// Broadcast delivers a broadcast request for v to the given node.
func (c *Cluster) Broadcast(id string, v int64) {
	c.request(id, map[string]any{
		"type":    "broadcast",
		"message": v,
	})
}

// Read delivers a read request to the given node and returns the values
// from its read_ok reply.
func (c *Cluster) Read(id string) []int64 {
	mark := c.inboxLen(clientID)
	c.request(id, map[string]any{"type": "read"})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range c.inbox[clientID][mark:] {
		var body struct {
			maelstrom.MessageBody
			Messages []int64 `json:"messages"`
		}
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			continue
		}
		if body.Type == "read_ok" {
			return body.Messages
		}
	}
	return nil
}

// Tick fires one retry tick on every node.
func (c *Cluster) Tick() {
	now := time.Now()
	for _, n := range c.nodes {
		n.Engine().Tick(now)
	}
}

// TickAfter fires one retry tick on every node as if fired at now+d,
// letting tests elapse retry deadlines without sleeping.
func (c *Cluster) TickAfter(d time.Duration) {
	now := time.Now().Add(d)
	for _, n := range c.nodes {
		n.Engine().Tick(now)
	}
}

// Partition blocks delivery between a and b in both directions.
func (c *Cluster) Partition(a, b string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped[link{a, b}] = true
	c.dropped[link{b, a}] = true
}

// Heal restores delivery between a and b.
func (c *Cluster) Heal(a, b string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.dropped, link{a, b})
	delete(c.dropped, link{b, a})
}

// HealAll removes every partition.
func (c *Cluster) HealAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = make(map[link]bool)
}

// ClientReplies returns all frames delivered to the synthetic client.
func (c *Cluster) ClientReplies() []maelstrom.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]maelstrom.Message, len(c.inbox[clientID]))
	copy(out, c.inbox[clientID])
	return out
}

// request sends a client request to dest with a fresh msg_id.
func (c *Cluster) request(dest string, body map[string]any) {
	c.mu.Lock()
	c.nextMsgID++
	body["msg_id"] = c.nextMsgID
	c.mu.Unlock()

	raw, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("marshal request body: %v", err))
	}
	c.deliver(clientID, dest, raw)
}

func (c *Cluster) inboxLen(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inbox[id])
}

// deliver routes one frame. Frames to unknown destinations (clients) are
// recorded in an inbox; frames across a partitioned link vanish, exactly
// like a dropped packet.
func (c *Cluster) deliver(src, dest string, rawBody json.RawMessage) {
	c.mu.Lock()
	if c.dropped[link{src, dest}] {
		c.mu.Unlock()
		return
	}
	tr, ok := c.transports[dest]
	if !ok {
		c.inbox[dest] = append(c.inbox[dest], maelstrom.Message{Src: src, Dest: dest, Body: rawBody})
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	msg := maelstrom.Message{Src: src, Dest: dest, Body: rawBody}
	handler, ok := tr.handlers[msg.Type()]
	if !ok {
		_ = tr.Reply(msg, maelstrom.MessageBody{
			Type: "error",
			Code: maelstrom.ErrNotSupported,
			Text: fmt.Sprintf("message type %q is not supported", msg.Type()),
		})
		return
	}
	if err := handler(msg); err != nil {
		// Mirror the real transport: handler errors become error replies.
		code := maelstrom.ErrCrash
		text := err.Error()
		var rpcErr *maelstrom.RPCError
		if errors.As(err, &rpcErr) {
			code = rpcErr.Code
			text = rpcErr.Text
		}
		_ = tr.Reply(msg, maelstrom.MessageBody{Type: "error", Code: code, Text: text})
	}
}

// transport implements node.Transport over the cluster's in-memory network.
type transport struct {
	cluster  *Cluster
	id       string
	handlers map[string]maelstrom.HandlerFunc

	mu        sync.Mutex
	nextMsgID int
}

func (t *transport) Handle(typ string, fn maelstrom.HandlerFunc) {
	t.handlers[typ] = fn
}

// Init is a no-op: harness transports know their identity from creation.
func (t *transport) Init(string) {}

func (t *transport) Send(dest string, body any) error {
	fields, err := toFields(body)
	if err != nil {
		return err
	}
	if _, ok := fields["msg_id"]; !ok {
		t.mu.Lock()
		t.nextMsgID++
		fields["msg_id"] = t.nextMsgID
		t.mu.Unlock()
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	t.cluster.deliver(t.id, dest, raw)
	return nil
}

func (t *transport) Reply(req maelstrom.Message, body any) error {
	var reqBody maelstrom.MessageBody
	if err := json.Unmarshal(req.Body, &reqBody); err != nil {
		return fmt.Errorf("parse request body: %w", err)
	}
	fields, err := toFields(body)
	if err != nil {
		return err
	}
	fields["in_reply_to"] = reqBody.MsgID
	return t.Send(req.Src, fields)
}

func toFields(body any) (map[string]any, error) {
	if fields, ok := body.(map[string]any); ok {
		return fields, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
