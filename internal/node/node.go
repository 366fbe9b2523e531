package node

import (
	"sync"

	"go.uber.org/zap"

	"github.com/shrirambalaji/gossip-protocols/internal/config"
	"github.com/shrirambalaji/gossip-protocols/internal/gossip"
	"github.com/shrirambalaji/gossip-protocols/internal/maelstrom"
	"github.com/shrirambalaji/gossip-protocols/internal/store"
	"github.com/shrirambalaji/gossip-protocols/internal/topology"
)

// Transport is the surface of the wire layer the node depends on.
// *maelstrom.Node satisfies it; tests substitute an in-memory fake.
type Transport interface {
	Handle(typ string, fn maelstrom.HandlerFunc)
	Reply(req maelstrom.Message, body any) error
	Send(dest string, body any) error
	Init(id string)
}

// Node is a single broadcast node. Identity and roster are assigned once
// by the init message and immutable afterward.
type Node struct {
	tr  Transport
	log *zap.Logger

	store  *store.Store
	topo   *topology.Manager
	engine *gossip.Engine

	mu     sync.RWMutex
	id     string
	roster []string
}

// New creates an uninitialized node on the given transport. Register must
// be called before the transport starts consuming input.
func New(tr Transport, cfg config.Config, log *zap.Logger) *Node {
	n := &Node{
		tr:    tr,
		log:   log,
		store: store.New(),
		topo:  topology.New(),
	}
	backoff := gossip.Backoff{Base: cfg.RetryBase, Cap: cfg.RetryCap}
	n.engine = gossip.New(n.topo, n, cfg.TickInterval, backoff, log)
	return n
}

// Register installs the protocol handlers on the transport.
func (n *Node) Register() {
	n.tr.Handle("init", n.handleInit)
	n.tr.Handle("topology", n.handleTopology)
	n.tr.Handle("broadcast", n.handleBroadcast)
	n.tr.Handle("read", n.handleRead)
	n.tr.Handle("gossip", n.handleGossip)
	n.tr.Handle("gossip_ok", n.handleGossipOk)
}

// Engine exposes the dissemination engine so the process can run its tick
// loop and tests can drive ticks manually.
func (n *Node) Engine() *gossip.Engine {
	return n.engine
}

// ID returns the node identity, or "" before init.
func (n *Node) ID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.id
}

// Roster returns the full node roster assigned at init.
func (n *Node) Roster() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]string, len(n.roster))
	copy(out, n.roster)
	return out
}

// Gossip implements gossip.Sender. Send failures are logged and otherwise
// ignored; the retry tick repairs them.
func (n *Node) Gossip(dest string, value int64) {
	body := gossipBody{
		MessageBody: maelstrom.MessageBody{Type: "gossip"},
		Message:     &value,
	}
	if err := n.tr.Send(dest, body); err != nil {
		n.log.Warn("gossip send failed",
			zap.String("dest", dest),
			zap.Int64("value", value),
			zap.Error(err))
	}
}
