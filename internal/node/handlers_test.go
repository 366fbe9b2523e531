package node

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shrirambalaji/gossip-protocols/internal/config"
	"github.com/shrirambalaji/gossip-protocols/internal/maelstrom"
)

type outFrame struct {
	dest string
	body map[string]any
}

// fakeTransport records replies and sends instead of writing to a wire.
type fakeTransport struct {
	handlers map[string]maelstrom.HandlerFunc

	mu      sync.Mutex
	id      string
	replies []outFrame
	sends   []outFrame
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]maelstrom.HandlerFunc)}
}

func (f *fakeTransport) Handle(typ string, fn maelstrom.HandlerFunc) {
	f.handlers[typ] = fn
}

func (f *fakeTransport) Init(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = id
}

func (f *fakeTransport) Reply(req maelstrom.Message, body any) error {
	frame, err := toFrame(req.Src, body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, frame)
	return nil
}

func (f *fakeTransport) Send(dest string, body any) error {
	frame, err := toFrame(dest, body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, frame)
	return nil
}

func toFrame(dest string, body any) (outFrame, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return outFrame{}, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return outFrame{}, err
	}
	return outFrame{dest: dest, body: fields}, nil
}

// deliver invokes the registered handler for the message built from body.
func (f *fakeTransport) deliver(t *testing.T, src string, body map[string]any) error {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	typ, _ := body["type"].(string)
	handler, ok := f.handlers[typ]
	require.True(t, ok, "no handler registered for %q", typ)
	return handler(maelstrom.Message{Src: src, Dest: f.id, Body: raw})
}

func newTestNode(t *testing.T) (*Node, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	n := New(tr, config.Default(), zap.NewNop())
	n.Register()
	return n, tr
}

func initNode(t *testing.T, n *Node, tr *fakeTransport, id string, roster ...string) {
	t.Helper()
	err := tr.deliver(t, "c1", map[string]any{
		"type": "init", "msg_id": 1, "node_id": id, "node_ids": roster,
	})
	require.NoError(t, err)
	tr.mu.Lock()
	tr.replies = nil
	tr.mu.Unlock()
}

func requireRPCCode(t *testing.T, err error, code int) {
	t.Helper()
	var rpcErr *maelstrom.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, code, rpcErr.Code)
}

func TestHandleInit(t *testing.T) {
	n, tr := newTestNode(t)

	err := tr.deliver(t, "c1", map[string]any{
		"type": "init", "msg_id": 1, "node_id": "n1", "node_ids": []string{"n1", "n2", "n3"},
	})
	require.NoError(t, err)

	assert.Equal(t, "n1", n.ID())
	assert.Equal(t, []string{"n1", "n2", "n3"}, n.Roster())
	assert.Equal(t, "n1", tr.id)
	require.Len(t, tr.replies, 1)
	assert.Equal(t, "init_ok", tr.replies[0].body["type"])
}

func TestHandleInit_Repeated(t *testing.T) {
	n, tr := newTestNode(t)
	initNode(t, n, tr, "n1", "n1", "n2")

	err := tr.deliver(t, "c1", map[string]any{
		"type": "init", "msg_id": 2, "node_id": "n9", "node_ids": []string{"n9"},
	})
	requireRPCCode(t, err, maelstrom.ErrMalformedRequest)
	assert.Equal(t, "n1", n.ID(), "identity is immutable once assigned")
}

func TestOperationsBeforeInitAreRejected(t *testing.T) {
	_, tr := newTestNode(t)

	ops := []map[string]any{
		{"type": "topology", "msg_id": 1, "topology": map[string][]string{}},
		{"type": "broadcast", "msg_id": 2, "message": 5},
		{"type": "read", "msg_id": 3},
		{"type": "gossip", "msg_id": 4, "message": 5},
	}
	for _, op := range ops {
		err := tr.deliver(t, "c1", op)
		requireRPCCode(t, err, maelstrom.ErrTemporarilyUnavailable)
	}
}

func TestHandleTopology(t *testing.T) {
	n, tr := newTestNode(t)
	initNode(t, n, tr, "n1", "n1", "n2", "n3")

	err := tr.deliver(t, "c1", map[string]any{
		"type":   "topology",
		"msg_id": 2,
		"topology": map[string][]string{
			"n1": {"n2", "n3"},
			"n2": {"n1"},
			"n3": {"n1"},
		},
	})
	require.NoError(t, err)
	require.Len(t, tr.replies, 1)
	assert.Equal(t, "topology_ok", tr.replies[0].body["type"])

	// Fan-out now reaches the assigned neighbors.
	err = tr.deliver(t, "c1", map[string]any{"type": "broadcast", "msg_id": 3, "message": 5})
	require.NoError(t, err)
	assert.Len(t, tr.sends, 2)
}

func TestHandleBroadcast(t *testing.T) {
	n, tr := newTestNode(t)
	initNode(t, n, tr, "n1", "n1", "n2")
	require.NoError(t, tr.deliver(t, "c1", map[string]any{
		"type": "topology", "msg_id": 2, "topology": map[string][]string{"n1": {"n2"}},
	}))

	err := tr.deliver(t, "c1", map[string]any{"type": "broadcast", "msg_id": 3, "message": 5})
	require.NoError(t, err)

	last := tr.replies[len(tr.replies)-1]
	assert.Equal(t, "broadcast_ok", last.body["type"])

	require.Len(t, tr.sends, 1)
	assert.Equal(t, "n2", tr.sends[0].dest)
	assert.Equal(t, "gossip", tr.sends[0].body["type"])
	assert.EqualValues(t, 5, tr.sends[0].body["message"])
	assert.Equal(t, 1, n.Engine().PendingCount())

	// Re-broadcast of a known value acks but does not fan out again.
	err = tr.deliver(t, "c1", map[string]any{"type": "broadcast", "msg_id": 4, "message": 5})
	require.NoError(t, err)
	assert.Len(t, tr.sends, 1)
}

func TestHandleBroadcast_MissingMessage(t *testing.T) {
	n, tr := newTestNode(t)
	initNode(t, n, tr, "n1", "n1")

	err := tr.deliver(t, "c1", map[string]any{"type": "broadcast", "msg_id": 2})
	requireRPCCode(t, err, maelstrom.ErrMalformedRequest)
	assert.Equal(t, 0, n.Engine().PendingCount())
}

func TestHandleRead(t *testing.T) {
	n, tr := newTestNode(t)
	initNode(t, n, tr, "n1", "n1")

	// Read before any broadcast returns an empty set.
	require.NoError(t, tr.deliver(t, "c1", map[string]any{"type": "read", "msg_id": 2}))
	require.Len(t, tr.replies, 1)
	assert.Equal(t, "read_ok", tr.replies[0].body["type"])
	assert.Empty(t, tr.replies[0].body["messages"])

	for i, v := range []int{3, 1, 2, 1} {
		require.NoError(t, tr.deliver(t, "c1", map[string]any{
			"type": "broadcast", "msg_id": 3 + i, "message": v,
		}))
	}

	require.NoError(t, tr.deliver(t, "c1", map[string]any{"type": "read", "msg_id": 10}))
	last := tr.replies[len(tr.replies)-1]
	assert.EqualValues(t, []any{float64(1), float64(2), float64(3)}, last.body["messages"])
}

func TestHandleGossip(t *testing.T) {
	n, tr := newTestNode(t)
	initNode(t, n, tr, "n1", "n1", "n2", "n3")
	require.NoError(t, tr.deliver(t, "c1", map[string]any{
		"type": "topology", "msg_id": 2, "topology": map[string][]string{"n1": {"n3"}},
	}))

	err := tr.deliver(t, "n2", map[string]any{"type": "gossip", "msg_id": 1, "message": 7})
	require.NoError(t, err)

	// Acked to the sender and fanned out to our own neighbors.
	require.Len(t, tr.replies, 1)
	assert.Equal(t, "gossip_ok", tr.replies[0].body["type"])
	assert.EqualValues(t, 7, tr.replies[0].body["message"])
	require.Len(t, tr.sends, 1)
	assert.Equal(t, "n3", tr.sends[0].dest)

	// A duplicate is acked again but not propagated again.
	err = tr.deliver(t, "n2", map[string]any{"type": "gossip", "msg_id": 2, "message": 7})
	require.NoError(t, err)
	assert.Len(t, tr.replies, 2)
	assert.Len(t, tr.sends, 1)
}

func TestHandleGossipOk(t *testing.T) {
	n, tr := newTestNode(t)
	initNode(t, n, tr, "n1", "n1", "n2")
	require.NoError(t, tr.deliver(t, "c1", map[string]any{
		"type": "topology", "msg_id": 2, "topology": map[string][]string{"n1": {"n2"}},
	}))
	require.NoError(t, tr.deliver(t, "c1", map[string]any{"type": "broadcast", "msg_id": 3, "message": 5}))
	require.Equal(t, 1, n.Engine().PendingCount())

	err := tr.deliver(t, "n2", map[string]any{"type": "gossip_ok", "in_reply_to": 1, "message": 5})
	require.NoError(t, err)
	assert.Equal(t, 0, n.Engine().PendingCount())

	// Duplicate and unsolicited acks are silent no-ops.
	require.NoError(t, tr.deliver(t, "n2", map[string]any{"type": "gossip_ok", "message": 5}))
	require.NoError(t, tr.deliver(t, "n7", map[string]any{"type": "gossip_ok", "message": 123}))
	require.NoError(t, tr.deliver(t, "n2", map[string]any{"type": "gossip_ok"}))
	assert.Equal(t, 0, n.Engine().PendingCount())
}

func TestTopologyWithoutSelfEntry(t *testing.T) {
	n, tr := newTestNode(t)
	initNode(t, n, tr, "n1", "n1", "n2")

	require.NoError(t, tr.deliver(t, "c1", map[string]any{
		"type": "topology", "msg_id": 2, "topology": map[string][]string{"n2": {"n1"}},
	}))

	// No neighbors assigned: broadcasts are stored but not propagated.
	require.NoError(t, tr.deliver(t, "c1", map[string]any{"type": "broadcast", "msg_id": 3, "message": 1}))
	assert.Empty(t, tr.sends)
	assert.Equal(t, 0, n.Engine().PendingCount())
}

func TestGossipSenderInterface(t *testing.T) {
	// Node must satisfy the engine's Sender contract.
	var _ interface {
		Gossip(dest string, value int64)
	} = &Node{}

	n, tr := newTestNode(t)
	initNode(t, n, tr, "n1", "n1")

	n.Gossip("n2", 9)
	require.Len(t, tr.sends, 1)
	assert.Equal(t, "n2", tr.sends[0].dest)
	assert.EqualValues(t, 9, tr.sends[0].body["message"])
}

func TestReadSnapshotIsolation(t *testing.T) {
	n, tr := newTestNode(t)
	initNode(t, n, tr, "n1", "n1")

	for v := 0; v < 5; v++ {
		require.NoError(t, tr.deliver(t, "c1", map[string]any{
			"type": "broadcast", "msg_id": 2 + v, "message": v,
		}))
	}

	require.NoError(t, tr.deliver(t, "c1", map[string]any{"type": "read", "msg_id": 100}))
	first := tr.replies[len(tr.replies)-1].body["messages"]
	require.NoError(t, tr.deliver(t, "c1", map[string]any{"type": "read", "msg_id": 101}))
	second := tr.replies[len(tr.replies)-1].body["messages"]
	assert.Equal(t, first, second)
}
