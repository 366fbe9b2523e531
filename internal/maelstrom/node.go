package maelstrom

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// HandlerFunc processes one inbound message. Returning an *RPCError sends
// that error back to the requester; any other error is reported as a crash.
type HandlerFunc func(msg Message) error

// Node reads envelopes from Stdin, dispatches them to registered handlers,
// and writes outbound envelopes to Stdout. A node has no identity until
// Init is called (normally from the init handler).
type Node struct {
	// Stdin and Stdout default to the process streams; tests replace them.
	Stdin  io.Reader
	Stdout io.Writer

	log      *zap.Logger
	handlers map[string]HandlerFunc

	idMu sync.RWMutex
	id   string

	outMu     sync.Mutex
	nextMsgID atomic.Int64
	wg        sync.WaitGroup
}

// New creates a transport node bound to the process stdin/stdout.
func New(log *zap.Logger) *Node {
	return &Node{
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		log:      log,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers fn for the given message type. Registration must happen
// before Run; the handler map is not locked.
func (n *Node) Handle(typ string, fn HandlerFunc) {
	if _, ok := n.handlers[typ]; ok {
		panic(fmt.Sprintf("duplicate handler for message type %q", typ))
	}
	n.handlers[typ] = fn
}

// Init assigns this node's identity, used as the source of outbound envelopes.
func (n *Node) Init(id string) {
	n.idMu.Lock()
	defer n.idMu.Unlock()
	n.id = id
}

// ID returns the node identity, or "" before initialization.
func (n *Node) ID() string {
	n.idMu.RLock()
	defer n.idMu.RUnlock()
	return n.id
}

// Run consumes Stdin until EOF, dispatching each envelope on its own
// goroutine. Bad input is never fatal: unparseable frames are dropped,
// unknown message types get an error reply, and handler failures are
// reported to the requester.
func (n *Node) Run() error {
	scanner := bufio.NewScanner(n.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			n.log.Warn("dropping unparseable frame", zap.Error(err))
			continue
		}

		typ := msg.Type()
		handler, ok := n.handlers[typ]
		if !ok {
			n.log.Warn("unsupported message type", zap.String("type", typ), zap.String("src", msg.Src))
			if err := n.Reply(msg, MessageBody{Type: "error", Code: ErrNotSupported, Text: fmt.Sprintf("message type %q is not supported", typ)}); err != nil {
				n.log.Error("failed to send error reply", zap.Error(err))
			}
			continue
		}

		n.wg.Add(1)
		go func(msg Message) {
			defer n.wg.Done()
			if err := handler(msg); err != nil {
				n.handleError(msg, err)
			}
		}(msg)
	}

	n.wg.Wait()
	return scanner.Err()
}

func (n *Node) handleError(msg Message, err error) {
	n.log.Warn("handler failed",
		zap.String("type", msg.Type()),
		zap.String("src", msg.Src),
		zap.Error(err))

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		rpcErr = NewRPCError(ErrCrash, err.Error())
	}
	if err := n.Reply(msg, rpcErr.body()); err != nil {
		n.log.Error("failed to send error reply", zap.Error(err))
	}
}

// Reply sends body to the source of req, echoing req's msg_id as in_reply_to.
func (n *Node) Reply(req Message, body any) error {
	var reqBody MessageBody
	if err := json.Unmarshal(req.Body, &reqBody); err != nil {
		return fmt.Errorf("parse request body: %w", err)
	}

	fields, err := bodyFields(body)
	if err != nil {
		return err
	}
	fields["in_reply_to"] = reqBody.MsgID
	return n.Send(req.Src, fields)
}

// Send sends body to dest, stamping a fresh msg_id unless one is set.
func (n *Node) Send(dest string, body any) error {
	fields, err := bodyFields(body)
	if err != nil {
		return err
	}
	if _, ok := fields["msg_id"]; !ok {
		fields["msg_id"] = int(n.nextMsgID.Add(1))
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	frame, err := json.Marshal(Message{Src: n.ID(), Dest: dest, Body: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	n.outMu.Lock()
	defer n.outMu.Unlock()
	if _, err := n.Stdout.Write(append(frame, '\n')); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// bodyFields flattens a body value into a field map so correlation fields
// can be injected without each body type declaring them.
func bodyFields(body any) (map[string]any, error) {
	if fields, ok := body.(map[string]any); ok {
		return fields, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("body is not an object: %w", err)
	}
	return fields, nil
}
