// Package maelstrom implements the wire protocol spoken with the test
// harness: newline-delimited JSON envelopes on stdin/stdout. It owns
// message framing, handler dispatch, msg_id allocation, and reply
// correlation. Handlers never touch the wire directly.
package maelstrom
