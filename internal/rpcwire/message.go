// Package rpcwire is the generic RPC transport used by paxos, rsm,
// lockserver and lockclient: marshal/unmarshal framing, a dialed
// connection pool, and at-most-once-failure handle eviction.
package rpcwire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
)

// envelope is the wire frame for an outbound call: a method name plus
// a gob-encoded payload. Keeping the envelope untyped lets every
// component (paxos, rsm, lockserver, lockclient) share one transport
// without a central registry of every request/response type pair.
type envelope struct {
	Method  string
	Payload []byte
}

// replyEnvelope is the wire frame for a call's reply.
type replyEnvelope struct {
	Payload []byte
	ErrMsg  string
}

// RemoteError is returned when the peer's handler ran and reported a
// failure; it is distinct from a transport-level error so callers can
// tell "reached the peer, and it said no" from "never got there".
type RemoteError string

func (e RemoteError) Error() string { return string(e) }

func encode(v interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(b []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

func writeFrame(w *bufio.Writer, payload []byte) error {
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return w.Flush()
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteCall frames and sends a method invocation.
func WriteCall(w *bufio.Writer, method string, args interface{}) error {
	argBytes, err := encode(args)
	if err != nil {
		return err
	}
	frame, err := encode(envelope{Method: method, Payload: argBytes})
	if err != nil {
		return err
	}
	return writeFrame(w, frame)
}

// ReadCall reads a method invocation frame off the wire.
func ReadCall(r *bufio.Reader) (method string, payload []byte, err error) {
	frame, err := readFrame(r)
	if err != nil {
		return "", nil, err
	}
	var e envelope
	if err := decode(frame, &e); err != nil {
		return "", nil, err
	}
	return e.Method, e.Payload, nil
}

// DecodeArgs decodes a call's gob-encoded payload into v.
func DecodeArgs(payload []byte, v interface{}) error {
	return decode(payload, v)
}

// WriteReply frames and sends an RPC reply, or the string form of
// handlerErr if the handler failed.
func WriteReply(w *bufio.Writer, reply interface{}, handlerErr error) error {
	re := replyEnvelope{}
	if handlerErr != nil {
		re.ErrMsg = handlerErr.Error()
	} else {
		payload, err := encode(reply)
		if err != nil {
			return err
		}
		re.Payload = payload
	}
	frame, err := encode(re)
	if err != nil {
		return err
	}
	return writeFrame(w, frame)
}

// ReadReply reads a reply frame and decodes it into reply, returning
// a RemoteError if the handler reported a failure.
func ReadReply(r *bufio.Reader, reply interface{}) error {
	frame, err := readFrame(r)
	if err != nil {
		return err
	}
	var re replyEnvelope
	if err := decode(frame, &re); err != nil {
		return err
	}
	if re.ErrMsg != "" {
		return RemoteError(re.ErrMsg)
	}
	if reply == nil {
		return nil
	}
	return decode(re.Payload, reply)
}
