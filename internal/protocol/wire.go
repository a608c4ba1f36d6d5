package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// envelope is the on-wire frame body: a string discriminator plus the raw
// JSON payload, mirroring the {Type, Payload json.RawMessage} shape of
// pkg/relay/ws_relay.go's WSMessage, adapted from a websocket text frame to
// a length-delimited stream frame since this protocol runs over a plain
// net.Conn / os.Pipe rather than a websocket.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const (
	typeEvent         = "event"
	typeClientCommand = "client_command"
	typeClientResp    = "client_resp"
)

// maxFrameBytes bounds a single frame to guard against a corrupt length
// prefix causing an unbounded allocation.
const maxFrameBytes = 64 << 20

// WriteEvent writes one length-delimited Event frame to w.
func WriteEvent(w io.Writer, e Event) error {
	return writeEnvelope(w, typeEvent, e)
}

// WriteClientCommand writes one length-delimited ClientCommand frame to w.
func WriteClientCommand(w io.Writer, c ClientCommand) error {
	return writeEnvelope(w, typeClientCommand, c)
}

// WriteClientResp writes one length-delimited ClientResp frame to w.
func WriteClientResp(w io.Writer, r ClientResp) error {
	return writeEnvelope(w, typeClientResp, r)
}

func writeEnvelope(w io.Writer, kind string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	body, err := json.Marshal(envelope{Type: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", kind, err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-delimited envelope from r.
func readFrame(r io.Reader) (envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return envelope{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return envelope{}, fmt.Errorf("frame length %d exceeds max %d", n, maxFrameBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return envelope{}, fmt.Errorf("read frame body: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("unmarshal frame envelope: %w", err)
	}
	return env, nil
}

// ReadEvent reads one Event frame from r. Returns io.EOF when r is closed
// between frames.
func ReadEvent(r io.Reader) (Event, error) {
	env, err := readFrame(r)
	if err != nil {
		return Event{}, err
	}
	if env.Type != typeEvent {
		return Event{}, fmt.Errorf("expected frame type %q, got %q", typeEvent, env.Type)
	}
	var e Event
	if err := json.Unmarshal(env.Payload, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshal event payload: %w", err)
	}
	return e, nil
}

// ReadClientCommand reads one ClientCommand frame from r.
func ReadClientCommand(r io.Reader) (ClientCommand, error) {
	env, err := readFrame(r)
	if err != nil {
		return ClientCommand{}, err
	}
	if env.Type != typeClientCommand {
		return ClientCommand{}, fmt.Errorf("expected frame type %q, got %q", typeClientCommand, env.Type)
	}
	var c ClientCommand
	if err := json.Unmarshal(env.Payload, &c); err != nil {
		return ClientCommand{}, fmt.Errorf("unmarshal client command payload: %w", err)
	}
	return c, nil
}

// ReadAny reads one frame of either kind from r, used by a client connection
// that multiplexes a synchronous ClientResp reply stream with the
// asynchronous Event stream over a single conn. Exactly one of the return
// values is non-nil on success.
func ReadAny(r io.Reader) (*Event, *ClientResp, error) {
	env, err := readFrame(r)
	if err != nil {
		return nil, nil, err
	}
	switch env.Type {
	case typeEvent:
		var e Event
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
		return &e, nil, nil
	case typeClientResp:
		var resp ClientResp
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			return nil, nil, fmt.Errorf("unmarshal client resp payload: %w", err)
		}
		return nil, &resp, nil
	default:
		return nil, nil, fmt.Errorf("unexpected frame type %q", env.Type)
	}
}

// ReadClientResp reads one ClientResp frame from r.
func ReadClientResp(r io.Reader) (ClientResp, error) {
	env, err := readFrame(r)
	if err != nil {
		return ClientResp{}, err
	}
	if env.Type != typeClientResp {
		return ClientResp{}, fmt.Errorf("expected frame type %q, got %q", typeClientResp, env.Type)
	}
	var resp ClientResp
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		return ClientResp{}, fmt.Errorf("unmarshal client resp payload: %w", err)
	}
	return resp, nil
}
