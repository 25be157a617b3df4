package via

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

// MaxFrameSize bounds a single wire frame, the same defensive cap the
// teacher's IPC bridge applies to its request/response frames.
const MaxFrameSize = 64 * 1024 * 1024

// wireEnvelope is the on-the-wire shape of a Message: a tagged tuple of
// (type, call_id, payload) as spec.md §6 describes in the abstract.
type wireEnvelope struct {
	Type   Type            `json:"type"`
	CallID int64           `json:"call_id"`
	Payload json.RawMessage `json:"payload"`
}

// CallPayload is the CALL envelope body: method, args, retry count, and
// the time it was placed on the queue (spec.md §6).
type CallPayload struct {
	Method   string          `json:"method"`
	Args     []json.RawMessage `json:"args"`
	Retries  int             `json:"retries"`
	QueuedAt int64           `json:"queued_at"`
}

// RunningPayload is the RUNNING envelope body.
type RunningPayload struct {
	PID       int   `json:"pid"`
	StartedAt int64 `json:"started_at"`
}

// ReturnPayload is the RETURN envelope body.
type ReturnPayload struct {
	Status     string          `json:"status"`
	ReturnValue json.RawMessage `json:"return_value"`
	ReturnedAt int64           `json:"returned_at"`
}

// WriteFrame writes msg to conn as a 4-byte big-endian length prefix
// followed by its JSON body, the same framing
// ipc.IpcBridge.writeMessageToStream uses for request/response payloads.
func WriteFrame(conn net.Conn, msg Message) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("via: marshal payload: %w", err)
	}
	env := wireEnvelope{Type: msg.Type, CallID: msg.CallID, Payload: payload}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("via: marshal envelope: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("via: frame too large: %d bytes", len(body))
	}
	if err := binary.Write(conn, binary.BigEndian, uint32(len(body))); err != nil {
		return fmt.Errorf("via: write length: %w", err)
	}
	_, err = conn.Write(body)
	return err
}

// ReadFrame reads one length-prefixed JSON frame from conn.
func ReadFrame(conn net.Conn) (wireEnvelope, error) {
	var size uint32
	if err := binary.Read(conn, binary.BigEndian, &size); err != nil {
		return wireEnvelope{}, err
	}
	if size > MaxFrameSize {
		return wireEnvelope{}, fmt.Errorf("via: frame too large: %d bytes", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return wireEnvelope{}, fmt.Errorf("via: read body: %w", err)
	}
	var env wireEnvelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return wireEnvelope{}, fmt.Errorf("via: unmarshal envelope: %w", err)
	}
	return env, nil
}
