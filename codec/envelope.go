package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxEnvelopeSize bounds a single envelope's encoded length, guarding
// against a corrupt or hostile length prefix forcing an unbounded
// allocation (mirrors the teacher's ipc.MaxFrameSize).
const MaxEnvelopeSize = 64 << 20 // 64 MiB

// lengthPrefixSize is the width of the big-endian length prefix preceding
// every envelope on the wire.
const lengthPrefixSize = 4

// Envelope is the batched wire form events take when crossing remote's
// transport (spec §4.B "remote batch exchange"). It is never the
// authoritative on-disk event format — that stays the §6 newline-joined
// name/payload pair, for cross-implementation compatibility.
type Envelope struct {
	Name    string `msgpack:"name"`
	Payload []byte `msgpack:"payload"`
}

// EnvelopeError classifies a framing failure, distinguishing malformed
// input a caller should reject from transient I/O it may retry — same
// shape as the teacher's ipc.FrameError.
type EnvelopeError struct {
	Kind string // "io", "size", "decode"
	Msg  string
	Err  error
}

func (e *EnvelopeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("codec: %s: %s", e.Kind, e.Msg)
}

func (e *EnvelopeError) Unwrap() error { return e.Err }

// IsFatal reports whether the connection this error came from should be
// closed rather than retried. Size and decode errors indicate a corrupt
// peer stream; plain io errors (e.g. EOF) don't necessarily.
func (e *EnvelopeError) IsFatal() bool {
	return e.Kind == "size" || e.Kind == "decode"
}

// EncodeEnvelope msgpack-encodes an Envelope and prepends a 4-byte
// big-endian length prefix, identical in shape to the teacher's
// ipc.EncodeFrame.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	body, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, &EnvelopeError{Kind: "decode", Msg: "marshal envelope", Err: err}
	}
	if len(body) > MaxEnvelopeSize {
		return nil, &EnvelopeError{Kind: "size", Msg: fmt.Sprintf("envelope body %d bytes exceeds max %d", len(body), MaxEnvelopeSize)}
	}

	out := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(out[:lengthPrefixSize], uint32(len(body)))
	copy(out[lengthPrefixSize:], body)
	return out, nil
}

// EnvelopeDecoder reads a stream of length-prefixed envelopes from r,
// mirroring the teacher's ipc.FrameDecoder.
type EnvelopeDecoder struct {
	r *bufio.Reader
}

// NewEnvelopeDecoder wraps r for sequential envelope reads.
func NewEnvelopeDecoder(r io.Reader) *EnvelopeDecoder {
	return &EnvelopeDecoder{r: bufio.NewReader(r)}
}

// ReadEnvelope reads one length-prefixed envelope, or returns io.EOF when
// the stream ends cleanly between envelopes.
func (d *EnvelopeDecoder) ReadEnvelope() (Envelope, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return Envelope{}, io.EOF
		}
		return Envelope{}, &EnvelopeError{Kind: "io", Msg: "read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > MaxEnvelopeSize {
		return Envelope{}, &EnvelopeError{Kind: "size", Msg: fmt.Sprintf("declared envelope size %d exceeds max %d", size, MaxEnvelopeSize)}
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return Envelope{}, &EnvelopeError{Kind: "io", Msg: "read envelope body", Err: err}
	}

	var env Envelope
	if err := msgpack.Unmarshal(body, &env); err != nil {
		return Envelope{}, &EnvelopeError{Kind: "decode", Msg: "unmarshal envelope", Err: err}
	}
	return env, nil
}

// DecodeEnvelope is a convenience one-shot decode of a single envelope from
// a full, already-framed byte slice (length prefix included).
func DecodeEnvelope(b []byte) (Envelope, error) {
	dec := NewEnvelopeDecoder(bytes.NewReader(b))
	return dec.ReadEnvelope()
}
