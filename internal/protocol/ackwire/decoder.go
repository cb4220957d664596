package ackwire

import "bytes"

// Decision is the decoder verdict for one received chunk.
type Decision int

const (
	// DecisionIdle means the chunk carried nothing (empty or NUL fill).
	DecisionIdle Decision = iota
	DecisionAck
	DecisionNoise
	// DecisionOverflow means more than one undecided byte was buffered.
	DecisionOverflow
)

func (d Decision) String() string {
	switch d {
	case DecisionIdle:
		return "idle"
	case DecisionAck:
		return "ack"
	case DecisionNoise:
		return "noise"
	case DecisionOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Decoder turns a noisy byte stream into ack signals.
//
// The buffer never holds more than one undecided byte between calls. A
// Decoder belongs to exactly one receive loop and is not safe for
// concurrent use.
type Decoder struct {
	buf  []byte
	last []byte
}

func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, 1)}
}

// Feed evaluates one read. The buffer is always empty when Feed returns.
func (d *Decoder) Feed(chunk []byte) Decision {
	if len(chunk) == 0 || len(bytes.Trim(chunk, "\x00")) == 0 {
		return DecisionIdle
	}
	d.buf = append(d.buf, chunk...)
	d.last = append(d.last[:0], d.buf...)
	defer d.reset()

	if len(d.buf) > 1 {
		return DecisionOverflow
	}
	if d.buf[0] == AckByte {
		return DecisionAck
	}
	return DecisionNoise
}

// Last returns a copy of the bytes evaluated by the most recent non-idle Feed.
func (d *Decoder) Last() []byte {
	return append([]byte(nil), d.last...)
}

// Buffered reports the number of undecided bytes.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) reset() {
	d.buf = d.buf[:0]
}
