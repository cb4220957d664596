package ackwire

import (
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/nonscan/internal/testutil/testlog"
)

func TestEncodeRequest(t *testing.T) {
	testlog.Start(t)
	got, err := EncodeRequest(" 0x466aca1 ")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(got) != "0x466aca1\n" {
		t.Fatalf("unexpected wire bytes: %q", got)
	}

	if _, err := EncodeRequest("  "); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
	if _, err := EncodeRequest("a\nb"); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", err)
	}
	if _, err := EncodeRequest(strings.Repeat("x", MaxCommandLen+1)); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand for long command, got %v", err)
	}
}

func feedEach(d *Decoder, in []byte) []Decision {
	out := make([]Decision, 0, len(in))
	for _, b := range in {
		out = append(out, d.Feed([]byte{b}))
	}
	return out
}

func countAcks(decisions []Decision) int {
	n := 0
	for _, dec := range decisions {
		if dec == DecisionAck {
			n++
		}
	}
	return n
}

func TestDecoderSingleBytes(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		in   []byte
		acks int
	}{
		{name: "ack", in: []byte{0x52}, acks: 1},
		{name: "nul then ack", in: []byte{0x00, 0x52}, acks: 1},
		{name: "noise then ack", in: []byte("XR"), acks: 1},
		{name: "lowercase is noise", in: []byte("r"), acks: 0},
		{name: "two acks", in: []byte("RR"), acks: 2},
		{name: "crlf noise", in: []byte("\r\nR\r\n"), acks: 1},
		{name: "empty", in: nil, acks: 0},
	}
	for _, tc := range cases {
		d := NewDecoder()
		got := countAcks(feedEach(d, tc.in))
		if got != tc.acks {
			t.Fatalf("%s: got %d acks want %d", tc.name, got, tc.acks)
		}
		if d.Buffered() != 0 {
			t.Fatalf("%s: buffer not reset: %d", tc.name, d.Buffered())
		}
	}
}

func TestDecoderMultiByteReadOverflows(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	if got := d.Feed([]byte{0x52, 0x41}); got != DecisionOverflow {
		t.Fatalf("expected overflow, got %s", got)
	}
	if d.Buffered() != 0 {
		t.Fatalf("overflow must clear the buffer")
	}
	if string(d.Last()) != "RA" {
		t.Fatalf("unexpected last bytes: %q", d.Last())
	}
	if got := d.Feed([]byte{0x52}); got != DecisionAck {
		t.Fatalf("decoder must recover after overflow, got %s", got)
	}
}

func TestDecoderIdleChunks(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	if got := d.Feed([]byte{0x00, 0x00}); got != DecisionIdle {
		t.Fatalf("expected idle for NUL fill, got %s", got)
	}
	if got := d.Feed([]byte{}); got != DecisionIdle {
		t.Fatalf("expected idle for empty read, got %s", got)
	}
	if got := d.Feed([]byte{'X'}); got != DecisionNoise {
		t.Fatalf("expected noise, got %s", got)
	}
	if DecisionOverflow.String() != "overflow" || Decision(99).String() != "unknown" {
		t.Fatalf("unexpected decision names")
	}
}
