package link

import (
	"errors"
	"time"

	"github.com/danmuck/nonscan/internal/observability"
	"github.com/danmuck/nonscan/internal/protocol/ackwire"
	"github.com/danmuck/nonscan/internal/protocol/transport"
	"github.com/rs/zerolog/log"
)

// receiveLoop reads one byte per read until its connection fails or is closed.
func (l *Link) receiveLoop(conn transport.Conn, gen uint64, sink Sink, done chan struct{}) {
	defer close(done)
	dec := ackwire.NewDecoder()
	buf := make([]byte, 1)
	for {
		n, err := conn.Receive(buf, l.cfg.ReadTimeout)
		if errors.Is(err, transport.ErrTimeout) {
			continue
		}
		if err != nil {
			l.teardown(gen, err, false)
			return
		}
		observability.RecordWireBytes("rx", n)

		decision := dec.Feed(buf[:n])
		observability.RecordWireDecision(decision.String())
		switch decision {
		case ackwire.DecisionAck:
			log.Info().Str("peer", l.dialer.Peer()).Msg("link.receive ack")
			sink.OnAck(time.Now())
		case ackwire.DecisionNoise:
			log.Debug().Hex("bytes", dec.Last()).Msg("link.receive ignoring noise")
		case ackwire.DecisionOverflow:
			log.Warn().Hex("bytes", dec.Last()).Msg("link.receive decode buffer overflow")
		}
	}
}
