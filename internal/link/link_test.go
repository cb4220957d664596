package link

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/nonscan/internal/protocol/session"
	"github.com/danmuck/nonscan/internal/protocol/transport"
	"github.com/danmuck/nonscan/internal/testutil/linktest"
	"github.com/danmuck/nonscan/internal/testutil/testlog"
)

type recordingSink struct {
	acks chan time.Time
	lost chan error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		acks: make(chan time.Time, 16),
		lost: make(chan error, 16),
	}
}

func (s *recordingSink) OnAck(at time.Time)     { s.acks <- at }
func (s *recordingSink) OnLinkLost(cause error) { s.lost <- cause }

func testConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.ReadTimeout = 10 * time.Millisecond
	cfg.WriteTimeout = 100 * time.Millisecond
	cfg.Reconnect.SettleDelay = 0
	return cfg
}

func newTestLink(t *testing.T, d *linktest.Dialer) *Link {
	t.Helper()
	l, err := New(d, testConfig())
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func waitAck(t *testing.T, s *recordingSink) {
	t.Helper()
	select {
	case <-s.acks:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ack")
	}
}

func waitLost(t *testing.T, s *recordingSink) error {
	t.Helper()
	select {
	case err := <-s.lost:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for link loss")
		return nil
	}
}

func TestNewRequiresDialer(t *testing.T) {
	testlog.Start(t)
	if _, err := New(nil, testConfig()); !errors.Is(err, ErrDialerRequired) {
		t.Fatalf("expected ErrDialerRequired, got %v", err)
	}
}

func TestConnectSuccessAndFailure(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	d.QueueError(errors.New("host is down"))
	l := newTestLink(t, d)

	err := l.Connect(context.Background())
	if !errors.Is(err, transport.ErrConnect) {
		t.Fatalf("expected connect failure, got %v", err)
	}
	if l.State() != StateDisconnected {
		t.Fatalf("expected disconnected after failure, got %s", l.State())
	}
	if l.Snapshot().LastError == "" {
		t.Fatalf("expected last error recorded")
	}

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if l.State() != StateConnected {
		t.Fatalf("expected connected, got %s", l.State())
	}
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect on connected link should be a no-op: %v", err)
	}
	if d.Dials() != 2 {
		t.Fatalf("unexpected dial count: %d", d.Dials())
	}
	snap := l.Snapshot()
	if snap.State != "connected" || snap.Generation != 1 || snap.LastError != "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestCloseIdempotent(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	l := newTestLink(t, d)

	if err := l.Close(); err != nil {
		t.Fatalf("close on never-connected link: %v", err)
	}
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := d.Last()
	if err := l.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if conn.CloseCount() != 1 {
		t.Fatalf("handle closed %d times", conn.CloseCount())
	}
	if l.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", l.State())
	}
}

func TestListenerDeliversAckAndIgnoresNoise(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	l := newTestLink(t, d)
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sink := newRecordingSink()
	started, err := l.StartListener(sink)
	if err != nil || !started {
		t.Fatalf("start listener started=%v err=%v", started, err)
	}

	conn := d.Last()
	conn.Emit(0x00)
	conn.Emit('X')
	conn.Emit('R')
	waitAck(t, sink)

	select {
	case <-sink.acks:
		t.Fatalf("noise must not produce an ack")
	case <-time.After(50 * time.Millisecond):
	}
	if l.State() != StateConnected {
		t.Fatalf("noise and timeouts must not disconnect, got %s", l.State())
	}
}

func TestStartListenerReusesRunningLoop(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	l := newTestLink(t, d)
	sink := newRecordingSink()

	if _, err := l.StartListener(sink); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := l.StartListener(nil); !errors.Is(err, ErrSinkRequired) {
		t.Fatalf("expected ErrSinkRequired, got %v", err)
	}
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var wg sync.WaitGroup
	startedCount := 0
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started, err := l.StartListener(sink)
			if err != nil {
				t.Errorf("start listener: %v", err)
				return
			}
			if started {
				mu.Lock()
				startedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if startedCount != 1 || l.ListenerStarts() != 1 {
		t.Fatalf("expected exactly one listener, started=%d starts=%d", startedCount, l.ListenerStarts())
	}
	if l.ListenerState() != ListenerRunning {
		t.Fatalf("expected running listener, got %s", l.ListenerState())
	}
}

func TestReceiveFailureDisconnects(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	l := newTestLink(t, d)
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sink := newRecordingSink()
	if _, err := l.StartListener(sink); err != nil {
		t.Fatalf("start listener: %v", err)
	}
	conn := d.Last()
	conn.Fail(errors.New("connection reset by peer"))

	cause := waitLost(t, sink)
	if !errors.Is(cause, transport.ErrReceive) {
		t.Fatalf("expected receive failure cause, got %v", cause)
	}
	<-l.ListenerDone()
	if l.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", l.State())
	}
	if !conn.Closed() {
		t.Fatalf("handle must be closed after failure")
	}
	if l.ListenerState() != ListenerStopped {
		t.Fatalf("expected stopped listener, got %s", l.ListenerState())
	}
	select {
	case err := <-sink.lost:
		t.Fatalf("link loss reported twice: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseNotifiesListenerSink(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	l := newTestLink(t, d)
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sink := newRecordingSink()
	if _, err := l.StartListener(sink); err != nil {
		t.Fatalf("start listener: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if cause := waitLost(t, sink); !errors.Is(cause, ErrClosed) {
		t.Fatalf("expected ErrClosed cause, got %v", cause)
	}
	<-l.ListenerDone()
}

func TestSendFailureDisconnects(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	l := newTestLink(t, d)
	if err := l.Send(context.Background(), []byte("x\n")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sink := newRecordingSink()
	if _, err := l.StartListener(sink); err != nil {
		t.Fatalf("start listener: %v", err)
	}
	conn := d.Last()
	if err := l.Send(context.Background(), []byte("0x466aca1\n")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent := conn.Sent(); len(sent) != 1 || string(sent[0]) != "0x466aca1\n" {
		t.Fatalf("unexpected wire traffic: %q", sent)
	}

	conn.FailSends(errors.New("broken pipe"))
	err := l.Send(context.Background(), []byte("again\n"))
	if !errors.Is(err, transport.ErrSend) {
		t.Fatalf("expected send failure, got %v", err)
	}
	if cause := waitLost(t, sink); !errors.Is(cause, transport.ErrSend) {
		t.Fatalf("expected send failure cause, got %v", cause)
	}
	if l.State() != StateDisconnected || !conn.Closed() {
		t.Fatalf("expected disconnected with closed handle, state=%s", l.State())
	}
}

// lapsedCtx reports a deadline in the past while Err is still nil, the state a
// context is in between its deadline passing and its timer firing.
type lapsedCtx struct {
	context.Context
}

func (lapsedCtx) Deadline() (time.Time, bool) {
	return time.Now().Add(-time.Millisecond), true
}

func TestSendRejectsLapsedDeadline(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	l := newTestLink(t, d)
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	err := l.Send(lapsedCtx{context.Background()}, []byte("late\n"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if sent := d.Last().Sent(); len(sent) != 0 {
		t.Fatalf("nothing should reach the wire: %q", sent)
	}
	if l.State() != StateConnected {
		t.Fatalf("a lapsed caller deadline is not a link failure, state=%s", l.State())
	}
}

func TestReconnectClosesStaleHandleAndWaitsSettleDelay(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	l := newTestLink(t, d)
	var slept []time.Duration
	l.sleep = func(ctx context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	l.cfg.Reconnect.SettleDelay = time.Second

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	stale := d.Last()
	if err := l.Reconnect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if !stale.Closed() {
		t.Fatalf("stale handle must be closed")
	}
	if d.Last() == stale || l.State() != StateConnected {
		t.Fatalf("expected a fresh connection, state=%s", l.State())
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("unexpected settle delays: %v", slept)
	}
	if l.Snapshot().Generation != 2 {
		t.Fatalf("unexpected generation: %d", l.Snapshot().Generation)
	}
}

func TestReconnectPolicyAttemptsAndBackoff(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	l := newTestLink(t, d)
	var slept []time.Duration
	l.sleep = func(ctx context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	l.cfg.Reconnect = session.ReconnectPolicy{
		SettleDelay: time.Second,
		MaxAttempts: 3,
		Backoff: session.BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     time.Second,
		},
	}
	for i := 0; i < 3; i++ {
		d.QueueError(errors.New("no route to host"))
	}

	err := l.Reconnect(context.Background())
	if !errors.Is(err, ErrReconnectExhausted) || !errors.Is(err, transport.ErrConnect) {
		t.Fatalf("expected exhausted connect failure, got %v", err)
	}
	want := []time.Duration{time.Second, 100 * time.Millisecond, 200 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("unexpected delays: %v", slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("delay[%d]=%v want %v", i, slept[i], want[i])
		}
	}
	if l.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", l.State())
	}

	if err := l.Reconnect(context.Background()); err != nil {
		t.Fatalf("reconnect after queue drained: %v", err)
	}
}

func TestReconnectHonorsContext(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	l := newTestLink(t, d)
	l.cfg.Reconnect.SettleDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Reconnect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if d.Dials() != 0 {
		t.Fatalf("dial must not happen before settle delay elapses")
	}
}

func TestNewListenerAfterReconnect(t *testing.T) {
	testlog.Start(t)
	d := linktest.NewDialer()
	l := newTestLink(t, d)
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sink := newRecordingSink()
	if _, err := l.StartListener(sink); err != nil {
		t.Fatalf("start listener: %v", err)
	}
	d.Last().Fail(errors.New("reset"))
	waitLost(t, sink)

	if err := l.Reconnect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	started, err := l.StartListener(sink)
	if err != nil || !started {
		t.Fatalf("expected fresh listener, started=%v err=%v", started, err)
	}
	if l.ListenerStarts() != 2 {
		t.Fatalf("unexpected listener starts: %d", l.ListenerStarts())
	}
	d.Last().Emit('R')
	waitAck(t, sink)
}
