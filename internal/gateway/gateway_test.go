package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prosabot/prosa/internal/bus"
)

type fakeChannel struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	startErr error
	sent     chan bus.OutboundMessage
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{sent: make(chan bus.OutboundMessage, 16)}
}

func (f *fakeChannel) Name() string { return "discord" }

func (f *fakeChannel) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeChannel) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeChannel) Send(msg bus.OutboundMessage) error {
	f.sent <- msg
	return nil
}

type fakeHandler struct {
	replies []string
	mu      sync.Mutex
	seen    []bus.InboundMessage
}

func (f *fakeHandler) Handle(_ context.Context, msg bus.InboundMessage) []string {
	f.mu.Lock()
	f.seen = append(f.seen, msg)
	f.mu.Unlock()
	return f.replies
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(replies ...string) (*Manager, *fakeChannel, *bus.MessageBus) {
	ch := newFakeChannel()
	b := bus.NewMessageBus(16)
	m := NewManager(b, ch, &fakeHandler{replies: replies}, testLogger())
	return m, ch, b
}

func TestInitialStateStopped(t *testing.T) {
	m, _, _ := newTestManager()
	if m.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", m.State())
	}
	if m.Uptime() != 0 {
		t.Fatal("uptime should be zero before start")
	}
}

func TestStartTransitionsToRunning(t *testing.T) {
	m, ch, _ := newTestManager()
	res := m.Start()
	defer m.Stop()

	if !res.Success {
		t.Fatalf("Start failed: %s", res.Message)
	}
	if m.State() != StateRunning {
		t.Fatalf("state = %s, want running", m.State())
	}
	if !ch.started {
		t.Fatal("channel not started")
	}
}

func TestDoubleStartIsNoOpFailure(t *testing.T) {
	m, _, _ := newTestManager()
	m.Start()
	defer m.Stop()

	res := m.Start()
	if res.Success {
		t.Fatal("second Start should not succeed")
	}
	if m.State() != StateRunning {
		t.Fatalf("state = %s, running bot must be unaffected", m.State())
	}
}

func TestStopWhenStoppedIsNoOpFailure(t *testing.T) {
	m, _, _ := newTestManager()
	if res := m.Stop(); res.Success {
		t.Fatal("Stop on a stopped bot should not succeed")
	}
}

func TestStartFailureRevertsToStopped(t *testing.T) {
	m, ch, _ := newTestManager()
	ch.startErr = fmt.Errorf("token inválido")

	res := m.Start()
	if res.Success {
		t.Fatal("Start should fail when the channel cannot connect")
	}
	if m.State() != StateStopped {
		t.Fatalf("state = %s, want stopped after failed start", m.State())
	}

	ch.startErr = nil
	if res := m.Start(); !res.Success {
		t.Fatalf("Start after recovery failed: %s", res.Message)
	}
	m.Stop()
}

func TestStopDisconnectsAndResets(t *testing.T) {
	m, ch, _ := newTestManager()
	m.Start()

	res := m.Stop()
	if !res.Success {
		t.Fatalf("Stop failed: %s", res.Message)
	}
	if m.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", m.State())
	}
	if !ch.stopped {
		t.Fatal("channel not stopped")
	}
	if m.Uptime() != 0 {
		t.Fatal("uptime should reset on stop")
	}
}

func TestRestartFromStopped(t *testing.T) {
	m, _, _ := newTestManager()
	res := m.Restart()
	defer m.Stop()

	if !res.Success {
		t.Fatalf("Restart failed: %s", res.Message)
	}
	if m.State() != StateRunning {
		t.Fatalf("state = %s, want running", m.State())
	}
}

func TestRestartWhileRunning(t *testing.T) {
	m, _, _ := newTestManager()
	m.Start()
	defer m.Stop()

	res := m.Restart()
	if !res.Success {
		t.Fatalf("Restart failed: %s", res.Message)
	}
	if m.State() != StateRunning {
		t.Fatalf("state = %s, want running", m.State())
	}
}

func TestUptimeGrowsWhileRunning(t *testing.T) {
	m, _, _ := newTestManager()
	m.Start()
	defer m.Stop()

	time.Sleep(20 * time.Millisecond)
	if m.Uptime() <= 0 {
		t.Fatal("uptime should be positive while running")
	}

	st := m.Status()
	if !st.Running || st.State != StateRunning {
		t.Fatalf("status = %+v, want running", st)
	}
}

func TestInboundRepliesRelayedToChannel(t *testing.T) {
	m, ch, b := newTestManager("primeira resposta", "segunda resposta")
	m.Start()
	defer m.Stop()

	b.Inbound <- bus.InboundMessage{
		Channel:  "discord",
		UserID:   "u1",
		Username: "ana",
		ChatID:   "c1",
		Content:  "oi",
	}

	for i, want := range []string{"primeira resposta", "segunda resposta"} {
		select {
		case got := <-ch.sent:
			if got.Content != want {
				t.Errorf("reply %d = %q, want %q", i, got.Content, want)
			}
			if got.ChatID != "c1" || got.Channel != "discord" {
				t.Errorf("reply %d routed to %s/%s, want discord/c1", i, got.Channel, got.ChatID)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("reply %d never reached the channel", i)
		}
	}
}

type stuckChannel struct {
	fakeChannel
	release chan struct{}
}

func (s *stuckChannel) Send(bus.OutboundMessage) error {
	<-s.release
	return nil
}

func (s *stuckChannel) Stop() error {
	close(s.release)
	return s.fakeChannel.Stop()
}

func TestStopReturnsWithFullOutboundBuffer(t *testing.T) {
	ch := &stuckChannel{
		fakeChannel: fakeChannel{sent: make(chan bus.OutboundMessage, 16)},
		release:     make(chan struct{}),
	}
	b := bus.NewMessageBus(1)
	replies := []string{"um", "dois", "três", "quatro", "cinco"}
	m := NewManager(b, ch, &fakeHandler{replies: replies}, testLogger())

	if res := m.Start(); !res.Success {
		t.Fatalf("Start: %s", res.Message)
	}
	b.Inbound <- bus.InboundMessage{Channel: "discord", ChatID: "c1", Content: "oi"}

	// Let the relay wedge: dispatcher stuck in Send, outbound buffer full,
	// processLoop blocked on its next reply.
	time.Sleep(50 * time.Millisecond)

	done := make(chan Result, 1)
	go func() { done <- m.Stop() }()

	select {
	case res := <-done:
		if !res.Success {
			t.Fatalf("Stop: %s", res.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung with a full outbound buffer")
	}
	if m.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", m.State())
	}
}

func TestEmptyRepliesNotSent(t *testing.T) {
	m, ch, b := newTestManager("")
	m.Start()
	defer m.Stop()

	b.Inbound <- bus.InboundMessage{Channel: "discord", ChatID: "c1", Content: "oi"}

	select {
	case msg := <-ch.sent:
		t.Fatalf("unexpected send: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
