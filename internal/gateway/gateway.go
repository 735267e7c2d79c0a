// Package gateway runs the relay loop: inbound messages from the channel are
// handed to the conversation handler and replies are pushed back out through
// the bus. The Manager exposes a small state machine so the dashboard can
// start, stop and restart the relay while the process keeps running.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prosabot/prosa/internal/bus"
	"github.com/prosabot/prosa/internal/channel"
)

type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Handler produces zero or more replies for one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg bus.InboundMessage) []string
}

// Result reports the outcome of a lifecycle request. Invalid transitions are
// reported here, never as errors: asking a running bot to start is a no-op
// with Success=false.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Status is a point-in-time snapshot for the dashboard.
type Status struct {
	State         State     `json:"state"`
	Running       bool      `json:"running"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Uptime        string    `json:"uptime"`
	StartedAt     time.Time `json:"started_at,omitzero"`
}

type Manager struct {
	bus     *bus.MessageBus
	ch      channel.Channel
	handler Handler
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewManager(b *bus.MessageBus, ch channel.Channel, handler Handler, logger *slog.Logger) *Manager {
	m := &Manager{
		bus:     b,
		ch:      ch,
		handler: handler,
		logger:  logger.With("component", "gateway"),
		state:   StateStopped,
	}
	b.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			m.logger.Error("outbound send failed", "chat_id", msg.ChatID, "error", err)
		}
	})
	return m
}

// Start connects the channel and begins relaying messages.
func (m *Manager) Start() Result {
	m.mu.Lock()
	if m.state != StateStopped {
		m.mu.Unlock()
		return Result{Success: false, Message: "Bot já está em execução"}
	}
	m.state = StateStarting
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	if err := m.ch.Start(ctx); err != nil {
		cancel()
		m.mu.Lock()
		m.state = StateStopped
		m.cancel = nil
		m.mu.Unlock()
		m.logger.Error("channel start failed", "error", err)
		return Result{Success: false, Message: fmt.Sprintf("Erro ao iniciar o bot: %v", err)}
	}

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.bus.DispatchOutbound(ctx)
	}()
	go func() {
		defer m.wg.Done()
		m.processLoop(ctx)
	}()

	m.mu.Lock()
	m.state = StateRunning
	m.startedAt = time.Now()
	m.mu.Unlock()

	m.logger.Info("bot started")
	return Result{Success: true, Message: "Bot iniciado com sucesso"}
}

// Stop disconnects the channel and waits for the relay loop to drain.
func (m *Manager) Stop() Result {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return Result{Success: false, Message: "Bot não está em execução"}
	}
	m.state = StateStopping
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	if err := m.ch.Stop(); err != nil {
		m.logger.Error("channel stop failed", "error", err)
	}
	m.wg.Wait()

	m.mu.Lock()
	m.state = StateStopped
	m.startedAt = time.Time{}
	m.mu.Unlock()

	m.logger.Info("bot stopped")
	return Result{Success: true, Message: "Bot parado com sucesso"}
}

// Restart stops a running bot and starts it again. A stopped bot is simply
// started.
func (m *Manager) Restart() Result {
	if m.State() == StateRunning {
		if res := m.Stop(); !res.Success {
			return res
		}
	}
	res := m.Start()
	if res.Success {
		res.Message = "Bot reiniciado com sucesso"
	}
	return res
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Uptime reports how long the bot has been running, zero when stopped.
func (m *Manager) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning || m.startedAt.IsZero() {
		return 0
	}
	return time.Since(m.startedAt)
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	state := m.state
	startedAt := m.startedAt
	m.mu.Unlock()

	var up time.Duration
	if state == StateRunning && !startedAt.IsZero() {
		up = time.Since(startedAt)
	}
	return Status{
		State:         state,
		Running:       state == StateRunning,
		UptimeSeconds: int64(up.Seconds()),
		Uptime:        up.Truncate(time.Second).String(),
		StartedAt:     startedAt,
	}
}

func (m *Manager) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-m.bus.Inbound:
			m.logger.Info("inbound message",
				"user", msg.Username, "chat_id", msg.ChatID, "content", truncate(msg.Content, 80))

			for _, reply := range m.handler.Handle(ctx, msg) {
				if reply == "" {
					continue
				}
				// Stop must never hang on a full outbound buffer once the
				// dispatcher is gone.
				select {
				case m.bus.Outbound <- bus.OutboundMessage{
					Channel: msg.Channel,
					ChatID:  msg.ChatID,
					Content: reply,
				}:
				case <-ctx.Done():
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
