package bus

import (
	"context"
	"sync"
	"time"
)

// InboundMessage is one chat event as delivered by the gateway connection.
type InboundMessage struct {
	Channel   string
	UserID    string
	Username  string
	ChatID    string
	Content   string
	Timestamp time.Time
	DM        bool
	Mentioned bool
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is one chat send call. Content must respect the platform
// message limit; splitting happens in the channel layer.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}

// MessageBus decouples channels from the message handler. One goroutine
// services one inbound message end-to-end; outbound sends are dispatched to
// the subscriber registered for the originating channel.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string]func(OutboundMessage)
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound:     make(chan InboundMessage, bufSize),
		Outbound:    make(chan OutboundMessage, bufSize),
		subscribers: make(map[string]func(OutboundMessage)),
	}
}

func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = fn
}

// DispatchOutbound delivers outbound messages to their channel subscriber
// until ctx is cancelled. Messages for unknown channels are dropped.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.mu.RLock()
			fn := b.subscribers[msg.Channel]
			b.mu.RUnlock()
			if fn != nil {
				fn(msg)
			}
		case <-ctx.Done():
			return
		}
	}
}
