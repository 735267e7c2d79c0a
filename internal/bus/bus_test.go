package bus

import (
	"context"
	"testing"
	"time"
)

func TestSessionKey(t *testing.T) {
	msg := InboundMessage{Channel: "discord", ChatID: "c42"}
	if got := msg.SessionKey(); got != "discord:c42" {
		t.Errorf("SessionKey = %q, want discord:c42", got)
	}
}

func TestDispatchOutbound(t *testing.T) {
	b := NewMessageBus(10)

	got := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("discord", func(msg OutboundMessage) {
		got <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "discord", ChatID: "c1", Content: "oi"}

	select {
	case msg := <-got:
		if msg.Content != "oi" || msg.ChatID != "c1" {
			t.Errorf("delivered %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("outbound message not dispatched")
	}
}

func TestDispatchOutboundUnknownChannelDropped(t *testing.T) {
	b := NewMessageBus(10)

	got := make(chan OutboundMessage, 2)
	b.SubscribeOutbound("discord", func(msg OutboundMessage) {
		got <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "telegram", Content: "perdida"}
	b.Outbound <- OutboundMessage{Channel: "discord", Content: "entregue"}

	select {
	case msg := <-got:
		if msg.Content != "entregue" {
			t.Errorf("got %q, want only the discord message", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("discord message not dispatched")
	}
}
