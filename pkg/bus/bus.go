package bus

import (
	"context"

	"github.com/cometbot/comet/pkg/message"
)

// InboundMessage is a normalized platform event: sender/context identity
// plus the converted wrapper.
type InboundMessage struct {
	Channel    string
	SenderID   string
	SenderName string
	ChatID     string
	Message    *message.Wrapper
	Metadata   map[string]string
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Message *message.Wrapper
}

// MessageBus decouples platform adapters from the gateway loop. Adapters
// publish inbound events and subscribe for outbound sends; the gateway does
// the reverse.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, 128),
		outbound: make(chan OutboundMessage, 128),
	}
}

func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}
