package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/sentinela/internal/domain"
)

// ChannelBus is the in-process bus used by the community tier. Each
// subscriber has a buffered queue; a full queue drops the message.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string][]*channelSubscription
	closed        bool

	requestTimeout time.Duration
}

type channelSubscription struct {
	id      string
	key     string
	topic   string
	handler domain.MessageHandler
	msgCh   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
}

// NewChannelBus creates a channel bus with per-subscriber buffers.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &ChannelBus{
		bufferSize:     bufferSize,
		subscriptions:  make(map[string][]*channelSubscription),
		requestTimeout: 30 * time.Second,
	}
}

func channelKey(datasetID, topic string) string {
	return datasetID + ":" + topic
}

// Publish queues a message for every subscriber of the topic.
func (b *ChannelBus) Publish(ctx context.Context, datasetID string, topic string, payload []byte) error {
	msg, err := newMessage(datasetID, topic, payload)
	if err != nil {
		return err
	}
	return b.deliver(msg)
}

func (b *ChannelBus) deliver(msg *domain.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	for _, sub := range b.subscriptions[channelKey(msg.DatasetID, msg.Topic)] {
		select {
		case sub.msgCh <- msg:
		default:
			slog.Warn("subscriber queue full, dropping message",
				"topic", msg.Topic,
				"dataset_id", msg.DatasetID,
				"message_id", msg.ID,
			)
		}
	}
	return nil
}

// Subscribe registers a handler; messages are handled sequentially.
func (b *ChannelBus) Subscribe(ctx context.Context, datasetID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("datasetID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.New().String(),
		key:     channelKey(datasetID, topic),
		topic:   topic,
		handler: handler,
		msgCh:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}
	b.subscriptions[sub.key] = append(b.subscriptions[sub.key], sub)

	go sub.run()
	return sub, nil
}

func (s *channelSubscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.msgCh:
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("handler error",
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Request publishes a message carrying a private reply topic and waits for
// the first answer.
func (b *ChannelBus) Request(ctx context.Context, datasetID string, topic string, payload []byte) ([]byte, error) {
	msg, err := newMessage(datasetID, topic, payload)
	if err != nil {
		return nil, err
	}
	replyTopic := topic + ".reply." + msg.ID
	msg.Metadata[domain.MetadataReplyTo] = replyTopic

	replyCh := make(chan []byte, 1)
	sub, err := b.Subscribe(ctx, datasetID, replyTopic, func(_ context.Context, m *domain.Message) error {
		select {
		case replyCh <- m.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.deliver(msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(b.requestTimeout)
	defer timer.Stop()
	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("request timeout")
	}
}

// Reply answers a request message.
func (b *ChannelBus) Reply(ctx context.Context, msg *domain.Message, payload []byte) error {
	to := msg.Metadata[domain.MetadataReplyTo]
	if to == "" {
		return fmt.Errorf("message %s is not a request", msg.ID)
	}
	return b.Publish(ctx, msg.DatasetID, to, payload)
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close stops every subscription.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	b.subscriptions = make(map[string][]*channelSubscription)
	return nil
}

// Unsubscribe stops delivery and removes the subscription from the bus.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()

	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscriptions[s.key]
	for i, other := range subs {
		if other == s {
			b.subscriptions[s.key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscriptions[s.key]) == 0 {
		delete(b.subscriptions, s.key)
	}
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
