package watermillpublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/nftmarket/marketd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	marketTopic = "market_events"

	subscriberBufferSize = 64
)

type recordedEventMessage struct {
	Seq       uint64          `json:"seq"`
	CreatedAt int64           `json:"created_at"`
	Event     json.RawMessage `json:"event"`
}

type publisher struct {
	pubsub *gochannel.GoChannel

	lock   sync.Mutex
	closed bool
}

func NewEventPublisher() ports.EventPublisher {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: subscriberBufferSize,
			// Waiting for acks keeps every subscriber's stream in seq order.
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NopLogger{},
	)
	return &publisher{pubsub: pubsub}
}

func (p *publisher) Publish(_ context.Context, events []domain.RecordedEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs, err := toWatermillMessages(events)
	if err != nil {
		return err
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return fmt.Errorf("publisher is closed")
	}
	return p.pubsub.Publish(marketTopic, msgs...)
}

func (p *publisher) Subscribe(ctx context.Context) (<-chan domain.RecordedEvent, error) {
	msgs, err := p.pubsub.Subscribe(ctx, marketTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", marketTopic, err)
	}

	ch := make(chan domain.RecordedEvent, subscriberBufferSize)
	go func() {
		defer close(ch)
		for msg := range msgs {
			event, err := fromWatermillMessage(msg)
			msg.Ack()
			if err != nil {
				log.WithError(err).Warnf("failed to decode event message %s", msg.UUID)
				continue
			}
			// Slow subscribers lose events rather than stall publishing, gaps show in Seq.
			select {
			case ch <- *event:
			default:
				log.Warnf("subscriber too slow, dropped event %d", event.Seq)
			}
		}
	}()
	return ch, nil
}

func (p *publisher) Close() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if err := p.pubsub.Close(); err != nil {
		log.WithError(err).Warn("failed to close event publisher")
	}
}

func toWatermillMessages(events []domain.RecordedEvent) ([]*message.Message, error) {
	msgs := make([]*message.Message, 0, len(events))
	for _, event := range events {
		data, err := domain.SerializeEvent(event.Event)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize event %d: %w", event.Seq, err)
		}
		payload, err := json.Marshal(recordedEventMessage{
			Seq:       event.Seq,
			CreatedAt: event.CreatedAt,
			Event:     data,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to serialize event %d: %w", event.Seq, err)
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("type", string(event.Event.GetType()))
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func fromWatermillMessage(msg *message.Message) (*domain.RecordedEvent, error) {
	var payload recordedEventMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	event, err := domain.DeserializeEvent(payload.Event)
	if err != nil {
		return nil, err
	}
	return &domain.RecordedEvent{
		Seq:       payload.Seq,
		CreatedAt: payload.CreatedAt,
		Event:     event,
	}, nil
}
