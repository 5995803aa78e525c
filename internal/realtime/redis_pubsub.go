package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "meeting:"
	publishTimeout = 5 * time.Second
)

func meetingChannel(meetingID uuid.UUID) string {
	return channelPrefix + meetingID.String()
}

// wireEvent is the envelope carried over Redis between instances.
type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	TS    int64           `json:"ts"`
}

// RedisPubSub bridges meeting events over Redis so rooms on every instance
// see them.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for meeting events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// PublishMeetingEvent publishes an event to the meeting's channel.
func (r *RedisPubSub) PublishMeetingEvent(meetingID uuid.UUID, event string, payload []byte) error {
	body, err := json.Marshal(wireEvent{Event: event, Data: payload, TS: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, meetingChannel(meetingID), body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// SubscribeMeeting subscribes to a meeting's channel and calls handler for
// each incoming event until the returned cancel runs.
func (r *RedisPubSub) SubscribeMeeting(meetingID uuid.UUID, handler func(event string, payload []byte)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, meetingChannel(meetingID))

	confirmCtx, confirmCancel := context.WithTimeout(ctx, publishTimeout)
	_, err := pubsub.Receive(confirmCtx)
	confirmCancel()
	if err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe meeting %s: %w", meetingID, err)
	}

	go r.forward(ctx, pubsub, handler)
	return cancel, nil
}

func (r *RedisPubSub) forward(ctx context.Context, pubsub *redis.PubSub, handler func(event string, payload []byte)) {
	defer func() { _ = pubsub.Close() }()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("bad event payload",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			handler(ev.Event, ev.Data)
		}
	}
}
