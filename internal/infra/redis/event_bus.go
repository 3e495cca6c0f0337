package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"scheduled-exam-service/internal/app"
	"scheduled-exam-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// EventBus fans exam events out across service instances with Redis pub/sub,
// one channel per exam: exam:{id}:events.
type EventBus struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func NewEventBus(client *redis.Client, log logrus.FieldLogger) *EventBus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EventBus{client: client, log: log}
}

func (b *EventBus) Publish(ctx context.Context, event domain.ExamEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode exam event: %w", err)
	}
	return b.client.Publish(ctx, eventsChannel(event.ExamID), raw).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so events published
// after it returns are not lost.
func (b *EventBus) Subscribe(ctx context.Context, examID int64) (<-chan domain.ExamEvent, func(), error) {
	sub := b.client.Subscribe(ctx, eventsChannel(examID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe exam events: %w", err)
	}

	out := make(chan domain.ExamEvent, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		messages := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event domain.ExamEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.log.WithError(err).WithField("exam_id", examID).Warn("drop malformed exam event")
					continue
				}
				app.Deliver(out, event)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}

func eventsChannel(examID int64) string {
	return "exam:" + strconv.FormatInt(examID, 10) + ":events"
}
