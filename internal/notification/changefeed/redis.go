package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"sales_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "crm:notifications:"

// RedisFeed relays changes over Redis pub/sub, one channel per user.
// Writers call Publish after committing; it is used when the database
// cannot hold a dedicated LISTEN connection.
type RedisFeed struct {
	rdb *redis.Client
	log *logger.Logger
}

func NewRedisFeed(rdb *redis.Client, log *logger.Logger) *RedisFeed {
	return &RedisFeed{rdb: rdb, log: log}
}

// ChannelFor returns the pub/sub channel for a user.
func ChannelFor(userID uuid.UUID) string {
	return redisChannelPrefix + userID.String()
}

func (f *RedisFeed) Publish(ctx context.Context, c Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := f.rdb.Publish(ctx, ChannelFor(c.UserID), data).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, userID uuid.UUID) (Subscription, error) {
	ps := f.rdb.Subscribe(ctx, ChannelFor(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", ChannelFor(userID), err)
	}

	sub := &redisSubscription{
		ps:   ps,
		ch:   make(chan Change, subscriberBuffer),
		done: make(chan struct{}),
	}
	go sub.pump(f.log)
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan Change
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) Changes() <-chan Change { return s.ch }

// pump relays messages until the subscription is closed. The confirmation
// of the initial SUBSCRIBE is consumed by Subscribe, so any later subscribe
// confirmation means go-redis reconnected and resubscribed. Messages
// published while the connection was down are gone, so the stream ends and
// the consumer resubscribes and refreshes.
func (s *redisSubscription) pump(log *logger.Logger) {
	defer close(s.ch)

	msgs := s.ps.ChannelWithSubscriptions()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			switch m := msg.(type) {
			case *redis.Subscription:
				if m.Kind == "subscribe" {
					log.Warn("change feed resubscribed after reconnect", "channel", m.Channel)
					return
				}
			case *redis.Message:
				change, err := Decode([]byte(m.Payload))
				if err != nil {
					log.Warn("ignoring malformed change payload", "error", err)
					continue
				}
				select {
				case s.ch <- change:
				default:
					log.Warn("change subscriber buffer full", "user_id", change.UserID.String())
				}
			}
		}
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
