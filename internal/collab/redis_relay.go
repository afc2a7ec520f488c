package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"podnotes/api/internal/util"
)

const channelPrefix = "outline:"

// RedisRelay shares hub events between API processes over Redis pub/sub,
// one channel per container.
type RedisRelay struct {
	client *redis.Client
	node   string
	log    zerolog.Logger
}

type envelope struct {
	Node  string `json:"node"`
	Event Event  `json:"event"`
}

func NewRedisRelay(redisURL string, logger zerolog.Logger) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisRelayWithClient(redis.NewClient(opts), logger), nil
}

func NewRedisRelayWithClient(client *redis.Client, logger zerolog.Logger) *RedisRelay {
	return &RedisRelay{client: client, node: util.NewID("node"), log: logger}
}

func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}

func (r *RedisRelay) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(envelope{Node: r.node, Event: evt})
	if err != nil {
		return fmt.Errorf("marshal relay event: %w", err)
	}
	if err := r.client.Publish(ctx, channelPrefix+evt.ContainerID, payload).Err(); err != nil {
		return fmt.Errorf("publish relay event: %w", err)
	}
	return nil
}

// Listen subscribes before returning, so events published afterwards by
// other processes reach deliver. Events this process published are skipped.
func (r *RedisRelay) Listen(ctx context.Context, deliver func(Event)) (func(), error) {
	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe relay: %w", err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		messages := pubsub.Channel()
		for {
			select {
			case <-listenCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.log.Warn().Err(err).Str("channel", msg.Channel).Msg("drop malformed relay event")
					continue
				}
				if env.Node == r.node {
					continue
				}
				if env.Event.ContainerID == "" {
					env.Event.ContainerID = strings.TrimPrefix(msg.Channel, channelPrefix)
				}
				deliver(env.Event)
			}
		}
	}()

	return func() {
		cancel()
		_ = pubsub.Close()
		<-done
	}, nil
}
