package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	rediscache "github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/redis"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

// RedisEventBusConfig configures NewRedisEventBus.
type RedisEventBusConfig struct {
	Cache *rediscache.Cache

	// InstanceID marks outgoing envelopes so this process can skip its own
	// events when they come back. Generated when empty.
	InstanceID string

	// LocalBusConfig configures the bus that runs this process's handlers.
	LocalBusConfig InMemoryEventBusConfig

	Logger *logger.Logger
}

// RedisEventBus runs local handlers through an InMemoryEventBus and relays
// every published event to the other processes. Each event reaches the
// handlers of each process once.
type RedisEventBus struct {
	cache      *rediscache.Cache
	local      *InMemoryEventBus
	instanceID string
	logger     *logger.Logger

	stop    context.CancelFunc
	relay   sync.WaitGroup
	closeMu sync.Once
}

// NewRedisEventBus returns after Redis confirmed the subscription, so no
// event published after it returns is missed.
func NewRedisEventBus(ctx context.Context, cfg RedisEventBusConfig) (*RedisEventBus, error) {
	if cfg.Cache == nil {
		return nil, errors.New("redis event bus: cache is required")
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.LocalBusConfig.Logger == nil {
		cfg.LocalBusConfig.Logger = cfg.Logger
	}

	b := &RedisEventBus{
		cache:      cfg.Cache,
		local:      NewInMemoryEventBus(cfg.LocalBusConfig),
		instanceID: cfg.InstanceID,
		logger:     cfg.Logger.With(logger.Component("redis_eventbus"), logger.String("instance_id", cfg.InstanceID)),
	}

	pubsub := b.cache.PSubscribe(ctx, rediscache.PubSubChannel("*"))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = b.local.Close()
		return nil, fmt.Errorf("redis event bus: subscribe: %w", err)
	}

	relayCtx, stop := context.WithCancel(context.Background())
	b.stop = stop
	b.relay.Add(1)
	go func() {
		defer b.relay.Done()
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-relayCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				b.receive([]byte(msg.Payload))
			}
		}
	}()
	return b, nil
}

// InstanceID returns the id stamped on outgoing envelopes.
func (b *RedisEventBus) InstanceID() string { return b.instanceID }

func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish runs local handlers and relays event to the other processes. A
// relay failure is logged; it does not undo the local dispatch.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if err := b.local.Publish(event); err != nil {
		return err
	}

	data, err := json.Marshal(newEnvelope(b.instanceID, event))
	if err != nil {
		return fmt.Errorf("redis event bus: encode %s: %w", event.EventType(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := b.cache.Publish(ctx, rediscache.PubSubChannel(string(event.EventType())), data); err != nil {
		b.logger.Error("event relay failed",
			logger.String("event_type", string(event.EventType())),
			logger.LineageID(event.AggregateID()),
			logger.Err(err),
		)
	}
	return nil
}

func (b *RedisEventBus) receive(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.logger.Warn("dropping undecodable event", logger.Err(err))
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}
	if err := b.local.Publish(env.event()); err != nil && !errors.Is(err, ErrEventBusClosed) {
		b.logger.Error("remote event dispatch failed", logger.Err(err))
	}
}

// Close stops the relay, then drains local handlers.
func (b *RedisEventBus) Close() error {
	b.closeMu.Do(func() {
		b.stop()
		b.relay.Wait()
		_ = b.local.Close()
	})
	return nil
}
