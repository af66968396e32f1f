package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ibs-source/dispatch/router/golang/internal/config"
	"github.com/ibs-source/dispatch/router/golang/internal/log"
	"github.com/ibs-source/dispatch/router/golang/internal/message"
	"github.com/ibs-source/dispatch/router/golang/internal/warning"
)

// pointerField is the stream entry field carrying the pointer JSON.
const pointerField = "pointer"

// Redis consumes pointers from a Redis stream through a consumer group.
// Ack is XACK plus XDEL; nack leaves the entry pending so the claim loop
// redelivers it after the idle threshold.
type Redis struct {
	rdb          *redis.Client
	stream       string
	group        string
	consumer     string
	batchSize    int64
	blockTimeout time.Duration
	claimIdle    time.Duration
	claimTick    time.Duration
	intake       Intake
	warnings     warning.Sink
	log          *log.Logger
}

// NewRedis creates the Redis source, verifies connectivity and ensures the
// consumer group exists.
func NewRedis(cfg *config.RedisConfig, intake Intake,
	warnings warning.Sink, logger *log.Logger) (*Redis, error) {

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r := &Redis{
		rdb:          rdb,
		stream:       cfg.Stream,
		group:        cfg.Group,
		consumer:     cfg.Consumer,
		batchSize:    int64(cfg.BatchSize),
		blockTimeout: cfg.BlockTimeout,
		claimIdle:    cfg.ClaimIdle,
		claimTick:    cfg.ClaimTick,
		intake:       intake,
		warnings:     warnings,
		log:          logger,
	}

	if err := r.ensureGroup(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Redis) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			r.log.Info("Consumer group '%s' already exists for stream '%s', joining existing group", r.group, r.stream)
			return nil
		}
		return fmt.Errorf("failed to create consumer group for stream %s: %w", r.stream, err)
	}
	r.log.Info("Created consumer group '%s' for stream '%s'", r.group, r.stream)
	return nil
}

// Name identifies the source in logs
func (r *Redis) Name() string { return "redis" }

// Run reads the stream until the context is cancelled. A side goroutine
// periodically claims entries other consumers left pending.
func (r *Redis) Run(ctx context.Context) error {
	r.log.Info("Redis source started on stream %s as %s/%s", r.stream, r.group, r.consumer)

	go r.claimLoop(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := r.readOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("Redis read failed: %v", err)
			time.Sleep(time.Second)
		}
	}
}

// readOnce fetches one batch with XREADGROUP and dispatches it
func (r *Redis) readOnce(ctx context.Context) error {
	result, err := r.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, ">"},
		Count:    r.batchSize,
		Block:    r.blockTimeout,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("xreadgroup failed: %w", err)
	}

	for _, streamResult := range result {
		r.dispatchBatch(streamResult.Messages)
	}
	return nil
}

// claimLoop rebalances entries stuck pending on dead consumers
func (r *Redis) claimLoop(ctx context.Context) {
	ticker := time.NewTicker(r.claimTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			claimed, err := r.claimIdleEntries(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.log.Warn("Redis claim failed: %v", err)
				}
				continue
			}
			if len(claimed) > 0 {
				r.log.Info("Claimed %d idle entries from stream %s", len(claimed), r.stream)
				r.dispatchBatch(claimed)
			}
		}
	}
}

func (r *Redis) claimIdleEntries(ctx context.Context) ([]redis.XMessage, error) {
	pending, err := r.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.stream,
		Group:  r.group,
		Idle:   r.claimIdle,
		Start:  "-",
		End:    "+",
		Count:  r.batchSize,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xpending failed: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}

	claimed, err := r.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.stream,
		Group:    r.group,
		Consumer: r.consumer,
		MinIdle:  r.claimIdle,
		Messages: ids,
	}).Result()

	if err != nil {
		return nil, fmt.Errorf("xclaim failed: %w", err)
	}
	return claimed, nil
}

// dispatchBatch decodes stream entries and hands them to the intake.
// Entries that can never become valid pointers are acked away.
func (r *Redis) dispatchBatch(msgs []redis.XMessage) {
	if len(msgs) == 0 {
		return
	}

	batchID := newBatchID()
	for _, msg := range msgs {
		payload, ok := msg.Values[pointerField].(string)
		if !ok || payload == "" {
			r.warnings.AddWarning("MALFORMED_POINTER", warning.SeverityWarn,
				fmt.Sprintf("stream entry %s has no %s field", msg.ID, pointerField), "redis")
			r.ackEntry(msg.ID, "")
			continue
		}

		ptr, err := parsePointer([]byte(payload))
		if err != nil {
			r.warnings.AddWarning("MALFORMED_POINTER", warning.SeverityWarn, err.Error(), "redis")
			r.ackEntry(msg.ID, "")
			continue
		}

		ptr.BatchID = batchID
		ptr.BrokerMessageID = msg.ID

		r.intake.Route(ptr, &redisCallback{source: r, entryID: msg.ID})
	}
}

// ackEntry acknowledges and deletes one stream entry
func (r *Redis) ackEntry(entryID, pointerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.rdb.XAck(ctx, r.stream, r.group, entryID).Err(); err != nil {
		r.log.Warn("Redis xack failed for entry %s (pointer %s): %v", entryID, pointerID, err)
		return
	}
	if err := r.rdb.XDel(ctx, r.stream, entryID).Err(); err != nil {
		r.log.Warn("Redis xdel failed for entry %s (pointer %s): %v", entryID, pointerID, err)
	}
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.rdb != nil {
		return r.rdb.Close()
	}
	return nil
}

// redisCallback settles one stream entry. Nack deliberately does nothing:
// the entry stays pending and the claim loop redelivers it once idle.
type redisCallback struct {
	source  *Redis
	entryID string
}

// Ack removes the entry from the stream
func (c *redisCallback) Ack(p *message.Pointer) {
	c.source.ackEntry(c.entryID, p.ID)
}

// Nack leaves the entry pending for redelivery by the claim loop
func (c *redisCallback) Nack(_ *message.Pointer) {}
