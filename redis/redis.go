package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DanilaP/social-network-backend/api"
)

// Redis caches the most recent messages of each dialog.
type Redis struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli: cli,
	}, nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

const (
	dialogPrefix = "dialogs"
	maxSize      = 20
)

func dialogKey(dialogID string) string {
	return fmt.Sprintf("%s:%s", dialogPrefix, dialogID)
}

// ListMessages returns the cached messages of the dialog in insertion
// order (oldest cached first).
func (r *Redis) ListMessages(ctx context.Context, dialogID string) ([]api.Message, error) {
	setKey := dialogKey(dialogID)
	keys, err := r.cli.ZRangeByScore(ctx, setKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().UnixNano()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange: %w", err)
	}

	out := make([]api.Message, 0, len(keys))
	for _, key := range keys {
		var msg message
		if err := r.cli.HGetAll(ctx, key).Scan(&msg); err != nil {
			return nil, fmt.Errorf("hgetall: %w", err)
		}
		if msg.ID == "" {
			// Entry expired between ZRANGE and HGETALL.
			continue
		}
		apiMsg, err := msg.APIMessage()
		if err != nil {
			return nil, fmt.Errorf("decode cached message: %w", err)
		}
		out = append(out, apiMsg)
	}
	return out, nil
}

// InsertMessage adds the message under dialogs:DIALOG_ID:MESSAGE_ID and
// indexes the key in the dialog's sorted set, keyed by creation time.
func (r *Redis) InsertMessage(ctx context.Context, dialogID string, m api.Message) error {
	msg, err := newMessage(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	setKey := dialogKey(dialogID)

	err = r.cli.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			key := fmt.Sprintf("%s:%s", setKey, msg.ID)
			pipe.HSet(ctx, key, msg)
			pipe.ZAdd(ctx, setKey, redis.Z{
				Score:  float64(m.CreatedAt.UnixNano()),
				Member: key,
			})
			return nil
		})
		return err
	}, msg.ID)
	if err != nil {
		return fmt.Errorf("redis insert message: %w", err)
	}

	if err := r.evictOldest(ctx, setKey); err != nil {
		return fmt.Errorf("evict oldest: %w", err)
	}
	return nil
}

// DropDialog discards every cached message of the dialog. Used when an
// edit or deletion invalidates the cached tail.
func (r *Redis) DropDialog(ctx context.Context, dialogID string) error {
	setKey := dialogKey(dialogID)
	keys, err := r.cli.ZRange(ctx, setKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("zrange: %w", err)
	}
	for _, key := range keys {
		_ = r.cli.Del(ctx, key).Err()
	}
	if err := r.cli.Del(ctx, setKey).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// evictOldest trims the dialog's cache to the newest maxSize entries.
func (r *Redis) evictOldest(ctx context.Context, setKey string) error {
	keys, err := r.cli.ZRange(ctx, setKey, 0, int64(-maxSize-1)).Result()
	if err != nil {
		return fmt.Errorf("zrange: %w", err)
	}
	for _, key := range keys {
		_ = r.cli.ZRem(ctx, setKey, key).Err()
		_ = r.cli.Del(ctx, key).Err()
	}
	return nil
}
