package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// Client is the transport the spec's opaque broker SDK is built on: a
// thin Redis wrapper offering Pub/Sub channels for event delivery and
// LPUSH/BRPOP lists for queued commands, generalizing the same pattern
// the teacher's pkg/redis.Client uses for its single MDB peripheral to
// the two LoRa bridge roles.
type Client struct {
	rdb *redis.Client
	ctx context.Context
}

// NewClient connects to the broker endpoint named by mqURI, a
// redis://host:port/db connection string (the concrete realization of
// the spec's mq_uri configuration option).
func NewClient(mqURI string) (*Client, error) {
	opts, err := redis.ParseURL(mqURI)
	if err != nil {
		return nil, fmt.Errorf("broker: parse mq_uri: %w", err)
	}
	rdb := redis.NewClient(opts)
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}
	return &Client{rdb: rdb, ctx: ctx}, nil
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// publish CBOR-encodes v and publishes it to channel.
func (c *Client) publish(channel string, v interface{}) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("broker: marshal: %w", err)
	}
	return c.rdb.Publish(c.ctx, channel, data).Err()
}

// subscribe returns a channel of CBOR-decoded messages of type T received
// on channel, and a function to stop the subscription.
func subscribe[T any](c *Client, channel string) (<-chan T, func()) {
	pubsub := c.rdb.Subscribe(c.ctx, channel)
	raw := pubsub.Channel()
	out := make(chan T)
	go func() {
		defer close(out)
		for msg := range raw {
			var v T
			if err := cbor.Unmarshal([]byte(msg.Payload), &v); err != nil {
				continue
			}
			out <- v
		}
	}()
	return out, func() { pubsub.Close() }
}

// lpush CBOR-encodes v and left-pushes it onto the list at key.
func (c *Client) lpush(key string, v interface{}) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("broker: marshal: %w", err)
	}
	return c.rdb.LPush(c.ctx, key, data).Err()
}

// brpop blocks up to timeout for an item on key and CBOR-decodes it into
// v. ok is false on timeout (not an error).
func brpop[T any](c *Client, key string, timeout time.Duration) (v T, ok bool, err error) {
	res, rerr := c.rdb.BRPop(c.ctx, timeout, key).Result()
	if rerr == redis.Nil {
		return v, false, nil
	}
	if rerr != nil {
		return v, false, fmt.Errorf("broker: brpop %s: %w", key, rerr)
	}
	if len(res) != 2 {
		return v, false, fmt.Errorf("broker: brpop %s: unexpected result %v", key, res)
	}
	if err := cbor.Unmarshal([]byte(res[1]), &v); err != nil {
		return v, false, fmt.Errorf("broker: brpop %s: decode: %w", key, err)
	}
	return v, true, nil
}
