// Package queue implements the deferred-execution work queue: a Redis
// list that the Invocation Engine pushes deferred-mode invocation ids
// onto, and a worker pool drains by blocking pop.
package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cos/gravyvalet/pkg/errors"
)

const listKey = "gravyvalet:deferred-invocations"

// Queue wraps a Redis client for pushing and draining deferred invocation
// work items.
type Queue struct {
	client *redis.Client
}

func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue pushes invocationID onto the deferred work queue.
func (q *Queue) Enqueue(ctx context.Context, invocationID string) error {
	if err := q.client.LPush(ctx, listKey, invocationID).Err(); err != nil {
		return errors.NewUnexpectedAddonError("enqueueing deferred invocation", err)
	}
	return nil
}

// Dequeue blocks up to timeout for a work item, returning ("", false, nil)
// on a timeout with nothing available.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (invocationID string, ok bool, err error) {
	result, err := q.client.BRPop(ctx, timeout, listKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewUnexpectedAddonError("dequeueing deferred invocation", err)
	}
	// BRPop returns [key, value]; we only pushed one key.
	return result[1], true, nil
}

// Len reports how many work items are currently queued.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, listKey).Result()
	if err != nil {
		return 0, errors.NewUnexpectedAddonError("measuring deferred queue length", err)
	}
	return n, nil
}

// Worker repeatedly dequeues invocation ids and hands each to handle,
// until ctx is cancelled.
func Worker(ctx context.Context, q *Queue, handle func(context.Context, string) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		id, ok, err := q.Dequeue(ctx, 5*time.Second)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := handle(ctx, id); err != nil {
			// A single failed invocation does not stop the worker; the
			// failure is already recorded on the invocation by handle.
			continue
		}
	}
}
