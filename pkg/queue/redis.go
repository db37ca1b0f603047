package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// claimScript moves up to ARGV[3] visible messages out of sight until
// ARGV[2], in one step so that concurrent receivers never share a message.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
  redis.call('ZADD', KEYS[1], ARGV[2], id)
end
return ids
`)

type envelope struct {
	ID     string    `msgpack:"id"`
	Body   string    `msgpack:"body"`
	SentAt time.Time `msgpack:"sent_at"`
}

// RedisQueue keeps each queue as a sorted set of message ids scored by the
// time (in unix milliseconds) they become visible, plus a hash holding the
// msgpack encoded messages. The message id is the receipt token.
type RedisQueue struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	return &RedisQueue{client: client, prefix: prefix, now: time.Now}
}

// Both keys of a queue carry the queue id as hash tag so that they live in
// the same cluster slot, which MULTI requires.

func (q *RedisQueue) pendingKey(queueID string) string {
	return fmt.Sprintf("%s:{%s}:pending", q.prefix, queueID)
}

func (q *RedisQueue) messagesKey(queueID string) string {
	return fmt.Sprintf("%s:{%s}:messages", q.prefix, queueID)
}

func (q *RedisQueue) Receive(ctx context.Context, queueID string, max int, visibility time.Duration) ([]Message, error) {
	now := q.now()
	ids, err := claimScript.Run(ctx, q.client,
		[]string{q.pendingKey(queueID)},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(visibility).UnixMilli(), 10),
		max,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", queueID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := q.client.HMGet(ctx, q.messagesKey(queueID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", queueID, err)
	}

	messages, dropped := decodeEnvelopes(ids, values)
	for _, id := range dropped {
		// they would be claimed again after every visibility timeout
		if err := q.Delete(ctx, queueID, id); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// decodeEnvelopes pairs claimed ids with their HMGET values. Ids whose
// message is gone or does not decode are returned as dropped.
func decodeEnvelopes(ids []string, values []interface{}) (messages []Message, dropped []string) {
	messages = make([]Message, 0, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			dropped = append(dropped, ids[i])
			continue
		}
		var env envelope
		if err := msgpack.Unmarshal([]byte(raw), &env); err != nil || env.ID == "" {
			dropped = append(dropped, ids[i])
			continue
		}
		messages = append(messages, Message{Body: env.Body, ReceiptToken: env.ID})
	}
	return messages, dropped
}

func (q *RedisQueue) Delete(ctx context.Context, queueID, receipt string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.pendingKey(queueID), receipt)
		pipe.HDel(ctx, q.messagesKey(queueID), receipt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", queueID, err)
	}
	return nil
}

func (q *RedisQueue) Send(ctx context.Context, queueID, body string) error {
	env := envelope{ID: uuid.NewString(), Body: body, SentAt: q.now().UTC()}
	data, err := msgpack.Marshal(&env)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", queueID, err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.messagesKey(queueID), env.ID, data)
		pipe.ZAdd(ctx, q.pendingKey(queueID), &redis.Z{
			Score:  float64(env.SentAt.UnixMilli()),
			Member: env.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", queueID, err)
	}
	return nil
}

func (q *RedisQueue) HealthCheck(ctx context.Context, _ string) error {
	return q.client.Ping(ctx).Err()
}
