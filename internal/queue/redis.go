// Package queue is the Redis-backed priority queue that hands generation jobs
// to workers and carries their progress events back to subscribers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
)

// DefaultPrefix namespaces every key the queue touches.
const DefaultPrefix = "asset-forge"

var lanes = []domain.Priority{domain.PriorityHigh, domain.PriorityNormal, domain.PriorityLow}

// promoteScript moves due members of the delayed set onto their lanes.
// Members are encoded as "<priority>|<pipelineID>".
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, member in ipairs(due) do
  local sep = string.find(member, '|', 1, true)
  if sep then
    redis.call('RPUSH', ARGV[2] .. string.sub(member, 1, sep - 1), string.sub(member, sep + 1))
  end
  redis.call('ZREM', KEYS[1], member)
end
return #due
`)

// ProgressEvent is published on every job state change.
type ProgressEvent struct {
	PipelineID string                                   `json:"pipelineId"`
	Status     domain.PipelineStatus                    `json:"status"`
	Progress   int                                      `json:"progress"`
	Stages     map[domain.StageName]*domain.StageResult `json:"stages,omitempty"`
	Error      string                                   `json:"error,omitempty"`
	FinalAsset *domain.FinalAsset                       `json:"finalAsset,omitempty"`
	Timestamp  time.Time                                `json:"timestamp"`
}

// Terminal reports whether no further events follow.
func (e ProgressEvent) Terminal() bool {
	return e.Status.IsTerminal()
}

// Stats is a point-in-time view of queue depth.
type Stats struct {
	High    int64 `json:"high"`
	Normal  int64 `json:"normal"`
	Low     int64 `json:"low"`
	Delayed int64 `json:"delayed"`
	Total   int64 `json:"total"`
}

// Options configures a RedisQueue.
type Options struct {
	Prefix string
	Logger *infra.Logger
	Now    func() time.Time
}

// RedisQueue stores pipeline ids in one list per priority lane plus a sorted
// set of delayed retries.
type RedisQueue struct {
	client redis.UniversalClient
	prefix string
	logger *infra.Logger
	now    func() time.Time
}

func NewRedisQueue(client redis.UniversalClient, opts Options) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("queue: redis client is required")
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RedisQueue{client: client, prefix: prefix, logger: logger, now: now}, nil
}

func (q *RedisQueue) laneKey(p domain.Priority) string {
	return q.prefix + ":queue:" + string(domain.ParsePriority(string(p)))
}

func (q *RedisQueue) delayedKey() string {
	return q.prefix + ":queue:delayed"
}

func (q *RedisQueue) progressChannel(pipelineID string) string {
	return q.prefix + ":progress:" + pipelineID
}

// Enqueue appends the pipeline to its priority lane.
func (q *RedisQueue) Enqueue(ctx context.Context, pipelineID string, priority domain.Priority) error {
	if pipelineID == "" {
		return errors.New("queue: pipeline id is required")
	}
	if err := q.client.RPush(ctx, q.laneKey(priority), pipelineID).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", pipelineID, err)
	}
	q.logger.Debug().Str("pipeline_id", pipelineID).Str("priority", string(priority)).Msg("queue: enqueued")
	return nil
}

// EnqueueDelayed schedules the pipeline to re-enter its lane after delay.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, pipelineID string, priority domain.Priority, delay time.Duration) error {
	if pipelineID == "" {
		return errors.New("queue: pipeline id is required")
	}
	ready := q.now().Add(delay).UnixMilli()
	member := encodeMember(domain.ParsePriority(string(priority)), pipelineID)
	if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(ready), Member: member}).Err(); err != nil {
		return fmt.Errorf("queue: delay %s: %w", pipelineID, err)
	}
	q.logger.Debug().Str("pipeline_id", pipelineID).Dur("delay", delay).Msg("queue: delayed")
	return nil
}

// Dequeue promotes due retries and then blocks up to timeout for the next
// pipeline id, high lane first. It returns "" when nothing arrived.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	if _, err := q.PromoteDue(ctx); err != nil {
		q.logger.Warn().Err(err).Msg("queue: promote delayed failed")
	}
	keys := make([]string, 0, len(lanes))
	for _, lane := range lanes {
		keys = append(keys, q.laneKey(lane))
	}
	res, err := q.client.BLPop(ctx, timeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("queue: dequeue: %w", err)
	}
	if len(res) != 2 {
		return "", fmt.Errorf("queue: unexpected BLPOP reply %v", res)
	}
	return res[1], nil
}

// PromoteDue moves every delayed entry whose time has come onto its lane.
func (q *RedisQueue) PromoteDue(ctx context.Context) (int64, error) {
	n, err := promoteScript.Run(ctx, q.client, []string{q.delayedKey()},
		q.now().UnixMilli(), q.prefix+":queue:").Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return n, nil
}

// Remove deletes the pipeline from every lane and the delayed set.
func (q *RedisQueue) Remove(ctx context.Context, pipelineID string) (bool, error) {
	pipe := q.client.TxPipeline()
	lrems := make([]*redis.IntCmd, 0, len(lanes))
	for _, lane := range lanes {
		lrems = append(lrems, pipe.LRem(ctx, q.laneKey(lane), 0, pipelineID))
	}
	members := make([]any, 0, len(lanes))
	for _, lane := range lanes {
		members = append(members, encodeMember(lane, pipelineID))
	}
	zrem := pipe.ZRem(ctx, q.delayedKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("queue: remove %s: %w", pipelineID, err)
	}
	removed := zrem.Val()
	for _, cmd := range lrems {
		removed += cmd.Val()
	}
	return removed > 0, nil
}

// PublishProgress broadcasts an event to subscribers of the pipeline.
func (q *RedisQueue) PublishProgress(ctx context.Context, ev ProgressEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = q.now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue: encode progress: %w", err)
	}
	if err := q.client.Publish(ctx, q.progressChannel(ev.PipelineID), payload).Err(); err != nil {
		return fmt.Errorf("queue: publish progress: %w", err)
	}
	return nil
}

// SubscribeToProgress streams events for one pipeline until ctx is done or a
// terminal event arrives. The channel is closed when the stream ends.
func (q *RedisQueue) SubscribeToProgress(ctx context.Context, pipelineID string) (<-chan ProgressEvent, error) {
	sub := q.client.Subscribe(ctx, q.progressChannel(pipelineID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("queue: subscribe: %w", err)
	}
	out := make(chan ProgressEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					q.logger.Warn().Err(err).Str("pipeline_id", pipelineID).Msg("queue: dropping malformed progress event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Terminal() {
					return
				}
			}
		}
	}()
	return out, nil
}

// Stats reports the depth of every lane and the delayed set.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	high := pipe.LLen(ctx, q.laneKey(domain.PriorityHigh))
	normal := pipe.LLen(ctx, q.laneKey(domain.PriorityNormal))
	low := pipe.LLen(ctx, q.laneKey(domain.PriorityLow))
	delayed := pipe.ZCard(ctx, q.delayedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue: stats: %w", err)
	}
	s := Stats{High: high.Val(), Normal: normal.Val(), Low: low.Val(), Delayed: delayed.Val()}
	s.Total = s.High + s.Normal + s.Low + s.Delayed
	return s, nil
}

func encodeMember(p domain.Priority, pipelineID string) string {
	return string(p) + "|" + pipelineID
}
