package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Job is one queued sorting request.
type Job struct {
	ID          string    `json:"job_id"`
	Document    string    `json:"document"`
	OutputDir   string    `json:"output_dir"`
	SubmittedAt time.Time `json:"submitted_at"`
	// Uploaded marks a Document stored by the API; it is deleted once the
	// job reaches a terminal state.
	Uploaded bool `json:"uploaded,omitempty"`
}

// Delivery is a dequeued job with its stream message id.
type Delivery struct {
	MsgID string
	Job   Job
}

// Connect parses redisURL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

// RedisQueue implements a job queue on Redis Streams with a consumer group.
type RedisQueue struct {
	client    *redis.Client
	Stream    string
	Group     string
	CancelKey string
	DLQStream string
}

// NewRedisQueue ensures the stream and consumer group exist.
func NewRedisQueue(ctx context.Context, c *redis.Client, stream, group string) (*RedisQueue, error) {
	q := &RedisQueue{
		client:    c,
		Stream:    stream,
		Group:     group,
		CancelKey: stream + ":cancelled",
		DLQStream: stream + ":dlq",
	}
	// MKSTREAM creates the stream if missing
	if err := c.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("xgroup create: %w", err)
	}
	return q, nil
}

func isBusyGroupErr(err error) bool {
	if err == nil {
		return false
	}
	// go-redis returns the raw Redis error string
	return strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

// Ping checks redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// Enqueue adds job to the stream as a single-field entry {data: <json>}.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := EncodeJob(job)
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.Stream,
		Values: map[string]any{"data": string(payload)},
	}).Err()
}

// Dequeue reads one message for consumer, blocking up to timeout. It
// returns nil when nothing arrived.
func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (*Delivery, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.Group,
		Consumer: consumer,
		Streams:  []string{q.Stream, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, nil
	}
	msg := res[0].Messages[0]
	job, err := decodeValues(msg.Values)
	if err != nil {
		// Poison message: ack so it is not redelivered, keep a copy in the DLQ.
		_ = q.Ack(ctx, msg.ID)
		_ = q.AddDLQ(ctx, fmt.Sprint(msg.Values["data"]), err.Error())
		return nil, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	return &Delivery{MsgID: msg.ID, Job: job}, nil
}

// Ack marks a message as processed.
func (q *RedisQueue) Ack(ctx context.Context, msgID string) error {
	if msgID == "" {
		return nil
	}
	return q.client.XAck(ctx, q.Stream, q.Group, msgID).Err()
}

// Cancel marks a job as cancelled. Workers check this before and during processing.
func (q *RedisQueue) Cancel(ctx context.Context, jobID string) error {
	return q.client.SAdd(ctx, q.CancelKey, jobID).Err()
}

// IsCancelled returns true if job is cancelled.
func (q *RedisQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	return q.client.SIsMember(ctx, q.CancelKey, jobID).Result()
}

// AddDLQ records a failed job payload with reason.
func (q *RedisQueue) AddDLQ(ctx context.Context, payload, reason string) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.DLQStream,
		Values: map[string]any{"data": payload, "reason": reason},
	}).Err()
}

// Depth returns the stream length and the group's pending count.
func (q *RedisQueue) Depth(ctx context.Context) (length, pending int64, err error) {
	pipe := q.client.Pipeline()
	xlen := pipe.XLen(ctx, q.Stream)
	xpending := pipe.XPending(ctx, q.Stream, q.Group)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, err
	}
	if p, err := xpending.Result(); err == nil {
		pending = p.Count
	}
	return xlen.Val(), pending, nil
}

// EncodeJob serialises job for the stream.
func EncodeJob(job Job) ([]byte, error) {
	if job.ID == "" {
		return nil, errors.New("job id is required")
	}
	if job.Document == "" {
		return nil, errors.New("job document is required")
	}
	return json.Marshal(job)
}

// DecodeJob parses a stream payload.
func DecodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.ID == "" || job.Document == "" {
		return Job{}, errors.New("decode job: missing job_id or document")
	}
	return job, nil
}

func decodeValues(values map[string]any) (Job, error) {
	switch t := values["data"].(type) {
	case string:
		return DecodeJob([]byte(t))
	case []byte:
		return DecodeJob(t)
	default:
		return Job{}, errors.New("message has no data field")
	}
}
