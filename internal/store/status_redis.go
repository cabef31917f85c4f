package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// State is a job lifecycle state.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	// StatePartial means grouping finished but some output files failed.
	StatePartial   State = "partial"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StatePartial, StateFailed, StateCancelled:
		return true
	}
	return false
}

type Status struct {
	State      State           `json:"status"`
	Progress   int             `json:"progress"`
	PagesDone  int             `json:"pages_done"`
	PagesTotal int             `json:"pages_total"`
	Message    string          `json:"message"`
	Document   string          `json:"document,omitempty"`
	Start      *time.Time      `json:"start_time,omitempty"`
	End        *time.Time      `json:"end_time,omitempty"`
	Report     json.RawMessage `json:"report,omitempty"`
}

type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewRedisStatus stores job status hashes under job:<id>:status. A positive
// ttl expires them after the last write.
func NewRedisStatus(c *redis.Client, ttl time.Duration) *RedisStatus {
	return &RedisStatus{client: c, keyNS: "job", ttl: ttl}
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
	return s.write(ctx, jobID, statusHash(st))
}

// SetProgress updates only the progress fields.
func (s *RedisStatus) SetProgress(ctx context.Context, jobID string, done, total int) error {
	return s.write(ctx, jobID, map[string]interface{}{
		"progress":    percent(done, total),
		"pages_done":  done,
		"pages_total": total,
	})
}

func (s *RedisStatus) write(ctx context.Context, jobID string, fields map[string]interface{}) error {
	key := s.key(jobID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	return parseStatus(res), true, nil
}

func statusHash(st Status) map[string]interface{} {
	m := map[string]interface{}{
		"status":      string(st.State),
		"progress":    st.Progress,
		"pages_done":  st.PagesDone,
		"pages_total": st.PagesTotal,
		"message":     st.Message,
	}
	if st.Document != "" {
		m["document"] = st.Document
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if len(st.Report) > 0 {
		m["report"] = string(st.Report)
	}
	return m
}

func parseStatus(res map[string]string) Status {
	st := Status{
		State:    State(res["status"]),
		Message:  res["message"],
		Document: res["document"],
	}
	// parse errors leave the zero value
	st.Progress, _ = strconv.Atoi(res["progress"])
	st.PagesDone, _ = strconv.Atoi(res["pages_done"])
	st.PagesTotal, _ = strconv.Atoi(res["pages_total"])
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["report"]; v != "" && json.Valid([]byte(v)) {
		st.Report = json.RawMessage(v)
	}
	return st
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}
