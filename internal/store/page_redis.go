package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/routesort/internal/classify"
)

// PageStore keeps per-page classification records of a job.
type PageStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPageStore(c *redis.Client, ttl time.Duration) *PageStore {
	return &PageStore{client: c, ttl: ttl}
}

func (s *PageStore) pageKey(jobID string, page int) string {
	return fmt.Sprintf("job:%s:page:%d", jobID, page)
}

// SavePages writes one hash per page record.
func (s *PageStore) SavePages(ctx context.Context, jobID string, pages []classify.PageRecord) error {
	pipe := s.client.Pipeline()
	for _, rec := range pages {
		key := s.pageKey(jobID, rec.Index)
		pipe.HSet(ctx, key, pageHash(rec))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetPage returns the record of page, or false when none is stored.
func (s *PageStore) GetPage(ctx context.Context, jobID string, page int) (classify.PageRecord, bool, error) {
	res, err := s.client.HGetAll(ctx, s.pageKey(jobID, page)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return classify.PageRecord{}, false, err
	}
	if len(res) == 0 {
		return classify.PageRecord{}, false, nil
	}
	return parsePage(page, res), true, nil
}

func pageHash(rec classify.PageRecord) map[string]interface{} {
	m := map[string]interface{}{
		"route":    rec.Route,
		"outcome":  string(rec.Outcome),
		"has_text": strconv.FormatBool(rec.HasText),
	}
	if rec.Strategy != "" {
		m["strategy"] = rec.Strategy
	}
	if rec.Identifier != "" {
		m["identifier"] = rec.Identifier
		m["rule"] = rec.Rule
	}
	if rec.Err != "" {
		m["error"] = rec.Err
	}
	return m
}

func parsePage(index int, res map[string]string) classify.PageRecord {
	hasText, _ := strconv.ParseBool(res["has_text"])
	return classify.PageRecord{
		Index:      index,
		HasText:    hasText,
		Strategy:   res["strategy"],
		Identifier: res["identifier"],
		Rule:       res["rule"],
		Route:      res["route"],
		Outcome:    classify.Outcome(res["outcome"]),
		Err:        res["error"],
	}
}
