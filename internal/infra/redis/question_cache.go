package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"scheduled-exam-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches question content from a backing store (e.g., Postgres).
type QuestionLoader interface {
	FetchByIDs(ctx context.Context, ids []int64) ([]domain.Question, error)
	RandomIDs(ctx context.Context, categoryIDs []int64, limit int) ([]int64, error)
}

// QuestionCache caches question content in Redis and falls back to a loader on miss.
// Each question is stored as JSON under question:{id}. Random draws bypass the cache.
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	log    logrus.FieldLogger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration, log logrus.FieldLogger) *QuestionCache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) FetchByIDs(ctx context.Context, ids []int64) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, missing := c.lookup(ctx, ids)
	if len(missing) == 0 {
		return ordered(ids, found), nil
	}

	result, err, _ := c.sf.Do(flightKey(missing), func() (interface{}, error) {
		// Re-check in case another caller filled the cache.
		again, stillMissing := c.lookup(ctx, missing)
		if len(stillMissing) == 0 {
			return values(again), nil
		}

		loaded, err := c.loader.FetchByIDs(ctx, stillMissing)
		if err != nil {
			return nil, err
		}
		c.store(ctx, loaded)
		return append(values(again), loaded...), nil
	})
	if err != nil {
		return nil, err
	}
	for _, q := range result.([]domain.Question) {
		found[q.ID] = q
	}
	return ordered(ids, found), nil
}

func (c *QuestionCache) RandomIDs(ctx context.Context, categoryIDs []int64, limit int) ([]int64, error) {
	return c.loader.RandomIDs(ctx, categoryIDs, limit)
}

// lookup treats any Redis failure as a miss.
func (c *QuestionCache) lookup(ctx context.Context, ids []int64) (map[int64]domain.Question, []int64) {
	found := make(map[int64]domain.Question, len(ids))
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = questionKey(id)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.WithError(err).Warn("question cache read failed")
		return found, append([]int64(nil), ids...)
	}

	var missing []int64
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		found[ids[i]] = q
	}
	return found, missing
}

func (c *QuestionCache) store(ctx context.Context, questions []domain.Question) {
	if len(questions) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for _, q := range questions {
		raw, err := json.Marshal(q)
		if err != nil {
			continue
		}
		pipe.Set(ctx, questionKey(q.ID), raw, c.ttlWithJitter())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.WithError(err).Warn("question cache write failed")
	}
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func questionKey(id int64) string {
	return "question:" + strconv.FormatInt(id, 10)
}

func ordered(ids []int64, found map[int64]domain.Question) []domain.Question {
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := found[id]; ok {
			out = append(out, q)
		}
	}
	return out
}

func values(m map[int64]domain.Question) []domain.Question {
	out := make([]domain.Question, 0, len(m))
	for _, q := range m {
		out = append(out, q)
	}
	return out
}

func flightKey(ids []int64) string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
