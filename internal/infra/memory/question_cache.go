package memory

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"scheduled-exam-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches question content from a backing store (e.g., Postgres).
type QuestionLoader interface {
	FetchByIDs(ctx context.Context, ids []int64) ([]domain.Question, error)
	RandomIDs(ctx context.Context, categoryIDs []int64, limit int) ([]int64, error)
}

// QuestionCache caches questions by id with TTL to avoid repeated DB hits.
// Random draws always go to the loader.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedQuestion
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedQuestion),
	}
}

func (c *QuestionCache) FetchByIDs(ctx context.Context, ids []int64) ([]domain.Question, error) {
	found, missing := c.lookup(ids)
	if len(missing) == 0 {
		return ordered(ids, found), nil
	}

	result, err, _ := c.sf.Do(flightKey(missing), func() (interface{}, error) {
		loaded, err := c.loader.FetchByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		now := c.clock()
		c.mu.Lock()
		for _, q := range loaded {
			c.cache[q.ID] = cachedQuestion{question: q, expiresAt: now.Add(c.ttlWithJitter())}
		}
		c.mu.Unlock()
		return loaded, nil
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

func (c *QuestionCache) lookup(ids []int64) (map[int64]domain.Question, []int64) {
	now := c.clock()
	found := make(map[int64]domain.Question, len(ids))
	var missing []int64

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range ids {
		if entry, ok := c.cache[id]; ok && entry.expiresAt.After(now) {
			found[id] = entry.question
			continue
		}
		missing = append(missing, id)
	}
	return found, missing
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// ordered returns found questions in the order of ids, skipping unknown ids.
func ordered(ids []int64, found map[int64]domain.Question) []domain.Question {
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := found[id]; ok {
			out = append(out, q)
		}
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

// StaticQuestionBank is a simple bank backed by an in-memory slice (useful for tests/demos).
type StaticQuestionBank struct {
	questions map[int64]domain.Question

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewStaticQuestionBank(questions []domain.Question) *StaticQuestionBank {
	byID := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &StaticQuestionBank{
		questions: byID,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *StaticQuestionBank) FetchByIDs(_ context.Context, ids []int64) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := b.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// RandomIDs draws up to limit distinct questions from the given categories.
func (b *StaticQuestionBank) RandomIDs(_ context.Context, categoryIDs []int64, limit int) ([]int64, error) {
	wanted := make(map[int64]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		wanted[id] = struct{}{}
	}
	pool := make([]int64, 0)
	for id, q := range b.questions {
		if _, ok := wanted[q.CategoryID]; ok {
			pool = append(pool, id)
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i] < pool[j] })

	b.mu.Lock()
	b.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	b.mu.Unlock()

	if limit < len(pool) {
		pool = pool[:limit]
	}
	return pool, nil
}
