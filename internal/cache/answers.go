package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/medibot/internal/rag"
)

const answerKeyPrefix = "medibot:answer:"

// AnswerKey derives the cache key for a question. Case and surrounding
// whitespace do not matter.
func AnswerKey(question string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(question))))
	return answerKeyPrefix + hex.EncodeToString(sum[:])
}

// CachedAnswerer serves repeated stand-alone questions from Redis. Requests
// that carry chat history always go to the inner answerer. Cache errors are
// logged and otherwise ignored.
type CachedAnswerer struct {
	inner  rag.Answerer
	cache  *Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedAnswerer(inner rag.Answerer, c *Cache, ttl time.Duration, logger *slog.Logger) *CachedAnswerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedAnswerer{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func (a *CachedAnswerer) Answer(ctx context.Context, req rag.AnswerRequest) (*rag.Answer, error) {
	if a.cache == nil || a.ttl <= 0 || len(req.History) > 0 {
		return a.inner.Answer(ctx, req)
	}

	key := AnswerKey(req.Question)
	var cached rag.Answer
	err := a.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		a.logger.Debug("answer cache hit", "key", key)
		return &cached, nil
	case !errors.Is(err, ErrMiss):
		a.logger.Warn("answer cache read failed", "error", err)
	}

	ans, err := a.inner.Answer(ctx, req)
	if err != nil {
		return nil, err
	}
	// The fixed no-information answer is not cached so newly ingested
	// material is picked up immediately.
	if ans.Answer != rag.NoInformationAnswer {
		if err := a.cache.Set(ctx, key, ans, a.ttl); err != nil {
			a.logger.Warn("answer cache write failed", "error", err)
		}
	}
	return ans, nil
}
