package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/assessment-session/internal/cache"
	"github.com/SAP-F-2025/assessment-session/internal/models"
)

// CachedAssignmentRepository serves assignment definitions from the cache and
// falls back to the wrapped repository. Cache failures never fail a fetch.
type CachedAssignmentRepository struct {
	next   AssignmentRepository
	cache  cache.CacheService
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedAssignmentRepository(next AssignmentRepository, c cache.CacheService, ttl time.Duration, logger *slog.Logger) *CachedAssignmentRepository {
	return &CachedAssignmentRepository{next: next, cache: c, ttl: ttl, logger: logger}
}

const assignmentKeyPattern = "assignment:*"

func AssignmentCacheKey(id uint) string {
	return fmt.Sprintf("assignment:%d", id)
}

func (r *CachedAssignmentRepository) FetchAssignment(ctx context.Context, id uint) (*models.AssignmentDefinition, error) {
	key := AssignmentCacheKey(id)

	var def models.AssignmentDefinition
	err := r.cache.Get(ctx, key, &def)
	if err == nil {
		return &def, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("Assignment cache read failed", "assignment_id", id, "error", err)
	}

	fetched, err := r.next.FetchAssignment(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, fetched, r.ttl); err != nil {
		r.logger.Warn("Assignment cache write failed", "assignment_id", id, "error", err)
	}
	return fetched, nil
}

// Invalidate drops a cached definition
func (r *CachedAssignmentRepository) Invalidate(ctx context.Context, id uint) error {
	return r.cache.Delete(ctx, AssignmentCacheKey(id))
}

// InvalidateAll drops every cached definition, e.g. after a schema migration
func (r *CachedAssignmentRepository) InvalidateAll(ctx context.Context) error {
	return r.cache.DeletePattern(ctx, assignmentKeyPattern)
}
