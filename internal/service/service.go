// Package service holds the business rules: catalog upkeep with contiguous
// manual IDs, recipe costing, stock estimation, sale finalization and the
// cash cut engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"mitsys/backend/internal/cache"
	"mitsys/backend/internal/domain"
	"mitsys/backend/internal/format"
	"mitsys/backend/internal/store"
	"mitsys/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// IncompleteSaleError reports a finalization that failed after some lines
// were already committed. The committed lines stay committed.
type IncompleteSaleError struct {
	SaleNumber int
	Committed  int
	Err        error
}

func (e *IncompleteSaleError) Error() string {
	return fmt.Sprintf("sale %d incomplete after %d lines: %v", e.SaleNumber, e.Committed, e.Err)
}

func (e *IncompleteSaleError) Unwrap() error {
	return e.Err
}

const (
	catalogCacheKey        = "catalog:products"
	defaultCatalogCacheTTL = 30 * time.Second
)

type Service struct {
	repo       store.Repository
	catalog    cache.CatalogCache
	catalogTTL time.Duration
}

func New(repo store.Repository, catalog cache.CatalogCache, catalogTTL time.Duration) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if catalogTTL <= 0 {
		catalogTTL = defaultCatalogCacheTTL
	}
	return &Service{repo: repo, catalog: catalog, catalogTTL: catalogTTL}
}

func (s *Service) logAudit(ctx context.Context, action, entityType, entityID, detail string) {
	actor, _ := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ID:         xid.New("audit"),
		ActorName:  actor.Name,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  format.Timestamp(time.Now()),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx, catalogCacheKey); err != nil {
		log.Printf("[service] WARN: failed to invalidate catalog cache: %v", err)
	}
}

func (s *Service) configValue(ctx context.Context, key, fallback string) string {
	value, err := s.repo.GetConfig(ctx, key)
	if err != nil {
		return fallback
	}
	return value
}

// counterValue reads a sequential counter key. An absent key means zero;
// any other read failure, or a value that is not a number, is surfaced so a
// hiccup can never reset the sequence.
func (s *Service) counterValue(ctx context.Context, key string) (int, error) {
	value, err := s.repo.GetConfig(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	number, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds %q: %w", key, value, err)
	}
	return number, nil
}
