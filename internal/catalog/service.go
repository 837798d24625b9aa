package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKey = "catalog:permissions:active"
	cacheTTL = 5 * time.Minute
)

// RepositoryPort defines data access methods for the catalog.
type RepositoryPort interface {
	ListActive(ctx context.Context) ([]Permission, error)
	GetByID(ctx context.Context, id int64) (Permission, error)
	Ensure(ctx context.Context, p Permission) (Permission, error)
}

// Service serves the permission catalog. Catalog entries are effectively
// immutable once referenced, so the active set is cached in Redis with a
// short TTL; concurrent cache misses are collapsed through singleflight.
type Service struct {
	repo   RepositoryPort
	redis  *redis.Client
	logger *slog.Logger
	group  singleflight.Group
}

// NewService builds Service instance. The redis client is optional; without
// it every read goes straight to the repository.
func NewService(repo RepositoryPort, rdb *redis.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, redis: rdb, logger: logger}
}

// ListActive returns the active catalog, cache first.
func (s *Service) ListActive(ctx context.Context) ([]Permission, error) {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var perms []Permission
			if err := json.Unmarshal(raw, &perms); err == nil {
				return perms, nil
			}
			s.logger.Warn("catalog cache corrupt, reloading", slog.String("key", cacheKey))
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("catalog cache read failed", slog.Any("error", err))
		}
	}

	v, err, _ := s.group.Do(cacheKey, func() (any, error) {
		perms, err := s.repo.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		s.fill(ctx, perms)
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Permission), nil
}

// Lookup resolves a permission by module and type code. The boolean reports
// whether the catalog contains the entry; absence is not an error.
func (s *Service) Lookup(ctx context.Context, moduleCode, permissionCode string) (Permission, bool, error) {
	perms, err := s.ListActive(ctx)
	if err != nil {
		return Permission{}, false, err
	}
	for _, p := range perms {
		if p.ModuleCode == moduleCode && p.PermissionTypeCode == permissionCode {
			return p, true, nil
		}
	}
	return Permission{}, false, nil
}

// GetByID fetches a single catalog entry.
func (s *Service) GetByID(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetByID(ctx, id)
}

// Ensure upserts a catalog entry and invalidates the cache.
func (s *Service) Ensure(ctx context.Context, p Permission) (Permission, error) {
	if p.ModuleCode == "" || p.PermissionTypeCode == "" {
		return Permission{}, fmt.Errorf("catalog: module and permission codes required")
	}
	stored, err := s.repo.Ensure(ctx, p)
	if err != nil {
		return Permission{}, err
	}
	s.Invalidate(ctx)
	return stored, nil
}

// Invalidate drops the cached catalog.
func (s *Service) Invalidate(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, cacheKey).Err(); err != nil {
		s.logger.Warn("catalog cache invalidate failed", slog.Any("error", err))
	}
}

func (s *Service) fill(ctx context.Context, perms []Permission) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, cacheKey, raw, cacheTTL).Err(); err != nil {
		s.logger.Warn("catalog cache write failed", slog.Any("error", err))
	}
}
