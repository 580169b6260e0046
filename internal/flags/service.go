package flags

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/storekit-cloud/storekit/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// invalidateChannel carries tenant ids whose flags changed on another instance.
const invalidateChannel = "storekit:flags:invalidate"

// Service resolves tenant feature flags from the control-plane registry with
// a local cache, and broadcasts invalidations over Redis when configured so
// sibling instances drop their cached entries too.
type Service struct {
	db    *gorm.DB
	cache *Cache
	redis *redis.Client
}

// NewService constructs a flag service. The Redis client is optional.
func NewService(db *gorm.DB, cache *Cache, rdb *redis.Client) *Service {
	if db == nil || cache == nil {
		return nil
	}
	return &Service{db: db, cache: cache, redis: rdb}
}

// Get returns the flags for a tenant, computing and caching them on a miss.
func (s *Service) Get(ctx context.Context, tenantID string, planID *uint64) (Flags, error) {
	if s == nil || s.db == nil {
		return Flags{}, errors.New("flags: service not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cached, ok := s.cache.Get(tenantID); ok {
		return cached, nil
	}

	planDefaults, errPlan := s.loadPlanDefaults(ctx, planID)
	if errPlan != nil {
		return Flags{}, errPlan
	}
	overrides, errOverrides := s.loadOverrides(ctx, tenantID)
	if errOverrides != nil {
		return Flags{}, errOverrides
	}

	resolved := Resolve(planDefaults, overrides)
	s.cache.Set(tenantID, resolved)
	return resolved, nil
}

// Invalidate drops the local cache entry and broadcasts the invalidation.
// Every write path that changes plan assignment or override values must call
// this synchronously.
func (s *Service) Invalidate(ctx context.Context, tenantID string) {
	if s == nil || tenantID == "" {
		return
	}
	s.cache.Invalidate(tenantID)

	if s.redis == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if errPublish := s.redis.Publish(ctx, invalidateChannel, tenantID).Err(); errPublish != nil {
		log.WithError(errPublish).Warnf("flags: broadcast invalidation failed (tenant=%s)", tenantID)
	}
}

// StartInvalidationListener subscribes to the invalidation channel and drops
// local cache entries named by sibling instances. No-op without Redis.
func (s *Service) StartInvalidationListener(ctx context.Context) {
	if s == nil || s.redis == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sub := s.redis.Subscribe(ctx, invalidateChannel)
	go func() {
		defer func() {
			if errClose := sub.Close(); errClose != nil {
				log.WithError(errClose).Warn("flags: close subscription failed")
			}
		}()
		channel := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-channel:
				if !ok {
					return
				}
				s.cache.Invalidate(msg.Payload)
			}
		}
	}()
	log.Infof("flags: invalidation listener started (channel=%s)", invalidateChannel)
}

func (s *Service) loadPlanDefaults(ctx context.Context, planID *uint64) (map[string]json.RawMessage, error) {
	if planID == nil {
		return nil, nil
	}
	var plan models.Plan
	errFind := s.db.WithContext(ctx).First(&plan, *planID).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, errFind
	}
	if len(plan.FeatureDefaults) == 0 {
		return nil, nil
	}
	var defaults map[string]json.RawMessage
	if errUnmarshal := json.Unmarshal(plan.FeatureDefaults, &defaults); errUnmarshal != nil {
		log.WithError(errUnmarshal).Warnf("flags: malformed plan defaults (plan=%d)", *planID)
		return nil, nil
	}
	return defaults, nil
}

func (s *Service) loadOverrides(ctx context.Context, tenantID string) (map[string]json.RawMessage, error) {
	var rows []models.TenantFeatureOverride
	if errFind := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Find(&rows).Error; errFind != nil {
		return nil, errFind
	}
	if len(rows) == 0 {
		return nil, nil
	}
	overrides := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		overrides[row.Key] = json.RawMessage(row.Value)
	}
	return overrides, nil
}
