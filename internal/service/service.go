package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"dinedesk/backend/internal/cache"
	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/store"
	"dinedesk/backend/internal/xid"
)

const (
	defaultStatusTTL   = 15 * time.Second
	defaultRecentLimit = 10
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// SystemContext marks ctx as driven by the scheduler rather than a user.
func SystemContext(ctx context.Context) context.Context {
	return WithActor(ctx, domain.Actor{
		UserID:   domain.RoleSystem,
		Username: domain.RoleSystem,
		Role:     domain.RoleSystem,
	})
}

type Options struct {
	Cache       cache.StatusCache
	StatusTTL   time.Duration
	Location    *time.Location
	RecentLimit int
	Now         func() time.Time
}

type Service struct {
	repo        store.Repository
	cache       cache.StatusCache
	statusTTL   time.Duration
	location    *time.Location
	recentLimit int
	now         func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopStatusCache{}
	}
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = defaultStatusTTL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RecentLimit < 1 {
		opts.RecentLimit = defaultRecentLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:        repo,
		cache:       opts.Cache,
		statusTTL:   opts.StatusTTL,
		location:    opts.Location,
		recentLimit: opts.RecentLimit,
		now:         opts.Now,
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// today is the business date in the configured timezone.
func (s *Service) today() string {
	return s.now().In(s.location).Format(time.DateOnly)
}

func (s *Service) dayRange(date string) (time.Time, time.Time, error) {
	if strings.TrimSpace(date) == "" {
		date = s.today()
	}
	day, err := time.ParseInLocation(time.DateOnly, date, s.location)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}

// authorize resolves the restaurant the caller acts on and checks the caller
// is an active member of it. An empty restaurantID means the caller's own.
func (s *Service) authorize(ctx context.Context, restaurantID string) (domain.Actor, string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, "", fmt.Errorf("%w: authentication required", store.ErrForbidden)
	}

	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		restaurantID = actor.RestaurantID
	}
	if restaurantID == "" {
		return domain.Actor{}, "", fmt.Errorf("%w: restaurant_id is required", store.ErrInvalidInput)
	}

	if _, err := s.repo.GetRestaurant(ctx, restaurantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Actor{}, "", fmt.Errorf("%w: restaurant not found", store.ErrNotFound)
		}
		return domain.Actor{}, "", err
	}
	if actor.Role == domain.RoleSystem {
		return actor, restaurantID, nil
	}

	user, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Actor{}, "", fmt.Errorf("%w: unknown operator", store.ErrForbidden)
		}
		return domain.Actor{}, "", err
	}
	if !user.Active || user.RestaurantID != restaurantID {
		return domain.Actor{}, "", fmt.Errorf("%w: no access to restaurant", store.ErrForbidden)
	}
	actor.Role = user.Role
	actor.RestaurantID = user.RestaurantID
	return actor, restaurantID, nil
}

func (s *Service) authorizeAdmin(ctx context.Context, restaurantID string) (domain.Actor, string, error) {
	actor, restaurantID, err := s.authorize(ctx, restaurantID)
	if err != nil {
		return domain.Actor{}, "", err
	}
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSystem {
		return domain.Actor{}, "", fmt.Errorf("%w: admin role required", store.ErrForbidden)
	}
	return actor, restaurantID, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, restaurantID string, date string, limit int) ([]domain.AuditLog, error) {
	_, restaurantID, err := s.authorizeAdmin(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	from, to, err := s.dayRange(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, restaurantID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, restaurantID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: domain.RoleSystem, Role: domain.RoleSystem}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:           xid.New("audit"),
		RestaurantID: restaurantID,
		ActorID:      actor.UserID,
		ActorRole:    actor.Role,
		Action:       action,
		EntityType:   entityType,
		EntityID:     entityID,
		Detail:       detail,
		CreatedAt:    s.clock(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// invalidateStatus runs after commit; a cache failure never fails the call.
func (s *Service) invalidateStatus(ctx context.Context, restaurantID string, operatorIDs ...string) {
	keys := make([]string, 0, len(operatorIDs))
	for _, id := range operatorIDs {
		if id == "" {
			continue
		}
		keys = append(keys, cache.StatusKey(restaurantID, id))
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		log.Printf("[service] WARN: failed to invalidate status cache restaurant=%s: %v", restaurantID, err)
	}
}

func validateDenominations(counts []domain.DenominationCount) error {
	for _, c := range counts {
		if !c.Value.IsPositive() || c.Count < 0 {
			return fmt.Errorf("%w: denominations need positive values and non-negative counts", store.ErrInvalidInput)
		}
	}
	return nil
}

func denominationsFor(registerID string, kind string, counts []domain.DenominationCount, at time.Time) *domain.Denominations {
	if len(counts) == 0 {
		return nil
	}
	return &domain.Denominations{
		RegisterID: registerID,
		Kind:       kind,
		Counts:     counts,
		Total:      domain.SumDenominations(counts),
		CreatedAt:  at,
	}
}
