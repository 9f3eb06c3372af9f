package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/auth"
	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies required for identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages canonical user ids and the student registry.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// ResolveCanonicalUserID returns the canonical user id for the session claims,
// registering the identity the first time the provider+subject pair is seen.
func (s *Service) ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return "", ErrInvalidIdentity
	}

	role := auth.RoleStudent
	if claims.HasRole(auth.RoleTeacher) {
		role = auth.RoleTeacher
	}

	// A role change misses the cache so the stored role is refreshed.
	cacheKey := provider + ":" + subject + ":" + role
	if cached, ok := s.cache.Load(cacheKey); ok {
		if canonicalID, ok := cached.(string); ok {
			return canonicalID, nil
		}
	}

	var identity Identity
	err := s.db.WithContext(ctx).
		Where("provider = ? AND subject = ?", provider, subject).
		Take(&identity).
		Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identity = Identity{
			Provider:    provider,
			Subject:     subject,
			UserID:      subject,
			Role:        role,
			Email:       normalize(claims.UserEmail),
			DisplayName: normalize(claims.UserDisplayName),
			LastSeenAt:  s.now(),
		}
		if err := s.db.WithContext(ctx).Create(&identity).Error; err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		updates := map[string]interface{}{"last_seen_at": s.now(), "role": role}
		if email := normalize(claims.UserEmail); email != "" && email != identity.Email {
			updates["user_email"] = email
		}
		if display := normalize(claims.UserDisplayName); display != "" && display != identity.DisplayName {
			updates["user_display_name"] = display
		}
		_ = s.db.WithContext(ctx).Model(&Identity{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Updates(updates).
			Error
	}

	s.cache.Store(cacheKey, identity.UserID)
	return identity.UserID, nil
}

// Exists reports whether any identity maps to the canonical user id.
func (s *Service) Exists(ctx context.Context, userID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Identity{}).
		Where("user_id = ?", normalize(userID)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListStudents returns student identities ordered by display name.
func (s *Service) ListStudents(ctx context.Context) ([]Identity, error) {
	var identities []Identity
	if err := s.db.WithContext(ctx).
		Where("role = ?", auth.RoleStudent).
		Order("user_display_name ASC, user_id ASC").
		Find(&identities).Error; err != nil {
		return nil, err
	}
	return identities, nil
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := "default"
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				provider = normalize(segments[0])
				subject = normalize(segments[1])
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}

	return provider, subject
}
