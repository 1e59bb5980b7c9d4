package users

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/saftrack/ippt-backend/internal/auth"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages canonical user identifiers and their SSO identities.
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
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// ResolveCanonicalUserID returns the canonical user id for the verified SSO claims,
// creating a new identity mapping when the issuer+subject pair has not been seen before.
// The canonical id owns conducts and roster sessions; it never changes once minted.
func (s *Service) ResolveCanonicalUserID(claims auth.SSOClaims) (string, error) {
	issuer := normalize(claims.Issuer)
	subject := normalize(claims.Subject)
	if issuer == "" || subject == "" {
		return "", ErrInvalidIdentity
	}

	cacheKey := issuer + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if canonical, ok := cached.(string); ok {
			return canonical, nil
		}
	}

	var identity Identity
	err := s.db.
		Where("issuer = ? AND subject = ?", issuer, subject).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identity = Identity{
			Issuer:      issuer,
			Subject:     subject,
			UserID:      subject,
			DisplayName: normalize(claims.DisplayName),
			LastSeenAt:  s.now(),
		}
		if err := s.db.Create(&identity).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	} else {
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if display := normalize(claims.DisplayName); display != "" && display != identity.DisplayName {
			updates["display_name"] = display
		}
		_ = s.db.Model(&Identity{}).
			Where("issuer = ? AND subject = ?", issuer, subject).
			Updates(updates).
			Error
	}

	s.cache.Store(cacheKey, identity.UserID)
	return identity.UserID, nil
}
