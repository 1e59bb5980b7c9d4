// Package directory holds the known-personnel directory and the fuzzy name
// matcher that resolves scanned names onto it.
package directory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew  = "directory.service.new"
	opListMembers = "directory.list_members"
	opSeedMembers = "directory.seed_members"
)

// ServiceError carries an operation.reason code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable error code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// IDProvider mints identifiers for newly seeded members.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required by the directory service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service serves and provisions directory members.
type Service struct {
	db         *gorm.DB
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the directory service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, idProvider: cfg.IDProvider, logger: logger}, nil
}

// ListMembers returns every directory member ordered by full name.
func (s *Service) ListMembers(ctx context.Context) ([]Member, error) {
	var members []Member
	if err := s.db.WithContext(ctx).
		Order("full_name ASC").
		Find(&members).Error; err != nil {
		s.logError(opListMembers, "query_failed", err)
		return nil, newServiceError(opListMembers, "query_failed", err)
	}
	return members, nil
}

// SeedMembers upserts the provided members, minting identifiers for entries
// that arrive without one.
func (s *Service) SeedMembers(ctx context.Context, members []Member) error {
	if len(members) == 0 {
		return nil
	}
	for i := range members {
		if members[i].ID != "" {
			continue
		}
		id, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opSeedMembers, "id_generation_failed", err)
			return newServiceError(opSeedMembers, "id_generation_failed", err)
		}
		members[i].ID = id
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&members).Error
	if err != nil {
		s.logError(opSeedMembers, "upsert_failed", err)
		return newServiceError(opSeedMembers, "upsert_failed", err)
	}
	s.logger.Info("directory members seeded", zap.Int("count", len(members)))
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("directory service error", attrs...)
}
