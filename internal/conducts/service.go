// Package conducts persists submitted conducts and their scored rosters.
package conducts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saftrack/ippt-backend/internal/roster"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	// ErrEmptyRoster indicates a submission without participants.
	ErrEmptyRoster = errors.New("conducts: roster has no participants")
	// ErrDuplicateNames indicates the roster still violates the
	// no-duplicate-name invariant and cannot be submitted.
	ErrDuplicateNames = errors.New("conducts: roster contains duplicate names")
	// ErrConductNotFound indicates no conduct exists for the identifier.
	ErrConductNotFound = errors.New("conducts: conduct not found")
)

const (
	opServiceNew   = "conducts.service.new"
	opSubmit       = "conducts.submit"
	opListConducts = "conducts.list_conducts"
	opGetConduct   = "conducts.get_conduct"
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

// IDProvider mints conduct and participant identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the conducts service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service persists conducts.
type Service struct {
	db         *gorm.DB
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the conducts service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, idProvider: cfg.IDProvider, clock: clock, logger: logger}, nil
}

// SubmitRequest is one finished roster ready for persistence.
type SubmitRequest struct {
	Name         string
	Date         time.Time
	Participants []roster.Participant
}

// Submit persists the conduct and its participants transactionally. The
// duplicate-name invariant is re-checked here: a roster that still carries
// a collision is rejected rather than silently stored.
func (s *Service) Submit(ctx context.Context, ownerID string, request SubmitRequest) (Conduct, error) {
	if len(request.Participants) == 0 {
		return Conduct{}, newServiceError(opSubmit, "empty_roster", ErrEmptyRoster)
	}
	if duplicate := roster.CheckDuplicates(request.Participants); duplicate != nil {
		return Conduct{}, newServiceError(opSubmit, "duplicate_names", fmt.Errorf("%w: %v", ErrDuplicateNames, duplicate))
	}

	conductID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSubmit, "id_generation_failed", err)
		return Conduct{}, newServiceError(opSubmit, "id_generation_failed", err)
	}

	conduct := Conduct{
		ID:      conductID,
		OwnerID: ownerID,
		Name:    request.Name,
		Date:    request.Date.UTC(),
	}
	for position, participant := range request.Participants {
		rowID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opSubmit, "id_generation_failed", err)
			return Conduct{}, newServiceError(opSubmit, "id_generation_failed", err)
		}
		conduct.Participants = append(conduct.Participants, ConductParticipant{
			ID:          rowID,
			ConductID:   conductID,
			Position:    position,
			Name:        participant.Name.Text,
			MemberID:    participant.Name.MemberID,
			Rank:        participant.Rank,
			PlatoonID:   participant.PlatoonID,
			SitupReps:   participant.SitupReps,
			PushupReps:  participant.PushupReps,
			RunSeconds:  participant.RunSeconds,
			SitupScore:  participant.SitupScore,
			PushupScore: participant.PushupScore,
			RunScore:    participant.RunScore,
			TotalScore:  participant.TotalScore,
			Award:       string(participant.Award),
			Age:         participant.Age,
		})
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conduct).Error; err != nil {
			return err
		}
		return nil
	})
	if txErr != nil {
		s.logError(opSubmit, "insert_failed", txErr, zap.String("owner_id", ownerID))
		return Conduct{}, newServiceError(opSubmit, "insert_failed", txErr)
	}

	s.logger.Info("conduct submitted",
		zap.String("conduct_id", conductID),
		zap.String("owner_id", ownerID),
		zap.Int("participants", len(conduct.Participants)))
	return conduct, nil
}

// ListConducts returns the owner's conducts, newest first, without rows.
func (s *Service) ListConducts(ctx context.Context, ownerID string) ([]Conduct, error) {
	var conducts []Conduct
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("conduct_date DESC").
		Find(&conducts).Error
	if err != nil {
		s.logError(opListConducts, "query_failed", err, zap.String("owner_id", ownerID))
		return nil, newServiceError(opListConducts, "query_failed", err)
	}
	return conducts, nil
}

// GetConduct returns one conduct with its participant rows in order.
func (s *Service) GetConduct(ctx context.Context, ownerID, conductID string) (Conduct, error) {
	var conduct Conduct
	err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("conduct_id = ? AND owner_id = ?", conductID, ownerID).
		Take(&conduct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Conduct{}, newServiceError(opGetConduct, "not_found", ErrConductNotFound)
	}
	if err != nil {
		s.logError(opGetConduct, "query_failed", err, zap.String("conduct_id", conductID))
		return Conduct{}, newServiceError(opGetConduct, "query_failed", err)
	}
	return conduct, nil
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
	s.logger.Error("conducts service error", attrs...)
}
