// Package roster owns the authoritative ordered participant list for one
// conduct session and reconciles local edits, extracted batches, and
// multi-device sync events against it.
package roster

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/saftrack/ippt-backend/internal/directory"
	"github.com/saftrack/ippt-backend/internal/scoring"
	"go.uber.org/zap"
)

var (
	errMissingEngine     = errors.New("roster: score engine is required")
	errMissingIDProvider = errors.New("roster: id provider is required")
)

// FieldPatch carries one participant edit. Exactly one of the pointer
// groups is expected to be set; TypedName and Selection are the two name
// sub-cases, the rest are measurement edits.
type FieldPatch struct {
	TypedName  *string
	Selection  *directory.Member
	SitupReps  *int
	PushupReps *int
	RunSeconds *int
}

// isEmpty reports whether the patch names no field.
func (p FieldPatch) isEmpty() bool {
	return p.TypedName == nil && p.Selection == nil &&
		p.SitupReps == nil && p.PushupReps == nil && p.RunSeconds == nil
}

// Field names carried on update events.
const (
	FieldName       = "name"
	FieldSitupReps  = "situpReps"
	FieldPushupReps = "pushupReps"
	FieldRunTime    = "runTime"
)

// SessionConfig describes the dependencies of one roster session.
type SessionConfig struct {
	OwnerID     string
	ConductName string
	ConductDate time.Time
	Engine      *scoring.Engine
	Broadcaster Broadcaster
	IDProvider  IDProvider
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Session is the authoritative roster for one (owner, conduct-name,
// conduct-date) triple. All operations serialize on an internal mutex, so
// devices posting concurrently observe a single apply order.
type Session struct {
	id          SessionID
	ownerID     string
	conductName string
	conductDate time.Time

	mu           sync.Mutex
	participants []Participant

	engine      *scoring.Engine
	broadcaster Broadcaster
	idProvider  IDProvider
	clock       func() time.Time
	logger      *zap.Logger
}

// NewSession derives the session identifier and constructs an empty roster.
func NewSession(cfg SessionConfig) (*Session, error) {
	id, err := DeriveSessionID(cfg.OwnerID, cfg.ConductName, cfg.ConductDate)
	if err != nil {
		return nil, err
	}
	if cfg.Engine == nil {
		return nil, errMissingEngine
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:          id,
		ownerID:     cfg.OwnerID,
		conductName: cfg.ConductName,
		conductDate: cfg.ConductDate,
		engine:      cfg.Engine,
		broadcaster: cfg.Broadcaster,
		idProvider:  cfg.IDProvider,
		clock:       clock,
		logger:      logger,
	}, nil
}

// ID returns the derived session identifier.
func (s *Session) ID() SessionID {
	return s.id
}

// OwnerID returns the session owner.
func (s *Session) OwnerID() string {
	return s.ownerID
}

// ConductName returns the conduct name the session was derived from.
func (s *Session) ConductName() string {
	return s.conductName
}

// ConductDate returns the conduct date the session was derived from.
func (s *Session) ConductDate() time.Time {
	return s.conductDate
}

// Add appends a participant and broadcasts the addition. Adds are
// idempotent by normalized name: when a non-blank name is already present
// the incoming add is dropped and the existing entry returned, so the same
// participant added concurrently from two devices yields one row.
func (s *Session) Add(ctx context.Context, originDevice string, participant Participant) (Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := participant.Name.Normalized()
	if key != "" {
		for _, existing := range s.participants {
			if existing.Name.Normalized() == key {
				s.logger.Debug("dropping duplicate add",
					zap.String("session_id", s.id.String()),
					zap.String("name", participant.Name.Text))
				return existing, false, nil
			}
		}
	}

	if participant.ID == "" {
		id, err := s.idProvider.NewID()
		if err != nil {
			return Participant{}, false, err
		}
		participant.ID = id
	}
	participant.SetRunSeconds(participant.RunSeconds)
	s.rescore(ctx, &participant)
	s.participants = append(s.participants, participant)

	s.broadcast(Event{
		Type:         EventParticipantAdd,
		OriginDevice: originDevice,
		Participant:  &participant,
	})
	return participant, true, nil
}

// Update applies a single-field edit addressed by participant ID and
// broadcasts it. The returned DuplicateNameError is advisory: the edit is
// kept even while the roster violates the no-duplicate-name invariant.
func (s *Session) Update(ctx context.Context, originDevice, participantID string, patch FieldPatch) (Participant, *DuplicateNameError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexOf(participantID)
	if index < 0 {
		return Participant{}, nil, ErrUnknownParticipant
	}

	// An empty patch changes nothing; returning early keeps fieldless
	// participant-update events off the wire.
	if patch.isEmpty() {
		return s.participants[index], nil, nil
	}

	participant := &s.participants[index]
	field := applyPatch(participant, patch)
	participant.SetRunSeconds(participant.RunSeconds)
	s.rescore(ctx, participant)

	duplicate := CheckDuplicates(s.participants)
	snapshot := *participant
	s.broadcast(Event{
		Type:          EventParticipantUpdate,
		OriginDevice:  originDevice,
		ParticipantID: participantID,
		Field:         field,
		Participant:   &snapshot,
	})
	return snapshot, duplicate, nil
}

// applyPatch mutates the participant per the three update sub-cases and
// returns the field name for the broadcast event.
func applyPatch(participant *Participant, patch FieldPatch) string {
	switch {
	case patch.TypedName != nil:
		// Manual text entry invalidates any prior auto-match.
		participant.Name = TypedName(*patch.TypedName)
		participant.MatchPercentage = nil
		participant.Rank = ""
		participant.PlatoonID = ""
		participant.DateOfBirth = time.Time{}
		return FieldName
	case patch.Selection != nil:
		// An explicit directory selection is fully trusted: no badge.
		participant.Name = ResolvedName(*patch.Selection)
		participant.MatchPercentage = nil
		participant.Rank = patch.Selection.Rank
		participant.PlatoonID = patch.Selection.PlatoonID
		participant.DateOfBirth = patch.Selection.DateOfBirth
		return FieldName
	case patch.SitupReps != nil:
		participant.SitupReps = *patch.SitupReps
		return FieldSitupReps
	case patch.PushupReps != nil:
		participant.PushupReps = *patch.PushupReps
		return FieldPushupReps
	case patch.RunSeconds != nil:
		participant.RunSeconds = *patch.RunSeconds
		return FieldRunTime
	default:
		return ""
	}
}

// Remove deletes the addressed participant and broadcasts the removal.
// Unknown identifiers (already removed by a peer) are dropped silently.
func (s *Session) Remove(ctx context.Context, originDevice, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexOf(participantID)
	if index < 0 {
		s.logger.Debug("dropping remove for unknown participant",
			zap.String("session_id", s.id.String()),
			zap.String("participant_id", participantID))
		return nil
	}
	s.participants = append(s.participants[:index], s.participants[index+1:]...)

	s.broadcast(Event{
		Type:          EventParticipantRemove,
		OriginDevice:  originDevice,
		ParticipantID: participantID,
	})
	return nil
}

// Conflicts reports the collisions an incoming batch would cause against
// the current roster without applying anything.
func (s *Session) Conflicts(incoming []Participant) []Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CheckConflicts(incoming, s.participants)
}

// MergeBatch merges a freshly extracted batch under the user's conflict
// decision, rescores the affected entries, and broadcasts the resulting
// roster wholesale.
func (s *Session) MergeBatch(ctx context.Context, originDevice string, action ConflictAction, incoming []Participant) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range incoming {
		if incoming[i].ID == "" {
			id, err := s.idProvider.NewID()
			if err != nil {
				return nil, err
			}
			incoming[i].ID = id
		}
		incoming[i].SetRunSeconds(incoming[i].RunSeconds)
	}

	conflicts := CheckConflicts(incoming, s.participants)
	s.participants = ResolveConflicts(action, s.participants, incoming, conflicts)
	for i := range s.participants {
		s.rescore(ctx, &s.participants[i])
	}

	snapshot := s.copyParticipants()
	s.broadcast(Event{
		Type:         EventParticipantsSync,
		OriginDevice: originDevice,
		Participants: snapshot,
	})
	return snapshot, nil
}

// ReplaceAll replaces the roster wholesale (the full-sync clobber) and
// rescores every entry sequentially.
func (s *Session) ReplaceAll(ctx context.Context, originDevice string, participants []Participant) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make([]Participant, len(participants))
	copy(replacement, participants)
	for i := range replacement {
		if replacement[i].ID == "" {
			id, err := s.idProvider.NewID()
			if err != nil {
				return nil, err
			}
			replacement[i].ID = id
		}
		replacement[i].SetRunSeconds(replacement[i].RunSeconds)
		s.rescore(ctx, &replacement[i])
	}
	s.participants = replacement

	snapshot := s.copyParticipants()
	s.broadcast(Event{
		Type:         EventParticipantsSync,
		OriginDevice: originDevice,
		Participants: snapshot,
	})
	return snapshot, nil
}

// RequestSync pushes the current roster to every connected device,
// including the requester. This is the manual recovery path for a device
// that suspects it diverged.
func (s *Session) RequestSync() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.copyParticipants()
	s.broadcast(Event{
		Type:         EventParticipantsSync,
		Participants: snapshot,
	})
	return snapshot
}

// Snapshot returns a copy of the ordered participant list.
func (s *Session) Snapshot() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyParticipants()
}

// Duplicate reports the roster's current duplicate-name violation, if any.
func (s *Session) Duplicate() *DuplicateNameError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CheckDuplicates(s.participants)
}

func (s *Session) indexOf(participantID string) int {
	for i, participant := range s.participants {
		if participant.ID == participantID {
			return i
		}
	}
	return -1
}

func (s *Session) copyParticipants() []Participant {
	snapshot := make([]Participant, len(s.participants))
	copy(snapshot, s.participants)
	return snapshot
}

// rescore recomputes the derived scores in place. Table-fetch failures
// degrade inside the engine, so a mutation never fails on scoring.
func (s *Session) rescore(ctx context.Context, participant *Participant) {
	result := s.engine.Compute(ctx, scoring.Input{
		SitupReps:   participant.SitupReps,
		PushupReps:  participant.PushupReps,
		RunSeconds:  participant.RunSeconds,
		TestDate:    s.conductDate,
		DateOfBirth: participant.DateOfBirth,
	})
	participant.SitupScore = result.SitupScore
	participant.PushupScore = result.PushupScore
	participant.RunScore = result.RunScore
	participant.TotalScore = result.TotalScore
	participant.Award = result.Award
	participant.Age = result.Age
	participant.ScoreStatus = result.Status
}

func (s *Session) broadcast(event Event) {
	if s.broadcaster == nil {
		return
	}
	event.SessionID = s.id
	event.Timestamp = s.clock().UTC()
	s.broadcaster.Broadcast(event)
}

// ManagerConfig describes the shared dependencies handed to every session.
type ManagerConfig struct {
	Engine      *scoring.Engine
	Broadcaster Broadcaster
	IDProvider  IDProvider
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Manager is the in-memory registry of live roster sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[SessionID]*Session
	cfg      ManagerConfig
}

// NewManager constructs an empty session registry.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Engine == nil {
		return nil, errMissingEngine
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	return &Manager{
		sessions: make(map[SessionID]*Session),
		cfg:      cfg,
	}, nil
}

// Session returns the live session for the triple, creating it on first use.
func (m *Manager) Session(ownerID, conductName string, conductDate time.Time) (*Session, error) {
	id, err := DeriveSessionID(ownerID, conductName, conductDate)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[id]; ok {
		return session, nil
	}
	session, err := NewSession(SessionConfig{
		OwnerID:     ownerID,
		ConductName: conductName,
		ConductDate: conductDate,
		Engine:      m.cfg.Engine,
		Broadcaster: m.cfg.Broadcaster,
		IDProvider:  m.cfg.IDProvider,
		Clock:       m.cfg.Clock,
		Logger:      m.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	m.sessions[id] = session
	return session, nil
}

// Lookup returns the live session for an already-derived identifier.
func (m *Manager) Lookup(id SessionID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	return session, ok
}
