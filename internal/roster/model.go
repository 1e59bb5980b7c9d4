package roster

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saftrack/ippt-backend/internal/directory"
	"github.com/saftrack/ippt-backend/internal/scoring"
)

var (
	// ErrInvalidSessionKey indicates the owner, conduct name, or conduct date is missing.
	ErrInvalidSessionKey = errors.New("roster: invalid session key")
	// ErrUnknownParticipant indicates the addressed participant is not in the roster.
	ErrUnknownParticipant = errors.New("roster: unknown participant")
)

// NameKind tags the two forms a participant name can take.
type NameKind string

const (
	// NameTyped marks free text as scanned or typed.
	NameTyped NameKind = "typed"
	// NameResolved marks an explicit directory selection.
	NameResolved NameKind = "resolved"
)

// NameField is a participant name, either raw text or a resolved directory
// identity. It is normalized once at each ingestion boundary instead of
// being re-inspected downstream.
type NameField struct {
	Kind     NameKind `json:"kind"`
	Text     string   `json:"text"`
	MemberID string   `json:"memberId,omitempty"`
}

// TypedName builds a NameField from free text.
func TypedName(text string) NameField {
	return NameField{Kind: NameTyped, Text: strings.TrimSpace(text)}
}

// ResolvedName builds a NameField from a directory selection.
func ResolvedName(member directory.Member) NameField {
	return NameField{
		Kind:     NameResolved,
		Text:     strings.TrimSpace(member.FullName),
		MemberID: member.ID,
	}
}

// Normalized returns the case-insensitive, trimmed comparison key.
func (n NameField) Normalized() string {
	return strings.ToLower(strings.TrimSpace(n.Text))
}

// IsBlank reports whether the name carries no usable text.
func (n NameField) IsBlank() bool {
	return n.Normalized() == ""
}

// Participant is one test-taker's record within a roster session. ID is
// minted at creation and is the addressing key carried by every sync event,
// so concurrent structural edits cannot land an update on the wrong row.
type Participant struct {
	ID              string          `json:"id"`
	Name            NameField       `json:"name"`
	MatchPercentage *int            `json:"matchPercentage,omitempty"`
	Rank            string          `json:"rank,omitempty"`
	PlatoonID       string          `json:"platoonId,omitempty"`
	DateOfBirth     time.Time       `json:"dob,omitempty"`
	SitupReps       int             `json:"situpReps"`
	PushupReps      int             `json:"pushupReps"`
	RunSeconds      int             `json:"runSeconds"`
	RunTime         string          `json:"runTime"`
	SitupScore      int             `json:"situpScore"`
	PushupScore     int             `json:"pushupScore"`
	RunScore        int             `json:"runScore"`
	TotalScore      int             `json:"totalScore"`
	Award           scoring.Award   `json:"result"`
	Age             int             `json:"age,omitempty"`
	ScoreStatus     scoring.Status  `json:"scoreStatus,omitempty"`
	Editing         bool            `json:"isEditing"`
}

// HasMeasurements reports whether any station has a non-zero raw value.
func (p Participant) HasMeasurements() bool {
	return p.SitupReps != 0 || p.PushupReps != 0 || p.RunSeconds != 0
}

// SetRunSeconds keeps the dual run-time representation in step.
func (p *Participant) SetRunSeconds(seconds int) {
	p.RunSeconds = seconds
	if seconds == 0 {
		p.RunTime = ""
		return
	}
	if rt, err := scoring.RunTimeFromSeconds(seconds); err == nil {
		p.RunTime = rt.String()
	}
}

// SessionID is the deterministic identifier devices share to join one
// roster session.
type SessionID string

// String returns the underlying identifier.
func (id SessionID) String() string {
	return string(id)
}

// DeriveSessionID derives the channel identifier from the (owner,
// conduct-name, conduct-date) triple. Every device deriving from the same
// triple lands on the same session.
func DeriveSessionID(ownerID, conductName string, conductDate time.Time) (SessionID, error) {
	owner := strings.TrimSpace(ownerID)
	name := strings.TrimSpace(conductName)
	if owner == "" || name == "" || conductDate.IsZero() {
		return "", ErrInvalidSessionKey
	}
	seed := fmt.Sprintf("%s|%s|%s", owner, strings.ToLower(name), conductDate.UTC().Format("2006-01-02"))
	sum := sha256.Sum256([]byte(seed))
	return SessionID(hex.EncodeToString(sum[:])), nil
}

// EventType enumerates the sync events exchanged between devices.
type EventType string

const (
	// EventParticipantAdd announces a newly appended participant.
	EventParticipantAdd EventType = "participant-add"
	// EventParticipantUpdate announces a single-field participant change.
	EventParticipantUpdate EventType = "participant-update"
	// EventParticipantRemove announces a participant removal.
	EventParticipantRemove EventType = "participant-remove"
	// EventParticipantsSync replaces the whole roster wholesale.
	EventParticipantsSync EventType = "participants-sync"
	// EventDeviceJoin announces a peer joining the session channel.
	EventDeviceJoin EventType = "device-join"
	// EventDeviceLeave announces a peer leaving the session channel.
	EventDeviceLeave EventType = "device-leave"
)

// Event is one sync broadcast. OriginDevice identifies the device whose
// action produced it so the transport can exclude it from delivery.
type Event struct {
	Type          EventType     `json:"type"`
	SessionID     SessionID     `json:"sessionId"`
	OriginDevice  string        `json:"originDevice,omitempty"`
	Participant   *Participant  `json:"participant,omitempty"`
	ParticipantID string        `json:"participantId,omitempty"`
	Field         string        `json:"field,omitempty"`
	Participants  []Participant `json:"participants,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Broadcaster relays events to the session's other devices.
type Broadcaster interface {
	Broadcast(event Event)
}

// IDProvider mints participant identifiers.
type IDProvider interface {
	NewID() (string, error)
}
