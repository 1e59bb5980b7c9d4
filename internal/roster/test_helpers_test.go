package roster

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/saftrack/ippt-backend/internal/scoring"
)

var (
	testConductDate = time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	testBirthDate   = time.Date(2002, time.January, 15, 0, 0, 0, 0, time.UTC)
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (b *recordingBroadcaster) Broadcast(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) all() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := make([]Event, len(b.events))
	copy(events, b.events)
	return events
}

func (b *recordingBroadcaster) last(t *testing.T) Event {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		t.Fatalf("no events broadcast")
	}
	return b.events[len(b.events)-1]
}

type staticTableProvider struct {
	table scoring.Table
}

func (p *staticTableProvider) TableForAge(_ context.Context, age int) (scoring.Table, error) {
	table := p.table
	table.Age = age
	return table, nil
}

func testTable() scoring.Table {
	return scoring.Table{
		Situps: []scoring.Band{
			{Threshold: 50, Points: 45},
			{Threshold: 45, Points: 40},
			{Threshold: 40, Points: 35},
			{Threshold: 30, Points: 25},
			{Threshold: 20, Points: 10},
		},
		Pushups: []scoring.Band{
			{Threshold: 50, Points: 45},
			{Threshold: 45, Points: 35},
			{Threshold: 40, Points: 30},
			{Threshold: 30, Points: 20},
			{Threshold: 20, Points: 10},
		},
		Run: []scoring.Band{
			{Threshold: 600, Points: 45},
			{Threshold: 660, Points: 35},
			{Threshold: 720, Points: 20},
			{Threshold: 780, Points: 10},
		},
	}
}

func mustEngine(t *testing.T) *scoring.Engine {
	t.Helper()
	engine, err := scoring.NewEngine(&staticTableProvider{table: testTable()}, nil)
	if err != nil {
		t.Fatalf("unexpected engine error: %v", err)
	}
	return engine
}

type seqIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *seqIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("p-%d", p.next), nil
}

func mustSession(t *testing.T, broadcaster Broadcaster) *Session {
	t.Helper()
	session, err := NewSession(SessionConfig{
		OwnerID:     "user-1",
		ConductName: "coy ippt",
		ConductDate: testConductDate,
		Engine:      mustEngine(t),
		Broadcaster: broadcaster,
		IDProvider:  &seqIDProvider{},
		Clock:       func() time.Time { return testConductDate },
	})
	if err != nil {
		t.Fatalf("unexpected session error: %v", err)
	}
	return session
}

func typedParticipant(name string, situps, pushups, runSeconds int) Participant {
	p := Participant{
		Name:        TypedName(name),
		SitupReps:   situps,
		PushupReps:  pushups,
		DateOfBirth: testBirthDate,
	}
	p.SetRunSeconds(runSeconds)
	return p
}

func mustAdd(t *testing.T, session *Session, device string, participant Participant) Participant {
	t.Helper()
	added, ok, err := session.Add(context.Background(), device, participant)
	if err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if !ok {
		t.Fatalf("expected add of %q to append", participant.Name.Text)
	}
	return added
}
