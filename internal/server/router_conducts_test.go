package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/saftrack/ippt-backend/internal/conducts"
	"github.com/saftrack/ippt-backend/internal/roster"
)

func scoredParticipant(name string, total int) map[string]any {
	return map[string]any{
		"name":       map[string]any{"kind": "typed", "text": name},
		"situpReps":  43,
		"pushupReps": 46,
		"runSeconds": 710,
		"totalScore": total,
		"result":     "Gold",
		"age":        22,
	}
}

func TestSubmitConductPersistsRoster(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/api/ippt/sessions", map[string]any{
		"name": "coy ippt",
		"date": "2024-07-01",
		"participants": []map[string]any{
			scoredParticipant("TAN JOHN WEI", 90),
			scoredParticipant("ONG WEI", 61),
		},
	}, nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected submit status %d: %s", recorder.Code, recorder.Body.String())
	}

	var created conducts.Conduct
	mustDecode(t, recorder, &created)
	if created.ID == "" {
		t.Fatal("expected conduct id to be minted")
	}

	recorder = env.do(t, http.MethodGet, "/api/ippt/sessions", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected list status %d", recorder.Code)
	}
	var list struct {
		Conducts []conducts.Conduct `json:"conducts"`
	}
	mustDecode(t, recorder, &list)
	if len(list.Conducts) != 1 {
		t.Fatalf("expected one conduct, got %d", len(list.Conducts))
	}

	recorder = env.do(t, http.MethodGet, "/api/ippt/sessions/"+created.ID, nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected get status %d", recorder.Code)
	}
	var loaded conducts.Conduct
	mustDecode(t, recorder, &loaded)
	if len(loaded.Participants) != 2 {
		t.Fatalf("expected two participants, got %d", len(loaded.Participants))
	}
	if loaded.Participants[0].Name != "TAN JOHN WEI" || loaded.Participants[0].TotalScore != 90 {
		t.Fatalf("unexpected first participant %#v", loaded.Participants[0])
	}
}

func TestSubmitConductRejectsDuplicateNames(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/api/ippt/sessions", map[string]any{
		"name": "coy ippt",
		"date": "2024-07-01",
		"participants": []map[string]any{
			scoredParticipant("TAN JOHN WEI", 90),
			scoredParticipant("tan john wei", 61),
		},
	}, nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestSubmitConductRejectsEmptyRoster(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/api/ippt/sessions", map[string]any{
		"name": "coy ippt",
		"date": "2024-07-01",
	}, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
}

func TestGetConductUnknownIDReturnsNotFound(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodGet, "/api/ippt/sessions/missing", nil, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
}

func TestScoringTableEndpoint(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodGet, "/api/ippt/scoring/22", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	// The table travels as ordered [threshold, points] pairs keyed per station.
	var table struct {
		Age     int      `json:"age"`
		Situps  [][2]int `json:"situps_scoring"`
		Pushups [][2]int `json:"pushups_scoring"`
		Run     [][2]int `json:"run_scoring"`
	}
	mustDecode(t, recorder, &table)
	if table.Age != 22 {
		t.Fatalf("unexpected age %d", table.Age)
	}
	if len(table.Situps) == 0 || table.Situps[0] != [2]int{50, 45} {
		t.Fatalf("unexpected situp bands %v", table.Situps)
	}
	if len(table.Pushups) == 0 || len(table.Run) == 0 {
		t.Fatalf("expected pushup and run bands, got %v / %v", table.Pushups, table.Run)
	}
	for _, key := range []string{"situps_scoring", "pushups_scoring", "run_scoring"} {
		if !strings.Contains(recorder.Body.String(), key) {
			t.Fatalf("expected %q in response body %s", key, recorder.Body.String())
		}
	}

	recorder = env.do(t, http.MethodGet, "/api/ippt/scoring/15", nil, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected out-of-range age to be rejected, got %d", recorder.Code)
	}

	recorder = env.do(t, http.MethodGet, "/api/ippt/scoring/abc", nil, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected non-numeric age to be rejected, got %d", recorder.Code)
	}
}

func TestListMembersEndpoint(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodGet, "/api/users", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	var members []map[string]any
	mustDecode(t, recorder, &members)
	if len(members) != 2 {
		t.Fatalf("expected two members, got %d", len(members))
	}
	// A bare array, ordered by full name.
	if members[0]["fullName"] != "ALEX LIM HAO" {
		t.Fatalf("unexpected first member %v", members[0]["fullName"])
	}
}

func TestOpenRosterIsStableForSameTriple(t *testing.T) {
	env := newTestEnv(t)

	first := env.openRoster(t)
	second := env.openRoster(t)
	if first != second {
		t.Fatalf("expected the same session id for the same triple, got %q and %q", first, second)
	}
	if _, ok := env.rosters.Lookup(roster.SessionID(first)); !ok {
		t.Fatal("expected session to be registered")
	}
}
