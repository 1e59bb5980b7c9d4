package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/saftrack/ippt-backend/internal/auth"
	"github.com/saftrack/ippt-backend/internal/conducts"
	"github.com/saftrack/ippt-backend/internal/directory"
	"github.com/saftrack/ippt-backend/internal/roster"
	"github.com/saftrack/ippt-backend/internal/scoring"
)

const (
	testBackendToken = "valid-token"
	testUserID       = "user-1"
)

var testBirthDate = time.Date(2002, time.January, 15, 0, 0, 0, 0, time.UTC)

type stubSSOVerifier struct {
	claims auth.SSOClaims
	err    error
}

func (s stubSSOVerifier) Verify(context.Context, string) (auth.SSOClaims, error) {
	return s.claims, s.err
}

type stubTokenManager struct {
	validateErr error
}

func (s stubTokenManager) IssueBackendToken(context.Context, auth.SSOClaims) (string, int64, error) {
	return testBackendToken, 3600, nil
}

func (s stubTokenManager) ValidateToken(token string) (string, error) {
	if s.validateErr != nil {
		return "", s.validateErr
	}
	if token != testBackendToken {
		return "", errors.New("unknown token")
	}
	return testUserID, nil
}

type stubIdentityResolver struct{}

func (stubIdentityResolver) ResolveCanonicalUserID(claims auth.SSOClaims) (string, error) {
	return claims.Subject, nil
}

type staticTableProvider struct {
	table scoring.Table
}

func (p *staticTableProvider) TableForAge(_ context.Context, age int) (scoring.Table, error) {
	if age < scoring.MinTableAge || age > scoring.MaxTableAge {
		return scoring.Table{}, fmt.Errorf("%w: %d", scoring.ErrInvalidAge, age)
	}
	table := p.table
	table.Age = age
	return table, nil
}

func testTable() scoring.Table {
	return scoring.Table{
		Situps: []scoring.Band{
			{Threshold: 50, Points: 45},
			{Threshold: 40, Points: 35},
			{Threshold: 20, Points: 10},
		},
		Pushups: []scoring.Band{
			{Threshold: 50, Points: 45},
			{Threshold: 45, Points: 35},
			{Threshold: 20, Points: 10},
		},
		Run: []scoring.Band{
			{Threshold: 600, Points: 45},
			{Threshold: 720, Points: 20},
			{Threshold: 780, Points: 10},
		},
	}
}

type seqIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *seqIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("id-%d", p.next), nil
}

type testEnv struct {
	handler    http.Handler
	rosters    *roster.Manager
	dispatcher *RealtimeDispatcher
	db         *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&directory.Member{}, &conducts.Conduct{}, &conducts.ConductParticipant{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	ids := &seqIDProvider{}
	directoryService, err := directory.NewService(directory.ServiceConfig{Database: db, IDProvider: ids})
	if err != nil {
		t.Fatalf("failed to build directory service: %v", err)
	}
	if err := directoryService.SeedMembers(context.Background(), []directory.Member{
		{ID: "member-1", FullName: "TAN JOHN WEI", Rank: "PTE", PlatoonID: "PLT-2", DateOfBirth: testBirthDate},
		{ID: "member-2", FullName: "ALEX LIM HAO", Rank: "CPL", PlatoonID: "PLT-1", DateOfBirth: testBirthDate},
	}); err != nil {
		t.Fatalf("failed to seed members: %v", err)
	}

	conductsService, err := conducts.NewService(conducts.ServiceConfig{Database: db, IDProvider: ids})
	if err != nil {
		t.Fatalf("failed to build conducts service: %v", err)
	}

	tables := &staticTableProvider{table: testTable()}
	engine, err := scoring.NewEngine(tables, nil)
	if err != nil {
		t.Fatalf("failed to build score engine: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	rosters, err := roster.NewManager(roster.ManagerConfig{
		Engine:      engine,
		Broadcaster: dispatcher,
		IDProvider:  ids,
	})
	if err != nil {
		t.Fatalf("failed to build roster manager: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		SSOVerifier:   stubSSOVerifier{claims: auth.SSOClaims{Issuer: "https://sso.unit.example", Subject: testUserID}},
		TokenManager:  stubTokenManager{},
		Identities:    stubIdentityResolver{},
		Directory:     directoryService,
		ScoringTables: tables,
		Rosters:       rosters,
		Conducts:      conductsService,
		Realtime:      dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &testEnv{handler: handler, rosters: rosters, dispatcher: dispatcher, db: db}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+testBackendToken)
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func (e *testEnv) openRoster(t *testing.T) string {
	t.Helper()

	recorder := e.do(t, http.MethodPost, "/api/ippt/rosters", map[string]string{
		"conductName": "coy ippt",
		"conductDate": "2024-07-01",
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected open roster status %d: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		SessionID string `json:"sessionId"`
	}
	mustDecode(t, recorder, &response)
	if response.SessionID == "" {
		t.Fatal("expected a session id")
	}
	return response.SessionID
}

func mustDecode(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}
