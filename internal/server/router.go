package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/saftrack/ippt-backend/internal/auth"
	"github.com/saftrack/ippt-backend/internal/conducts"
	"github.com/saftrack/ippt-backend/internal/directory"
	"github.com/saftrack/ippt-backend/internal/ocr"
	"github.com/saftrack/ippt-backend/internal/roster"
	"github.com/saftrack/ippt-backend/internal/scoring"
)

const (
	userIDContextKey = "ippt_user_id"
	deviceIDHeader   = "X-Device-ID"

	sseHeartbeatInterval = 15 * time.Second
	conductDateLayout    = "2006-01-02"
)

var (
	errMissingSSOVerifier   = errors.New("sso verifier dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingIdentities    = errors.New("identity resolver dependency required")
	errMissingDirectory     = errors.New("directory service dependency required")
	errMissingScoringTables = errors.New("scoring table provider dependency required")
	errMissingRosterManager = errors.New("roster manager dependency required")
	errMissingConducts      = errors.New("conducts service dependency required")
	errMissingDispatcher    = errors.New("realtime dispatcher dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SSOVerifier validates an upstream SSO token and returns its claims.
type SSOVerifier interface {
	Verify(ctx context.Context, token string) (auth.SSOClaims, error)
}

// BackendTokenManager issues and validates this service's own bearer tokens.
type BackendTokenManager interface {
	IssueBackendToken(ctx context.Context, claims auth.SSOClaims) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// IdentityResolver maps verified SSO claims onto a canonical user id.
type IdentityResolver interface {
	ResolveCanonicalUserID(claims auth.SSOClaims) (string, error)
}

// Dependencies wires the HTTP surface to the domain services.
type Dependencies struct {
	SSOVerifier    SSOVerifier
	TokenManager   BackendTokenManager
	Identities     IdentityResolver
	Directory      *directory.Service
	ScoringTables  scoring.TableProvider
	Rosters        *roster.Manager
	Conducts       *conducts.Service
	Realtime       *RealtimeDispatcher
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewHTTPHandler assembles the gin router for the API server.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SSOVerifier == nil {
		return nil, errMissingSSOVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Identities == nil {
		return nil, errMissingIdentities
	}
	if deps.Directory == nil {
		return nil, errMissingDirectory
	}
	if deps.ScoringTables == nil {
		return nil, errMissingScoringTables
	}
	if deps.Rosters == nil {
		return nil, errMissingRosterManager
	}
	if deps.Conducts == nil {
		return nil, errMissingConducts
	}
	if deps.Realtime == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", deviceIDHeader},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier:   deps.SSOVerifier,
		tokens:     deps.TokenManager,
		identities: deps.Identities,
		directory:  deps.Directory,
		tables:     deps.ScoringTables,
		rosters:    deps.Rosters,
		conducts:   deps.Conducts,
		realtime:   deps.Realtime,
		logger:     logger,
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/auth/token", handler.handleTokenExchange)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/users", handler.handleListMembers)
	protected.GET("/ippt/scoring/:age", handler.handleScoringTable)
	protected.POST("/ippt/sessions", handler.handleSubmitConduct)
	protected.GET("/ippt/sessions", handler.handleListConducts)
	protected.GET("/ippt/sessions/:id", handler.handleGetConduct)
	protected.POST("/ippt/rosters", handler.handleOpenRoster)
	protected.POST("/ippt/rosters/:session/participants", handler.handleAddParticipant)
	protected.PATCH("/ippt/rosters/:session/participants/:id", handler.handleUpdateParticipant)
	protected.DELETE("/ippt/rosters/:session/participants/:id", handler.handleRemoveParticipant)
	protected.POST("/ippt/rosters/:session/merge", handler.handleMergeRoster)
	protected.POST("/ippt/rosters/:session/sync", handler.handleSyncRoster)
	protected.GET("/ippt/rosters/:session/events", handler.handleRosterEvents)
	protected.POST("/ippt/scan", handler.handleScan)

	return router, nil
}

type httpHandler struct {
	verifier   SSOVerifier
	tokens     BackendTokenManager
	identities IdentityResolver
	directory  *directory.Service
	tables     scoring.TableProvider
	rosters    *roster.Manager
	conducts   *conducts.Service
	realtime   *RealtimeDispatcher
	logger     *zap.Logger
}

type authRequestPayload struct {
	IDToken string `json:"id_token"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleTokenExchange(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("sso token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	canonicalID, err := h.identities.ResolveCanonicalUserID(claims)
	if err != nil {
		h.logger.Error("failed to resolve canonical user id", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity_resolution_failed"})
		return
	}
	claims.Subject = canonicalID

	token, expiresIn, err := h.tokens.IssueBackendToken(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		// Expired tokens are routine on conduct mornings, not an anomaly.
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func (h *httpHandler) handleListMembers(c *gin.Context) {
	members, err := h.directory.ListMembers(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list directory members", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_members_failed"})
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *httpHandler) handleScoringTable(c *gin.Context) {
	age, err := strconv.Atoi(c.Param("age"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_age"})
		return
	}

	table, err := h.tables.TableForAge(c.Request.Context(), age)
	switch {
	case errors.Is(err, scoring.ErrInvalidAge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_age"})
	case errors.Is(err, scoring.ErrTableNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "table_not_found"})
	case err != nil:
		h.logger.Error("failed to load scoring table", zap.Int("age", age), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scoring_table_failed"})
	default:
		c.JSON(http.StatusOK, table)
	}
}

type submitConductPayload struct {
	Name         string               `json:"name"`
	Date         string               `json:"date"`
	Participants []roster.Participant `json:"participants"`
}

func (h *httpHandler) handleSubmitConduct(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request submitConductPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	date, err := time.Parse(conductDateLayout, request.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}

	conduct, err := h.conducts.Submit(c.Request.Context(), userID, conducts.SubmitRequest{
		Name:         request.Name,
		Date:         date,
		Participants: request.Participants,
	})
	switch {
	case errors.Is(err, conducts.ErrEmptyRoster):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_roster"})
	case errors.Is(err, conducts.ErrDuplicateNames):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_names"})
	case err != nil:
		h.logger.Error("failed to submit conduct", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submit_failed"})
	default:
		c.JSON(http.StatusCreated, conduct)
	}
}

func (h *httpHandler) handleListConducts(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	list, err := h.conducts.ListConducts(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list conducts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_conducts_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conducts": list})
}

func (h *httpHandler) handleGetConduct(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	conduct, err := h.conducts.GetConduct(c.Request.Context(), userID, c.Param("id"))
	switch {
	case errors.Is(err, conducts.ErrConductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conduct_not_found"})
	case err != nil:
		h.logger.Error("failed to load conduct", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get_conduct_failed"})
	default:
		c.JSON(http.StatusOK, conduct)
	}
}

type openRosterPayload struct {
	ConductName string `json:"conductName"`
	ConductDate string `json:"conductDate"`
}

func (h *httpHandler) handleOpenRoster(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request openRosterPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	date, err := time.Parse(conductDateLayout, request.ConductDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}

	session, err := h.rosters.Session(userID, request.ConductName, date)
	if err != nil {
		if errors.Is(err, roster.ErrInvalidSessionKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_session_key"})
			return
		}
		h.logger.Error("failed to open roster session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "open_roster_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":    session.ID().String(),
		"participants": session.Snapshot(),
	})
}

func (h *httpHandler) lookupSession(c *gin.Context) (*roster.Session, bool) {
	session, ok := h.rosters.Lookup(roster.SessionID(c.Param("session")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return nil, false
	}
	return session, true
}

type addParticipantPayload struct {
	Name       string `json:"name"`
	SitupReps  int    `json:"situpReps"`
	PushupReps int    `json:"pushupReps"`
	RunTime    string `json:"runTime"`
}

func (h *httpHandler) handleAddParticipant(c *gin.Context) {
	session, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var request addParticipantPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	participant := roster.Participant{
		Name:       roster.TypedName(request.Name),
		SitupReps:  request.SitupReps,
		PushupReps: request.PushupReps,
	}
	if strings.TrimSpace(request.RunTime) != "" {
		runTime, err := scoring.ParseRunTime(request.RunTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_run_time"})
			return
		}
		participant.SetRunSeconds(runTime.Seconds())
	}

	stored, appended, err := session.Add(c.Request.Context(), c.GetHeader(deviceIDHeader), participant)
	if err != nil {
		h.logger.Error("failed to add participant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "add_participant_failed"})
		return
	}

	status := http.StatusCreated
	if !appended {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"participant": stored})
}

type updateParticipantPayload struct {
	TypedName  *string           `json:"typedName"`
	Selection  *directory.Member `json:"selection"`
	SitupReps  *int              `json:"situpReps"`
	PushupReps *int              `json:"pushupReps"`
	RunTime    *string           `json:"runTime"`
}

func (h *httpHandler) handleUpdateParticipant(c *gin.Context) {
	session, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var request updateParticipantPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	patch := roster.FieldPatch{
		TypedName:  request.TypedName,
		Selection:  request.Selection,
		SitupReps:  request.SitupReps,
		PushupReps: request.PushupReps,
	}
	if request.RunTime != nil {
		seconds := 0
		if strings.TrimSpace(*request.RunTime) != "" {
			runTime, err := scoring.ParseRunTime(*request.RunTime)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_run_time"})
				return
			}
			seconds = runTime.Seconds()
		}
		patch.RunSeconds = &seconds
	}

	participant, duplicate, err := session.Update(c.Request.Context(), c.GetHeader(deviceIDHeader), c.Param("id"), patch)
	if err != nil {
		if errors.Is(err, roster.ErrUnknownParticipant) {
			c.JSON(http.StatusNotFound, gin.H{"error": "participant_not_found"})
			return
		}
		h.logger.Error("failed to update participant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_participant_failed"})
		return
	}

	response := gin.H{"participant": participant}
	if duplicate != nil {
		response["duplicate"] = gin.H{
			"name":      duplicate.Name,
			"firstRow":  duplicate.FirstRow,
			"secondRow": duplicate.SecondRow,
		}
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleRemoveParticipant(c *gin.Context) {
	session, ok := h.lookupSession(c)
	if !ok {
		return
	}

	// Removing an id a peer already removed is a no-op, not an error.
	if err := session.Remove(c.Request.Context(), c.GetHeader(deviceIDHeader), c.Param("id")); err != nil {
		h.logger.Error("failed to remove participant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remove_participant_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type mergeRosterPayload struct {
	Action       string               `json:"action"`
	Participants []roster.Participant `json:"participants"`
}

func (h *httpHandler) handleMergeRoster(c *gin.Context) {
	session, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var request mergeRosterPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	// No action means the caller wants the conflict report before deciding.
	if strings.TrimSpace(request.Action) == "" {
		c.JSON(http.StatusOK, gin.H{"conflicts": session.Conflicts(request.Participants)})
		return
	}

	action := roster.ConflictAction(request.Action)
	if action != roster.ConflictOverwrite && action != roster.ConflictSkip {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action"})
		return
	}

	participants, err := session.MergeBatch(c.Request.Context(), c.GetHeader(deviceIDHeader), action, request.Participants)
	if err != nil {
		h.logger.Error("failed to merge roster batch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "merge_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

type syncRosterPayload struct {
	Participants []roster.Participant `json:"participants"`
}

func (h *httpHandler) handleSyncRoster(c *gin.Context) {
	session, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var request syncRosterPayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	// Without a payload this is a recovery request: rebroadcast the
	// authoritative roster to every device, the requester included.
	if request.Participants == nil {
		c.JSON(http.StatusOK, gin.H{"participants": session.RequestSync()})
		return
	}

	participants, err := session.ReplaceAll(c.Request.Context(), c.GetHeader(deviceIDHeader), request.Participants)
	if err != nil {
		h.logger.Error("failed to replace roster", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

func (h *httpHandler) handleRosterEvents(c *gin.Context) {
	session, ok := h.lookupSession(c)
	if !ok {
		return
	}

	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), session.ID(), c.GetHeader(deviceIDHeader))
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	// Flush the headers immediately so EventSource clients see the
	// stream open before the first event lands.
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"sessionId": session.ID().String()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type scanRequestPayload struct {
	SessionID string            `json:"sessionId"`
	Result    ocr.AnalyzeResult `json:"result"`
}

type scanRowPayload struct {
	Participant roster.Participant `json:"participant"`
	Match       *directory.Member  `json:"match,omitempty"`
	Percentage  int                `json:"matchPercentage,omitempty"`
}

func (h *httpHandler) handleScan(c *gin.Context) {
	var request scanRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	extracted, err := ocr.Extract(request.Result)
	if err != nil {
		if errors.Is(err, ocr.ErrNoRoster) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no_roster_found"})
			return
		}
		h.logger.Error("failed to extract scoresheet", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan_failed"})
		return
	}
	scanRowsExtractedTotal.Add(float64(len(extracted)))

	members, err := h.directory.ListMembers(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list directory members", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan_failed"})
		return
	}

	rows := make([]scanRowPayload, 0, len(extracted))
	proposals := make([]roster.Participant, 0, len(extracted))
	for _, entry := range extracted {
		participant := roster.Participant{
			Name:       roster.TypedName(entry.Name),
			SitupReps:  entry.SitupReps,
			PushupReps: entry.PushupReps,
		}
		if entry.RunTime != "" {
			if runTime, parseErr := scoring.ParseRunTime(entry.RunTime); parseErr == nil {
				participant.SetRunSeconds(runTime.Seconds())
			}
		}

		row := scanRowPayload{}
		if match := directory.Match(entry.Name, members); match.Member != nil {
			percentage := match.Percentage
			participant.MatchPercentage = &percentage
			row.Match = match.Member
			row.Percentage = percentage
		}
		row.Participant = participant
		rows = append(rows, row)
		proposals = append(proposals, participant)
	}

	response := gin.H{"rows": rows}
	if request.SessionID != "" {
		if session, found := h.rosters.Lookup(roster.SessionID(request.SessionID)); found {
			response["conflicts"] = session.Conflicts(proposals)
		}
	}
	c.JSON(http.StatusOK, response)
}
