package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/soapboxlabs/soapbox/internal/auth"
	"github.com/soapboxlabs/soapbox/internal/suggestions"
	"go.uber.org/zap"
)

const (
	claimsContextKey = "soapbox_claims"

	defaultListLimit = 50
	maxListLimit     = 200
)

var (
	errMissingSuggestionService = errors.New("suggestion service dependency required")
	errMissingSettingsStore     = errors.New("settings store dependency required")
	errMissingTokenValidator    = errors.New("token validator dependency required")
	errInvalidAuthorization     = errors.New("authorization header missing or invalid")
)

// SuggestionService is the lifecycle surface the router drives.
type SuggestionService interface {
	Create(ctx context.Context, request suggestions.CreateRequest) (suggestions.CreateResult, error)
	Edit(ctx context.Context, request suggestions.EditRequest) (suggestions.Suggestion, error)
	Resolve(ctx context.Context, request suggestions.ResolveRequest) (suggestions.Suggestion, error)
	Archive(ctx context.Context, request suggestions.ArchiveRequest) (suggestions.Suggestion, error)
}

// SettingsStore covers the read and admin paths that bypass the lifecycle
// engine: settings management and suggestion listings.
type SettingsStore interface {
	Settings(ctx context.Context, tenant suggestions.TenantID) (suggestions.TenantSettings, bool, error)
	UpsertSettings(ctx context.Context, settings suggestions.TenantSettings) error
	ListSuggestions(ctx context.Context, tenant suggestions.TenantID, limit int) ([]suggestions.Suggestion, error)
}

// TokenValidator checks bearer tokens and returns their claims.
type TokenValidator interface {
	ValidateToken(token string) (auth.Claims, error)
}

type Dependencies struct {
	Suggestions SuggestionService
	Store       SettingsStore
	Tokens      TokenValidator
	Logger      *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Suggestions == nil {
		return nil, errMissingSuggestionService
	}
	if deps.Store == nil {
		return nil, errMissingSettingsStore
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		service: deps.Suggestions,
		store:   deps.Store,
		tokens:  deps.Tokens,
		logger:  logger,
	}

	tenants := router.Group("/api/tenants/:tenant")
	tenants.Use(handler.authorizeRequest)

	tenants.POST("/suggestions", handler.handleCreate)
	tenants.GET("/suggestions", handler.handleList)
	tenants.PATCH("/suggestions/:id", handler.handleEdit)

	moderated := tenants.Group("/")
	moderated.Use(handler.requireModerator)
	moderated.POST("/suggestions/:id/resolve", handler.handleResolve)
	moderated.POST("/suggestions/:id/archive", handler.handleArchive)
	moderated.GET("/settings", handler.handleGetSettings)
	moderated.PUT("/settings", handler.handlePutSettings)

	return router, nil
}

type httpHandler struct {
	service SuggestionService
	store   SettingsStore
	tokens  TokenValidator
	logger  *zap.Logger
}

type suggestionPayload struct {
	ID                int64  `json:"id"`
	TenantID          string `json:"tenant_id"`
	AuthorID          string `json:"author_id"`
	ChannelID         string `json:"channel_id"`
	MessageID         string `json:"message_id"`
	Content           string `json:"content"`
	State             string `json:"state"`
	CreatedAtSeconds  int64  `json:"created_at_s"`
	RepliedAtSeconds  *int64 `json:"replied_at_s,omitempty"`
	RepliedAction     string `json:"replied_action,omitempty"`
	RepliedResponse   string `json:"replied_response,omitempty"`
	ArchivedAtSeconds *int64 `json:"archived_at_s,omitempty"`
}

func toSuggestionPayload(record suggestions.Suggestion) suggestionPayload {
	return suggestionPayload{
		ID:                record.ID,
		TenantID:          record.TenantID,
		AuthorID:          record.AuthorID,
		ChannelID:         record.ChannelID,
		MessageID:         record.MessageID,
		Content:           record.Content,
		State:             string(record.State()),
		CreatedAtSeconds:  record.CreatedAtSeconds,
		RepliedAtSeconds:  record.RepliedAtSeconds,
		RepliedAction:     record.RepliedAction,
		RepliedResponse:   record.RepliedResponse,
		ArchivedAtSeconds: record.ArchivedAtSeconds,
	}
}

type createRequestPayload struct {
	Content string `json:"content"`
}

type createResponsePayload struct {
	Suggestion suggestionPayload `json:"suggestion"`
	Warnings   []string          `json:"warnings,omitempty"`
}

func (h *httpHandler) handleCreate(c *gin.Context) {
	tenant, claims, ok := h.requestScope(c)
	if !ok {
		return
	}
	author, err := suggestions.NewAuthorID(claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request createRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.service.Create(c.Request.Context(), suggestions.CreateRequest{
		TenantID: tenant,
		AuthorID: author,
		Content:  request.Content,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createResponsePayload{
		Suggestion: toSuggestionPayload(result.Suggestion),
		Warnings:   result.Warnings,
	})
}

type editRequestPayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleEdit(c *gin.Context) {
	tenant, claims, ok := h.requestScope(c)
	if !ok {
		return
	}
	id, ok := h.suggestionID(c)
	if !ok {
		return
	}
	author, err := suggestions.NewAuthorID(claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request editRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	updated, err := h.service.Edit(c.Request.Context(), suggestions.EditRequest{
		TenantID: tenant,
		ID:       id,
		AuthorID: author,
		Content:  request.Content,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSuggestionPayload(updated))
}

type resolveRequestPayload struct {
	Action   string `json:"action"`
	Response string `json:"response"`
}

func (h *httpHandler) handleResolve(c *gin.Context) {
	tenant, claims, ok := h.requestScope(c)
	if !ok {
		return
	}
	id, ok := h.suggestionID(c)
	if !ok {
		return
	}
	moderator, err := suggestions.NewAuthorID(claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request resolveRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	action, err := suggestions.ParseResolveAction(request.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action"})
		return
	}

	resolved, err := h.service.Resolve(c.Request.Context(), suggestions.ResolveRequest{
		TenantID:    tenant,
		ID:          id,
		ModeratorID: moderator,
		Action:      action,
		Response:    request.Response,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSuggestionPayload(resolved))
}

func (h *httpHandler) handleArchive(c *gin.Context) {
	tenant, claims, ok := h.requestScope(c)
	if !ok {
		return
	}
	id, ok := h.suggestionID(c)
	if !ok {
		return
	}
	actor, err := suggestions.NewAuthorID(claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	archived, err := h.service.Archive(c.Request.Context(), suggestions.ArchiveRequest{
		TenantID: tenant,
		ID:       id,
		ActorID:  actor,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSuggestionPayload(archived))
}

type listResponsePayload struct {
	Suggestions []suggestionPayload `json:"suggestions"`
}

func (h *httpHandler) handleList(c *gin.Context) {
	tenant, _, ok := h.requestScope(c)
	if !ok {
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxListLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}

	records, err := h.store.ListSuggestions(c.Request.Context(), tenant, limit)
	if err != nil {
		h.logger.Error("failed to list suggestions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	response := listResponsePayload{Suggestions: make([]suggestionPayload, 0, len(records))}
	for _, record := range records {
		response.Suggestions = append(response.Suggestions, toSuggestionPayload(record))
	}
	c.JSON(http.StatusOK, response)
}

type settingsPayload struct {
	ChannelID  string   `json:"channel_id"`
	UseEmbed   bool     `json:"use_embed"`
	Compact    bool     `json:"compact"`
	Buttons    bool     `json:"buttons"`
	AutoThread bool     `json:"auto_thread"`
	Reactions  []string `json:"reactions"`
}

func (h *httpHandler) handleGetSettings(c *gin.Context) {
	tenant, _, ok := h.requestScope(c)
	if !ok {
		return
	}

	settings, found, err := h.store.Settings(c.Request.Context(), tenant)
	if err != nil {
		h.logger.Error("failed to load settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings_load_failed"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_configured"})
		return
	}

	c.JSON(http.StatusOK, settingsPayload{
		ChannelID:  settings.ChannelID,
		UseEmbed:   settings.UseEmbed,
		Compact:    settings.Compact,
		Buttons:    settings.Buttons,
		AutoThread: settings.AutoThread,
		Reactions:  settings.Reactions(),
	})
}

func (h *httpHandler) handlePutSettings(c *gin.Context) {
	tenant, _, ok := h.requestScope(c)
	if !ok {
		return
	}

	var request settingsPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ChannelID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	settings := suggestions.TenantSettings{
		TenantID:     tenant.String(),
		ChannelID:    strings.TrimSpace(request.ChannelID),
		UseEmbed:     request.UseEmbed,
		Compact:      request.Compact,
		Buttons:      request.Buttons,
		AutoThread:   request.AutoThread,
		ReactionsCSV: strings.Join(request.Reactions, ","),
	}
	if err := h.store.UpsertSettings(c.Request.Context(), settings); err != nil {
		h.logger.Error("failed to store settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings_store_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
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
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(claimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireModerator(c *gin.Context) {
	claims, ok := c.MustGet(claimsContextKey).(auth.Claims)
	if !ok || !claims.HasRole(auth.RoleModerator) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "moderator_required"})
		return
	}
	c.Next()
}

// requestScope extracts the validated tenant and claims; it writes the error
// response itself when the request is malformed.
func (h *httpHandler) requestScope(c *gin.Context) (suggestions.TenantID, auth.Claims, bool) {
	tenant, err := suggestions.NewTenantID(c.Param("tenant"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_tenant"})
		return "", auth.Claims{}, false
	}
	claims, ok := c.MustGet(claimsContextKey).(auth.Claims)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", auth.Claims{}, false
	}
	return tenant, claims, true
}

func (h *httpHandler) suggestionID(c *gin.Context) (suggestions.SuggestionID, bool) {
	raw, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_suggestion_id"})
		return 0, false
	}
	id, err := suggestions.NewSuggestionID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_suggestion_id"})
		return 0, false
	}
	return id, true
}

// respondError maps lifecycle sentinels onto HTTP statuses. Each distinct
// rejection reason keeps a distinct error code so clients can branch on it.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, suggestions.ErrNotConfigured):
		c.JSON(http.StatusConflict, gin.H{"error": "not_configured"})
	case errors.Is(err, suggestions.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, suggestions.ErrWrongAuthor):
		c.JSON(http.StatusForbidden, gin.H{"error": "wrong_author"})
	case errors.Is(err, suggestions.ErrArtifactMissing):
		c.JSON(http.StatusGone, gin.H{"error": "message_missing"})
	case errors.Is(err, suggestions.ErrArchived):
		c.JSON(http.StatusConflict, gin.H{"error": "archived"})
	case errors.Is(err, suggestions.ErrReplied):
		c.JSON(http.StatusConflict, gin.H{"error": "already_replied"})
	case errors.Is(err, suggestions.ErrRenderFailed), errors.Is(err, suggestions.ErrTransport):
		h.logger.Error("message store failure", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "message_store_unavailable"})
	default:
		h.logger.Error("suggestion operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
