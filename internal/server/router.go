package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/internal/collab"
	"github.com/inkwell-labs/inkwell/internal/notes"
	"github.com/inkwell-labs/inkwell/internal/users"
)

const userIDContextKey = "inkwell_user_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingNotesService  = errors.New("notes service dependency required")
	errMissingHub           = errors.New("collaboration hub dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates bearer tokens.
type TokenManager interface {
	Issue(ctx context.Context, userID string) (string, int64, error)
	Validate(token string) (string, error)
}

// Dependencies wires the HTTP surface to its collaborators.
type Dependencies struct {
	TokenManager TokenManager
	UsersService *users.Service
	NotesService *notes.Service
	Hub          *collab.Hub
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router: auth endpoints, the notes REST
// surface, share management and the collaboration channel upgrade.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:       deps.TokenManager,
		usersService: deps.UsersService,
		notesService: deps.NotesService,
		hub:          deps.Hub,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes/stats", handler.handleStats)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.POST("/notes/:id/share", handler.handleShareNote)
	protected.PUT("/notes/:id/share/:shareId", handler.handleUpdateShare)
	protected.DELETE("/notes/:id/share/:shareId", handler.handleRevokeShare)
	protected.GET("/collab", handler.handleCollab)

	return router, nil
}

type httpHandler struct {
	tokens       TokenManager
	usersService *users.Service
	notesService *notes.Service
	hub          *collab.Hub
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

type registerPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type tokenPayload struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	TokenType   string      `json:"token_type"`
	User        userPayload `json:"user"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.usersService.Register(c.Request.Context(), request.Username, request.Email, request.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
		case errors.Is(err, users.ErrInvalidRegistration):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_registration"})
		default:
			h.logger.Error("registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		}
		return
	}

	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.usersService.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

func (h *httpHandler) respondWithToken(c *gin.Context, status int, user users.User) {
	token, expiresIn, err := h.tokens.Issue(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(status, tokenPayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		User:        userPayload{ID: user.ID, Username: user.Username, Email: user.Email},
	})
}

type notePayload struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	Owner        userPayload     `json:"owner"`
	SharedWith   []sharePayload  `json:"sharedWith"`
	LastEditedBy *userPayload    `json:"lastEditedBy,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	CreatedAt    time.Time       `json:"createdAt"`
	Permission   string          `json:"permission"`
	IsOwner      bool            `json:"isOwner"`
}

type sharePayload struct {
	ShareID    string      `json:"shareId"`
	User       userPayload `json:"user"`
	Permission string      `json:"permission"`
}

type noteSummaryPayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	OwnerID   string    `json:"ownerId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type createNotePayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type updateNotePayload struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type shareRequestPayload struct {
	Email      string `json:"email"`
	Permission string `json:"permission"`
}

type updateSharePayload struct {
	Permission string `json:"permission"`
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	callerID, ok := h.callerID(c)
	if !ok {
		return
	}

	results, err := h.notesService.List(c.Request.Context(), callerID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	payload := make([]noteSummaryPayload, 0, len(results))
	for _, note := range results {
		payload = append(payload, noteSummaryPayload{
			ID:        note.ID,
			Title:     note.Title,
			Content:   note.Content,
			OwnerID:   note.OwnerID,
			UpdatedAt: note.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	callerID, ok := h.callerID(c)
	if !ok {
		return
	}

	var request createNotePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	note, err := h.notesService.Create(c.Request.Context(), callerID, request.Title, request.Content)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, noteSummaryPayload{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		OwnerID:   note.OwnerID,
		UpdatedAt: note.UpdatedAt,
	})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	callerID, noteID, ok := h.callerAndNote(c)
	if !ok {
		return
	}

	view, err := h.notesService.Get(c.Request.Context(), noteID, callerID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.renderNoteView(c.Request.Context(), view))
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	callerID, noteID, ok := h.callerAndNote(c)
	if !ok {
		return
	}

	var request updateNotePayload
	if err := c.ShouldBindJSON(&request); err != nil || (request.Title == nil && request.Content == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	note, err := h.notesService.Update(c.Request.Context(), noteID, callerID, notes.UpdateInput{
		Title:   request.Title,
		Content: request.Content,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, noteSummaryPayload{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		OwnerID:   note.OwnerID,
		UpdatedAt: note.UpdatedAt,
	})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	callerID, noteID, ok := h.callerAndNote(c)
	if !ok {
		return
	}

	if err := h.notesService.Delete(c.Request.Context(), noteID, callerID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleShareNote(c *gin.Context) {
	callerID, noteID, ok := h.callerAndNote(c)
	if !ok {
		return
	}

	var request shareRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	permission := notes.PermissionView
	if strings.TrimSpace(request.Permission) != "" {
		parsed, err := notes.ParseSharePermission(request.Permission)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_permission"})
			return
		}
		permission = parsed
	}

	grant, err := h.notesService.Share(c.Request.Context(), noteID, callerID, request.Email, permission)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.renderShare(c.Request.Context(), grant))
}

func (h *httpHandler) handleUpdateShare(c *gin.Context) {
	callerID, noteID, ok := h.callerAndNote(c)
	if !ok {
		return
	}

	var request updateSharePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	permission, err := notes.ParseSharePermission(request.Permission)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_permission"})
		return
	}

	grant, err := h.notesService.UpdateShare(c.Request.Context(), noteID, callerID, c.Param("shareId"), permission)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.renderShare(c.Request.Context(), grant))
}

func (h *httpHandler) handleRevokeShare(c *gin.Context) {
	callerID, noteID, ok := h.callerAndNote(c)
	if !ok {
		return
	}

	if err := h.notesService.RevokeShare(c.Request.Context(), noteID, callerID, c.Param("shareId")); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleStats(c *gin.Context) {
	callerID, ok := h.callerID(c)
	if !ok {
		return
	}

	stats, err := h.notesService.GetStats(c.Request.Context(), callerID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"owned":      stats.Owned,
		"sharedWith": stats.SharedWith,
	})
}

// handleCollab upgrades the request and hands the connection to the hub. The
// bearer token was already validated by the middleware; an invalid token
// never reaches the upgrade, so clients observe a plain 401 and can redirect
// to the login flow.
func (h *httpHandler) handleCollab(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	user, err := h.usersService.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	h.hub.Serve(c.Request.Context(), conn, collab.Participant{
		ID:          user.ID,
		DisplayName: user.Username,
	})
}

func (h *httpHandler) renderNoteView(ctx context.Context, view notes.NoteView) notePayload {
	payload := notePayload{
		ID:         view.Note.ID,
		Title:      view.Note.Title,
		Content:    view.Note.Content,
		Owner:      h.renderUser(ctx, view.Note.OwnerID),
		SharedWith: make([]sharePayload, 0, len(view.Grants)),
		UpdatedAt:  view.Note.UpdatedAt,
		CreatedAt:  view.Note.CreatedAt,
		Permission: string(view.Permission),
		IsOwner:    view.Permission == notes.PermissionOwner,
	}
	for _, grant := range view.Grants {
		payload.SharedWith = append(payload.SharedWith, sharePayload{
			ShareID:    grant.ID,
			User:       h.renderUser(ctx, grant.UserID),
			Permission: string(grant.Permission),
		})
	}
	if view.Note.LastEditorID != "" {
		editor := h.renderUser(ctx, view.Note.LastEditorID)
		payload.LastEditedBy = &editor
	}
	return payload
}

func (h *httpHandler) renderShare(ctx context.Context, grant notes.ShareGrant) sharePayload {
	return sharePayload{
		ShareID:    grant.ID,
		User:       h.renderUser(ctx, grant.UserID),
		Permission: string(grant.Permission),
	}
}

// renderUser degrades to a bare identifier when the account lookup fails; a
// note detail response is never blocked on display-name resolution.
func (h *httpHandler) renderUser(ctx context.Context, userID string) userPayload {
	user, err := h.usersService.GetByID(ctx, userID)
	if err != nil {
		return userPayload{ID: userID}
	}
	return userPayload{ID: user.ID, Username: user.Username}
}

func (h *httpHandler) callerID(c *gin.Context) (notes.UserID, bool) {
	raw := c.GetString(userIDContextKey)
	callerID, err := notes.NewUserID(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return callerID, true
}

func (h *httpHandler) callerAndNote(c *gin.Context) (notes.UserID, notes.NoteID, bool) {
	callerID, ok := h.callerID(c)
	if !ok {
		return "", "", false
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return "", "", false
	}
	return callerID, noteID, true
}

func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notes.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
	case errors.Is(err, notes.ErrShareNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "share_not_found"})
	case errors.Is(err, users.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
	case errors.Is(err, notes.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission_denied"})
	case errors.Is(err, notes.ErrShareWithOwner), errors.Is(err, notes.ErrInvalidPermission):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error("notes request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// authorizeRequest accepts the bearer token from the Authorization header or,
// for websocket handshakes where custom headers are awkward in browsers, the
// access_token query parameter.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}
